package database

import (
	"github.com/chachabrian/mooveit-dispatch/internal/models"
	"gorm.io/gorm"
)

// Raw statements gorm cannot express. Each one is idempotent.
var postgisStatements = []string{
	`CREATE EXTENSION IF NOT EXISTS postgis`,

	`ALTER TABLE ride_requests ADD COLUMN IF NOT EXISTS origin_point geography(Point, 4326)
		GENERATED ALWAYS AS (ST_SetSRID(ST_MakePoint(origin_lng, origin_lat), 4326)::geography) STORED`,
	`CREATE INDEX IF NOT EXISTS idx_ride_requests_origin_point ON ride_requests USING GIST (origin_point)`,
	`CREATE INDEX IF NOT EXISTS idx_ride_requests_open ON ride_requests (created_at DESC) WHERE status = 'OPEN'`,

	`ALTER TABLE driver_locations ADD COLUMN IF NOT EXISTS point geography(Point, 4326)
		GENERATED ALWAYS AS (ST_SetSRID(ST_MakePoint(longitude, latitude), 4326)::geography) STORED`,
	`CREATE INDEX IF NOT EXISTS idx_driver_locations_point ON driver_locations USING GIST (point)`,
}

// RunMigrations creates the ride tables and their geospatial columns. The
// users table belongs to the identity service and is only read here.
func RunMigrations(db *gorm.DB) error {
	if err := db.Exec(postgisStatements[0]).Error; err != nil {
		return err
	}

	if err := db.AutoMigrate(
		&models.RideRequest{},
		&models.DriverLocation{},
	); err != nil {
		return err
	}

	for _, stmt := range postgisStatements[1:] {
		if err := db.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}
