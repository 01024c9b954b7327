package store

import (
	"context"
	"errors"

	"github.com/chachabrian/mooveit-dispatch/internal/models"
	"github.com/chachabrian/mooveit-dispatch/pkg/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PostgresLocationStore struct {
	db *gorm.DB
}

func NewPostgresLocationStore(db *gorm.DB) *PostgresLocationStore {
	return &PostgresLocationStore{db: db}
}

// UpsertLocation is INSERT ... ON CONFLICT (driver_id) DO UPDATE. An
// out-of-order push carrying an older timestamp leaves the row untouched.
func (s *PostgresLocationStore) UpsertLocation(ctx context.Context, loc *models.DriverLocation) (*models.DriverLocation, error) {
	row := *loc
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "driver_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"latitude", "longitude", "speed", "heading", "accuracy", "timestamp"}),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: "driver_locations.timestamp <= excluded.timestamp"},
		}},
	}).Create(&row).Error
	if err != nil {
		return nil, err
	}
	return s.GetLocation(ctx, loc.DriverID)
}

func (s *PostgresLocationStore) GetLocation(ctx context.Context, driverID string) (*models.DriverLocation, error) {
	var loc models.DriverLocation
	if err := s.db.WithContext(ctx).First(&loc, "driver_id = ?", driverID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &loc, nil
}

type nearbyRow struct {
	models.DriverLocation
	DistanceKm float64
}

func (s *PostgresLocationStore) NearbyDrivers(ctx context.Context, center utils.Point, radiusKm float64, limit int) ([]models.NearbyDriver, error) {
	const origin = "ST_SetSRID(ST_MakePoint(?, ?), 4326)::geography"

	query := s.db.WithContext(ctx).
		Table(models.DriverLocation{}.TableName()).
		Select("driver_locations.*, ST_Distance(point, "+origin+") / 1000 AS distance_km", center.Lng, center.Lat).
		Where("ST_DWithin(point, "+origin+", ?)", center.Lng, center.Lat, radiusKm*1000).
		Order("distance_km ASC, driver_id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var rows []nearbyRow
	if err := query.Scan(&rows).Error; err != nil {
		return nil, err
	}

	nearby := make([]models.NearbyDriver, 0, len(rows))
	for _, r := range rows {
		nearby = append(nearby, models.NearbyDriver{Location: r.DriverLocation, DistanceKm: r.DistanceKm})
	}
	return nearby, nil
}
