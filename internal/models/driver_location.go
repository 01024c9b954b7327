package models

import (
	"time"
)

// DriverLocation is the latest known position of a driver. There is at most
// one record per driver; every push overwrites it.
type DriverLocation struct {
	DriverID  string    `json:"driverId" gorm:"primaryKey"`
	Latitude  float64   `json:"lat" gorm:"not null"`
	Longitude float64   `json:"lng" gorm:"not null"`
	Speed     *float64  `json:"speed,omitempty"`
	Heading   *float64  `json:"heading,omitempty"`
	Accuracy  *float64  `json:"accuracy,omitempty"`
	Timestamp time.Time `json:"timestamp" gorm:"not null;index"`
}

// TableName specifies the table name
func (DriverLocation) TableName() string {
	return "driver_locations"
}

// NearbyDriver pairs a location with its distance from a search center.
type NearbyDriver struct {
	Location   DriverLocation `json:"location"`
	DistanceKm float64        `json:"distanceKm"`
}
