package models

import (
	"encoding/json"
	"time"
)

// RideStatus is a state of the ride lifecycle.
type RideStatus string

// RideStatus constants
const (
	RideStatusOpen      RideStatus = "OPEN"
	RideStatusAssigned  RideStatus = "ASSIGNED"
	RideStatusOnRoute   RideStatus = "ON_ROUTE"
	RideStatusCompleted RideStatus = "COMPLETED"
	RideStatusCancelled RideStatus = "CANCELLED"
)

// AllRideStatuses lists every status in lifecycle order.
var AllRideStatuses = []RideStatus{
	RideStatusOpen,
	RideStatusAssigned,
	RideStatusOnRoute,
	RideStatusCompleted,
	RideStatusCancelled,
}

// IsValid reports whether s is a known status.
func (s RideStatus) IsValid() bool {
	for _, known := range AllRideStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s RideStatus) IsTerminal() bool {
	return s == RideStatusCompleted || s == RideStatusCancelled
}

// CanTransitionTo encodes the forward-only state machine. CANCELLED is
// reachable from every non-terminal state.
func (s RideStatus) CanTransitionTo(next RideStatus) bool {
	switch next {
	case RideStatusAssigned:
		return s == RideStatusOpen
	case RideStatusOnRoute:
		return s == RideStatusAssigned
	case RideStatusCompleted:
		return s == RideStatusOnRoute
	case RideStatusCancelled:
		return !s.IsTerminal()
	}
	return false
}

// GeoPoint is a GeoJSON point, coordinates are [lng, lat].
type GeoPoint struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
}

// Location is an address with its coordinates.
type Location struct {
	Address   string  `json:"address" gorm:"column:address;not null"`
	Latitude  float64 `json:"lat" gorm:"column:lat;not null"`
	Longitude float64 `json:"lng" gorm:"column:lng;not null"`
}

// Point returns the derived point used for geospatial indexing.
func (l Location) Point() GeoPoint {
	return GeoPoint{Type: "Point", Coordinates: [2]float64{l.Longitude, l.Latitude}}
}

func (l Location) MarshalJSON() ([]byte, error) {
	type plain Location
	return json.Marshal(struct {
		plain
		Point GeoPoint `json:"location"`
	}{plain(l), l.Point()})
}

// RideRequest represents a ride request from a passenger
type RideRequest struct {
	ID                    string     `json:"id" gorm:"primaryKey"`
	PassengerID           string     `json:"passengerId" gorm:"not null;index"`
	Origin                Location   `json:"origin" gorm:"embedded;embeddedPrefix:origin_"`
	Destination           Location   `json:"destination" gorm:"embedded;embeddedPrefix:destination_"`
	SeatsRequested        int        `json:"seatsRequested" gorm:"not null;check:seats_requested BETWEEN 1 AND 10"`
	DistanceKm            float64    `json:"distanceKm" gorm:"not null"`
	EstimatedDurationMins int        `json:"estimatedDurationMins" gorm:"not null"`
	Status                RideStatus `json:"status" gorm:"not null;default:'OPEN';index:idx_ride_status_created,priority:1"`
	AssignedDriverID      *string    `json:"assignedDriverId" gorm:"index"`
	AssignedAt            *time.Time `json:"assignedAt,omitempty"`
	CompletedAt           *time.Time `json:"completedAt,omitempty"`
	CancelledAt           *time.Time `json:"cancelledAt,omitempty"`
	ActualDurationMins    *int       `json:"actualDurationMins,omitempty"`
	Version               int        `json:"version" gorm:"not null;default:1"`
	CreatedAt             time.Time  `json:"createdAt" gorm:"index:idx_ride_status_created,priority:2,sort:desc"`
	UpdatedAt             time.Time  `json:"updatedAt"`
}

// TableName specifies the table name
func (RideRequest) TableName() string {
	return "ride_requests"
}

// DriverID returns the assigned driver or "" before assignment.
func (r *RideRequest) DriverID() string {
	if r.AssignedDriverID == nil {
		return ""
	}
	return *r.AssignedDriverID
}

// IsParticipant reports whether userID is the passenger or the assigned driver.
func (r *RideRequest) IsParticipant(userID string) bool {
	if userID == "" {
		return false
	}
	return r.PassengerID == userID || r.DriverID() == userID
}

// Clone returns a deep copy so callers never share pointer fields.
func (r *RideRequest) Clone() *RideRequest {
	c := *r
	c.AssignedDriverID = cloneString(r.AssignedDriverID)
	c.AssignedAt = cloneTime(r.AssignedAt)
	c.CompletedAt = cloneTime(r.CompletedAt)
	c.CancelledAt = cloneTime(r.CancelledAt)
	if r.ActualDurationMins != nil {
		v := *r.ActualDurationMins
		c.ActualDurationMins = &v
	}
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
