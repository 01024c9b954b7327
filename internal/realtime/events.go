package realtime

import (
	"encoding/json"
	"time"

	"github.com/chachabrian/mooveit-dispatch/internal/directory"
	"github.com/chachabrian/mooveit-dispatch/internal/models"
)

// Outbound event types
const (
	EventNewRide              = "newRide"
	EventRideAssigned         = "rideAssigned"
	EventRideStarted          = "rideStarted"
	EventRideCompleted        = "rideCompleted"
	EventRideCancelled        = "rideCancelled"
	EventDriverLocationUpdate = "driverLocationUpdate"
	EventRideStatusUpdate     = "rideStatusUpdate"
	EventError                = "error"
)

// Inbound event types
const (
	EventDriverLocation   = "driverLocation"
	EventUpdateRideStatus = "updateRideStatus"
)

// DriverPoolTopic is the topic every connected driver joins.
const DriverPoolTopic = "drivers"

// Event is the wire envelope in both directions.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

type inboundEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type NewRidePayload struct {
	RideID                string            `json:"rideId"`
	Passenger             directory.Profile `json:"passenger"`
	Origin                models.Location   `json:"origin"`
	Destination           models.Location   `json:"destination"`
	SeatsRequested        int               `json:"seatsRequested"`
	DistanceKm            float64           `json:"distanceKm"`
	EstimatedDurationMins int               `json:"estimatedDurationMins"`
	CreatedAt             time.Time         `json:"createdAt"`
}

type RideAssignedPayload struct {
	RideID       string            `json:"rideId"`
	DriverID     string            `json:"driverId"`
	DriverName   string            `json:"driverName,omitempty"`
	DriverAvatar string            `json:"driverAvatar,omitempty"`
	Passenger    directory.Profile `json:"passenger"`
	Origin       models.Location   `json:"origin"`
	Destination  models.Location   `json:"destination"`
	AssignedAt   *time.Time        `json:"assignedAt,omitempty"`
}

// RideProgressPayload is sent for rideStarted, rideCompleted and
// rideStatusUpdate.
type RideProgressPayload struct {
	RideID             string            `json:"rideId"`
	Status             models.RideStatus `json:"status"`
	ActualDurationMins *int              `json:"actualDurationMins,omitempty"`
	UpdatedAt          time.Time         `json:"updatedAt"`
}

type RideCancelledPayload struct {
	RideID      string     `json:"rideId"`
	CancelledBy string     `json:"cancelledBy"`
	Reason      string     `json:"reason"`
	CancelledAt *time.Time `json:"cancelledAt,omitempty"`
}

type DriverLocationPayload struct {
	RideID    string    `json:"rideId"`
	DriverID  string    `json:"driverId"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Speed     *float64  `json:"speed,omitempty"`
	Heading   *float64  `json:"heading,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

type updateRideStatusRequest struct {
	RideID string            `json:"rideId"`
	Status models.RideStatus `json:"status"`
	Reason string            `json:"reason"`
}
