// Package store persists rides and driver locations. Every ride mutation
// after creation goes through TransitionRide, a conditional write keyed on
// the current status, so concurrent writers never need an external lock.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chachabrian/mooveit-dispatch/internal/models"
	"github.com/chachabrian/mooveit-dispatch/pkg/utils"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrNoMatch means the precondition of a conditional write did not hold
	// (or the record does not exist).
	ErrNoMatch = errors.New("conditional update matched no record")
	// ErrInvalidTransition rejects a From/To pair the ride lifecycle does
	// not allow, before any record is touched.
	ErrInvalidTransition = errors.New("invalid ride status transition")
)

// Transition describes one conditional status change.
type Transition struct {
	RideID string
	From   models.RideStatus
	To     models.RideStatus

	// RequireDriverID, when set, also requires assigned_driver_id to match.
	RequireDriverID string
	// AssignDriverID is written when moving to ASSIGNED.
	AssignDriverID string
	// ExcludePassengerID, when set, requires passenger_id to differ.
	ExcludePassengerID string

	At                 time.Time
	ActualDurationMins *int
}

// OpenRidesQuery selects OPEN rides, newest first.
type OpenRidesQuery struct {
	Center   *utils.Point
	RadiusKm float64
	Limit    int
	// CreatedBefore restricts to rides created strictly before the instant.
	CreatedBefore *time.Time
}

type RideStore interface {
	CreateRide(ctx context.Context, ride *models.RideRequest) error
	GetRide(ctx context.Context, id string) (*models.RideRequest, error)
	TransitionRide(ctx context.Context, t Transition) (*models.RideRequest, error)
	ListOpenRides(ctx context.Context, q OpenRidesQuery) ([]*models.RideRequest, error)
	ListRidesForUser(ctx context.Context, userID string) ([]*models.RideRequest, error)
	// ListActiveRidesForDriver returns ASSIGNED and ON_ROUTE rides of the driver.
	ListActiveRidesForDriver(ctx context.Context, driverID string) ([]*models.RideRequest, error)
	// CountRides counts rides in status; since, when set, filters on the
	// timestamp of the transition into that status.
	CountRides(ctx context.Context, status models.RideStatus, since *time.Time) (int64, error)
}

type LocationStore interface {
	UpsertLocation(ctx context.Context, loc *models.DriverLocation) (*models.DriverLocation, error)
	GetLocation(ctx context.Context, driverID string) (*models.DriverLocation, error)
	NearbyDrivers(ctx context.Context, center utils.Point, radiusKm float64, limit int) ([]models.NearbyDriver, error)
}

func (t Transition) validate() error {
	if !t.To.IsValid() || !t.From.CanTransitionTo(t.To) {
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, t.From, t.To)
	}
	return nil
}

// applyTransition stamps the fields owned by the target status.
func applyTransition(ride *models.RideRequest, t Transition) {
	at := t.At
	ride.Status = t.To
	ride.UpdatedAt = at
	ride.Version++

	switch t.To {
	case models.RideStatusAssigned:
		driverID := t.AssignDriverID
		ride.AssignedDriverID = &driverID
		ride.AssignedAt = &at
	case models.RideStatusCompleted:
		ride.CompletedAt = &at
		if t.ActualDurationMins != nil {
			v := *t.ActualDurationMins
			ride.ActualDurationMins = &v
		}
	case models.RideStatusCancelled:
		ride.CancelledAt = &at
	}
}

// statusSince returns the timestamp CountRides filters on for a status.
func statusSince(ride *models.RideRequest) *time.Time {
	switch ride.Status {
	case models.RideStatusAssigned:
		return ride.AssignedAt
	case models.RideStatusOnRoute:
		return &ride.UpdatedAt
	case models.RideStatusCompleted:
		return ride.CompletedAt
	case models.RideStatusCancelled:
		return ride.CancelledAt
	}
	return &ride.CreatedAt
}

func statusSinceColumn(status models.RideStatus) string {
	switch status {
	case models.RideStatusAssigned:
		return "assigned_at"
	case models.RideStatusOnRoute:
		return "updated_at"
	case models.RideStatusCompleted:
		return "completed_at"
	case models.RideStatusCancelled:
		return "cancelled_at"
	}
	return "created_at"
}
