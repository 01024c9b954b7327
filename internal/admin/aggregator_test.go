package admin

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chachabrian/mooveit-dispatch/internal/directory"
	"github.com/chachabrian/mooveit-dispatch/internal/models"
	"github.com/chachabrian/mooveit-dispatch/internal/store"
)

var now = time.Date(2025, 3, 1, 15, 30, 0, 0, time.UTC)

func ride(id string, status models.RideStatus, at time.Time) *models.RideRequest {
	r := &models.RideRequest{
		ID:             id,
		PassengerID:    "p-" + id,
		SeatsRequested: 1,
		Status:         status,
		CreatedAt:      at.Add(-time.Hour),
		UpdatedAt:      at,
	}
	driverID := "d-" + id
	switch status {
	case models.RideStatusAssigned, models.RideStatusOnRoute:
		r.AssignedDriverID = &driverID
		r.AssignedAt = &at
	case models.RideStatusCompleted:
		r.AssignedDriverID = &driverID
		r.CompletedAt = &at
	case models.RideStatusCancelled:
		r.CancelledAt = &at
	}
	return r
}

func TestAggregator_Overview(t *testing.T) {
	ctx := context.Background()
	rides := store.NewMemoryRideStore()
	yesterday := now.Add(-24 * time.Hour)
	for _, r := range []*models.RideRequest{
		ride("1", models.RideStatusOpen, now),
		ride("2", models.RideStatusOpen, yesterday),
		ride("3", models.RideStatusAssigned, now),
		ride("4", models.RideStatusOnRoute, now),
		ride("5", models.RideStatusCompleted, now.Add(-time.Hour)),
		ride("6", models.RideStatusCompleted, yesterday),
		ride("7", models.RideStatusCancelled, now.Add(-15*time.Hour)),
		ride("8", models.RideStatusCancelled, now.Add(-16*time.Hour)),
	} {
		if err := rides.CreateRide(ctx, r); err != nil {
			t.Fatalf("create %s: %v", r.ID, err)
		}
	}

	dir := directory.NewStatic(
		models.User{ID: "d1", UserType: "driver", DriverRegistered: true, DriverApproved: true},
		models.User{ID: "d2", UserType: "driver", DriverRegistered: true},
		models.User{ID: "p1", UserType: "passenger", DriverRegistered: true},
	)

	agg := NewAggregator(rides, dir)
	agg.now = func() time.Time { return now }

	got, err := agg.Overview(ctx)
	if err != nil {
		t.Fatalf("Overview: %v", err)
	}

	want := RideCounts{
		Open:           2,
		Assigned:       1,
		OnRoute:        1,
		Completed:      2,
		Cancelled:      2,
		CompletedToday: 1,
		CancelledToday: 1,
	}
	if got.Rides != want {
		t.Errorf("expected rides %+v, got %+v", want, got.Rides)
	}
	// The flags count whatever the account type; p1 registered as a driver.
	if got.Drivers != (DriverCounts{Registered: 3, Approved: 1}) {
		t.Errorf("unexpected driver counts: %+v", got.Drivers)
	}
	if !got.GeneratedAt.Equal(now) {
		t.Errorf("expected generatedAt %s, got %s", now, got.GeneratedAt)
	}
}

type failingDirectory struct{}

func (failingDirectory) Profile(ctx context.Context, userID string) (directory.Profile, error) {
	return directory.Profile{}, directory.ErrUserNotFound
}

func (failingDirectory) DriverCounts(ctx context.Context) (directory.DriverCounts, error) {
	return directory.DriverCounts{}, errors.New("users table unavailable")
}

func TestAggregator_OverviewFails(t *testing.T) {
	agg := NewAggregator(store.NewMemoryRideStore(), failingDirectory{})
	if _, err := agg.Overview(context.Background()); err == nil {
		t.Fatal("expected error when a counter fails")
	}
}
