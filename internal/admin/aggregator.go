// Package admin serves read-only operational views over ride data.
package admin

import (
	"context"
	"fmt"
	"time"

	"github.com/chachabrian/mooveit-dispatch/internal/directory"
	"github.com/chachabrian/mooveit-dispatch/internal/models"
	"github.com/chachabrian/mooveit-dispatch/internal/store"
	"golang.org/x/sync/errgroup"
)

type RideCounts struct {
	Open           int64 `json:"open"`
	Assigned       int64 `json:"assigned"`
	OnRoute        int64 `json:"onRoute"`
	Completed      int64 `json:"completed"`
	Cancelled      int64 `json:"cancelled"`
	CompletedToday int64 `json:"completedToday"`
	CancelledToday int64 `json:"cancelledToday"`
}

type DriverCounts struct {
	Registered int64 `json:"registered"`
	Approved   int64 `json:"approved"`
}

type Overview struct {
	Rides       RideCounts   `json:"rides"`
	Drivers     DriverCounts `json:"drivers"`
	GeneratedAt time.Time    `json:"generatedAt"`
}

type Aggregator struct {
	rides     store.RideStore
	directory directory.Directory
	now       func() time.Time
}

func NewAggregator(rides store.RideStore, dir directory.Directory) *Aggregator {
	return &Aggregator{rides: rides, directory: dir, now: time.Now}
}

// Overview collects all counters concurrently. "Today" starts at local
// midnight of the server clock.
func (a *Aggregator) Overview(ctx context.Context) (*Overview, error) {
	now := a.now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	out := &Overview{GeneratedAt: now}
	g, ctx := errgroup.WithContext(ctx)

	count := func(dst *int64, status models.RideStatus, since *time.Time) {
		g.Go(func() error {
			n, err := a.rides.CountRides(ctx, status, since)
			if err != nil {
				return fmt.Errorf("count %s rides: %w", status, err)
			}
			*dst = n
			return nil
		})
	}
	count(&out.Rides.Open, models.RideStatusOpen, nil)
	count(&out.Rides.Assigned, models.RideStatusAssigned, nil)
	count(&out.Rides.OnRoute, models.RideStatusOnRoute, nil)
	count(&out.Rides.Completed, models.RideStatusCompleted, nil)
	count(&out.Rides.Cancelled, models.RideStatusCancelled, nil)
	count(&out.Rides.CompletedToday, models.RideStatusCompleted, &midnight)
	count(&out.Rides.CancelledToday, models.RideStatusCancelled, &midnight)

	g.Go(func() error {
		drivers, err := a.directory.DriverCounts(ctx)
		if err != nil {
			return fmt.Errorf("count drivers: %w", err)
		}
		out.Drivers = DriverCounts{Registered: drivers.Registered, Approved: drivers.Approved}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
