package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/chachabrian/mooveit-dispatch/internal/models"
	"github.com/chachabrian/mooveit-dispatch/pkg/utils"
)

// MemoryRideStore keeps rides in memory. The mutex is what makes
// TransitionRide a compare-and-swap: check and write happen under one lock.
// OPEN rides are additionally bucketed by origin geohash for radius queries.
type MemoryRideStore struct {
	mu    sync.RWMutex
	rides map[string]*models.RideRequest
	open  *cellIndex
}

func NewMemoryRideStore() *MemoryRideStore {
	return &MemoryRideStore{
		rides: make(map[string]*models.RideRequest),
		open:  newCellIndex(),
	}
}

func (s *MemoryRideStore) CreateRide(ctx context.Context, ride *models.RideRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := ride.Clone()
	if stored.Version == 0 {
		stored.Version = 1
	}
	if stored.UpdatedAt.IsZero() {
		stored.UpdatedAt = stored.CreatedAt
	}
	s.rides[stored.ID] = stored
	if stored.Status == models.RideStatusOpen {
		s.open.add(stored.ID, stored.Origin.Latitude, stored.Origin.Longitude)
	}
	return nil
}

func (s *MemoryRideStore) GetRide(ctx context.Context, id string) (*models.RideRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ride, exists := s.rides[id]
	if !exists {
		return nil, ErrNotFound
	}
	return ride.Clone(), nil
}

func (s *MemoryRideStore) TransitionRide(ctx context.Context, t Transition) (*models.RideRequest, error) {
	if err := t.validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ride, exists := s.rides[t.RideID]
	if !exists || ride.Status != t.From {
		return nil, ErrNoMatch
	}
	if t.RequireDriverID != "" && ride.DriverID() != t.RequireDriverID {
		return nil, ErrNoMatch
	}
	if t.ExcludePassengerID != "" && ride.PassengerID == t.ExcludePassengerID {
		return nil, ErrNoMatch
	}

	if ride.Status == models.RideStatusOpen {
		s.open.remove(ride.ID, ride.Origin.Latitude, ride.Origin.Longitude)
	}
	applyTransition(ride, t)
	return ride.Clone(), nil
}

func (s *MemoryRideStore) ListOpenRides(ctx context.Context, q OpenRidesQuery) ([]*models.RideRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var candidates map[string]struct{}
	scanAll := true
	if q.Center != nil {
		candidates, scanAll = s.open.candidates(q.Center.Lat, q.Center.Lng, q.RadiusKm)
		scanAll = !scanAll
	}

	match := func(ride *models.RideRequest) bool {
		if ride.Status != models.RideStatusOpen {
			return false
		}
		if q.CreatedBefore != nil && !ride.CreatedAt.Before(*q.CreatedBefore) {
			return false
		}
		if q.Center != nil && !utils.IsWithinRadius(q.Center.Lat, q.Center.Lng,
			ride.Origin.Latitude, ride.Origin.Longitude, q.RadiusKm) {
			return false
		}
		return true
	}

	var rides []*models.RideRequest
	if scanAll {
		for _, ride := range s.rides {
			if match(ride) {
				rides = append(rides, ride.Clone())
			}
		}
	} else {
		for id := range candidates {
			if ride, ok := s.rides[id]; ok && match(ride) {
				rides = append(rides, ride.Clone())
			}
		}
	}

	sortNewestFirst(rides)
	if q.Limit > 0 && len(rides) > q.Limit {
		rides = rides[:q.Limit]
	}
	return rides, nil
}

func (s *MemoryRideStore) ListRidesForUser(ctx context.Context, userID string) ([]*models.RideRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rides []*models.RideRequest
	for _, ride := range s.rides {
		if ride.IsParticipant(userID) {
			rides = append(rides, ride.Clone())
		}
	}
	sortNewestFirst(rides)
	return rides, nil
}

func (s *MemoryRideStore) ListActiveRidesForDriver(ctx context.Context, driverID string) ([]*models.RideRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rides []*models.RideRequest
	for _, ride := range s.rides {
		if ride.DriverID() != driverID {
			continue
		}
		if ride.Status == models.RideStatusAssigned || ride.Status == models.RideStatusOnRoute {
			rides = append(rides, ride.Clone())
		}
	}
	sortNewestFirst(rides)
	return rides, nil
}

func (s *MemoryRideStore) CountRides(ctx context.Context, status models.RideStatus, since *time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, ride := range s.rides {
		if ride.Status != status {
			continue
		}
		if since != nil {
			at := statusSince(ride)
			if at == nil || at.Before(*since) {
				continue
			}
		}
		n++
	}
	return n, nil
}

func sortNewestFirst(rides []*models.RideRequest) {
	sort.Slice(rides, func(i, j int) bool {
		if !rides[i].CreatedAt.Equal(rides[j].CreatedAt) {
			return rides[i].CreatedAt.After(rides[j].CreatedAt)
		}
		return rides[i].ID > rides[j].ID
	})
}
