package store

import (
	"context"
	"sort"
	"sync"

	"github.com/chachabrian/mooveit-dispatch/internal/models"
	"github.com/chachabrian/mooveit-dispatch/pkg/utils"
)

// MemoryLocationStore keeps the latest location per driver in memory.
type MemoryLocationStore struct {
	mu        sync.RWMutex
	locations map[string]*models.DriverLocation
	cells     *cellIndex
}

func NewMemoryLocationStore() *MemoryLocationStore {
	return &MemoryLocationStore{
		locations: make(map[string]*models.DriverLocation),
		cells:     newCellIndex(),
	}
}

// UpsertLocation replaces the driver's record unless the stored one is newer.
func (s *MemoryLocationStore) UpsertLocation(ctx context.Context, loc *models.DriverLocation) (*models.DriverLocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.locations[loc.DriverID]; ok {
		if prev.Timestamp.After(loc.Timestamp) {
			cp := *prev
			return &cp, nil
		}
		s.cells.remove(prev.DriverID, prev.Latitude, prev.Longitude)
	}

	stored := *loc
	s.locations[stored.DriverID] = &stored
	s.cells.add(stored.DriverID, stored.Latitude, stored.Longitude)

	cp := stored
	return &cp, nil
}

func (s *MemoryLocationStore) GetLocation(ctx context.Context, driverID string) (*models.DriverLocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	loc, ok := s.locations[driverID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *loc
	return &cp, nil
}

func (s *MemoryLocationStore) NearbyDrivers(ctx context.Context, center utils.Point, radiusKm float64, limit int) ([]models.NearbyDriver, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	box := utils.GetBoundingBox(center.Lat, center.Lng, radiusKm)

	consider := func(loc *models.DriverLocation, out []models.NearbyDriver) []models.NearbyDriver {
		// longitude bounds wrap at the antimeridian, only latitude is a safe cut
		if loc.Latitude < box.SouthWest.Lat || loc.Latitude > box.NorthEast.Lat {
			return out
		}
		d := utils.HaversineDistance(center.Lat, center.Lng, loc.Latitude, loc.Longitude)
		if d > radiusKm {
			return out
		}
		return append(out, models.NearbyDriver{Location: *loc, DistanceKm: d})
	}

	var nearby []models.NearbyDriver
	if ids, ok := s.cells.candidates(center.Lat, center.Lng, radiusKm); ok {
		for id := range ids {
			if loc, exists := s.locations[id]; exists {
				nearby = consider(loc, nearby)
			}
		}
	} else {
		for _, loc := range s.locations {
			nearby = consider(loc, nearby)
		}
	}

	sort.Slice(nearby, func(i, j int) bool {
		if nearby[i].DistanceKm != nearby[j].DistanceKm {
			return nearby[i].DistanceKm < nearby[j].DistanceKm
		}
		return nearby[i].Location.DriverID < nearby[j].Location.DriverID
	})
	if limit > 0 && len(nearby) > limit {
		nearby = nearby[:limit]
	}
	return nearby, nil
}
