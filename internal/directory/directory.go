// Package directory reads display data and driver onboarding flags from the
// user directory owned by the identity service.
package directory

import (
	"context"
	"errors"
	"sync"

	"github.com/chachabrian/mooveit-dispatch/internal/models"
	"gorm.io/gorm"
)

var ErrUserNotFound = errors.New("user not found")

// Profile is the public part of a user shown in ride payloads.
type Profile struct {
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}

type DriverCounts struct {
	Registered int64 `json:"registered"`
	Approved   int64 `json:"approved"`
}

type Directory interface {
	Profile(ctx context.Context, userID string) (Profile, error)
	DriverCounts(ctx context.Context) (DriverCounts, error)
}

// Parties holds the resolved profiles of both sides of a ride.
type Parties struct {
	Passenger Profile  `json:"passenger"`
	Driver    *Profile `json:"driver,omitempty"`
}

// ResolveParties looks up the passenger and, once assigned, the driver.
// A failed lookup degrades to a profile carrying only the id.
func ResolveParties(ctx context.Context, dir Directory, ride *models.RideRequest) Parties {
	parties := Parties{Passenger: lookup(ctx, dir, ride.PassengerID)}
	if driverID := ride.DriverID(); driverID != "" {
		driver := lookup(ctx, dir, driverID)
		parties.Driver = &driver
	}
	return parties
}

func lookup(ctx context.Context, dir Directory, userID string) Profile {
	if dir == nil {
		return Profile{ID: userID}
	}
	p, err := dir.Profile(ctx, userID)
	if err != nil {
		return Profile{ID: userID}
	}
	return p
}

// GormDirectory reads the users table.
type GormDirectory struct {
	db *gorm.DB
}

func NewGormDirectory(db *gorm.DB) *GormDirectory {
	return &GormDirectory{db: db}
}

func (d *GormDirectory) Profile(ctx context.Context, userID string) (Profile, error) {
	var user models.User
	err := d.db.WithContext(ctx).
		Select("id", "name", "avatar").
		First(&user, "id = ?", userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Profile{}, ErrUserNotFound
		}
		return Profile{}, err
	}
	return Profile{ID: user.ID, Name: user.Name, Avatar: user.Avatar}, nil
}

func (d *GormDirectory) DriverCounts(ctx context.Context) (DriverCounts, error) {
	var counts DriverCounts
	err := d.db.WithContext(ctx).
		Model(&models.User{}).
		Select("COUNT(*) FILTER (WHERE driver_registered) AS registered, COUNT(*) FILTER (WHERE driver_approved) AS approved").
		Scan(&counts).Error
	return counts, err
}

// Static is an in-memory directory for local runs and tests.
type Static struct {
	mu    sync.RWMutex
	users map[string]models.User
}

func NewStatic(users ...models.User) *Static {
	s := &Static{users: make(map[string]models.User)}
	for _, u := range users {
		s.users[u.ID] = u
	}
	return s
}

func (s *Static) Put(user models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = user
}

func (s *Static) Profile(ctx context.Context, userID string) (Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[userID]
	if !ok {
		return Profile{}, ErrUserNotFound
	}
	return Profile{ID: u.ID, Name: u.Name, Avatar: u.Avatar}, nil
}

func (s *Static) DriverCounts(ctx context.Context) (DriverCounts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var counts DriverCounts
	for _, u := range s.users {
		if u.DriverRegistered {
			counts.Registered++
		}
		if u.DriverApproved {
			counts.Approved++
		}
	}
	return counts, nil
}
