package store

import (
	"context"
	"errors"
	"time"

	"github.com/chachabrian/mooveit-dispatch/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PostgresRideStore stores rides in the ride_requests table. Radius queries
// use the origin_point geography column created by database.RunMigrations.
type PostgresRideStore struct {
	db *gorm.DB
}

func NewPostgresRideStore(db *gorm.DB) *PostgresRideStore {
	return &PostgresRideStore{db: db}
}

func (s *PostgresRideStore) CreateRide(ctx context.Context, ride *models.RideRequest) error {
	return s.db.WithContext(ctx).Create(ride).Error
}

func (s *PostgresRideStore) GetRide(ctx context.Context, id string) (*models.RideRequest, error) {
	var ride models.RideRequest
	if err := s.db.WithContext(ctx).First(&ride, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &ride, nil
}

// TransitionRide issues a single UPDATE ... WHERE id AND status RETURNING *.
// Concurrent callers are serialised by the row lock; losers match zero rows.
func (s *PostgresRideStore) TransitionRide(ctx context.Context, t Transition) (*models.RideRequest, error) {
	if err := t.validate(); err != nil {
		return nil, err
	}

	updates := map[string]interface{}{
		"status":     string(t.To),
		"updated_at": t.At,
		"version":    gorm.Expr("version + 1"),
	}
	switch t.To {
	case models.RideStatusAssigned:
		updates["assigned_driver_id"] = t.AssignDriverID
		updates["assigned_at"] = t.At
	case models.RideStatusCompleted:
		updates["completed_at"] = t.At
		if t.ActualDurationMins != nil {
			updates["actual_duration_mins"] = *t.ActualDurationMins
		}
	case models.RideStatusCancelled:
		updates["cancelled_at"] = t.At
	}

	var ride models.RideRequest
	query := s.db.WithContext(ctx).
		Model(&ride).
		Clauses(clause.Returning{}).
		Where("id = ? AND status = ?", t.RideID, string(t.From))
	if t.RequireDriverID != "" {
		query = query.Where("assigned_driver_id = ?", t.RequireDriverID)
	}
	if t.ExcludePassengerID != "" {
		query = query.Where("passenger_id <> ?", t.ExcludePassengerID)
	}

	result := query.Updates(updates)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, ErrNoMatch
	}
	return &ride, nil
}

func (s *PostgresRideStore) ListOpenRides(ctx context.Context, q OpenRidesQuery) ([]*models.RideRequest, error) {
	query := s.db.WithContext(ctx).Where("status = ?", string(models.RideStatusOpen))
	if q.CreatedBefore != nil {
		query = query.Where("created_at < ?", *q.CreatedBefore)
	}
	if q.Center != nil {
		query = query.Where(
			"ST_DWithin(origin_point, ST_SetSRID(ST_MakePoint(?, ?), 4326)::geography, ?)",
			q.Center.Lng, q.Center.Lat, q.RadiusKm*1000,
		)
	}
	query = query.Order("created_at DESC, id DESC")
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}

	var rides []*models.RideRequest
	if err := query.Find(&rides).Error; err != nil {
		return nil, err
	}
	return rides, nil
}

func (s *PostgresRideStore) ListRidesForUser(ctx context.Context, userID string) ([]*models.RideRequest, error) {
	var rides []*models.RideRequest
	err := s.db.WithContext(ctx).
		Where("passenger_id = ? OR assigned_driver_id = ?", userID, userID).
		Order("created_at DESC, id DESC").
		Find(&rides).Error
	if err != nil {
		return nil, err
	}
	return rides, nil
}

func (s *PostgresRideStore) ListActiveRidesForDriver(ctx context.Context, driverID string) ([]*models.RideRequest, error) {
	var rides []*models.RideRequest
	err := s.db.WithContext(ctx).
		Where("assigned_driver_id = ? AND status IN ?", driverID, []string{
			string(models.RideStatusAssigned),
			string(models.RideStatusOnRoute),
		}).
		Order("created_at DESC, id DESC").
		Find(&rides).Error
	if err != nil {
		return nil, err
	}
	return rides, nil
}

func (s *PostgresRideStore) CountRides(ctx context.Context, status models.RideStatus, since *time.Time) (int64, error) {
	var count int64
	query := s.db.WithContext(ctx).Model(&models.RideRequest{}).Where("status = ?", string(status))
	if since != nil {
		query = query.Where(statusSinceColumn(status)+" >= ?", *since)
	}
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
