// Package dispatch owns the ride lifecycle. Every change after creation is
// a single conditional write against the store, so concurrent callers need
// no locking here: the store decides who wins and the rest get ErrConflict.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"

	"github.com/chachabrian/mooveit-dispatch/internal/directory"
	"github.com/chachabrian/mooveit-dispatch/internal/models"
	"github.com/chachabrian/mooveit-dispatch/internal/store"
	"github.com/chachabrian/mooveit-dispatch/pkg/utils"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultOpenRidesLimit     = 50
	MaxOpenRidesLimit         = 200
	DefaultRadiusKm           = 10.0
	DefaultNearbyDriversLimit = 20
	DefaultSeats              = 1
	DefaultCancelReason       = "No reason supplied"

	// SystemActor is recorded as the canceller of rides closed by the sweeper.
	SystemActor = "system"
)

type Config struct {
	OpenRidesDefaultLimit int
	OpenRidesMaxLimit     int
	DefaultRadiusKm       float64
}

func (c Config) withDefaults() Config {
	if c.OpenRidesMaxLimit <= 0 {
		c.OpenRidesMaxLimit = MaxOpenRidesLimit
	}
	if c.OpenRidesDefaultLimit <= 0 {
		c.OpenRidesDefaultLimit = DefaultOpenRidesLimit
	}
	if c.OpenRidesDefaultLimit > c.OpenRidesMaxLimit {
		c.OpenRidesDefaultLimit = c.OpenRidesMaxLimit
	}
	if c.DefaultRadiusKm <= 0 {
		c.DefaultRadiusKm = DefaultRadiusKm
	}
	return c
}

type LocationInput struct {
	Address   string   `json:"address" validate:"required"`
	Latitude  *float64 `json:"lat" validate:"required,min=-90,max=90"`
	Longitude *float64 `json:"lng" validate:"required,min=-180,max=180"`
}

func (l LocationInput) location() models.Location {
	return models.Location{Address: l.Address, Latitude: *l.Latitude, Longitude: *l.Longitude}
}

type CreateRideInput struct {
	Origin         LocationInput `json:"origin"`
	Destination    LocationInput `json:"destination"`
	SeatsRequested *int          `json:"seatsRequested" validate:"omitempty,min=1,max=10"`
}

// LocationUpdate is one telemetry push from a driver device.
type LocationUpdate struct {
	Latitude  *float64 `json:"lat" validate:"required,min=-90,max=90"`
	Longitude *float64 `json:"lng" validate:"required,min=-180,max=180"`
	Speed     *float64 `json:"speed" validate:"omitempty,min=0"`
	Heading   *float64 `json:"heading" validate:"omitempty,min=0,max=360"`
	Accuracy  *float64 `json:"accuracy" validate:"omitempty,min=0"`
}

type OpenRidesQuery struct {
	Center   *utils.Point
	RadiusKm float64
	Limit    int
}

// Assignment is an accepted ride with both parties resolved for display.
type Assignment struct {
	Ride      *models.RideRequest `json:"ride"`
	Passenger directory.Profile   `json:"passenger"`
	Driver    directory.Profile   `json:"driver"`
}

type Service struct {
	rides     store.RideStore
	locations store.LocationStore
	directory directory.Directory
	notifier  Notifier
	validate  *validator.Validate
	cfg       Config
	logger    *zap.Logger
	now       func() time.Time
}

func NewService(
	rides store.RideStore,
	locations store.LocationStore,
	dir directory.Directory,
	notifier Notifier,
	cfg Config,
	logger *zap.Logger,
) *Service {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		rides:     rides,
		locations: locations,
		directory: dir,
		notifier:  notifier,
		validate:  newValidator(),
		cfg:       cfg.withDefaults(),
		logger:    logger,
		now:       time.Now,
	}
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// CreateRide validates the request, derives distance and ETA, and stores an
// OPEN ride. The driver pool is notified after the write.
func (s *Service) CreateRide(ctx context.Context, passengerID string, in CreateRideInput) (*models.RideRequest, error) {
	if passengerID == "" {
		return nil, fmt.Errorf("%w: passenger id is required", ErrValidation)
	}
	in.Origin.Address = strings.TrimSpace(in.Origin.Address)
	in.Destination.Address = strings.TrimSpace(in.Destination.Address)
	if err := s.validate.StructCtx(ctx, in); err != nil {
		return nil, validationError(err)
	}

	seats := DefaultSeats
	if in.SeatsRequested != nil {
		seats = *in.SeatsRequested
	}
	origin := in.Origin.location()
	destination := in.Destination.location()
	distanceKm := utils.HaversineDistance(origin.Latitude, origin.Longitude, destination.Latitude, destination.Longitude)

	now := s.now()
	ride := &models.RideRequest{
		ID:                    uuid.NewString(),
		PassengerID:           passengerID,
		Origin:                origin,
		Destination:           destination,
		SeatsRequested:        seats,
		DistanceKm:            distanceKm,
		EstimatedDurationMins: utils.EstimateMinutes(distanceKm),
		Status:                models.RideStatusOpen,
		Version:               1,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if err := s.rides.CreateRide(ctx, ride); err != nil {
		return nil, s.internal("create ride", err)
	}

	s.logger.Info("ride created",
		zap.String("rideId", ride.ID),
		zap.String("passengerId", passengerID),
		zap.Float64("distanceKm", distanceKm))
	s.notifier.RideCreated(ride.Clone())
	return ride, nil
}

// ListOpenRides returns OPEN rides newest first. The limit is clamped to the
// configured maximum whatever the caller asks for.
func (s *Service) ListOpenRides(ctx context.Context, q OpenRidesQuery) ([]*models.RideRequest, error) {
	query := store.OpenRidesQuery{Limit: s.clampLimit(q.Limit)}
	if q.Center != nil {
		if err := checkPoint(*q.Center); err != nil {
			return nil, err
		}
		if err := checkRadius(q.RadiusKm); err != nil {
			return nil, err
		}
		center := *q.Center
		query.Center = &center
		query.RadiusKm = q.RadiusKm
		if query.RadiusKm <= 0 {
			query.RadiusKm = s.cfg.DefaultRadiusKm
		}
	}

	rides, err := s.rides.ListOpenRides(ctx, query)
	if err != nil {
		return nil, s.internal("list open rides", err)
	}
	if rides == nil {
		rides = []*models.RideRequest{}
	}
	return rides, nil
}

// AcceptRide assigns an OPEN ride to driverID. Exactly one of any number of
// concurrent callers succeeds; the others get ErrConflict.
func (s *Service) AcceptRide(ctx context.Context, rideID, driverID string) (*Assignment, error) {
	if driverID == "" {
		return nil, fmt.Errorf("%w: driver id is required", ErrValidation)
	}

	ride, err := s.rides.TransitionRide(ctx, store.Transition{
		RideID:             rideID,
		From:               models.RideStatusOpen,
		To:                 models.RideStatusAssigned,
		AssignDriverID:     driverID,
		ExcludePassengerID: driverID,
		At:                 s.now(),
	})
	if errors.Is(err, store.ErrNoMatch) {
		current, getErr := s.rides.GetRide(ctx, rideID)
		if errors.Is(getErr, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: ride not found", ErrNotFound)
		}
		if getErr == nil && current.PassengerID == driverID {
			return nil, fmt.Errorf("%w: cannot accept your own ride", ErrForbidden)
		}
		return nil, fmt.Errorf("%w: ride already assigned or does not exist", ErrConflict)
	}
	if err != nil {
		return nil, s.internal("accept ride", err)
	}

	s.logger.Info("ride assigned", zap.String("rideId", ride.ID), zap.String("driverId", driverID))
	s.notifier.RideAssigned(ride.Clone())

	parties := directory.ResolveParties(ctx, s.directory, ride)
	assignment := &Assignment{Ride: ride, Passenger: parties.Passenger}
	if parties.Driver != nil {
		assignment.Driver = *parties.Driver
	}
	return assignment, nil
}

func (s *Service) StartRide(ctx context.Context, rideID, driverID string) (*models.RideRequest, error) {
	ride, err := s.transitionOwned(ctx, store.Transition{
		RideID:          rideID,
		From:            models.RideStatusAssigned,
		To:              models.RideStatusOnRoute,
		RequireDriverID: driverID,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("ride started", zap.String("rideId", ride.ID))
	s.notifier.RideStarted(ride.Clone())
	return ride, nil
}

func (s *Service) CompleteRide(ctx context.Context, rideID, driverID string, actualDurationMins *int) (*models.RideRequest, error) {
	if actualDurationMins != nil && *actualDurationMins < 0 {
		return nil, fmt.Errorf("%w: actualDurationMins must not be negative", ErrValidation)
	}

	ride, err := s.transitionOwned(ctx, store.Transition{
		RideID:             rideID,
		From:               models.RideStatusOnRoute,
		To:                 models.RideStatusCompleted,
		RequireDriverID:    driverID,
		ActualDurationMins: actualDurationMins,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("ride completed", zap.String("rideId", ride.ID))
	s.notifier.RideCompleted(ride.Clone())
	return ride, nil
}

// transitionOwned runs a transition that only the assigned driver may make.
// A wrong status and a wrong driver are reported the same way.
func (s *Service) transitionOwned(ctx context.Context, t store.Transition) (*models.RideRequest, error) {
	if t.RequireDriverID == "" {
		return nil, fmt.Errorf("%w: driver id is required", ErrValidation)
	}
	t.At = s.now()

	ride, err := s.rides.TransitionRide(ctx, t)
	if errors.Is(err, store.ErrNoMatch) {
		return nil, fmt.Errorf("%w: ride not found or not yours", ErrNotFound)
	}
	if err != nil {
		return nil, s.internal("update ride status", err)
	}
	return ride, nil
}

// CancelRide cancels a ride on behalf of its passenger or assigned driver.
// The reason is carried in the notification only.
func (s *Service) CancelRide(ctx context.Context, rideID, callerID, reason string) (*models.RideRequest, error) {
	ride, err := s.loadRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if !ride.IsParticipant(callerID) {
		return nil, fmt.Errorf("%w: not authorized to cancel this ride", ErrForbidden)
	}
	return s.cancel(ctx, ride, callerID, reason)
}

func (s *Service) cancel(ctx context.Context, ride *models.RideRequest, actor, reason string) (*models.RideRequest, error) {
	switch ride.Status {
	case models.RideStatusCompleted:
		return nil, fmt.Errorf("%w: cannot cancel a completed ride", ErrConflict)
	case models.RideStatusCancelled:
		return nil, fmt.Errorf("%w: ride is already cancelled", ErrConflict)
	}

	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = DefaultCancelReason
	}

	cancelled, err := s.rides.TransitionRide(ctx, store.Transition{
		RideID: ride.ID,
		From:   ride.Status,
		To:     models.RideStatusCancelled,
		At:     s.now(),
	})
	if errors.Is(err, store.ErrNoMatch) {
		return nil, fmt.Errorf("%w: ride status changed while cancelling", ErrConflict)
	}
	if err != nil {
		return nil, s.internal("cancel ride", err)
	}

	s.logger.Info("ride cancelled",
		zap.String("rideId", cancelled.ID),
		zap.String("cancelledBy", actor),
		zap.String("from", string(ride.Status)))
	s.notifier.RideCancelled(cancelled.Clone(), actor, reason)
	return cancelled, nil
}

func (s *Service) GetRide(ctx context.Context, rideID, callerID string) (*models.RideRequest, error) {
	ride, err := s.loadRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if !ride.IsParticipant(callerID) {
		return nil, fmt.Errorf("%w: not authorized to view this ride", ErrForbidden)
	}
	return ride, nil
}

func (s *Service) ListRidesForUser(ctx context.Context, userID, callerID string) ([]*models.RideRequest, error) {
	if userID == "" || userID != callerID {
		return nil, fmt.Errorf("%w: not authorized to view these rides", ErrForbidden)
	}
	rides, err := s.rides.ListRidesForUser(ctx, userID)
	if err != nil {
		return nil, s.internal("list user rides", err)
	}
	if rides == nil {
		rides = []*models.RideRequest{}
	}
	return rides, nil
}

// PushDriverLocation stores the driver's latest position and relays it to
// the passengers of the driver's active rides. The relay is best effort.
func (s *Service) PushDriverLocation(ctx context.Context, driverID string, in LocationUpdate) (*models.DriverLocation, error) {
	if driverID == "" {
		return nil, fmt.Errorf("%w: driver id is required", ErrValidation)
	}
	if err := s.validate.StructCtx(ctx, in); err != nil {
		return nil, validationError(err)
	}

	loc, err := s.locations.UpsertLocation(ctx, &models.DriverLocation{
		DriverID:  driverID,
		Latitude:  *in.Latitude,
		Longitude: *in.Longitude,
		Speed:     in.Speed,
		Heading:   in.Heading,
		Accuracy:  in.Accuracy,
		Timestamp: s.now(),
	})
	if err != nil {
		return nil, s.internal("upsert driver location", err)
	}

	rides, err := s.rides.ListActiveRidesForDriver(ctx, driverID)
	if err != nil {
		s.logger.Warn("failed to load active rides for location relay",
			zap.String("driverId", driverID),
			zap.Error(err))
		return loc, nil
	}
	if len(rides) > 0 {
		relayed := *loc
		s.notifier.DriverLocationUpdated(&relayed, rides)
	}
	return loc, nil
}

// UpdateRideStatus applies a status change pushed from a driver's socket.
// It goes through the same conditional transitions as the HTTP calls.
func (s *Service) UpdateRideStatus(ctx context.Context, rideID, driverID string, status models.RideStatus, reason string) (*models.RideRequest, error) {
	if rideID == "" {
		return nil, fmt.Errorf("%w: rideId is required", ErrValidation)
	}

	var (
		ride *models.RideRequest
		err  error
	)
	switch status {
	case models.RideStatusOnRoute:
		ride, err = s.StartRide(ctx, rideID, driverID)
	case models.RideStatusCompleted:
		ride, err = s.CompleteRide(ctx, rideID, driverID, nil)
	case models.RideStatusCancelled:
		ride, err = s.CancelRide(ctx, rideID, driverID, reason)
	default:
		return nil, fmt.Errorf("%w: invalid ride status update %q", ErrValidation, status)
	}
	if err != nil {
		return nil, err
	}

	s.notifier.RideStatusChanged(ride.Clone(), driverID)
	return ride, nil
}

// NearbyDrivers returns drivers whose latest location is within radiusKm of
// center, nearest first.
func (s *Service) NearbyDrivers(ctx context.Context, center utils.Point, radiusKm float64, limit int) ([]models.NearbyDriver, error) {
	if err := checkPoint(center); err != nil {
		return nil, err
	}
	if err := checkRadius(radiusKm); err != nil {
		return nil, err
	}
	if radiusKm <= 0 {
		radiusKm = s.cfg.DefaultRadiusKm
	}
	if limit <= 0 {
		limit = DefaultNearbyDriversLimit
	}
	if limit > s.cfg.OpenRidesMaxLimit {
		limit = s.cfg.OpenRidesMaxLimit
	}

	drivers, err := s.locations.NearbyDrivers(ctx, center, radiusKm, limit)
	if err != nil {
		return nil, s.internal("nearby drivers", err)
	}
	if drivers == nil {
		drivers = []models.NearbyDriver{}
	}
	return drivers, nil
}

// CancelStaleOpenRides cancels OPEN rides created more than olderThan ago.
// Each ride goes through the conditional cancel, so a ride accepted while
// the sweep runs is left alone.
func (s *Service) CancelStaleOpenRides(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := s.now().Add(-olderThan)
	stale, err := s.rides.ListOpenRides(ctx, store.OpenRidesQuery{CreatedBefore: &cutoff})
	if err != nil {
		return 0, s.internal("list stale rides", err)
	}

	cancelled := 0
	for _, ride := range stale {
		if err := ctx.Err(); err != nil {
			return cancelled, err
		}
		_, err := s.cancel(ctx, ride, SystemActor, "stale ride")
		switch {
		case err == nil:
			cancelled++
		case errors.Is(err, ErrConflict):
			// accepted or cancelled since the listing
		default:
			return cancelled, err
		}
	}
	return cancelled, nil
}

func (s *Service) loadRide(ctx context.Context, rideID string) (*models.RideRequest, error) {
	ride, err := s.rides.GetRide(ctx, rideID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: ride not found", ErrNotFound)
	}
	if err != nil {
		return nil, s.internal("get ride", err)
	}
	return ride, nil
}

func (s *Service) clampLimit(limit int) int {
	if limit <= 0 {
		return s.cfg.OpenRidesDefaultLimit
	}
	if limit > s.cfg.OpenRidesMaxLimit {
		return s.cfg.OpenRidesMaxLimit
	}
	return limit
}

func (s *Service) internal(op string, err error) error {
	s.logger.Error("store operation failed", zap.String("op", op), zap.Error(err))
	return fmt.Errorf("%w: %s: %v", ErrInternal, op, err)
}

func checkPoint(p utils.Point) error {
	if !finite(p.Lat) || !finite(p.Lng) {
		return fmt.Errorf("%w: coordinates must be finite numbers", ErrValidation)
	}
	if p.Lat < -90 || p.Lat > 90 || p.Lng < -180 || p.Lng > 180 {
		return fmt.Errorf("%w: coordinates out of range", ErrValidation)
	}
	return nil
}

func checkRadius(radiusKm float64) error {
	if !finite(radiusKm) {
		return fmt.Errorf("%w: radiusKm must be a finite number", ErrValidation)
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	fe := fieldErrs[0]
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}
	switch fe.Tag() {
	case "required":
		return fmt.Errorf("%w: %s is required", ErrValidation, field)
	case "min":
		return fmt.Errorf("%w: %s must be at least %s", ErrValidation, field, fe.Param())
	case "max":
		return fmt.Errorf("%w: %s must be at most %s", ErrValidation, field, fe.Param())
	}
	return fmt.Errorf("%w: %s is invalid", ErrValidation, field)
}
