package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/chachabrian/mooveit-dispatch/internal/models"
	"github.com/chachabrian/mooveit-dispatch/pkg/utils"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	driverGeoKey            = "drivers:geo"
	driverLocationKeyPrefix = "driver:location:"

	DefaultLocationTTL = time.Hour
)

func driverLocationKey(driverID string) string {
	return driverLocationKeyPrefix + driverID
}

// RedisLocationStore writes through to an inner store and keeps a Redis
// copy of every driver's latest location plus a GEO index over them.
// Nearby queries are served from Redis; a driver whose detail key expired is
// treated as offline and evicted from the index. Redis failures fall back to
// the inner store.
type RedisLocationStore struct {
	inner  LocationStore
	client redis.UniversalClient
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedisLocationStore(inner LocationStore, client redis.UniversalClient, ttl time.Duration, logger *zap.Logger) *RedisLocationStore {
	if ttl <= 0 {
		ttl = DefaultLocationTTL
	}
	return &RedisLocationStore{inner: inner, client: client, ttl: ttl, logger: logger}
}

func (s *RedisLocationStore) UpsertLocation(ctx context.Context, loc *models.DriverLocation) (*models.DriverLocation, error) {
	stored, err := s.inner.UpsertLocation(ctx, loc)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(stored)
	if err != nil {
		return nil, err
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, driverLocationKey(stored.DriverID), data, s.ttl)
	pipe.GeoAdd(ctx, driverGeoKey, &redis.GeoLocation{
		Name:      stored.DriverID,
		Longitude: stored.Longitude,
		Latitude:  stored.Latitude,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Warn("failed to cache driver location",
			zap.String("driverId", stored.DriverID),
			zap.Error(err))
	}
	return stored, nil
}

func (s *RedisLocationStore) GetLocation(ctx context.Context, driverID string) (*models.DriverLocation, error) {
	data, err := s.client.Get(ctx, driverLocationKey(driverID)).Bytes()
	if err == nil {
		var loc models.DriverLocation
		if err := json.Unmarshal(data, &loc); err == nil {
			return &loc, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		s.logger.Warn("driver location cache read failed",
			zap.String("driverId", driverID),
			zap.Error(err))
	}
	return s.inner.GetLocation(ctx, driverID)
}

func (s *RedisLocationStore) NearbyDrivers(ctx context.Context, center utils.Point, radiusKm float64, limit int) ([]models.NearbyDriver, error) {
	nearby, err := s.nearbyFromCache(ctx, center, radiusKm, limit)
	if err != nil {
		s.logger.Warn("geo search failed, using primary store", zap.Error(err))
		return s.inner.NearbyDrivers(ctx, center, radiusKm, limit)
	}
	return nearby, nil
}

func (s *RedisLocationStore) nearbyFromCache(ctx context.Context, center utils.Point, radiusKm float64, limit int) ([]models.NearbyDriver, error) {
	results, err := s.client.GeoSearchLocation(ctx, driverGeoKey, &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  center.Lng,
			Latitude:   center.Lat,
			Radius:     radiusKm,
			RadiusUnit: "km",
			Sort:       "ASC",
			Count:      limit,
		},
		WithDist: true,
	}).Result()
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return []models.NearbyDriver{}, nil
	}

	keys := make([]string, len(results))
	for i, r := range results {
		keys[i] = driverLocationKey(r.Name)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	var stale []interface{}
	nearby := make([]models.NearbyDriver, 0, len(results))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			stale = append(stale, results[i].Name)
			continue
		}
		var loc models.DriverLocation
		if err := json.Unmarshal([]byte(raw), &loc); err != nil {
			stale = append(stale, results[i].Name)
			continue
		}
		nearby = append(nearby, models.NearbyDriver{Location: loc, DistanceKm: results[i].Dist})
	}

	if len(stale) > 0 {
		if err := s.client.ZRem(ctx, driverGeoKey, stale...).Err(); err != nil {
			s.logger.Debug("failed to evict stale drivers from geo index", zap.Error(err))
		}
	}
	return nearby, nil
}
