package utils

import (
	"math"
)

const (
	// EarthRadiusKm is the mean Earth radius used by every distance helper.
	EarthRadiusKm = 6371.0

	// DefaultAverageSpeedKmh is the straight-line city speed used for ETAs.
	DefaultAverageSpeedKmh = 30.0
)

// HaversineDistance calculates the distance between two points on Earth
// using the Haversine formula. Returns distance in kilometers.
func HaversineDistance(lat1, lng1, lat2, lng2 float64) float64 {
	lat1Rad := toRadians(lat1)
	lat2Rad := toRadians(lat2)
	dlat := toRadians(lat2 - lat1)
	dlng := toRadians(lng2 - lng1)

	a := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(dlng/2)*math.Sin(dlng/2)

	// rounding can push the haversine term just outside [0,1] for antipodal points
	a = math.Min(1, math.Max(0, a))

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusKm * c
}

// IsWithinRadius checks if a point is within a specified radius of another point
func IsWithinRadius(centerLat, centerLng, pointLat, pointLng, radiusKm float64) bool {
	return HaversineDistance(centerLat, centerLng, pointLat, pointLng) <= radiusKm
}

// CalculateETA estimates the time to arrival based on distance and average speed
// distance in kilometers, averageSpeed in km/h
func CalculateETA(distanceKm, averageSpeedKmh float64) int {
	if averageSpeedKmh <= 0 {
		averageSpeedKmh = DefaultAverageSpeedKmh
	}
	if math.IsNaN(distanceKm) || distanceKm < 0 {
		distanceKm = 0
	}

	etaMinutes := int(distanceKm / averageSpeedKmh * 60)

	// Minimum 1 minute
	if etaMinutes < 1 {
		etaMinutes = 1
	}

	return etaMinutes
}

// EstimateMinutes is CalculateETA at the default average speed.
func EstimateMinutes(distanceKm float64) int {
	return CalculateETA(distanceKm, DefaultAverageSpeedKmh)
}

// Point represents a geographical point
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// BoundingBox represents a rectangular area
type BoundingBox struct {
	NorthEast Point `json:"northEast"`
	SouthWest Point `json:"southWest"`
}

// GetBoundingBox creates a bounding box around a center point
func GetBoundingBox(centerLat, centerLng, radiusKm float64) BoundingBox {
	angularDistance := radiusKm / EarthRadiusKm

	latDelta := angularDistance * 180 / math.Pi
	lngDelta := latDelta / math.Max(math.Cos(toRadians(centerLat)), 1e-9)

	return BoundingBox{
		NorthEast: Point{Lat: math.Min(centerLat+latDelta, 90), Lng: centerLng + lngDelta},
		SouthWest: Point{Lat: math.Max(centerLat-latDelta, -90), Lng: centerLng - lngDelta},
	}
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
