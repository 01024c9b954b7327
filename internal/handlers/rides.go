package handlers

import (
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"

	"github.com/chachabrian/mooveit-dispatch/internal/dispatch"
	"github.com/chachabrian/mooveit-dispatch/internal/middleware"
	"github.com/chachabrian/mooveit-dispatch/pkg/utils"
	"github.com/gin-gonic/gin"
)

// CreateRide opens a ride request for the calling passenger
func CreateRide(svc *dispatch.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input dispatch.CreateRideInput
		if err := c.ShouldBindJSON(&input); err != nil {
			badRequest(c, "Invalid request body")
			return
		}

		ride, err := svc.CreateRide(c.Request.Context(), c.GetString(middleware.UserIDKey), input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"success": true, "ride": ride})
	}
}

// GetOpenRides lists OPEN rides, optionally around lat/lng
func GetOpenRides(svc *dispatch.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		center, err := queryPoint(c, false)
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		radiusKm, limit, err := queryRadiusAndLimit(c)
		if err != nil {
			badRequest(c, err.Error())
			return
		}

		rides, err := svc.ListOpenRides(c.Request.Context(), dispatch.OpenRidesQuery{
			Center:   center,
			RadiusKm: radiusKm,
			Limit:    limit,
		})
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "count": len(rides), "rides": rides})
	}
}

// GetNearbyDrivers lists drivers whose last position is around lat/lng
func GetNearbyDrivers(svc *dispatch.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		center, err := queryPoint(c, true)
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		radiusKm, limit, err := queryRadiusAndLimit(c)
		if err != nil {
			badRequest(c, err.Error())
			return
		}

		drivers, err := svc.NearbyDrivers(c.Request.Context(), *center, radiusKm, limit)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "count": len(drivers), "drivers": drivers})
	}
}

func AcceptRide(svc *dispatch.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		assignment, err := svc.AcceptRide(c.Request.Context(), c.Param("id"), c.GetString(middleware.UserIDKey))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success":   true,
			"ride":      assignment.Ride,
			"passenger": assignment.Passenger,
			"driver":    assignment.Driver,
		})
	}
}

func StartRide(svc *dispatch.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		ride, err := svc.StartRide(c.Request.Context(), c.Param("id"), c.GetString(middleware.UserIDKey))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "ride": ride})
	}
}

// CompleteRide accepts an optional {"actualDurationMins": n} body
func CompleteRide(svc *dispatch.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body struct {
			ActualDurationMins *int `json:"actualDurationMins"`
		}
		if !bindOptionalJSON(c, &body) {
			return
		}

		ride, err := svc.CompleteRide(c.Request.Context(), c.Param("id"), c.GetString(middleware.UserIDKey), body.ActualDurationMins)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "ride": ride})
	}
}

// CancelRide accepts an optional {"reason": "..."} body
func CancelRide(svc *dispatch.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body struct {
			Reason string `json:"reason"`
		}
		if !bindOptionalJSON(c, &body) {
			return
		}

		ride, err := svc.CancelRide(c.Request.Context(), c.Param("id"), c.GetString(middleware.UserIDKey), body.Reason)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "ride": ride})
	}
}

func GetRide(svc *dispatch.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		ride, err := svc.GetRide(c.Request.Context(), c.Param("id"), c.GetString(middleware.UserIDKey))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "ride": ride})
	}
}

func GetUserRides(svc *dispatch.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		rides, err := svc.ListRidesForUser(c.Request.Context(), c.Param("userId"), c.GetString(middleware.UserIDKey))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "count": len(rides), "rides": rides})
	}
}

// bindOptionalJSON decodes the body when there is one. It writes the 400
// response itself and reports false on malformed input.
func bindOptionalJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, "Invalid request body")
		return false
	}
	return true
}

// queryPoint reads lat/lng. Both must be given together; when required is
// false a missing pair yields nil.
func queryPoint(c *gin.Context, required bool) (*utils.Point, error) {
	latStr, lngStr := c.Query("lat"), c.Query("lng")
	if latStr == "" && lngStr == "" && !required {
		return nil, nil
	}
	if latStr == "" || lngStr == "" {
		return nil, errors.New("lat and lng are required together")
	}

	lat, err := parseFinite(latStr)
	if err != nil {
		return nil, errors.New("invalid latitude")
	}
	lng, err := parseFinite(lngStr)
	if err != nil {
		return nil, errors.New("invalid longitude")
	}
	return &utils.Point{Lat: lat, Lng: lng}, nil
}

// parseFinite rejects NaN and infinities, which ParseFloat accepts.
func parseFinite(v string) (float64, error) {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errors.New("not a finite number")
	}
	return f, nil
}

func queryRadiusAndLimit(c *gin.Context) (float64, int, error) {
	var (
		radiusKm float64
		limit    int
		err      error
	)
	if v := c.Query("radiusKm"); v != "" {
		if radiusKm, err = parseFinite(v); err != nil || radiusKm <= 0 {
			return 0, 0, errors.New("radiusKm must be a positive number")
		}
	}
	if v := c.Query("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit <= 0 {
			return 0, 0, errors.New("limit must be a positive integer")
		}
	}
	return radiusKm, limit, nil
}
