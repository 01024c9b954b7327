package handlers

import (
	"net/http"

	"github.com/chachabrian/mooveit-dispatch/internal/dispatch"
	"github.com/chachabrian/mooveit-dispatch/internal/middleware"
	"github.com/gin-gonic/gin"
)

// UpdateDriverLocation handles driver location updates sent over HTTP. The
// socket event driverLocation takes the same path.
func UpdateDriverLocation(svc *dispatch.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input dispatch.LocationUpdate
		if err := c.ShouldBindJSON(&input); err != nil {
			badRequest(c, "Invalid request body")
			return
		}

		location, err := svc.PushDriverLocation(c.Request.Context(), c.GetString(middleware.UserIDKey), input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "location": location})
	}
}
