package handlers

import (
	"net/http"

	"github.com/chachabrian/mooveit-dispatch/internal/realtime"
	"github.com/gin-gonic/gin"
)

// Health reports liveness and the number of live connections
func Health(hub *realtime.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		users, drivers := hub.Stats()
		c.JSON(http.StatusOK, gin.H{
			"status":      "ok",
			"connections": gin.H{"users": users, "drivers": drivers},
		})
	}
}
