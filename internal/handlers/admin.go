package handlers

import (
	"net/http"

	"github.com/chachabrian/mooveit-dispatch/internal/admin"
	"github.com/gin-gonic/gin"
)

// GetRidesOverview returns ride and driver counters for the admin dashboard
func GetRidesOverview(agg *admin.Aggregator) gin.HandlerFunc {
	return func(c *gin.Context) {
		overview, err := agg.Overview(c.Request.Context())
		if err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load overview"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "overview": overview})
	}
}
