package handlers

import (
	"github.com/chachabrian/mooveit-dispatch/internal/middleware"
	"github.com/chachabrian/mooveit-dispatch/internal/realtime"
	"github.com/gin-gonic/gin"
)

// WebSocketHandler handles WebSocket connections
func WebSocketHandler(gateway *realtime.Gateway) gin.HandlerFunc {
	return func(c *gin.Context) {
		gateway.ServeWS(c.Writer, c.Request, c.GetString(middleware.UserIDKey), c.GetString(middleware.UserTypeKey))
	}
}
