package handlers

import (
	"github.com/chachabrian/mooveit-dispatch/internal/admin"
	"github.com/chachabrian/mooveit-dispatch/internal/dispatch"
	"github.com/chachabrian/mooveit-dispatch/internal/middleware"
	"github.com/chachabrian/mooveit-dispatch/internal/models"
	"github.com/chachabrian/mooveit-dispatch/internal/realtime"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Deps struct {
	Service    *dispatch.Service
	Aggregator *admin.Aggregator
	Gateway    *realtime.Gateway
	Hub        *realtime.Hub
	JWTSecret  string
	Logger     *zap.Logger
}

// NewRouter builds the HTTP surface of the service.
func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestLogger(d.Logger), middleware.Recovery(d.Logger))

	// Configure CORS
	config := cors.DefaultConfig()
	config.AllowOrigins = []string{"*"}
	config.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	r.Use(cors.New(config))

	r.GET("/health", Health(d.Hub))

	auth := middleware.AuthMiddleware(d.JWTSecret)
	api := r.Group("/api")
	{
		// WebSocket connection
		api.GET("/ws", auth, WebSocketHandler(d.Gateway))

		protected := api.Group("/")
		protected.Use(auth)
		{
			rides := protected.Group("/rides")
			{
				rides.POST("", CreateRide(d.Service))
				rides.GET("/open", GetOpenRides(d.Service))
				rides.GET("/nearby-drivers", GetNearbyDrivers(d.Service))
				rides.GET("/user/:userId", GetUserRides(d.Service))
				rides.GET("/:id", GetRide(d.Service))
				rides.POST("/:id/cancel", CancelRide(d.Service))

				driverRides := rides.Group("", middleware.RequireUserType(models.UserTypeDriver))
				driverRides.POST("/:id/accept", AcceptRide(d.Service))
				driverRides.POST("/:id/start", StartRide(d.Service))
				driverRides.POST("/:id/complete", CompleteRide(d.Service))
			}

			driver := protected.Group("/driver", middleware.RequireUserType(models.UserTypeDriver))
			{
				driver.POST("/location", UpdateDriverLocation(d.Service))
			}

			adminRoutes := protected.Group("/admin", middleware.RequireUserType(models.UserTypeAdmin))
			{
				adminRoutes.GET("/rides/overview", GetRidesOverview(d.Aggregator))
			}
		}
	}
	return r
}
