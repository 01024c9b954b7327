package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chachabrian/mooveit-dispatch/internal/admin"
	"github.com/chachabrian/mooveit-dispatch/internal/config"
	"github.com/chachabrian/mooveit-dispatch/internal/database"
	"github.com/chachabrian/mooveit-dispatch/internal/directory"
	"github.com/chachabrian/mooveit-dispatch/internal/dispatch"
	"github.com/chachabrian/mooveit-dispatch/internal/handlers"
	"github.com/chachabrian/mooveit-dispatch/internal/logger"
	"github.com/chachabrian/mooveit-dispatch/internal/realtime"
	"github.com/chachabrian/mooveit-dispatch/internal/store"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zlog, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	if err := run(cfg, zlog); err != nil {
		zlog.Error("server stopped with error", zap.Error(err))
		_ = zlog.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, zlog *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		rides     store.RideStore
		locations store.LocationStore
		dir       directory.Directory
	)
	if cfg.DB.Enabled() {
		db, err := database.InitDB(cfg.DB, zlog)
		if err != nil {
			return err
		}
		rides = store.NewPostgresRideStore(db)
		locations = store.NewPostgresLocationStore(db)
		dir = directory.NewGormDirectory(db)
	} else {
		zlog.Warn("DB_HOST not set, using in-memory stores")
		rides = store.NewMemoryRideStore()
		locations = store.NewMemoryLocationStore()
		dir = directory.NewStatic()
	}

	var redisClient redis.UniversalClient
	if cfg.RedisURL != "" {
		client, err := initRedis(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer client.Close()
		redisClient = client
		locations = store.NewRedisLocationStore(locations, client, store.DefaultLocationTTL, zlog.Named("locations"))
	}

	bus, err := realtime.NewBus(cfg.RealtimeBus, redisClient, logger.NewWatermillAdapter(zlog))
	if err != nil {
		return err
	}
	defer bus.Close()

	hub := realtime.NewHub(zlog.Named("hub"))
	broadcaster := realtime.NewBroadcaster(bus, hub, dir, zlog.Named("broadcaster"))
	if err := broadcaster.Start(ctx); err != nil {
		return fmt.Errorf("failed to start broadcaster: %w", err)
	}

	svc := dispatch.NewService(rides, locations, dir, broadcaster, dispatch.Config{
		OpenRidesDefaultLimit: cfg.Dispatch.OpenRidesDefaultLimit,
		OpenRidesMaxLimit:     cfg.Dispatch.OpenRidesMaxLimit,
		DefaultRadiusKm:       cfg.Dispatch.DefaultRadiusKm,
	}, zlog.Named("dispatch"))

	sweeper := dispatch.NewSweeper(svc, cfg.Dispatch.SweepInterval, cfg.Dispatch.StaleRideAfter, zlog.Named("sweeper"))
	go sweeper.Run(ctx)

	gin.SetMode(gin.ReleaseMode)
	router := handlers.NewRouter(handlers.Deps{
		Service:    svc,
		Aggregator: admin.NewAggregator(rides, dir),
		Gateway:    realtime.NewGateway(hub, svc, zlog.Named("gateway")),
		Hub:        hub,
		JWTSecret:  cfg.JWTSecret,
		Logger:     zlog.Named("http"),
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zlog.Info("server listening", zap.String("addr", server.Addr), zap.String("bus", cfg.RealtimeBus))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
	case <-ctx.Done():
	}

	zlog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// initRedis parses REDIS_URL and checks the connection.
func initRedis(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}
