// Package config loads the service settings from the environment, reading a
// local .env file first when one exists.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port     string
	LogLevel string

	DB       DBConfig
	RedisURL string

	JWTSecret string

	// RealtimeBus is "memory" for a single instance or "redis" to fan
	// events out across instances.
	RealtimeBus string

	Dispatch DispatchConfig
}

type DBConfig struct {
	Host     string
	User     string
	Password string
	Name     string
	Port     string
}

// Enabled reports whether a database is configured. Without one the
// service runs on in-memory stores.
func (c DBConfig) Enabled() bool {
	return c.Host != ""
}

func (c DBConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		c.Host, c.User, c.Password, c.Name, c.Port,
	)
}

type DispatchConfig struct {
	OpenRidesDefaultLimit int
	OpenRidesMaxLimit     int
	DefaultRadiusKm       float64
	SweepInterval         time.Duration
	StaleRideAfter        time.Duration
}

// Load reads .env (if present) and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function.
func FromEnv(getenv func(string) string) (*Config, error) {
	p := parser{getenv: getenv}
	cfg := &Config{
		Port:     p.str("PORT", "8080"),
		LogLevel: p.str("LOG_LEVEL", "info"),
		DB: DBConfig{
			Host:     getenv("DB_HOST"),
			User:     getenv("DB_USER"),
			Password: getenv("DB_PASSWORD"),
			Name:     getenv("DB_NAME"),
			Port:     p.str("DB_PORT", "5432"),
		},
		RedisURL:    getenv("REDIS_URL"),
		JWTSecret:   getenv("JWT_SECRET"),
		RealtimeBus: p.str("REALTIME_BUS", "memory"),
		Dispatch: DispatchConfig{
			OpenRidesDefaultLimit: p.int("OPEN_RIDES_DEFAULT_LIMIT", 50),
			OpenRidesMaxLimit:     p.int("OPEN_RIDES_MAX_LIMIT", 200),
			DefaultRadiusKm:       p.float("DEFAULT_RADIUS_KM", 10),
			SweepInterval:         p.duration("SWEEP_INTERVAL", time.Hour),
			StaleRideAfter:        p.duration("STALE_RIDE_AFTER", 2*time.Hour),
		},
	}
	if p.err != nil {
		return nil, p.err
	}

	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	switch cfg.RealtimeBus {
	case "memory":
	case "redis":
		if cfg.RedisURL == "" {
			return nil, errors.New("REALTIME_BUS=redis requires REDIS_URL")
		}
	default:
		return nil, fmt.Errorf("REALTIME_BUS must be memory or redis, got %q", cfg.RealtimeBus)
	}
	return cfg, nil
}

// parser keeps the first conversion error so FromEnv can report it once.
type parser struct {
	getenv func(string) string
	err    error
}

func (p *parser) str(key, def string) string {
	if v := p.getenv(key); v != "" {
		return v
	}
	return def
}

func (p *parser) int(key string, def int) int {
	v := p.getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		p.fail(key, v)
		return def
	}
	return n
}

func (p *parser) float(key string, def float64) float64 {
	v := p.getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		p.fail(key, v)
		return def
	}
	return f
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v := p.getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		p.fail(key, v)
		return def
	}
	return d
}

func (p *parser) fail(key, value string) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid %s %q", key, value)
	}
}
