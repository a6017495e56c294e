package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	ServerPort  string
	StoreDriver string
	DatabaseURL string
	SQLitePath  string
	RedisURL    string
	JWTSecret   string
	JWTExpiry   time.Duration
	LogLevel    string

	// AllowedOrigins are host patterns accepted on websocket upgrades.
	AllowedOrigins []string

	SweepInterval    time.Duration
	StaleThreshold   time.Duration
	GraceWindow      time.Duration
	PresenceCacheTTL time.Duration

	SendBuffer   int
	WriteTimeout time.Duration
	PingInterval time.Duration
	InboundRate  float64
	InboundBurst int
}

func LoadConfig() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("STORE_DRIVER", DriverPostgres)
	v.SetDefault("SQLITE_PATH", "trackerlive.db")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("JWT_EXPIRY", "24h")
	v.SetDefault("SWEEP_INTERVAL", "5m")
	v.SetDefault("STALE_THRESHOLD", "5m")
	v.SetDefault("GRACE_WINDOW", "30s")
	v.SetDefault("PRESENCE_CACHE_TTL", "10m")
	v.SetDefault("SEND_BUFFER", 64)
	v.SetDefault("WRITE_TIMEOUT", "5s")
	v.SetDefault("PING_INTERVAL", "30s")
	v.SetDefault("INBOUND_RATE", 20)
	v.SetDefault("INBOUND_BURST", 40)

	cfg := &Config{
		ServerPort:   v.GetString("SERVER_PORT"),
		StoreDriver:  strings.ToLower(strings.TrimSpace(v.GetString("STORE_DRIVER"))),
		DatabaseURL:  v.GetString("DATABASE_URL"),
		SQLitePath:   v.GetString("SQLITE_PATH"),
		RedisURL:     v.GetString("REDIS_URL"),
		JWTSecret:    v.GetString("JWT_SECRET"),
		LogLevel:     v.GetString("LOG_LEVEL"),
		SendBuffer:   v.GetInt("SEND_BUFFER"),
		InboundRate:  v.GetFloat64("INBOUND_RATE"),
		InboundBurst: v.GetInt("INBOUND_BURST"),
	}

	for _, origin := range strings.Split(v.GetString("ALLOWED_ORIGINS"), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, origin)
		}
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"SWEEP_INTERVAL", &cfg.SweepInterval},
		{"STALE_THRESHOLD", &cfg.StaleThreshold},
		{"GRACE_WINDOW", &cfg.GraceWindow},
		{"PRESENCE_CACHE_TTL", &cfg.PresenceCacheTTL},
		{"WRITE_TIMEOUT", &cfg.WriteTimeout},
		{"PING_INTERVAL", &cfg.PingInterval},
		{"JWT_EXPIRY", &cfg.JWTExpiry},
	}
	for _, d := range durations {
		value, err := time.ParseDuration(v.GetString(d.key))
		if err != nil {
			return nil, fmt.Errorf("invalid %s format", d.key)
		}
		if value <= 0 {
			return nil, fmt.Errorf("%s must be positive", d.key)
		}
		*d.dst = value
	}

	// Validate required fields
	switch cfg.StoreDriver {
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, errors.New("DATABASE_URL is required")
		}
	case DriverSQLite:
		if cfg.SQLitePath == "" {
			return nil, errors.New("SQLITE_PATH is required")
		}
	default:
		return nil, fmt.Errorf("unsupported STORE_DRIVER %q", cfg.StoreDriver)
	}
	if cfg.SendBuffer <= 0 {
		return nil, errors.New("SEND_BUFFER must be positive")
	}
	if cfg.InboundRate <= 0 || cfg.InboundBurst <= 0 {
		return nil, errors.New("INBOUND_RATE and INBOUND_BURST must be positive")
	}

	return cfg, nil
}
