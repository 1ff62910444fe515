package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// #region config
// Config is the process configuration read from the environment.
type Config struct {
	DBPath      string `env:"PLACEMENT_DB" envDefault:"placement.db"`
	CatalogPath string `env:"PLACEMENT_CATALOG" envDefault:"catalog.toml"`
	// Storage selects the key-value backend: "sqlite" or "redis".
	Storage   string `env:"PLACEMENT_STORAGE" envDefault:"sqlite"`
	RedisAddr string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	// TelemetryAddr is the collector address. Empty means log-only telemetry.
	TelemetryAddr  string        `env:"TELEMETRY_ADDR"`
	TelemetryRate  float64       `env:"TELEMETRY_RATE" envDefault:"20"`
	TickInterval   time.Duration `env:"TICK_INTERVAL" envDefault:"33ms"`
	LogMode        string        `env:"LOG_MODE" envDefault:"dev"`
	DeviceID       string        `env:"DEVICE_ID" envDefault:"local"`
	AutoPlaceDelay time.Duration `env:"AUTO_PLACE_DELAY" envDefault:"2s"`
	LabelLifetime  time.Duration `env:"LABEL_LIFETIME" envDefault:"30s"`
	CollectorAddr  string        `env:"COLLECTOR_LISTEN" envDefault:":50061"`
}

// #endregion config

// #region load
// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values no component can run with.
func (c Config) Validate() error {
	switch c.Storage {
	case "sqlite", "redis":
	default:
		return fmt.Errorf("PLACEMENT_STORAGE must be sqlite or redis, got %q", c.Storage)
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("TICK_INTERVAL must be positive, got %s", c.TickInterval)
	}
	if c.AutoPlaceDelay < 0 {
		return fmt.Errorf("AUTO_PLACE_DELAY must not be negative, got %s", c.AutoPlaceDelay)
	}
	if c.LabelLifetime <= 0 {
		return fmt.Errorf("LABEL_LIFETIME must be positive, got %s", c.LabelLifetime)
	}
	return nil
}

// #endregion load
