// Package config loads service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the server configuration. Every field has a working default.
type Config struct {
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`
	DBPath   string `env:"DB_PATH" envDefault:"tourguide.db"`
	DBDriver string `env:"DB_DRIVER" envDefault:"sqlite3"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"console"`

	RewardRadiusMiles float64 `env:"REWARD_RADIUS_MILES" envDefault:"10"`
	PoolSize          int     `env:"POOL_SIZE" envDefault:"100"`

	SchedulerInterval time.Duration `env:"SCHEDULER_INTERVAL" envDefault:"5m"`
	SchedulerEnabled  bool          `env:"SCHEDULER_ENABLED" envDefault:"true"`

	CatalogPath     string        `env:"CATALOG_PATH"`
	CatalogCacheTTL time.Duration `env:"CATALOG_CACHE_TTL" envDefault:"10m"`

	AuthorityLatency time.Duration `env:"AUTHORITY_LATENCY" envDefault:"0s"`

	MQTTBroker string `env:"MQTT_BROKER"`
	MQTTTopic  string `env:"MQTT_TOPIC" envDefault:"tourguide/locations/+"`

	TracingEnabled bool `env:"TRACING_ENABLED" envDefault:"false"`
	DemoUsers      int  `env:"DEMO_USERS" envDefault:"0"`
}

// Load reads an optional .env file from the working directory and then
// parses the environment. Variables already set win over the file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}
	return Parse()
}

// Parse reads the environment only.
func Parse() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values the service cannot run with.
func (c Config) Validate() error {
	if c.RewardRadiusMiles < 0 {
		return fmt.Errorf("REWARD_RADIUS_MILES must be >= 0, got %v", c.RewardRadiusMiles)
	}
	if c.PoolSize < 0 {
		return fmt.Errorf("POOL_SIZE must be >= 0, got %d", c.PoolSize)
	}
	if c.SchedulerEnabled && c.SchedulerInterval <= 0 {
		return fmt.Errorf("SCHEDULER_INTERVAL must be positive, got %s", c.SchedulerInterval)
	}
	if c.DBDriver != "sqlite3" && c.DBDriver != "sqlite" {
		return fmt.Errorf("DB_DRIVER must be sqlite3 or sqlite, got %q", c.DBDriver)
	}
	if c.DemoUsers < 0 {
		return fmt.Errorf("DEMO_USERS must be >= 0, got %d", c.DemoUsers)
	}
	return nil
}
