package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config represents the ingester configuration
type Config struct {
	Service  ServiceConfig  `yaml:"service" envPrefix:"SERVICE_"`
	Source   SourceConfig   `yaml:"source" envPrefix:"SOURCE_"`
	Database DatabaseConfig `yaml:"database" envPrefix:"DATABASE_"`
	Commit   CommitConfig   `yaml:"commit" envPrefix:"COMMIT_"`
	Logging  LoggingConfig  `yaml:"logging" envPrefix:"LOGGING_"`
}

// ServiceConfig holds service-level settings
type ServiceConfig struct {
	Name       string `yaml:"name" env:"NAME"`
	Version    string `yaml:"version" env:"VERSION"`
	HealthPort int    `yaml:"health_port" env:"HEALTH_PORT"`
	GRPCPort   int    `yaml:"grpc_port" env:"GRPC_PORT"`
}

// SourceConfig locates decoded record files
type SourceConfig struct {
	Directory           string `yaml:"directory" env:"DIRECTORY"`
	PollIntervalSeconds int    `yaml:"poll_interval_seconds" env:"POLL_INTERVAL_SECONDS"`
	Follow              bool   `yaml:"follow" env:"FOLLOW"` // keep polling for new files
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver       string `yaml:"driver" env:"DRIVER"` // pgx, postgres or sqlite
	Host         string `yaml:"host" env:"HOST"`
	Port         int    `yaml:"port" env:"PORT"`
	Name         string `yaml:"name" env:"NAME"`
	User         string `yaml:"user" env:"USER"`
	Password     string `yaml:"password" env:"PASSWORD"`
	SSLMode      string `yaml:"sslmode" env:"SSLMODE"`
	Path         string `yaml:"path" env:"PATH"` // sqlite only
	MaxOpenConns int    `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
}

// CommitConfig tunes the historization commit
type CommitConfig struct {
	FlushRows        int `yaml:"flush_rows" env:"FLUSH_ROWS"`
	MaxRetries       int `yaml:"max_retries" env:"MAX_RETRIES"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" env:"INITIAL_BACKOFF_MS"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" env:"MAX_BACKOFF_MS"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
}

const envPrefix = "MIRROR_"

// MaxFlushRows keeps a multi-row statement of four columns per row under the
// Postgres limit of 65535 bind parameters.
const MaxFlushRows = 65535 / 4

// LoadConfig loads configuration from a YAML file, then applies MIRROR_*
// environment overrides and defaults.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: envPrefix}); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Service.Name == "" {
		c.Service.Name = "mirror-importer"
	}
	if c.Service.Version == "" {
		c.Service.Version = "dev"
	}
	if c.Service.HealthPort == 0 {
		c.Service.HealthPort = 8088
	}
	if c.Source.PollIntervalSeconds == 0 {
		c.Source.PollIntervalSeconds = 2
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "pgx"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 10
	}
	if c.Commit.FlushRows == 0 {
		c.Commit.FlushRows = 1000
	}
	if c.Commit.MaxRetries == 0 {
		c.Commit.MaxRetries = 5
	}
	if c.Commit.InitialBackoffMs == 0 {
		c.Commit.InitialBackoffMs = 100
	}
	if c.Commit.MaxBackoffMs == 0 {
		c.Commit.MaxBackoffMs = 30000
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "pgx", "postgres":
		if c.Database.Host == "" {
			return fmt.Errorf("database.host is required for driver %s", c.Database.Driver)
		}
		if c.Database.Name == "" {
			return fmt.Errorf("database.name is required for driver %s", c.Database.Driver)
		}
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for driver sqlite")
		}
	default:
		return fmt.Errorf("unsupported database.driver %q", c.Database.Driver)
	}

	if c.Source.Directory == "" {
		return fmt.Errorf("source.directory is required")
	}
	if c.Source.PollIntervalSeconds < 1 {
		return fmt.Errorf("poll_interval_seconds must be at least 1")
	}
	if c.Commit.FlushRows < 1 {
		return fmt.Errorf("flush_rows must be at least 1")
	}
	if c.Commit.FlushRows > MaxFlushRows {
		return fmt.Errorf("flush_rows must not exceed %d", MaxFlushRows)
	}
	if c.Commit.MaxRetries < 1 {
		return fmt.Errorf("max_retries must be at least 1")
	}
	if c.Commit.MaxBackoffMs < c.Commit.InitialBackoffMs {
		return fmt.Errorf("max_backoff_ms must not be below initial_backoff_ms")
	}
	return nil
}

// ConnectionString returns the data source name for the configured driver
func (c *DatabaseConfig) ConnectionString() string {
	if c.Driver == "sqlite" {
		return c.Path
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.User,
		c.Password,
		c.Name,
		c.SSLMode,
	)
}

func (c *SourceConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

func (c *CommitConfig) InitialBackoff() time.Duration {
	return time.Duration(c.InitialBackoffMs) * time.Millisecond
}

func (c *CommitConfig) MaxBackoff() time.Duration {
	return time.Duration(c.MaxBackoffMs) * time.Millisecond
}
