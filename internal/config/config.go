// Package config loads the tactician configuration: struct defaults, then an
// optional YAML file, then environment variable overrides, then validation.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration.
type Config struct {
	Server     Server     `yaml:"server"`
	Storage    Storage    `yaml:"storage"`
	Quotes     Quotes     `yaml:"quotes"`
	Prediction Prediction `yaml:"prediction"`
	Logging    Logging    `yaml:"logging"`
}

// Server holds the HTTP listener configuration.
type Server struct {
	Host            string        `yaml:"host" default:"127.0.0.1"`
	Port            int           `yaml:"port" default:"8080" validate:"gte=1,lte=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s" validate:"gt=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s" validate:"gt=0"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" default:"60s" validate:"gt=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"5s" validate:"gt=0"`
}

// Storage selects and configures the persistence backend.
type Storage struct {
	Backend     string        `yaml:"backend" default:"sqlite" validate:"oneof=memory file sqlite postgres"`
	FilePath    string        `yaml:"file_path" default:"data/tactician.json" validate:"required_if=Backend file"`
	SQLitePath  string        `yaml:"sqlite_path" default:"data/tactician.db" validate:"required_if=Backend sqlite"`
	DatabaseURL string        `yaml:"database_url" validate:"required_if=Backend postgres"`
	RedisURL    string        `yaml:"redis_url"`
	CacheTTL    time.Duration `yaml:"cache_ttl" default:"30s" validate:"gt=0"`
}

// Quotes configures the market quote source.
type Quotes struct {
	BaseURL         string        `yaml:"base_url" default:"https://api.coingecko.com/api/v3" validate:"url"`
	RefreshInterval time.Duration `yaml:"refresh_interval" default:"30s" validate:"gte=1s"`
	CacheTTL        time.Duration `yaml:"cache_ttl" default:"60s" validate:"gt=0"`
	Timeout         time.Duration `yaml:"timeout" default:"10s" validate:"gt=0"`
}

// Prediction configures the prediction game.
type Prediction struct {
	SettleInterval time.Duration `yaml:"settle_interval" default:"1s" validate:"gt=0"`
}

// Logging configures the application logger.
type Logging struct {
	Level string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
}

// Addr returns the listen address.
func (s Server) Addr() string {
	return s.Host + ":" + strconv.Itoa(s.Port)
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

var validate = validator.New()

// Load builds the configuration. path may be empty or name a missing file,
// in which case only defaults and environment overrides apply.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set. A storage location
// variable also selects its backend; DATABASE_URL wins over the local ones.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		cfg.Server.Port = port
	}

	if v := os.Getenv("STORAGE_BACKEND"); v != "" {
		cfg.Storage.Backend = v
	}
	if v := os.Getenv("STATE_FILE"); v != "" {
		cfg.Storage.FilePath = v
		cfg.Storage.Backend = BackendFile
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
		cfg.Storage.Backend = BackendSQLite
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Storage.DatabaseURL = v
		cfg.Storage.Backend = BackendPostgres
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Storage.RedisURL = v
	}

	if v := os.Getenv("QUOTE_URL"); v != "" {
		cfg.Quotes.BaseURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	return nil
}
