// Package config loads the service configuration from the environment.
package config

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Config is the service configuration. Every field maps to a GACHA_* variable.
type Config struct {
	HTTPAddr      string        `env:"GACHA_HTTP_ADDR" envDefault:":8080"`
	GRPCAddr      string        `env:"GACHA_GRPC_ADDR" envDefault:":9090"`
	CatalogDir    string        `env:"GACHA_CATALOG_DIR" envDefault:"config"`
	WatchInterval time.Duration `env:"GACHA_WATCH_INTERVAL" envDefault:"2s"`

	Store       string `env:"GACHA_STORE" envDefault:"memory"`
	SQLitePath  string `env:"GACHA_SQLITE_PATH" envDefault:"gacha.db"`
	PostgresDSN string `env:"GACHA_POSTGRES_DSN"`

	RecentCap int `env:"GACHA_RECENT_CAP" envDefault:"50"`
	// DevCredits seeds the in-memory wallet, as player:currency:amount.
	DevCredits []string `env:"GACHA_DEV_CREDITS" envSeparator:","`
	// Duplicates convert into this item; empty disables conversion.
	DuplicateItem string `env:"GACHA_DUPLICATE_ITEM" envDefault:"starglitter"`

	LogLevel        string        `env:"GACHA_LOG_LEVEL" envDefault:"info"`
	LogFormat       string        `env:"GACHA_LOG_FORMAT" envDefault:"text"`
	ServiceName     string        `env:"GACHA_SERVICE_NAME" envDefault:"gacha-pull"`
	OTelEndpoint    string        `env:"GACHA_OTEL_ENDPOINT"`
	ShutdownTimeout time.Duration `env:"GACHA_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Credit is one parsed DevCredits entry.
type Credit struct {
	PlayerID string
	Currency string
	Amount   int64
}

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

// Validate checks field combinations env tags cannot express.
func (c Config) Validate() error {
	var errs []string
	switch c.Store {
	case StoreMemory:
	case StoreSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			errs = append(errs, "GACHA_SQLITE_PATH is required for the sqlite store")
		}
	case StorePostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			errs = append(errs, "GACHA_POSTGRES_DSN is required for the postgres store")
		}
	default:
		errs = append(errs, fmt.Sprintf("GACHA_STORE must be one of memory, sqlite, postgres; got %q", c.Store))
	}
	if c.RecentCap <= 0 {
		errs = append(errs, "GACHA_RECENT_CAP must be > 0")
	}
	if c.WatchInterval < 0 {
		errs = append(errs, "GACHA_WATCH_INTERVAL must be >= 0")
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, "GACHA_LOG_FORMAT must be text or json")
	}
	if _, err := c.Credits(); err != nil {
		errs = append(errs, err.Error())
	}
	if len(errs) > 0 {
		return fmt.Errorf("config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Credits parses DevCredits.
func (c Config) Credits() ([]Credit, error) {
	out := make([]Credit, 0, len(c.DevCredits))
	for _, raw := range c.DevCredits {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		parts := strings.Split(raw, ":")
		if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("GACHA_DEV_CREDITS entry %q must be player:currency:amount", raw)
		}
		amount, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil || amount < 0 {
			return nil, fmt.Errorf("GACHA_DEV_CREDITS entry %q has an invalid amount", raw)
		}
		out = append(out, Credit{PlayerID: parts[0], Currency: parts[1], Amount: amount})
	}
	return out, nil
}

// ParseLogLevel converts a level name to slog.Level.
// Defaults to Info if invalid or empty.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
