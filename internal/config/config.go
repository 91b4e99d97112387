// Package config loads closuretree settings from defaults, a TOML file and
// environment variables.
//
// Priority: CLI flags > env vars > TOML file > defaults. Flags are applied
// by the caller after Load returns.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/roach88/closuretree/internal/ir"
	"github.com/roach88/closuretree/internal/nodes"
	"github.com/roach88/closuretree/internal/store"
)

// Environment variables read by Load.
const (
	EnvDriver       = "CLOSURETREE_DRIVER"
	EnvDSN          = "CLOSURETREE_DSN"
	EnvNodeTable    = "CLOSURETREE_NODE_TABLE"
	EnvClosureTable = "CLOSURETREE_CLOSURE_TABLE"
	EnvLogLevel     = "CLOSURETREE_LOG_LEVEL"
)

// Config holds all configuration settings for closuretree.
type Config struct {
	Storage StorageConfig `toml:"storage"`
	Tables  ir.Schema     `toml:"tables"`
	Logging LoggingConfig `toml:"logging"`
}

// StorageConfig holds storage-related settings.
type StorageConfig struct {
	Driver string `toml:"driver"` // "sqlite3", "pgx"
	DSN    string `toml:"dsn"`    // SQLite file path or PostgreSQL URL
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `toml:"level"`  // "debug", "info", "warn", "error"
	Format string `toml:"format"` // "text", "json"
}

// DefaultConfig returns a Config with all default values.
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			Driver: store.DriverSQLite,
			DSN:    "closuretree.db",
		},
		Tables: ir.Schema{
			NodeTable:  "nodes",
			Attributes: []string{nodes.LabelColumn},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds a Config from defaults, the TOML file at path and the
// environment. An empty path skips the file. Keys the file sets that
// Config does not know are an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		if err := cfg.loadTOML(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	// Derived names (the closure table) are filled in last.
	cfg.Tables = cfg.Tables.WithDefaults()
	return cfg, nil
}

// loadTOML loads configuration from a TOML file.
func (c *Config) loadTOML(path string) error {
	md, err := toml.DecodeFile(path, c)
	if err != nil {
		return fmt.Errorf("load config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("load config %s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	return nil
}

// applyEnv applies environment variable overrides.
func (c *Config) applyEnv() {
	if v := os.Getenv(EnvDriver); v != "" {
		c.Storage.Driver = v
	}
	if v := os.Getenv(EnvDSN); v != "" {
		c.Storage.DSN = v
	}
	if v := os.Getenv(EnvNodeTable); v != "" {
		c.Tables.NodeTable = v
	}
	if v := os.Getenv(EnvClosureTable); v != "" {
		c.Tables.ClosureTable = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Logging.Level = v
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	switch c.Storage.Driver {
	case store.DriverSQLite, store.DriverPostgres:
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver))
	}
	if c.Storage.DSN == "" {
		errs = append(errs, errors.New("storage.dsn: required"))
	}
	if err := c.Tables.WithDefaults().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("tables: %w", err))
	}
	if _, err := ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format: unknown format %q", c.Logging.Format))
	}
	return errors.Join(errs...)
}

// StoreConfig returns the store settings for this Config.
func (c *Config) StoreConfig(logger *slog.Logger) store.Config {
	return store.Config{
		Driver: c.Storage.Driver,
		DSN:    c.Storage.DSN,
		Schema: c.Tables,
		Logger: logger,
	}
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return 0, fmt.Errorf("unknown level %q", name)
	}
	return level, nil
}

// NewLogger builds the logger described by the logging section.
// Invalid levels fall back to Info; Validate reports them.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	level, err := ParseLevel(c.Logging.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Logging.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
