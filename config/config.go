/*
config.go - Runtime configuration

PURPOSE:
  Collects server settings from three layers, later layers winning:
    1. .env file (optional, via godotenv; never overrides the real environment)
    2. environment variables
    3. command-line flags

VARIABLES:
  TAX_PORT            HTTP port (default 8080)
  TAX_DB_DRIVER       memory | sqlite | postgres (default sqlite)
  TAX_DB_PATH         SQLite path (default tax.db, ":memory:" allowed)
  DATABASE_URL        PostgreSQL DSN, required for the postgres driver
  TAX_CACHE_TTL       Result cache TTL as a Go duration (default 5m, 0 disables)
  TAX_REFERENCE_FILE  YAML/JSON reference document loaded at startup
  LOG_LEVEL           debug | info | warn | error (default info)
  STAGE               dev | prod (default dev)
*/
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Port          int
	DBDriver      string
	DBPath        string
	DatabaseURL   string
	CacheTTL      time.Duration
	ReferenceFile string
	LogLevel      string
	Stage         string
}

func Default() Config {
	return Config{
		Port:     8080,
		DBDriver: DriverSQLite,
		DBPath:   "tax.db",
		CacheTTL: 5 * time.Minute,
		LogLevel: "info",
		Stage:    "dev",
	}
}

// Load reads envFile (if it exists), the environment and then args.
func Load(envFile string, args []string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("failed to read %s: %w", envFile, err)
		}
	}

	cfg := Default()
	if err := cfg.fromEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}

	fset := flag.NewFlagSet("server", flag.ContinueOnError)
	fset.IntVar(&cfg.Port, "port", cfg.Port, "HTTP server port")
	fset.StringVar(&cfg.DBDriver, "driver", cfg.DBDriver, "record store: memory, sqlite or postgres")
	fset.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path")
	fset.StringVar(&cfg.DatabaseURL, "database-url", cfg.DatabaseURL, "PostgreSQL connection string")
	fset.DurationVar(&cfg.CacheTTL, "cache-ttl", cfg.CacheTTL, "result cache TTL (0 disables)")
	fset.StringVar(&cfg.ReferenceFile, "reference", cfg.ReferenceFile, "reference data document to load at startup")
	fset.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level")
	if err := fset.Parse(args); err != nil {
		return Config{}, err
	}

	return cfg, cfg.Validate()
}

func (c *Config) fromEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("TAX_PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("TAX_PORT: %w", err)
		}
		c.Port = port
	}
	if v, ok := lookup("TAX_CACHE_TTL"); ok && v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("TAX_CACHE_TTL: %w", err)
		}
		c.CacheTTL = ttl
	}
	strs := map[string]*string{
		"TAX_DB_DRIVER":      &c.DBDriver,
		"TAX_DB_PATH":        &c.DBPath,
		"DATABASE_URL":       &c.DatabaseURL,
		"TAX_REFERENCE_FILE": &c.ReferenceFile,
		"LOG_LEVEL":          &c.LogLevel,
		"STAGE":              &c.Stage,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	return nil
}

func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.CacheTTL < 0 {
		return fmt.Errorf("cache TTL must not be negative")
	}
	switch c.DBDriver {
	case DriverMemory, DriverSQLite:
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown database driver %q", c.DBDriver)
	}
	return nil
}
