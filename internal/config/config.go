// Package config reads cvewatch settings from the environment, optionally
// preloaded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/dukerupert/cvewatch/internal/logging"
)

const (
	DefaultBackendURL     = "http://localhost:8001"
	DefaultPort           = "8080"
	DefaultDBPath         = "cvewatch.db"
	DefaultTimelineDays   = 14
	DefaultRequestTimeout = 30 * time.Second
)

type Config struct {
	BackendURL      string
	Port            string
	DBPath          string
	LogLevel        slog.Level
	TimelineDays    int
	RequestTimeout  time.Duration
	RefreshInterval time.Duration
}

// LoadEnvFile loads variables from path into the process environment
// without overriding ones already set. A missing file is not an error.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// FromEnv reads the configuration from the process environment.
func FromEnv() (Config, error) {
	return Load(os.Getenv)
}

// Load reads the configuration through getenv. Unset variables take their
// defaults; malformed ones are errors.
func Load(getenv func(string) string) (Config, error) {
	cfg := Config{
		BackendURL:     DefaultBackendURL,
		Port:           DefaultPort,
		DBPath:         DefaultDBPath,
		TimelineDays:   DefaultTimelineDays,
		RequestTimeout: DefaultRequestTimeout,
	}

	if v := getenv("CVEWATCH_BACKEND_URL"); v != "" {
		u, err := url.Parse(v)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return cfg, fmt.Errorf("CVEWATCH_BACKEND_URL: %q is not an http(s) URL", v)
		}
		cfg.BackendURL = v
	}
	if v := getenv("CVEWATCH_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err != nil || n <= 0 || n > 65535 {
			return cfg, fmt.Errorf("CVEWATCH_PORT: invalid port %q", v)
		}
		cfg.Port = v
	}
	if v := getenv("CVEWATCH_DB_PATH"); v != "" {
		cfg.DBPath = v
	}

	level, err := logging.ParseLevel(getenv("CVEWATCH_LOG_LEVEL"))
	if err != nil {
		return cfg, fmt.Errorf("CVEWATCH_LOG_LEVEL: %w", err)
	}
	cfg.LogLevel = level

	if v := getenv("CVEWATCH_TIMELINE_DAYS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return cfg, fmt.Errorf("CVEWATCH_TIMELINE_DAYS: must be a positive integer, got %q", v)
		}
		cfg.TimelineDays = n
	}
	if v := getenv("CVEWATCH_REQUEST_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return cfg, fmt.Errorf("CVEWATCH_REQUEST_TIMEOUT: invalid duration %q", v)
		}
		cfg.RequestTimeout = d
	}
	if v := getenv("CVEWATCH_REFRESH_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return cfg, fmt.Errorf("CVEWATCH_REFRESH_INTERVAL: invalid duration %q", v)
		}
		cfg.RefreshInterval = d
	}
	return cfg, nil
}
