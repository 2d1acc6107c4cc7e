package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func env(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(env(nil))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := Config{
		BackendURL:     "http://localhost:8001",
		Port:           "8080",
		DBPath:         "cvewatch.db",
		LogLevel:       slog.LevelInfo,
		TimelineDays:   14,
		RequestTimeout: 30 * time.Second,
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := Load(env(map[string]string{
		"CVEWATCH_BACKEND_URL":      "https://cve.example.com/",
		"CVEWATCH_PORT":             "9090",
		"CVEWATCH_DB_PATH":          "/var/lib/cvewatch/state.db",
		"CVEWATCH_LOG_LEVEL":        "debug",
		"CVEWATCH_TIMELINE_DAYS":    "30",
		"CVEWATCH_REQUEST_TIMEOUT":  "5s",
		"CVEWATCH_REFRESH_INTERVAL": "15m",
	}))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := Config{
		BackendURL:      "https://cve.example.com/",
		Port:            "9090",
		DBPath:          "/var/lib/cvewatch/state.db",
		LogLevel:        slog.LevelDebug,
		TimelineDays:    30,
		RequestTimeout:  5 * time.Second,
		RefreshInterval: 15 * time.Minute,
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"CVEWATCH_BACKEND_URL":      "localhost:8001",
		"CVEWATCH_PORT":             "http",
		"CVEWATCH_LOG_LEVEL":        "loud",
		"CVEWATCH_TIMELINE_DAYS":    "0",
		"CVEWATCH_REQUEST_TIMEOUT":  "thirty",
		"CVEWATCH_REFRESH_INTERVAL": "-1m",
	}
	for key, val := range tests {
		t.Run(key, func(t *testing.T) {
			if _, err := Load(env(map[string]string{key: val})); err == nil {
				t.Errorf("expected error for %s=%q", key, val)
			}
		})
	}
}

func TestLoadEnvFile(t *testing.T) {
	if err := LoadEnvFile(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Errorf("missing file: %v", err)
	}

	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("CVEWATCH_TEST_ONLY_VAR=from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CVEWATCH_TEST_ONLY_VAR", "")
	os.Unsetenv("CVEWATCH_TEST_ONLY_VAR")

	if err := LoadEnvFile(path); err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := os.Getenv("CVEWATCH_TEST_ONLY_VAR"); got != "from-file" {
		t.Errorf("var = %q, want from-file", got)
	}
}
