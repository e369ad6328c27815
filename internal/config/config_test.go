package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// clearEnv blanks every override so the host environment cannot leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"PORT", "STORAGE_BACKEND", "STATE_FILE", "SQLITE_PATH",
		"DATABASE_URL", "REDIS_URL", "QUOTE_URL", "LOG_LEVEL"} {
		t.Setenv(k, "")
	}
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("missing file should not fail: %v", err)
	}

	if cfg.Server.Port != 8080 || cfg.Server.Addr() != "127.0.0.1:8080" {
		t.Errorf("unexpected server defaults: %+v", cfg.Server)
	}
	if cfg.Storage.Backend != BackendSQLite || cfg.Storage.SQLitePath != "data/tactician.db" {
		t.Errorf("unexpected storage defaults: %+v", cfg.Storage)
	}
	if cfg.Quotes.RefreshInterval != 30*time.Second || cfg.Quotes.CacheTTL != 60*time.Second {
		t.Errorf("unexpected quote defaults: %+v", cfg.Quotes)
	}
	if cfg.Prediction.SettleInterval != time.Second {
		t.Errorf("expected 1s settle interval, got %s", cfg.Prediction.SettleInterval)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected info level, got %s", cfg.Logging.Level)
	}
}

func TestLoad_EmptyPath(t *testing.T) {
	clearEnv(t)
	if _, err := Load(""); err != nil {
		t.Fatalf("empty path should load defaults: %v", err)
	}
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, `
server:
  port: 9090
storage:
  backend: file
  file_path: /tmp/state.json
quotes:
  refresh_interval: 45s
logging:
  level: debug
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 10*time.Second {
		t.Errorf("unset fields keep defaults, got %s", cfg.Server.ReadTimeout)
	}
	if cfg.Storage.Backend != BackendFile || cfg.Storage.FilePath != "/tmp/state.json" {
		t.Errorf("unexpected storage: %+v", cfg.Storage)
	}
	if cfg.Quotes.RefreshInterval != 45*time.Second {
		t.Errorf("expected 45s, got %s", cfg.Quotes.RefreshInterval)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected debug, got %s", cfg.Logging.Level)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "7000")
	t.Setenv("DATABASE_URL", "postgres://localhost/tactician")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("QUOTE_URL", "http://localhost:9999/api")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load(writeFile(t, "server:\n  port: 9090\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 7000 {
		t.Errorf("env should win over file, got %d", cfg.Server.Port)
	}
	if cfg.Storage.Backend != BackendPostgres || cfg.Storage.DatabaseURL == "" {
		t.Errorf("DATABASE_URL should select postgres: %+v", cfg.Storage)
	}
	if cfg.Storage.RedisURL != "redis://localhost:6379/0" {
		t.Errorf("unexpected redis url %q", cfg.Storage.RedisURL)
	}
	if cfg.Quotes.BaseURL != "http://localhost:9999/api" || cfg.Logging.Level != "warn" {
		t.Errorf("unexpected overrides: %+v %+v", cfg.Quotes, cfg.Logging)
	}
}

func TestLoad_StateFileSelectsFileBackend(t *testing.T) {
	clearEnv(t)
	t.Setenv("STATE_FILE", "/var/lib/tactician/state.json")
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Storage.Backend != BackendFile || cfg.Storage.FilePath != "/var/lib/tactician/state.json" {
		t.Errorf("unexpected storage: %+v", cfg.Storage)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		env  map[string]string
	}{
		{"bad backend", "storage:\n  backend: mongo\n", nil},
		{"postgres without url", "storage:\n  backend: postgres\n", nil},
		{"bad port", "server:\n  port: 70000\n", nil},
		{"bad level", "logging:\n  level: loud\n", nil},
		{"refresh too fast", "quotes:\n  refresh_interval: 10ms\n", nil},
		{"malformed yaml", "server: [\n", nil},
		{"bad env port", "", map[string]string{"PORT": "eighty"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(writeFile(t, tt.yaml)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestNewLogger_Level(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("warn", &buf)
	logger.Info("hidden")
	logger.Warn("shown", "key", "value")

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("expected one JSON line, got %q: %v", buf.String(), err)
	}
	if line["msg"] != "shown" || line["key"] != "value" {
		t.Errorf("unexpected log line: %v", line)
	}
}
