package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Server.ActorHeader != "X-User-ID" {
		t.Errorf("expected default actor header %q, got %q", "X-User-ID", cfg.Server.ActorHeader)
	}
	if cfg.Audit.Workers != 2 {
		t.Errorf("expected default audit workers 2, got %d", cfg.Audit.Workers)
	}
	if len(cfg.Audit.SensitiveFields) != len(DefaultSensitiveFields) {
		t.Errorf("expected %d sensitive fields, got %d", len(DefaultSensitiveFields), len(cfg.Audit.SensitiveFields))
	}
}

func TestDefaultSensitiveFieldsNotShared(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Audit.SensitiveFields[0] = "changed"
	if DefaultSensitiveFields[0] != "password" {
		t.Errorf("DefaultConfig must copy the sensitive field list, package var now %q", DefaultSensitiveFields[0])
	}
}

func TestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "perfreview.yml")

	original := DefaultConfig()
	original.Server.Port = 9090
	original.Database.Path = "/var/lib/perfreview/pr.db"
	original.Log.Format = LogFormatConsole
	original.Audit.QueueSize = 64
	original.Audit.WriteTimeout = 3 * time.Second
	original.Audit.SensitiveFields = []string{"password", "ssn"}

	// Save.
	if err := original.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// Load back.
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loaded.Server.Port != 9090 {
		t.Errorf("port: got %d, want 9090", loaded.Server.Port)
	}
	if loaded.Database.Path != original.Database.Path {
		t.Errorf("database.path: got %q, want %q", loaded.Database.Path, original.Database.Path)
	}
	if loaded.Log.Format != LogFormatConsole {
		t.Errorf("log.format: got %q, want %q", loaded.Log.Format, LogFormatConsole)
	}
	if loaded.Audit.QueueSize != 64 {
		t.Errorf("audit.queue_size: got %d, want 64", loaded.Audit.QueueSize)
	}
	if loaded.Audit.WriteTimeout != 3*time.Second {
		t.Errorf("audit.write_timeout: got %s, want 3s", loaded.Audit.WriteTimeout)
	}
	if len(loaded.Audit.SensitiveFields) != 2 || loaded.Audit.SensitiveFields[1] != "ssn" {
		t.Errorf("audit.sensitive_fields: got %v", loaded.Audit.SensitiveFields)
	}
}

func TestLoadMissingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nonexistent.yml")

	// Loading a missing file should return defaults, not an error.
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load should not fail for missing file: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port, got %d", cfg.Server.Port)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "perfreview.yml")

	cfg := DefaultConfig()
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	t.Setenv("PERFREVIEW_LOG__LEVEL", "debug")
	t.Setenv("PERFREVIEW_AUDIT__WORKERS", "7")

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Log.Level != "debug" {
		t.Errorf("env override failed: got %q, want %q", loaded.Log.Level, "debug")
	}
	if loaded.Audit.Workers != 7 {
		t.Errorf("env override failed: got %d, want 7", loaded.Audit.Workers)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "perfreview.yml")

	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("PERFREVIEW_DATABASE__PATH=/tmp/from-dotenv.db\n"), 0o644); err != nil {
		t.Fatalf("writing .env: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("PERFREVIEW_DATABASE__PATH") })

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Database.Path != "/tmp/from-dotenv.db" {
		t.Errorf("database.path: got %q, want value from .env", loaded.Database.Path)
	}
}

func TestValidateValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultConfig should be valid, got: %v", err)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative port", func(c *Config) { c.Server.Port = -1 }},
		{"empty actor header", func(c *Config) { c.Server.ActorHeader = "" }},
		{"empty database path", func(c *Config) { c.Database.Path = "" }},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }},
		{"zero queue", func(c *Config) { c.Audit.QueueSize = 0 }},
		{"zero workers", func(c *Config) { c.Audit.Workers = 0 }},
		{"zero write timeout", func(c *Config) { c.Audit.WriteTimeout = 0 }},
		{"no sensitive fields", func(c *Config) { c.Audit.SensitiveFields = nil }},
		{"tracing without endpoint", func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.Endpoint = ""
		}},
		{"tracing ratio above one", func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.SampleRatio = 1.5
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
