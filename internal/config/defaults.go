package config

import "time"

// DefaultSensitiveFields are the field-name fragments whose values are
// masked before an audit record is persisted.
var DefaultSensitiveFields = []string{
	"password",
	"token",
	"secret",
	"key",
	"accessToken",
	"refreshToken",
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           8080,
			RequestTimeout: 60 * time.Second,
			ActorHeader:    "X-User-ID",
		},
		Database: DatabaseConfig{
			Path: "data/perfreview.db",
		},
		Log: LogConfig{
			Level:  "info",
			Format: LogFormatJSON,
		},
		Audit: AuditConfig{
			QueueSize:       1024,
			Workers:         2,
			WriteTimeout:    5 * time.Second,
			SnapshotTimeout: 2 * time.Second,
			SensitiveFields: append([]string(nil), DefaultSensitiveFields...),
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "perfreview",
			Endpoint:    "http://localhost:4318/v1/traces",
			SampleRatio: 1.0,
		},
	}
}
