package config

import "time"

// LogFormat selects the zap encoder.
type LogFormat string

const (
	LogFormatJSON    LogFormat = "json"
	LogFormatConsole LogFormat = "console"
)

// Config is the top-level perfreview configuration, corresponding to perfreview.yml.
type Config struct {
	Server   ServerConfig   `yaml:"server" koanf:"server"`
	Database DatabaseConfig `yaml:"database" koanf:"database"`
	Log      LogConfig      `yaml:"log" koanf:"log"`
	Audit    AuditConfig    `yaml:"audit" koanf:"audit"`
	Tracing  TracingConfig  `yaml:"tracing" koanf:"tracing"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port            int           `yaml:"port" koanf:"port"`
	AllowAllOrigins bool          `yaml:"allow_all_origins" koanf:"allow_all_origins"`
	RequestTimeout  time.Duration `yaml:"request_timeout" koanf:"request_timeout"`
	// ActorHeader names the request header carrying the acting user's id.
	ActorHeader string `yaml:"actor_header" koanf:"actor_header"`
}

// DatabaseConfig locates the SQLite file.
type DatabaseConfig struct {
	Path string `yaml:"path" koanf:"path"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level  string    `yaml:"level" koanf:"level"`
	Format LogFormat `yaml:"format" koanf:"format"`
}

// AuditConfig tunes the change-tracking pipeline.
type AuditConfig struct {
	QueueSize       int           `yaml:"queue_size" koanf:"queue_size"`
	Workers         int           `yaml:"workers" koanf:"workers"`
	WriteTimeout    time.Duration `yaml:"write_timeout" koanf:"write_timeout"`
	SnapshotTimeout time.Duration `yaml:"snapshot_timeout" koanf:"snapshot_timeout"`
	SensitiveFields []string      `yaml:"sensitive_fields" koanf:"sensitive_fields"`
}

// TracingConfig configures the OTLP trace exporter.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled" koanf:"enabled"`
	ServiceName string  `yaml:"service_name" koanf:"service_name"`
	Endpoint    string  `yaml:"endpoint" koanf:"endpoint"`
	SampleRatio float64 `yaml:"sample_ratio" koanf:"sample_ratio"`
}
