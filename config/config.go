// Package config collects the environment-sourced settings for the service.
// A .env file in the working directory is honoured when present.
package config

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

// Config is the full configuration surface. GEMINI_API_KEY is the only
// required value; startup fails without it.
type Config struct {
	GeminiAPIKey string `env:"GEMINI_API_KEY,required,notEmpty"`
	GeminiModel  string `env:"GEMINI_MODEL" envDefault:"gemini-2.5-flash"`

	StorageRoot string `env:"STORAGE_ROOT" envDefault:"storage"`

	MaxUploadMB       int64    `env:"MAX_UPLOAD_MB" envDefault:"10"`
	AllowedExtensions []string `env:"ALLOWED_EXTENSIONS" envDefault:"jpg,jpeg,png"`

	SessionTTL    time.Duration `env:"SESSION_TTL" envDefault:"1h"`
	SweepSchedule string        `env:"SWEEP_SCHEDULE" envDefault:"@every 10m"`

	CORSOrigins []string `env:"CORS_ORIGINS" envDefault:"*"`

	Host string `env:"HOST" envDefault:"0.0.0.0"`
	Port int    `env:"PORT" envDefault:"8000"`

	PythonCommand []string      `env:"PYTHON_COMMAND" envDefault:"python3"`
	ExecTimeout   time.Duration `env:"EXEC_TIMEOUT" envDefault:"60s"`

	OTelExporter string `env:"OTEL_EXPORTER" envDefault:"none"`
	OTelEndpoint string `env:"OTEL_ENDPOINT"`
	OTelInsecure bool   `env:"OTEL_INSECURE" envDefault:"false"`
}

// Load reads .env (if any) and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.MaxUploadMB <= 0 {
		return nil, fmt.Errorf("MAX_UPLOAD_MB must be positive, got %d", cfg.MaxUploadMB)
	}
	if cfg.SessionTTL <= 0 {
		return nil, fmt.Errorf("SESSION_TTL must be positive, got %s", cfg.SessionTTL)
	}
	switch cfg.OTelExporter {
	case "none", "stdout", "otlp":
	default:
		return nil, fmt.Errorf("OTEL_EXPORTER must be none, stdout or otlp, got %q", cfg.OTelExporter)
	}
	return cfg, nil
}

// Addr joins host and port for the HTTP listener.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// MaxUploadBytes converts the configured megabyte limit to bytes.
func (c *Config) MaxUploadBytes() int64 {
	return c.MaxUploadMB << 20
}
