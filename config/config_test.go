package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.GeminiModel != "gemini-2.5-flash" {
		t.Errorf("model = %q", cfg.GeminiModel)
	}
	if cfg.MaxUploadBytes() != 10<<20 {
		t.Errorf("MaxUploadBytes = %d", cfg.MaxUploadBytes())
	}
	if len(cfg.AllowedExtensions) != 3 || cfg.AllowedExtensions[0] != "jpg" {
		t.Errorf("extensions = %v", cfg.AllowedExtensions)
	}
	if cfg.SessionTTL != time.Hour {
		t.Errorf("ttl = %s", cfg.SessionTTL)
	}
	if cfg.Addr() != "0.0.0.0:8000" {
		t.Errorf("addr = %q", cfg.Addr())
	}
}

func TestLoadRequiresAPIKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error without GEMINI_API_KEY")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("MAX_UPLOAD_MB", "25")
	t.Setenv("CORS_ORIGINS", "http://a.example,http://b.example")
	t.Setenv("PORT", "9090")
	t.Setenv("SESSION_TTL", "30m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MaxUploadMB != 25 {
		t.Errorf("MaxUploadMB = %d", cfg.MaxUploadMB)
	}
	if len(cfg.CORSOrigins) != 2 || !strings.HasPrefix(cfg.CORSOrigins[1], "http://b") {
		t.Errorf("origins = %v", cfg.CORSOrigins)
	}
	if cfg.SessionTTL != 30*time.Minute {
		t.Errorf("ttl = %s", cfg.SessionTTL)
	}
	if cfg.Addr() != "0.0.0.0:9090" {
		t.Errorf("addr = %q", cfg.Addr())
	}
}

func TestLoadOTelSettings(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.OTelExporter != "none" {
		t.Errorf("default exporter = %q", cfg.OTelExporter)
	}

	t.Setenv("OTEL_EXPORTER", "otlp")
	t.Setenv("OTEL_ENDPOINT", "collector:4318")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.OTelExporter != "otlp" || cfg.OTelEndpoint != "collector:4318" {
		t.Errorf("otel settings = %q %q", cfg.OTelExporter, cfg.OTelEndpoint)
	}

	t.Setenv("OTEL_EXPORTER", "jaeger")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for unsupported exporter")
	}
}

func TestLoadRejectsNonPositiveTTL(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("SESSION_TTL", "0s")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for zero ttl")
	}
}
