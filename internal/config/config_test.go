package config

import (
	"errors"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CAMPSITE_CATALOG", "file")
	t.Setenv("PORT", "9090")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "9090" || cfg.CatalogBackend != CatalogFile {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.CatalogMaxAge != 14*24*time.Hour || cfg.ChildrenTTL != 24*time.Hour || cfg.BatchDelay != 500*time.Millisecond {
		t.Fatalf("unexpected durations %+v", cfg)
	}
	if len(cfg.CORSOrigins) != 2 {
		t.Fatalf("unexpected CORS origins %v", cfg.CORSOrigins)
	}
}

func TestLoad_PostgresNeedsURL(t *testing.T) {
	t.Setenv("CAMPSITE_CATALOG", "Postgres")
	t.Setenv("DATABASE_URL", "")

	_, err := Load()
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) || cfgErr.Field != "DATABASE_URL" {
		t.Fatalf("expected ConfigurationError for DATABASE_URL, got %v", err)
	}

	t.Setenv("DATABASE_URL", "postgres://localhost/campsites")
	if _, err := Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
}

func TestValidate_UnknownBackend(t *testing.T) {
	cfg := Config{CatalogBackend: "sqlite", RequestTimeout: time.Second}
	var cfgErr *ConfigurationError
	if err := cfg.Validate(); !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
}
