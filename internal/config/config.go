package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Catalog backends.
const (
	CatalogFile     = "file"
	CatalogPostgres = "postgres"
)

// Config is the process configuration, read once at startup.
type Config struct {
	Port           string        `env:"PORT"                   envDefault:"8080"`
	DataDir        string        `env:"CAMPSITE_DATA_DIR"      envDefault:"data"`
	CatalogBackend string        `env:"CAMPSITE_CATALOG"       envDefault:"file"`
	DatabaseURL    string        `env:"DATABASE_URL"`
	RequestTimeout time.Duration `env:"CAMPSITE_REQUEST_TIMEOUT" envDefault:"15s"`
	CatalogMaxAge  time.Duration `env:"CAMPSITE_CATALOG_MAX_AGE" envDefault:"336h"`
	ChildrenTTL    time.Duration `env:"CAMPSITE_CHILDREN_TTL"  envDefault:"24h"`
	BatchDelay     time.Duration `env:"CAMPSITE_BATCH_DELAY"   envDefault:"500ms"`
	CORSOrigins    []string      `env:"CAMPSITE_CORS_ORIGINS"  envDefault:"http://localhost:3000,http://localhost:5173" envSeparator:","`
	AdminSecret    string        `env:"CAMPSITE_ADMIN_SECRET"`
	NominatimURL   string        `env:"CAMPSITE_NOMINATIM_URL" envDefault:"https://nominatim.openstreetmap.org/search"`
	UserAgent      string        `env:"CAMPSITE_USER_AGENT"    envDefault:"campsite-finder/1.0"`
	SourcesFile    string        `env:"CAMPSITE_SOURCES_FILE"` // overrides the embedded registry
}

// ConfigurationError is a fatal startup problem with the environment.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration %s: %s", e.Field, e.Reason)
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.CatalogBackend = strings.ToLower(strings.TrimSpace(cfg.CatalogBackend))
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.CatalogBackend {
	case CatalogFile:
		if c.DataDir == "" {
			return &ConfigurationError{Field: "CAMPSITE_DATA_DIR", Reason: "required for the file catalog"}
		}
	case CatalogPostgres:
		if c.DatabaseURL == "" {
			return &ConfigurationError{Field: "DATABASE_URL", Reason: "required for the postgres catalog"}
		}
	default:
		return &ConfigurationError{Field: "CAMPSITE_CATALOG", Reason: fmt.Sprintf("unknown backend %q", c.CatalogBackend)}
	}
	if c.RequestTimeout <= 0 {
		return &ConfigurationError{Field: "CAMPSITE_REQUEST_TIMEOUT", Reason: "must be positive"}
	}
	if c.BatchDelay < 0 {
		return &ConfigurationError{Field: "CAMPSITE_BATCH_DELAY", Reason: "must not be negative"}
	}
	return nil
}
