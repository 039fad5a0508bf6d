package sources

import (
	"embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/david/campsite-finder/internal/models"
)

//go:embed config/sources.yaml
var sourcesYAML embed.FS

const (
	defaultRecGovBaseURL = "https://www.recreation.gov"
	defaultRCABaseURL    = "https://california-rdr.prod.cali.rd12.recreation-management.tylerapp.com/rdr"
)

// Registry holds the upstream configuration of every reservation system.
type Registry struct {
	Sources []SourceConfig `yaml:"sources"`
}

// FetchConfig defines HTTP behaviour for one upstream.
type FetchConfig struct {
	TimeoutSeconds int     `yaml:"timeout_seconds,omitempty"` // Default: 15
	RateLimitRPS   float64 `yaml:"rate_limit_rps,omitempty"`  // Default: 5
	MaxConcurrency int64   `yaml:"max_concurrency,omitempty"` // Default: 10
	UserAgent      string  `yaml:"user_agent,omitempty"`
}

// SourceConfig describes one reservation system's endpoints.
type SourceConfig struct {
	ID               string      `yaml:"id"`
	Name             string      `yaml:"name"`
	BaseURL          string      `yaml:"base_url,omitempty"`
	ReservationURL   string      `yaml:"reservation_url"` // {id} is replaced by the park id
	AvailabilityPath string      `yaml:"availability_path,omitempty"`
	ChildrenPath     string      `yaml:"children_path,omitempty"`
	SearchPath       string      `yaml:"search_path,omitempty"`
	PlacePath        string      `yaml:"place_path,omitempty"`
	GridPath         string      `yaml:"grid_path,omitempty"`
	StatusAvailable  string      `yaml:"status_available,omitempty"`
	Fetch            FetchConfig `yaml:"fetch,omitempty"`
}

// LoadRegistry reads the registry file at path, or the embedded
// sources.yaml when path is empty. Environment variables in the YAML
// (e.g. ${RECGOV_BASE_URL}) are expanded.
func LoadRegistry(path string) (*Registry, error) {
	var (
		data []byte
		err  error
	)
	if path != "" {
		data, err = os.ReadFile(path)
	} else {
		data, err = sourcesYAML.ReadFile("config/sources.yaml")
	}
	if err != nil {
		return nil, fmt.Errorf("read sources registry: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var reg Registry
	if err := yaml.Unmarshal([]byte(expanded), &reg); err != nil {
		return nil, fmt.Errorf("parse sources registry: %w", err)
	}
	for i := range reg.Sources {
		reg.Sources[i].applyDefaults()
	}
	return &reg, nil
}

// Source returns the configuration for src.
func (r *Registry) Source(src models.Source) (SourceConfig, error) {
	for _, sc := range r.Sources {
		if sc.ID == string(src) {
			return sc, nil
		}
	}
	return SourceConfig{}, fmt.Errorf("%w: %s not in registry", models.ErrUnknownSource, src)
}

// ParkURL renders the public reservation page for a park.
func (sc SourceConfig) ParkURL(parkID string) string {
	return strings.ReplaceAll(sc.ReservationURL, "{id}", parkID)
}

func (sc *SourceConfig) applyDefaults() {
	if sc.BaseURL == "" {
		switch models.Source(sc.ID) {
		case models.SourceRecreationGov:
			sc.BaseURL = defaultRecGovBaseURL
		case models.SourceReserveCalifornia:
			sc.BaseURL = defaultRCABaseURL
		}
	}
	sc.BaseURL = strings.TrimRight(sc.BaseURL, "/")
	if sc.StatusAvailable == "" {
		sc.StatusAvailable = "Available"
	}
	if sc.Fetch.TimeoutSeconds == 0 {
		sc.Fetch.TimeoutSeconds = 15
	}
	if sc.Fetch.RateLimitRPS == 0 {
		sc.Fetch.RateLimitRPS = 5
	}
	if sc.Fetch.MaxConcurrency == 0 {
		sc.Fetch.MaxConcurrency = 10
	}
	if sc.Fetch.UserAgent == "" {
		sc.Fetch.UserAgent = "campsite-finder/1.0"
	}
}
