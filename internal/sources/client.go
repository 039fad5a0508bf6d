package sources

import (
	"context"
	"fmt"
	"time"

	"github.com/david/campsite-finder/internal/availability"
	"github.com/david/campsite-finder/internal/metrics"
	"github.com/david/campsite-finder/internal/models"
)

// Fetch is the outcome of one fetch unit (facility × month). Exactly one of
// Entries or Err is meaningful.
type Fetch struct {
	Label   string // "<facility>/<YYYY-MM>" for logs
	Entries []availability.Entry
	Err     error
}

// CheckOptions narrows what a Check call looks at.
type CheckOptions struct {
	// FacilityID restricts a ReserveCA park to one facility.
	FacilityID string
}

// Client is one reservation system.
type Client interface {
	Source() models.Source
	// Check fetches every overlapping month of every facility of the
	// candidate. It never fails as a whole: each unit reports its own error.
	Check(ctx context.Context, cand models.Candidate, months []models.Date, opts CheckOptions) []Fetch
	// Children returns the site/unit metadata tree of a park.
	Children(ctx context.Context, parkID string) (models.ParkChildren, error)
	// ParkURL is the public reservation page of a park.
	ParkURL(parkID string) string
}

// CatalogReader is the part of the catalog store the clients need.
type CatalogReader interface {
	Park(ctx context.Context, src models.Source, id string) (models.CatalogPark, error)
}

// Options configures client construction.
type Options struct {
	Catalog CatalogReader
	Timeout time.Duration // overrides the registry per-call timeout when set
	Metrics *metrics.Metrics
}

// NewClient binds a source tag to its implementation.
func NewClient(src models.Source, reg *Registry, opts Options) (Client, error) {
	cfg, err := reg.Source(src)
	if err != nil {
		return nil, err
	}
	fetcher := NewFetcher(src, cfg.Fetch, opts.Timeout, opts.Metrics)

	switch src {
	case models.SourceRecreationGov:
		return NewRecGovClient(cfg, fetcher), nil
	case models.SourceReserveCalifornia:
		return NewReserveCAClient(cfg, fetcher, opts.Catalog), nil
	}
	return nil, fmt.Errorf("%w: %q", models.ErrUnknownSource, src)
}

// NewClients builds one client per known source, keyed by tag.
func NewClients(reg *Registry, opts Options) (map[models.Source]Client, error) {
	clients := make(map[models.Source]Client, len(models.Sources))
	for _, src := range models.Sources {
		c, err := NewClient(src, reg, opts)
		if err != nil {
			return nil, err
		}
		clients[src] = c
	}
	return clients, nil
}

func fetchLabel(facilityID string, month models.Date) string {
	return fmt.Sprintf("%s/%s", facilityID, month.Format("2006-01"))
}
