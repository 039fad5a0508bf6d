package catalog

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/david/campsite-finder/internal/geo"
	"github.com/david/campsite-finder/internal/models"
)

// ErrParkNotFound is returned by Park for an id absent from the catalog.
var ErrParkNotFound = errors.New("park not found in catalog")

// DefaultMaxAge is how old a source's catalog may get before it is stale.
const DefaultMaxAge = 14 * 24 * time.Hour

// Store is the read-mostly, process-cached view of the catalog. The backend
// is read on first use and again after Invalidate.
type Store struct {
	backend Backend
	maxAge  time.Duration
	now     func() time.Time

	mu     sync.RWMutex
	parks  []models.CatalogPark
	loaded bool
}

func NewStore(backend Backend, maxAge time.Duration) *Store {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Store{backend: backend, maxAge: maxAge, now: time.Now}
}

func (s *Store) all(ctx context.Context) ([]models.CatalogPark, error) {
	s.mu.RLock()
	if s.loaded {
		parks := s.parks
		s.mu.RUnlock()
		return parks, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return s.parks, nil
	}

	parks, err := s.backend.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	sort.SliceStable(parks, func(i, j int) bool {
		return strings.ToLower(parks[i].Name) < strings.ToLower(parks[j].Name)
	})
	s.parks = parks
	s.loaded = true
	log.Printf("[Catalog] Loaded %d parks", len(parks))
	return parks, nil
}

// Invalidate drops the cached catalog; the next read reloads it.
func (s *Store) Invalidate() {
	s.mu.Lock()
	s.parks = nil
	s.loaded = false
	s.mu.Unlock()
}

// Replace saves parks for src and invalidates the cache.
func (s *Store) Replace(ctx context.Context, src models.Source, parks []models.CatalogPark) error {
	if err := s.backend.Save(ctx, src, parks); err != nil {
		return fmt.Errorf("save %s catalog: %w", src, err)
	}
	s.Invalidate()
	return nil
}

// Parks lists the merged catalog ordered by name, optionally filtered by a
// case-insensitive name substring.
func (s *Store) Parks(ctx context.Context, q string) ([]models.CatalogPark, error) {
	parks, err := s.all(ctx)
	if err != nil {
		return nil, err
	}
	term := strings.ToLower(strings.TrimSpace(q))
	out := make([]models.CatalogPark, 0, len(parks))
	for _, p := range parks {
		if term == "" || strings.Contains(strings.ToLower(p.Name), term) {
			out = append(out, p)
		}
	}
	return out, nil
}

// Near returns the parks of src within radiusMiles of origin, nearest first.
// Parks without coordinates never match. Distances are rounded to one decimal.
func (s *Store) Near(ctx context.Context, src models.Source, origin geo.Point, radiusMiles float64) ([]models.Candidate, error) {
	parks, err := s.all(ctx)
	if err != nil {
		return nil, err
	}
	var out []models.Candidate
	for _, p := range parks {
		if p.Source != src || !p.HasCoordinates() {
			continue
		}
		dist := geo.DistanceMiles(origin, geo.Point{Latitude: *p.Latitude, Longitude: *p.Longitude})
		if dist > radiusMiles {
			continue
		}
		out = append(out, models.Candidate{Park: p, DistanceMiles: geo.Round1(dist)})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DistanceMiles < out[j].DistanceMiles })
	return out, nil
}

// Park looks up one park by source and id.
func (s *Store) Park(ctx context.Context, src models.Source, id string) (models.CatalogPark, error) {
	parks, err := s.all(ctx)
	if err != nil {
		return models.CatalogPark{}, err
	}
	for _, p := range parks {
		if p.Source == src && p.ID == id {
			return p, nil
		}
	}
	return models.CatalogPark{}, fmt.Errorf("%w: %s/%s", ErrParkNotFound, src, id)
}

// Status reports per-source counts, the oldest build time and staleness. A
// source that was never built makes the catalog stale.
func (s *Store) Status(ctx context.Context) (models.CatalogStatus, error) {
	parks, err := s.all(ctx)
	if err != nil {
		return models.CatalogStatus{}, err
	}
	builtAt, err := s.backend.BuiltAt(ctx)
	if err != nil {
		return models.CatalogStatus{}, fmt.Errorf("catalog build times: %w", err)
	}

	st := models.CatalogStatus{Counts: map[models.Source]int{}}
	for _, src := range models.Sources {
		st.Counts[src] = 0
	}
	for _, p := range parks {
		st.Counts[p.Source]++
	}

	now := s.now()
	for _, src := range models.Sources {
		t, ok := builtAt[src]
		if !ok {
			st.Stale = true
			continue
		}
		if now.Sub(t) > s.maxAge {
			st.Stale = true
		}
		if st.BuiltAt == nil || t.Before(*st.BuiltAt) {
			oldest := t
			st.BuiltAt = &oldest
		}
	}
	return st, nil
}

// Stale reports whether any source needs a rebuild.
func (s *Store) Stale(ctx context.Context) (bool, error) {
	st, err := s.Status(ctx)
	if err != nil {
		return true, err
	}
	return st.Stale, nil
}
