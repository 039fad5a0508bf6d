package search

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/david/campsite-finder/internal/availability"
	"github.com/david/campsite-finder/internal/classify"
	"github.com/david/campsite-finder/internal/geo"
	"github.com/david/campsite-finder/internal/metrics"
	"github.com/david/campsite-finder/internal/models"
	"github.com/david/campsite-finder/internal/sources"
)

const (
	DefaultBatchSize  = 5
	DefaultMaxResults = 30
	DefaultBatchDelay = 500 * time.Millisecond
)

// Params is a normalized range search for one source.
type Params struct {
	Center      geo.Point
	RadiusMiles float64
	Start       models.Date // inclusive
	End         models.Date // exclusive
	NumPeople   int
	Filter      classify.Filter
}

// CandidateFinder resolves the parks of a source within a radius, nearest
// first.
type CandidateFinder interface {
	Near(ctx context.Context, src models.Source, origin geo.Point, radiusMiles float64) ([]models.Candidate, error)
}

// Orchestrator runs range searches against one source at a time.
type Orchestrator struct {
	catalog CandidateFinder
	metrics *metrics.Metrics

	BatchSize  int
	MaxResults int
	BatchDelay time.Duration
}

func NewOrchestrator(catalog CandidateFinder, m *metrics.Metrics, batchDelay time.Duration) *Orchestrator {
	if batchDelay < 0 {
		batchDelay = DefaultBatchDelay
	}
	return &Orchestrator{
		catalog:    catalog,
		metrics:    m,
		BatchSize:  DefaultBatchSize,
		MaxResults: DefaultMaxResults,
		BatchDelay: batchDelay,
	}
}

// Search streams the qualifying facilities of client's source. It never
// fails: every failure becomes an error or status event.
func (o *Orchestrator) Search(ctx context.Context, client sources.Client, p Params, emit Emit) {
	src := client.Source()
	label := src.Label()
	o.metrics.SearchStarted("range", string(src))

	emit(StatusEvent(fmt.Sprintf("Searching %s campgrounds...", label)))
	candidates, err := o.catalog.Near(ctx, src, p.Center, p.RadiusMiles)
	if err != nil {
		log.Printf("[Search] %s candidate lookup failed: %v", src, err)
		emit(ErrorEvent(fmt.Sprintf("%s search failed: %v", label, err)))
		return
	}
	emit(StatusEvent(fmt.Sprintf("Found %d campgrounds within %s mi, checking availability...",
		len(candidates), strconv.FormatFloat(p.RadiusMiles, 'f', -1, 64))))
	if len(candidates) == 0 {
		emit(StatusEvent("No campgrounds found within radius."))
		return
	}

	months := availability.MonthsOverlapping(p.Start, p.End)
	win := availability.Window{Start: p.Start, End: p.End}
	keep := func(e availability.Entry) bool {
		if !p.Filter.Allows(e.Category) {
			return false
		}
		return e.MaxPeople == 0 || e.MaxPeople >= p.NumPeople
	}

	size := o.BatchSize
	if size <= 0 {
		size = DefaultBatchSize
	}
	checked, found := 0, 0

	for start := 0; start < len(candidates); start += size {
		if ctx.Err() != nil {
			log.Printf("[Search] %s stopped after %d/%d: %v", src, checked, len(candidates), ctx.Err())
			return
		}
		if start > 0 && !o.pause(ctx) {
			return
		}

		batch := candidates[start:min(start+size, len(candidates))]
		results := make([]*models.Campsite, len(batch))
		limited := make([]bool, len(batch))

		var g errgroup.Group
		for i, cand := range batch {
			g.Go(func() error {
				fetches := client.Check(ctx, cand, months, sources.CheckOptions{})
				sites, rl := collectSites(o.metrics, src, fetches, win, keep)
				limited[i] = rl
				if len(sites) > 0 {
					results[i] = buildCampsite(client, cand, sites)
				}
				return nil
			})
		}
		_ = g.Wait()

		rateLimited := false
		for i := range batch {
			checked++
			rateLimited = rateLimited || limited[i]
			if results[i] == nil || found >= o.MaxResults {
				continue
			}
			found++
			o.metrics.ResultEmitted(string(src))
			emit(ResultEvent(*results[i]))
		}
		emit(ProgressEvent(Progress{Checked: checked, Total: len(candidates), Found: found, Source: label}))

		if rateLimited {
			log.Printf("[Search] %s rate limited after %d/%d candidates", src, checked, len(candidates))
			o.metrics.RateLimitAbort(string(src))
			emit(ErrorEvent(fmt.Sprintf("%s rate limit hit (429). Wait a minute and try again.", label)))
			return
		}
		if found >= o.MaxResults {
			log.Printf("[Search] %s reached %d results, stopping", src, found)
			break
		}
	}

	if found == 0 {
		emit(StatusEvent(fmt.Sprintf("No %s results found.", label)))
	}
}

// pause waits out the inter-batch delay. It reports false when ctx ends
// first.
func (o *Orchestrator) pause(ctx context.Context) bool {
	if o.BatchDelay <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(o.BatchDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// collectSites merges the usable fetches into per-site availability inside
// win. Failed fetches are dropped here; the second result reports whether
// any of them was a rate limit.
func collectSites(m *metrics.Metrics, src models.Source, fetches []sources.Fetch, win availability.Window, keep func(availability.Entry) bool) ([]models.SiteAvailability, bool) {
	var (
		groups      [][]models.SiteAvailability
		rateLimited bool
	)
	for _, f := range fetches {
		if f.Err != nil {
			if sources.IsRateLimited(f.Err) {
				rateLimited = true
			}
			if !errors.Is(f.Err, context.Canceled) {
				log.Printf("[Search] %s %s skipped: %v", src, f.Label, f.Err)
				m.DiscardedFetch(string(src))
			}
			continue
		}
		_, sites := availability.ExtractAvailableDates(f.Entries, win.Start, win.End, keep)
		if len(sites) > 0 {
			groups = append(groups, sites)
		}
	}
	if len(groups) == 0 {
		return nil, rateLimited
	}
	return availability.MergeSites(groups...), rateLimited
}

func buildCampsite(client sources.Client, cand models.Candidate, sites []models.SiteAvailability) *models.Campsite {
	park := cand.Park
	dist := cand.DistanceMiles
	url := park.ReservationURL
	if url == "" {
		url = client.ParkURL(park.ID)
	}
	return &models.Campsite{
		Name:             park.Name,
		FacilityID:       park.ID,
		Source:           client.Source(),
		Latitude:         park.Latitude,
		Longitude:        park.Longitude,
		DistanceMiles:    &dist,
		AvailableDates:   availability.Union(sites),
		SiteAvailability: sites,
		Description:      park.Description,
		ReservationURL:   url,
		CampsiteType:     dominantType(sites),
	}
}

// dominantType is the site type shared by the most sites, ties broken
// alphabetically.
func dominantType(sites []models.SiteAvailability) string {
	counts := map[string]int{}
	for _, s := range sites {
		if s.SiteType != "" {
			counts[s.SiteType]++
		}
	}
	types := make([]string, 0, len(counts))
	for t := range counts {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool {
		if counts[types[i]] != counts[types[j]] {
			return counts[types[i]] > counts[types[j]]
		}
		return types[i] < types[j]
	})
	if len(types) == 0 {
		return ""
	}
	return types[0]
}
