package search

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/david/campsite-finder/internal/availability"
	"github.com/david/campsite-finder/internal/catalog"
	"github.com/david/campsite-finder/internal/metrics"
	"github.com/david/campsite-finder/internal/models"
	"github.com/david/campsite-finder/internal/sources"
)

// LookaheadParams describes a "next available" scan of one park.
type LookaheadParams struct {
	ParkID          string
	FilterDays      []int // 0=Monday..6=Sunday
	Months          int
	SearchAllMonths bool
	FacilityID      string
	SiteNames       []string
}

// ParkFinder resolves one catalog park.
type ParkFinder interface {
	Park(ctx context.Context, src models.Source, id string) (models.CatalogPark, error)
}

// Lookahead scans a single park month by month, starting with the current
// month, for the first (or every) month with an opening.
type Lookahead struct {
	catalog ParkFinder
	metrics *metrics.Metrics
	today   func() models.Date
}

func NewLookahead(catalog ParkFinder, m *metrics.Metrics) *Lookahead {
	return &Lookahead{catalog: catalog, metrics: m, today: models.Today}
}

func (l *Lookahead) Run(ctx context.Context, client sources.Client, p LookaheadParams, emit Emit) {
	src := client.Source()
	l.metrics.SearchStarted("lookahead", string(src))

	park, err := l.catalog.Park(ctx, src, p.ParkID)
	if err != nil {
		if errors.Is(err, catalog.ErrParkNotFound) {
			emit(ErrorEvent(fmt.Sprintf("Park %s not found in the %s catalog.", p.ParkID, src.Label())))
			return
		}
		log.Printf("[Search] lookahead park lookup %s/%s failed: %v", src, p.ParkID, err)
		emit(ErrorEvent(fmt.Sprintf("%s lookup failed: %v", src.Label(), err)))
		return
	}

	months := p.Months
	if months <= 0 {
		months = DefaultLookaheadMonths
	}
	months = min(months, MaxLookaheadMonths)

	today := l.today()
	first := today.FirstOfMonth()
	cand := models.Candidate{Park: park}
	opts := sources.CheckOptions{FacilityID: p.FacilityID}
	hits := 0

	for i := 0; i < months; i++ {
		if ctx.Err() != nil {
			return
		}
		month := first.AddMonths(i)
		emit(StatusEvent(fmt.Sprintf("Checking %s...", month.Format("January 2006"))))

		fetches := client.Check(ctx, cand, []models.Date{month}, opts)
		for _, f := range fetches {
			if errors.Is(f.Err, sources.ErrFacilityNotFound) {
				emit(ErrorEvent(fmt.Sprintf("Facility %s not found in %s.", p.FacilityID, park.Name)))
				return
			}
		}

		sites, limited := collectSites(l.metrics, src, fetches, availability.MonthWindow(month, today), nil)
		if limited {
			l.metrics.RateLimitAbort(string(src))
			emit(ErrorEvent(fmt.Sprintf("%s rate limit hit (429). Wait a minute and try again.", src.Label())))
			return
		}
		sites = availability.FilterSiteNames(availability.FilterWeekdays(sites, p.FilterDays), p.SiteNames)
		if len(sites) == 0 {
			continue
		}

		hits++
		l.metrics.ResultEmitted(string(src))
		emit(FoundEvent(Found{
			Month:            month.Format("2006-01"),
			AvailableDates:   availability.Union(sites),
			SiteAvailability: sites,
		}))
		if !p.SearchAllMonths {
			return
		}
	}

	if hits == 0 {
		emit(NotFoundEvent(fmt.Sprintf("No availability at %s in the next %d months.", park.Name, months)))
	}
}
