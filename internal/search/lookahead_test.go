package search

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/david/campsite-finder/internal/models"
	"github.com/david/campsite-finder/internal/sources"
)

func newTestLookahead(cands []models.Candidate) *Lookahead {
	l := NewLookahead(fakeCatalog{candidates: cands}, nil)
	l.today = func() models.Date { return models.NewDate(2024, 6, 15) }
	return l
}

// byMonth serves open dates keyed by "YYYY-MM".
func byMonth(dates map[string][]string) func(models.Candidate, models.Date, sources.CheckOptions) sources.Fetch {
	return func(_ models.Candidate, m models.Date, _ sources.CheckOptions) sources.Fetch {
		return sources.Fetch{Entries: open("Loop A — 005", models.CategoryTent, dates[m.Format("2006-01")]...)}
	}
}

func TestLookahead_StopsAtFirstHit(t *testing.T) {
	client := &fakeClient{src: models.SourceRecreationGov, check: byMonth(map[string][]string{
		"2024-06": {"2024-06-10"}, // before today
		"2024-07": {"2024-07-06", "2024-07-08"},
		"2024-08": {"2024-08-01"},
	})}

	rec := &recorder{}
	newTestLookahead(candidates(1)).Run(context.Background(), client, LookaheadParams{ParkID: "1", Months: 6}, rec.emit)

	found := rec.of(EventFound)
	if len(found) != 1 {
		t.Fatalf("expected one hit, got %d", len(found))
	}
	hit := found[0].Data.(Found)
	if hit.Month != "2024-07" || len(hit.AvailableDates) != 2 {
		t.Fatalf("unexpected hit %+v", hit)
	}
	if client.callCount() != 2 {
		t.Fatalf("expected the scan to stop at July, got %d checks", client.callCount())
	}
	if n := len(rec.of(EventStatus)); n != 2 {
		t.Fatalf("expected one status per scanned month, got %d", n)
	}
}

func TestLookahead_WeekdayFilterAndAllMonths(t *testing.T) {
	client := &fakeClient{src: models.SourceRecreationGov, check: byMonth(map[string][]string{
		"2024-07": {"2024-07-06"},               // Saturday
		"2024-08": {"2024-08-05", "2024-08-10"}, // Monday, Saturday
		"2024-09": {"2024-09-02"},               // Monday
	})}

	rec := &recorder{}
	p := LookaheadParams{ParkID: "1", Months: 4, SearchAllMonths: true, FilterDays: []int{0}}
	newTestLookahead(candidates(1)).Run(context.Background(), client, p, rec.emit)

	found := rec.of(EventFound)
	if len(found) != 2 {
		t.Fatalf("expected Monday hits in August and September, got %d", len(found))
	}
	aug := found[0].Data.(Found)
	if aug.Month != "2024-08" || len(aug.AvailableDates) != 1 || aug.AvailableDates[0].String() != "2024-08-05" {
		t.Fatalf("unexpected August hit %+v", aug)
	}
	if client.callCount() != 4 {
		t.Fatalf("searchAllMonths scans every month, got %d checks", client.callCount())
	}
	if len(rec.of(EventNotFound)) != 0 {
		t.Fatal("not_found must not follow a hit")
	}
}

func TestLookahead_SiteNamesAndNotFound(t *testing.T) {
	client := &fakeClient{src: models.SourceRecreationGov, check: byMonth(map[string][]string{
		"2024-07": {"2024-07-06"},
	})}

	rec := &recorder{}
	p := LookaheadParams{ParkID: "1", Months: 3, SiteNames: []string{"Loop B — 010"}}
	newTestLookahead(candidates(1)).Run(context.Background(), client, p, rec.emit)

	if len(rec.of(EventFound)) != 0 || len(rec.of(EventNotFound)) != 1 {
		t.Fatalf("expected only not_found, got %+v", rec.events)
	}
}

func TestLookahead_UnitNameMatchesFacilityPrefixedSite(t *testing.T) {
	client := &fakeClient{src: models.SourceReserveCalifornia, check: func(models.Candidate, models.Date, sources.CheckOptions) sources.Fetch {
		entries := open("Moro Campground — Site 12", models.CategoryTent, "2024-07-06")
		entries = append(entries, open("Hike-In — Site 3", models.CategoryBackpacking, "2024-07-07")...)
		return sources.Fetch{Entries: entries}
	}}

	rec := &recorder{}
	p := LookaheadParams{ParkID: "1", Months: 2, SiteNames: []string{"Site 12"}}
	newTestLookahead(candidates(1)).Run(context.Background(), client, p, rec.emit)

	found := rec.of(EventFound)
	if len(found) != 1 {
		t.Fatalf("expected a hit for the bare unit name, got %+v", rec.events)
	}
	sites := found[0].Data.(Found).SiteAvailability
	if len(sites) != 1 || sites[0].SiteName != "Moro Campground — Site 12" {
		t.Fatalf("unexpected sites %+v", sites)
	}
}

func TestLookahead_Errors(t *testing.T) {
	tests := []struct {
		name   string
		parkID string
		fetch  sources.Fetch
		checks int
	}{
		{"unknown park", "999", sources.Fetch{}, 0},
		{"rate limited", "1", sources.Fetch{Err: fmt.Errorf("grid: %w", sources.ErrRateLimited)}, 1},
		{"missing facility", "1", sources.Fetch{Err: fmt.Errorf("%w: 9", sources.ErrFacilityNotFound)}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeClient{src: models.SourceReserveCalifornia, check: func(models.Candidate, models.Date, sources.CheckOptions) sources.Fetch {
				return tt.fetch
			}}
			rec := &recorder{}
			newTestLookahead(candidates(1)).Run(context.Background(), client, LookaheadParams{ParkID: tt.parkID, Months: 6, FacilityID: "9"}, rec.emit)

			if len(rec.of(EventError)) != 1 {
				t.Fatalf("expected one error event, got %+v", rec.events)
			}
			if client.callCount() != tt.checks {
				t.Fatalf("expected %d checks, got %d", tt.checks, client.callCount())
			}
			if len(rec.of(EventNotFound)) != 0 {
				t.Fatal("errors end the scan without not_found")
			}
		})
	}
}

func TestLookaheadRequest_Normalize(t *testing.T) {
	r := LookaheadRequest{ParkID: " 232447 ", Source: "recreation_gov"}
	if err := r.Normalize(); err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if r.ParkID != "232447" || r.LookaheadMonths != DefaultLookaheadMonths {
		t.Fatalf("defaults not applied: %+v", r)
	}

	r = LookaheadRequest{ParkID: "1", Source: "reserve_california", LookaheadMonths: 60}
	_ = r.Normalize()
	if r.LookaheadMonths != MaxLookaheadMonths {
		t.Fatalf("expected clamp to %d, got %d", MaxLookaheadMonths, r.LookaheadMonths)
	}

	bad := []LookaheadRequest{
		{Source: "recreation_gov"},
		{ParkID: "1", Source: "koa"},
		{ParkID: "1", Source: "recreation_gov", FilterDays: []int{7}},
		{ParkID: "1", Source: "recreation_gov", LookaheadMonths: -1},
	}
	for _, b := range bad {
		if err := b.Normalize(); !errors.Is(err, ErrInvalidRequest) {
			t.Fatalf("expected ErrInvalidRequest for %+v, got %v", b, err)
		}
	}
	unknown := LookaheadRequest{ParkID: "1", Source: "koa"}
	if err := unknown.Normalize(); !errors.Is(err, models.ErrUnknownSource) {
		t.Fatalf("unknown source must stay recognizable, got %v", err)
	}
}
