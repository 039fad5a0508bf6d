package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/david/campsite-finder/internal/geo"
	"github.com/david/campsite-finder/internal/models"
	"github.com/david/campsite-finder/internal/sources"
)

func ptr(f float64) *float64 { return &f }

func seedStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	backend := NewFileBackend(dir)
	ctx := context.Background()

	recgov := []models.CatalogPark{
		{ID: "1", Name: "Kirk Creek", Source: models.SourceRecreationGov, Latitude: ptr(35.99), Longitude: ptr(-121.49)},
		{ID: "2", Name: "Plaskett Creek", Source: models.SourceRecreationGov, Latitude: ptr(35.92), Longitude: ptr(-121.47)},
		{ID: "3", Name: "Nowhere Camp", Source: models.SourceRecreationGov},
		{ID: "4", Name: "Arroyo Seco", Source: models.SourceRecreationGov, Latitude: ptr(36.23), Longitude: ptr(-121.48)},
	}
	rca := []models.CatalogPark{
		{ID: "718", Name: "Pfeiffer Big Sur SP", Source: models.SourceReserveCalifornia, Latitude: ptr(36.25), Longitude: ptr(-121.78), Facilities: []models.CatalogFacility{{ID: "1001", Name: "Main"}}},
	}
	if err := backend.Save(ctx, models.SourceRecreationGov, recgov); err != nil {
		t.Fatalf("save recgov: %v", err)
	}
	if err := backend.Save(ctx, models.SourceReserveCalifornia, rca); err != nil {
		t.Fatalf("save rca: %v", err)
	}
	return NewStore(backend, 0), dir
}

func TestStore_NearSortedAndBounded(t *testing.T) {
	store, _ := seedStore(t)
	origin := geo.Point{Latitude: 36.2704, Longitude: -121.8081}

	got, err := store.Near(context.Background(), models.SourceRecreationGov, origin, 40)
	if err != nil {
		t.Fatalf("Near: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 parks with coordinates in radius, got %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].DistanceMiles < got[i-1].DistanceMiles {
			t.Fatalf("candidates not sorted by distance: %+v", got)
		}
	}
	for _, c := range got {
		if c.Park.ID == "3" {
			t.Fatal("park without coordinates must be excluded")
		}
		if c.DistanceMiles != geo.Round1(c.DistanceMiles) {
			t.Fatalf("distance not rounded: %v", c.DistanceMiles)
		}
	}

	none, err := store.Near(context.Background(), models.SourceRecreationGov, origin, 1)
	if err != nil || len(none) != 0 {
		t.Fatalf("expected no candidates in 1 mile, got %v %v", none, err)
	}
}

func TestStore_CachedUntilInvalidated(t *testing.T) {
	store, dir := seedStore(t)
	ctx := context.Background()

	parks, err := store.Parks(ctx, "creek")
	if err != nil {
		t.Fatalf("Parks: %v", err)
	}
	if len(parks) != 2 || parks[0].Name != "Kirk Creek" {
		t.Fatalf("unexpected filtered parks %+v", parks)
	}

	if err := os.Remove(filepath.Join(dir, "catalog_recgov.json")); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if all, _ := store.Parks(ctx, ""); len(all) != 5 {
		t.Fatalf("expected cached catalog of 5, got %d", len(all))
	}

	store.Invalidate()
	if all, _ := store.Parks(ctx, ""); len(all) != 1 {
		t.Fatalf("expected reload after invalidate, got %d", len(all))
	}
}

func TestStore_ParkAndFacilitiesSurviveFiles(t *testing.T) {
	store, _ := seedStore(t)
	ctx := context.Background()

	p, err := store.Park(ctx, models.SourceReserveCalifornia, "718")
	if err != nil {
		t.Fatalf("Park: %v", err)
	}
	if len(p.Facilities) != 1 {
		t.Fatalf("expected resolved facilities, got %+v", p.Facilities)
	}
	kirk, _ := store.Park(ctx, models.SourceRecreationGov, "1")
	if kirk.Facilities != nil {
		t.Fatalf("unresolved facilities must stay nil, got %+v", kirk.Facilities)
	}
	if _, err := store.Park(ctx, models.SourceRecreationGov, "718"); !errors.Is(err, ErrParkNotFound) {
		t.Fatalf("expected ErrParkNotFound, got %v", err)
	}
}

func TestStore_StatusStaleness(t *testing.T) {
	store, dir := seedStore(t)
	ctx := context.Background()

	st, err := store.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.Stale || st.Counts[models.SourceRecreationGov] != 4 || st.Counts[models.SourceReserveCalifornia] != 1 {
		t.Fatalf("unexpected fresh status %+v", st)
	}

	old := time.Now().Add(-15 * 24 * time.Hour)
	if err := os.Chtimes(filepath.Join(dir, "catalog_rca.json"), old, old); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	st, _ = store.Status(ctx)
	if !st.Stale {
		t.Fatal("a source older than the max age makes the catalog stale")
	}

	empty := NewStore(NewFileBackend(t.TempDir()), time.Hour)
	st, _ = empty.Status(ctx)
	if !st.Stale || st.BuiltAt != nil {
		t.Fatalf("missing catalog files must be stale, got %+v", st)
	}
}

func TestChildrenCache_TTL(t *testing.T) {
	c := NewChildrenCache(time.Hour, nil)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	loads := 0
	load := func(_ context.Context, id string) (models.ParkChildren, error) {
		loads++
		return models.ParkChildren{ParkID: id}, nil
	}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := c.GetOrLoad(ctx, models.SourceRecreationGov, "232447", load); err != nil {
			t.Fatalf("GetOrLoad: %v", err)
		}
	}
	if loads != 1 {
		t.Fatalf("expected one load while fresh, got %d", loads)
	}

	if _, ok := c.Get(models.SourceReserveCalifornia, "232447"); ok {
		t.Fatal("keys are scoped by source")
	}

	now = now.Add(61 * time.Minute)
	if _, ok := c.Get(models.SourceRecreationGov, "232447"); ok {
		t.Fatal("expired entry must miss")
	}
	_, _ = c.GetOrLoad(ctx, models.SourceRecreationGov, "232447", load)
	if loads != 2 {
		t.Fatalf("expected reload after expiry, got %d", loads)
	}

	failing := func(context.Context, string) (models.ParkChildren, error) {
		return models.ParkChildren{}, errors.New("boom")
	}
	if _, err := c.GetOrLoad(ctx, models.SourceReserveCalifornia, "9", failing); err == nil {
		t.Fatal("expected loader error")
	}
	if _, ok := c.Get(models.SourceReserveCalifornia, "9"); ok {
		t.Fatal("failed loads must not be cached")
	}
}

func TestBuilder_CrawlsBothSources(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/search", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("fq") != "entity_type:campground" {
			t.Errorf("unexpected fq %q", r.URL.Query().Get("fq"))
		}
		if r.URL.Query().Get("start") != "0" {
			_, _ = w.Write([]byte(`{"results":[]}`))
			return
		}
		_, _ = w.Write([]byte(`{"results":[
			{"entity_id":"2","name":"Zeta Camp","latitude":"36.1","longitude":"-121.1","description":"<p>Shady <b>sites</b></p><script>x()</script>"},
			{"entity_id":"1","name":"alpha camp","latitude":36.2,"longitude":-121.2},
			{"entity_id":"1","name":"alpha camp duplicate"},
			{"entity_id":"","name":"no id"}
		]}`))
	})
	mux.HandleFunc("/search/place", func(w http.ResponseWriter, r *http.Request) {
		var req sources.RCAPlaceRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.PlaceID == 0 {
			_, _ = w.Write([]byte(`{"NearbyPlaces":[{"PlaceId":718,"Name":"Big Sur","Latitude":36.25,"Longitude":-121.78},{"PlaceId":719,"Name":"Andrew Molera"}]}`))
			return
		}
		if req.PlaceID == 719 {
			_, _ = w.Write([]byte(`{"SelectedPlace":{"PlaceId":719,"Facilities":{}}}`))
			return
		}
		_, _ = w.Write([]byte(`{"SelectedPlace":{"PlaceId":718,"Facilities":{"1001":{"FacilityId":1001,"Name":"Main"}}}}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	reg, err := sources.LoadRegistry("")
	if err != nil {
		t.Fatalf("LoadRegistry: %v", err)
	}
	recgov, _ := reg.Source(models.SourceRecreationGov)
	rca, _ := reg.Source(models.SourceReserveCalifornia)
	recgov.BaseURL, rca.BaseURL = srv.URL, srv.URL

	var rcaSteps [][2]int
	b := NewBuilder(BuilderConfig{
		RecGov:        recgov,
		ReserveCA:     rca,
		RecGovGrid:    []GridPoint{{36, -121}, {37, -122}},
		ReserveCAGrid: []GridPoint{{36, -121}},
		PageSize:      4,
		MaxPerPoint:   8,
		Delay:         time.Millisecond,
		Progress: func(src models.Source, done, total int) {
			if src == models.SourceReserveCalifornia {
				rcaSteps = append(rcaSteps, [2]int{done, total})
			}
		},
	})

	store := NewStore(NewFileBackend(t.TempDir()), 0)
	counts, err := b.BuildAll(context.Background(), store)
	if err != nil {
		t.Fatalf("BuildAll: %v", err)
	}
	if counts[models.SourceRecreationGov] != 2 || counts[models.SourceReserveCalifornia] != 2 {
		t.Fatalf("unexpected counts %v", counts)
	}
	// one grid point, then one facility lookup per park
	want := [][2]int{{1, 1}, {1, 2}, {2, 2}}
	if fmt.Sprint(rcaSteps) != fmt.Sprint(want) {
		t.Fatalf("ReserveCA progress = %v, want %v", rcaSteps, want)
	}

	parks, _ := store.Parks(context.Background(), "")
	if parks[0].Name != "alpha camp" {
		t.Fatalf("expected case-insensitive name order, got %q first", parks[0].Name)
	}
	zeta, err := store.Park(context.Background(), models.SourceRecreationGov, "2")
	if err != nil {
		t.Fatalf("Park: %v", err)
	}
	if zeta.Description != "Shady sites" || zeta.Latitude == nil || *zeta.Latitude != 36.1 {
		t.Fatalf("unexpected crawled park %+v", zeta)
	}
	if !strings.HasSuffix(zeta.ReservationURL, "/camping/campgrounds/2") {
		t.Fatalf("unexpected reservation url %q", zeta.ReservationURL)
	}

	bigSur, _ := store.Park(context.Background(), models.SourceReserveCalifornia, "718")
	if len(bigSur.Facilities) != 1 || bigSur.Facilities[0].ID != "1001" {
		t.Fatalf("expected resolved facilities, got %+v", bigSur.Facilities)
	}
	molera, _ := store.Park(context.Background(), models.SourceReserveCalifornia, "719")
	if molera.Facilities == nil || len(molera.Facilities) != 0 {
		t.Fatalf("resolved-but-empty facilities must stay an empty list, got %#v", molera.Facilities)
	}
}

func TestCleanDescription_Caps(t *testing.T) {
	b := NewBuilder(BuilderConfig{})
	long := "<div>" + strings.Repeat("a ", 400) + "</div>"
	if got := b.CleanDescription(long); len([]rune(got)) != maxDescriptionLen {
		t.Fatalf("expected %d runes, got %d", maxDescriptionLen, len([]rune(got)))
	}
	if b.CleanDescription("   ") != "" {
		t.Fatal("blank description must stay empty")
	}
}
