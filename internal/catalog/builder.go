package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"github.com/microcosm-cc/bluemonday"

	"github.com/david/campsite-finder/internal/models"
	"github.com/david/campsite-finder/internal/sources"
)

const maxDescriptionLen = 300

// GridPoint is one crawl origin.
type GridPoint struct {
	Lat, Lon float64
}

// Continental US coverage for the federal search API.
var RecGovGrid = []GridPoint{
	{47.6, -122.3}, {45.5, -122.7}, {37.8, -122.4}, {34.1, -118.2}, {32.7, -117.2},
	{33.4, -112.0}, {39.7, -105.0}, {40.8, -111.9}, {43.6, -116.2}, {45.8, -108.5},
	{44.9, -93.3}, {41.9, -87.6}, {42.3, -83.0}, {36.2, -86.8}, {33.7, -84.4},
	{25.8, -80.2}, {35.2, -80.8}, {38.9, -77.0}, {40.7, -74.0}, {42.4, -71.1},
	{32.8, -96.8}, {29.8, -95.4}, {39.1, -94.6}, {35.1, -106.6}, {61.2, -149.9},
	{46.9, -110.4}, {43.1, -75.2}, {37.5, -79.4}, {30.3, -89.3},
}

// California coverage for the state parks nearby-place search.
var ReserveCAGrid = []GridPoint{
	{37.8, -122.4}, {34.1, -118.2}, {38.6, -121.5}, {32.7, -117.2},
	{36.7, -119.8}, {40.8, -124.2}, {39.1, -120.0}, {36.6, -117.4},
}

// BuilderConfig tunes the catalog crawl.
type BuilderConfig struct {
	RecGov        sources.SourceConfig
	ReserveCA     sources.SourceConfig
	RecGovGrid    []GridPoint
	ReserveCAGrid []GridPoint
	PageSize      int           // Default: 50
	MaxPerPoint   int           // Default: 500
	Delay         time.Duration // between requests, default 300ms
	Timeout       time.Duration // per request, default 30s
	UserAgent     string
	// Progress, when set, is told about each finished crawl step. ReserveCA
	// reports its grid and facility phases separately, each from 1 to its own
	// total.
	Progress func(src models.Source, done, total int)
}

// Builder crawls the upstream search APIs into catalog parks.
type Builder struct {
	cfg       BuilderConfig
	collector *colly.Collector
	policy    *bluemonday.Policy
	today     func() models.Date
}

func NewBuilder(cfg BuilderConfig) *Builder {
	if cfg.RecGovGrid == nil {
		cfg.RecGovGrid = RecGovGrid
	}
	if cfg.ReserveCAGrid == nil {
		cfg.ReserveCAGrid = ReserveCAGrid
	}
	if cfg.PageSize == 0 {
		cfg.PageSize = 50
	}
	if cfg.MaxPerPoint == 0 {
		cfg.MaxPerPoint = 500
	}
	if cfg.Delay == 0 {
		cfg.Delay = 300 * time.Millisecond
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "campsite-finder/1.0"
	}

	c := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
	)
	_ = c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: 1,
		Delay:       cfg.Delay,
	})
	c.SetRequestTimeout(cfg.Timeout)

	return &Builder{cfg: cfg, collector: c, policy: bluemonday.UGCPolicy(), today: models.Today}
}

// fetch runs one synchronous request through a clone of the paced collector.
func (b *Builder) fetch(ctx context.Context, method, target string, body any) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c := b.collector.Clone()
	c.Context = ctx
	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "application/json")
		if r.Method == "POST" {
			r.Headers.Set("Content-Type", "application/json")
		}
	})

	var payload []byte
	var fetchErr error
	c.OnResponse(func(r *colly.Response) {
		payload = r.Body
	})
	c.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode == 429 {
			fetchErr = fmt.Errorf("%s: %w", target, sources.ErrRateLimited)
			return
		}
		status := 0
		if r != nil {
			status = r.StatusCode
		}
		fetchErr = fmt.Errorf("%s: status %d: %w", target, status, err)
	})

	var err error
	if method == "POST" {
		raw, mErr := json.Marshal(body)
		if mErr != nil {
			return nil, fmt.Errorf("encode request: %w", mErr)
		}
		err = c.PostRaw(target, raw)
	} else {
		err = c.Visit(target)
	}
	if fetchErr != nil {
		return nil, fetchErr
	}
	if err != nil {
		return nil, fmt.Errorf("visit failed: %w", err)
	}
	if payload == nil {
		return nil, fmt.Errorf("no response received for %s", target)
	}
	return payload, nil
}

// flexFloat accepts a JSON number, a numeric string or null.
type flexFloat struct {
	Value *float64
}

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	f.Value = &v
	return nil
}

type recGovSearchPage struct {
	Results []struct {
		EntityID    string    `json:"entity_id"`
		Name        string    `json:"name"`
		Latitude    flexFloat `json:"latitude"`
		Longitude   flexFloat `json:"longitude"`
		Description string    `json:"description"`
	} `json:"results"`
}

// BuildRecGov crawls paged campground searches around each grid point.
func (b *Builder) BuildRecGov(ctx context.Context) ([]models.CatalogPark, error) {
	seen := map[string]bool{}
	var parks []models.CatalogPark

	for i, pt := range b.cfg.RecGovGrid {
		for start := 0; start < b.cfg.MaxPerPoint; start += b.cfg.PageSize {
			q := url.Values{}
			q.Set("fq", "entity_type:campground")
			q.Set("lat", strconv.FormatFloat(pt.Lat, 'f', -1, 64))
			q.Set("lng", strconv.FormatFloat(pt.Lon, 'f', -1, 64))
			q.Set("size", strconv.Itoa(b.cfg.PageSize))
			q.Set("start", strconv.Itoa(start))

			raw, err := b.fetch(ctx, "GET", b.cfg.RecGov.BaseURL+b.cfg.RecGov.SearchPath+"?"+q.Encode(), nil)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				log.Printf("[Catalog] Error at RecGov grid point (%v, %v) offset %d: %v", pt.Lat, pt.Lon, start, err)
				break
			}
			var page recGovSearchPage
			if err := json.Unmarshal(raw, &page); err != nil {
				log.Printf("[Catalog] Bad RecGov search page at (%v, %v): %v", pt.Lat, pt.Lon, err)
				break
			}
			for _, r := range page.Results {
				if r.EntityID == "" || seen[r.EntityID] {
					continue
				}
				seen[r.EntityID] = true
				parks = append(parks, models.CatalogPark{
					ID:             r.EntityID,
					Name:           nameOr(r.Name),
					Source:         models.SourceRecreationGov,
					Latitude:       r.Latitude.Value,
					Longitude:      r.Longitude.Value,
					Description:    b.CleanDescription(r.Description),
					ReservationURL: b.cfg.RecGov.ParkURL(r.EntityID),
				})
			}
			if len(page.Results) < b.cfg.PageSize {
				break
			}
		}
		b.progress(models.SourceRecreationGov, i+1, len(b.cfg.RecGovGrid))
	}

	sortByName(parks)
	log.Printf("[Catalog] Recreation.gov: %d unique campgrounds", len(parks))
	return parks, nil
}

// BuildReserveCA collects nearby parks around each grid point, then resolves
// each park's facilities so searches can skip the discovery call.
func (b *Builder) BuildReserveCA(ctx context.Context) ([]models.CatalogPark, error) {
	seen := map[int]bool{}
	var parks []models.CatalogPark
	placeURL := b.cfg.ReserveCA.BaseURL + b.cfg.ReserveCA.PlacePath
	today := b.today()

	for i, pt := range b.cfg.ReserveCAGrid {
		raw, err := b.fetch(ctx, "POST", placeURL, sources.NewPlaceRequest(0, pt.Lat, pt.Lon, today))
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Printf("[Catalog] Error at ReserveCA grid point (%v, %v): %v", pt.Lat, pt.Lon, err)
			continue
		}
		var resp sources.RCAPlaceResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			log.Printf("[Catalog] Bad ReserveCA place response at (%v, %v): %v", pt.Lat, pt.Lon, err)
			continue
		}
		for _, np := range resp.NearbyPlaces {
			if np.PlaceID == 0 || seen[np.PlaceID] {
				continue
			}
			seen[np.PlaceID] = true
			id := strconv.Itoa(np.PlaceID)
			parks = append(parks, models.CatalogPark{
				ID:             id,
				Name:           nameOr(np.Name),
				Source:         models.SourceReserveCalifornia,
				Latitude:       np.Latitude,
				Longitude:      np.Longitude,
				Description:    b.CleanDescription(np.Description),
				ReservationURL: b.cfg.ReserveCA.ParkURL(id),
			})
		}
		b.progress(models.SourceReserveCalifornia, i+1, len(b.cfg.ReserveCAGrid))
	}

	log.Printf("[Catalog] Resolving facilities for %d ReserveCA parks", len(parks))
	for i := range parks {
		placeID, _ := strconv.Atoi(parks[i].ID)
		raw, err := b.fetch(ctx, "POST", placeURL, sources.NewPlaceRequest(placeID, 0, 0, today))
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Printf("[Catalog] Error fetching facilities for %s: %v", parks[i].Name, err)
			continue
		}
		var resp sources.RCAPlaceResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			log.Printf("[Catalog] Bad facilities response for %s: %v", parks[i].Name, err)
			continue
		}
		parks[i].Facilities = resp.Facilities()
		b.progress(models.SourceReserveCalifornia, i+1, len(parks))
	}

	sortByName(parks)
	log.Printf("[Catalog] ReserveCalifornia: %d unique parks", len(parks))
	return parks, nil
}

// BuildAll rebuilds every source and stores each one as it completes. A
// source that yields nothing keeps its previous catalog.
func (b *Builder) BuildAll(ctx context.Context, store *Store) (map[models.Source]int, error) {
	counts := map[models.Source]int{}
	builds := []struct {
		src   models.Source
		build func(context.Context) ([]models.CatalogPark, error)
	}{
		{models.SourceRecreationGov, b.BuildRecGov},
		{models.SourceReserveCalifornia, b.BuildReserveCA},
	}

	var errs []error
	for _, step := range builds {
		parks, err := step.build(ctx)
		if err != nil {
			return counts, fmt.Errorf("build %s catalog: %w", step.src, err)
		}
		if len(parks) == 0 {
			errs = append(errs, fmt.Errorf("%s crawl returned no parks", step.src))
			continue
		}
		if err := store.Replace(ctx, step.src, parks); err != nil {
			return counts, err
		}
		counts[step.src] = len(parks)
	}
	return counts, errors.Join(errs...)
}

// CleanDescription strips markup from an upstream description and caps it.
func (b *Builder) CleanDescription(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}
	safe := b.policy.Sanitize(raw)
	text := safe
	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(safe)); err == nil {
		text = doc.Text()
	}
	text = strings.Join(strings.Fields(text), " ")
	if r := []rune(text); len(r) > maxDescriptionLen {
		text = string(r[:maxDescriptionLen])
	}
	return text
}

func (b *Builder) progress(src models.Source, done, total int) {
	if b.cfg.Progress != nil {
		b.cfg.Progress(src, done, total)
	}
}

func nameOr(name string) string {
	if strings.TrimSpace(name) == "" {
		return "Unknown"
	}
	return strings.TrimSpace(name)
}

func sortByName(parks []models.CatalogPark) {
	sort.SliceStable(parks, func(i, j int) bool {
		return strings.ToLower(parks[i].Name) < strings.ToLower(parks[j].Name)
	})
}
