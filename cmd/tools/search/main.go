package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/david/campsite-finder/internal/app"
	"github.com/david/campsite-finder/internal/config"
	"github.com/david/campsite-finder/internal/geo"
	"github.com/david/campsite-finder/internal/models"
	"github.com/david/campsite-finder/internal/search"
	"github.com/david/campsite-finder/internal/stream"
)

// tableSink narrates progress on stderr and collects results for the final
// table.
type tableSink struct {
	results []models.Campsite
	found   []search.Found
}

func (s *tableSink) Send(e search.Event) error {
	switch e.Type {
	case search.EventResult:
		s.results = append(s.results, e.Data.(models.Campsite))
	case search.EventFound:
		s.found = append(s.found, e.Data.(search.Found))
	case search.EventStatus, search.EventNotFound:
		fmt.Fprintln(os.Stderr, e.Data.(search.Message).Message)
	case search.EventError:
		fmt.Fprintln(os.Stderr, text.FgRed.Sprint("error: "+e.Data.(search.Message).Message))
	case search.EventProgress:
		p := e.Data.(search.Progress)
		fmt.Fprintf(os.Stderr, "  %s: checked %d/%d, found %d\n", p.Source, p.Checked, p.Total, p.Found)
	}
	return nil
}

func main() {
	location := flag.String("location", "", "Place name to search around")
	lat := flag.Float64("lat", 0, "Latitude (with -lon, skips geocoding)")
	lon := flag.Float64("lon", 0, "Longitude")
	radius := flag.Float64("radius", search.DefaultRadiusMiles, "Radius in miles")
	start := flag.String("start", "", "First night, YYYY-MM-DD")
	end := flag.String("end", "", "Checkout date, YYYY-MM-DD (exclusive)")
	people := flag.Int("people", 1, "Party size")
	recgov := flag.Bool("recgov", true, "Search Recreation.gov")
	rca := flag.Bool("rca", false, "Search ReserveCalifornia")
	exclude := flag.String("exclude", "", "Comma list of boat_in,equestrian,day_use")
	include := flag.String("include", "", "Comma list of tent,rv,backpacking,lodging")
	park := flag.String("park", "", "Lookahead mode: park id to scan for the next opening")
	source := flag.String("source", string(models.SourceRecreationGov), "Lookahead source")
	months := flag.Int("months", search.DefaultLookaheadMonths, "Lookahead months")
	days := flag.String("days", "", "Lookahead weekdays, comma list of 0 (Mon) to 6 (Sun)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a, err := app.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("Startup failed: %v", err)
	}
	defer a.Close()

	emitter := stream.NewEmitter(a.Clients,
		search.NewOrchestrator(a.Catalog, a.Metrics, cfg.BatchDelay),
		search.NewLookahead(a.Catalog, a.Metrics))
	sink := &tableSink{}

	if *park != "" {
		req := search.LookaheadRequest{
			ParkID:          *park,
			Source:          models.Source(*source),
			LookaheadMonths: *months,
			FilterDays:      parseDays(*days),
		}
		if err := req.Normalize(); err != nil {
			log.Fatal(err)
		}
		if err := emitter.RunLookahead(ctx, req, sink); err != nil {
			log.Fatal(err)
		}
		renderFound(sink.found)
		return
	}

	req := search.Request{
		Location:                *location,
		RadiusMiles:             *radius,
		NumPeople:               *people,
		SearchRecreationGov:     recgov,
		SearchReserveCalifornia: *rca,
	}
	if req.StartDate, err = models.ParseDate(*start); err != nil {
		log.Fatalf("bad -start: %v", err)
	}
	if req.EndDate, err = models.ParseDate(*end); err != nil {
		log.Fatalf("bad -end: %v", err)
	}
	if *lat != 0 || *lon != 0 {
		req.Latitude, req.Longitude = lat, lon
	}
	applyCategories(&req, *exclude, *include)
	if err := req.Normalize(); err != nil {
		log.Fatal(err)
	}

	center := search.Center{Location: req.Location}
	if req.HasCoordinates() {
		center.Lat, center.Lon = *req.Latitude, *req.Longitude
	} else {
		p, err := geo.NewGeocoder(cfg.NominatimURL, cfg.UserAgent, cfg.RequestTimeout).Geocode(ctx, req.Location)
		if err != nil {
			log.Fatal(err)
		}
		center.Lat, center.Lon = p.Latitude, p.Longitude
	}

	if err := emitter.RunSearch(ctx, req, center, sink); err != nil {
		log.Fatal(err)
	}
	renderResults(sink.results)
}

func applyCategories(req *search.Request, exclude, include string) {
	for _, c := range splitCSV(exclude) {
		switch models.Category(c) {
		case models.CategoryBoatIn:
			req.ExcludeBoatIn = true
		case models.CategoryEquestrian:
			req.ExcludeEquestrian = true
		case models.CategoryDayUse:
			req.ExcludeDayUse = true
		default:
			log.Fatalf("cannot exclude %q", c)
		}
	}
	for _, c := range splitCSV(include) {
		switch models.Category(c) {
		case models.CategoryTent:
			req.IncludeTent = true
		case models.CategoryRV:
			req.IncludeRv = true
		case models.CategoryBackpacking:
			req.IncludeBackpacking = true
		case models.CategoryLodging:
			req.IncludeLodging = true
		default:
			log.Fatalf("cannot include %q", c)
		}
	}
}

func parseDays(s string) []int {
	var out []int
	for _, part := range splitCSV(s) {
		d, err := strconv.Atoi(part)
		if err != nil {
			log.Fatalf("bad weekday %q", part)
		}
		out = append(out, d)
	}
	return out
}

func splitCSV(s string) []string {
	var result []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			result = append(result, part)
		}
	}
	return result
}

func renderResults(results []models.Campsite) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Campground", "Source", "Miles", "Sites", "Dates", "Book"})
	for _, c := range results {
		miles := ""
		if c.DistanceMiles != nil {
			miles = strconv.FormatFloat(*c.DistanceMiles, 'f', 1, 64)
		}
		t.AppendRow(table.Row{c.Name, c.Source.Label(), miles, len(c.SiteAvailability), joinDates(c.AvailableDates, 6), c.ReservationURL})
	}
	t.AppendFooter(table.Row{"", "", "", "", fmt.Sprintf("%d campgrounds", len(results))})
	t.Render()
}

func renderFound(found []search.Found) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Month", "Site", "Type", "Dates"})
	for _, f := range found {
		for _, s := range f.SiteAvailability {
			t.AppendRow(table.Row{f.Month, s.SiteName, s.SiteType, joinDates(s.AvailableDates, 8)})
		}
	}
	t.Render()
}

func joinDates(dates []models.Date, limit int) string {
	parts := make([]string, 0, min(len(dates), limit))
	for i, d := range dates {
		if i == limit {
			parts = append(parts, fmt.Sprintf("+%d more", len(dates)-limit))
			break
		}
		parts = append(parts, d.Format("Jan 2"))
	}
	return strings.Join(parts, ", ")
}
