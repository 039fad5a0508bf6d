package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/david/campsite-finder/internal/app"
	"github.com/david/campsite-finder/internal/config"
	"github.com/david/campsite-finder/internal/models"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	ctx := context.Background()
	a, err := app.Open(ctx, cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer a.Close()

	st, err := a.Catalog.Status(ctx)
	if err != nil {
		log.Fatal(err)
	}
	parks, err := a.Catalog.Parks(ctx, "")
	if err != nil {
		log.Fatal(err)
	}

	withCoords := map[models.Source]int{}
	resolved := map[models.Source]int{}
	for _, p := range parks {
		if p.HasCoordinates() {
			withCoords[p.Source]++
		}
		if p.Facilities != nil {
			resolved[p.Source]++
		}
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Source", "Parks", "With Coordinates", "Facilities Resolved"})
	for _, src := range models.Sources {
		t.AppendRow(table.Row{src.Label(), st.Counts[src], withCoords[src], resolved[src]})
	}

	built := "never"
	if st.BuiltAt != nil {
		built = st.BuiltAt.Format(time.RFC3339) + " (" + time.Since(*st.BuiltAt).Round(time.Hour).String() + " ago)"
	}
	t.AppendFooter(table.Row{"Built", built, "Stale", st.Stale})
	t.Render()
}
