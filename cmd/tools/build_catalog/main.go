package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"

	"github.com/david/campsite-finder/internal/app"
	"github.com/david/campsite-finder/internal/config"
	"github.com/david/campsite-finder/internal/models"
)

func main() {
	only := flag.String("source", "", "Rebuild only this source (recreation_gov or reserve_california)")
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

	builder, err := a.Builder(func(src models.Source, done, total int) {
		log.Printf("[Catalog] %s: %d/%d", src.Label(), done, total)
	})
	if err != nil {
		log.Fatalf("Builder setup failed: %v", err)
	}

	if *only == "" {
		counts, err := builder.BuildAll(ctx, a.Catalog)
		for src, n := range counts {
			log.Printf("Saved %d %s parks", n, src.Label())
		}
		if err != nil {
			log.Fatalf("Catalog build failed: %v", err)
		}
		return
	}

	src, err := models.ParseSource(*only)
	if err != nil {
		log.Fatal(err)
	}
	build := builder.BuildRecGov
	if src == models.SourceReserveCalifornia {
		build = builder.BuildReserveCA
	}
	parks, err := build(ctx)
	if err != nil {
		log.Fatalf("Catalog build failed: %v", err)
	}
	if len(parks) == 0 {
		log.Fatalf("%s crawl returned no parks; keeping the previous catalog", src.Label())
	}
	if err := a.Catalog.Replace(ctx, src, parks); err != nil {
		log.Fatalf("Save failed: %v", err)
	}
	log.Printf("Saved %d %s parks", len(parks), src.Label())
}
