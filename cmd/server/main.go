package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/david/campsite-finder/internal/api"
	"github.com/david/campsite-finder/internal/app"
	"github.com/david/campsite-finder/internal/auth"
	"github.com/david/campsite-finder/internal/catalog"
	"github.com/david/campsite-finder/internal/config"
	"github.com/david/campsite-finder/internal/geo"
	"github.com/david/campsite-finder/internal/search"
	"github.com/david/campsite-finder/internal/stream"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("Startup failed: %v", err)
	}
	defer a.Close()

	if st, err := a.Catalog.Status(ctx); err != nil {
		log.Printf("Catalog status unavailable: %v", err)
	} else if st.Stale {
		log.Printf("Catalog is stale or missing (%v); run build_catalog or POST /api/admin/catalog/rebuild", st.Counts)
	}

	authSvc, err := auth.NewService(cfg.AdminSecret)
	if err != nil {
		log.Fatalf("Auth setup failed: %v", err)
	}
	builder, err := a.Builder(nil)
	if err != nil {
		log.Fatalf("Catalog builder setup failed: %v", err)
	}

	orch := search.NewOrchestrator(a.Catalog, a.Metrics, cfg.BatchDelay)
	look := search.NewLookahead(a.Catalog, a.Metrics)
	srv := api.NewServer(api.Deps{
		Catalog:     a.Catalog,
		Children:    catalog.NewChildrenCache(cfg.ChildrenTTL, a.Metrics),
		Clients:     a.Clients,
		Emitter:     stream.NewEmitter(a.Clients, orch, look),
		Geocoder:    geo.NewGeocoder(cfg.NominatimURL, cfg.UserAgent, cfg.RequestTimeout),
		Builder:     builder,
		Auth:        authSvc,
		Gatherer:    a.Gatherer,
		CORSOrigins: cfg.CORSOrigins,
	})

	go func() {
		log.Printf("Server starting on port %s...", cfg.Port)
		if err := srv.Start(cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}
