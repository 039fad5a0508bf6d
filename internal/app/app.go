// Package app wires configuration into the catalog, source clients and
// metrics shared by the binaries.
package app

import (
	"context"
	"fmt"
	"log"
	"path/filepath"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/david/campsite-finder/internal/catalog"
	"github.com/david/campsite-finder/internal/config"
	"github.com/david/campsite-finder/internal/db"
	"github.com/david/campsite-finder/internal/metrics"
	"github.com/david/campsite-finder/internal/models"
	"github.com/david/campsite-finder/internal/sources"
)

type App struct {
	Config   config.Config
	Registry *sources.Registry
	Catalog  *catalog.Store
	Clients  map[models.Source]sources.Client
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer

	pool *pgxpool.Pool
}

// Open builds the catalog backend selected by cfg, the source clients and a
// private metrics registry.
func Open(ctx context.Context, cfg config.Config) (*App, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(reg)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	a := &App{Config: cfg, Metrics: m, Gatherer: reg}

	var backend catalog.Backend
	switch cfg.CatalogBackend {
	case config.CatalogPostgres:
		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect catalog database: %w", err)
		}
		if err := db.ApplyMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrate catalog database: %w", err)
		}
		a.pool = pool
		backend = db.NewCatalogStore(pool)
		log.Printf("[App] Catalog backend: postgres")
	default:
		dir, _ := filepath.Abs(cfg.DataDir)
		backend = catalog.NewFileBackend(cfg.DataDir)
		log.Printf("[App] Catalog backend: files in %s", dir)
	}
	a.Catalog = catalog.NewStore(backend, cfg.CatalogMaxAge)

	a.Registry, err = sources.LoadRegistry(cfg.SourcesFile)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("load sources registry: %w", err)
	}
	a.Clients, err = sources.NewClients(a.Registry, sources.Options{
		Catalog: a.Catalog,
		Timeout: cfg.RequestTimeout,
		Metrics: m,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// Builder returns a catalog builder over the registry's endpoints.
func (a *App) Builder(progress func(src models.Source, done, total int)) (*catalog.Builder, error) {
	recgov, err := a.Registry.Source(models.SourceRecreationGov)
	if err != nil {
		return nil, err
	}
	rca, err := a.Registry.Source(models.SourceReserveCalifornia)
	if err != nil {
		return nil, err
	}
	return catalog.NewBuilder(catalog.BuilderConfig{
		RecGov:    recgov,
		ReserveCA: rca,
		UserAgent: a.Config.UserAgent,
		Progress:  progress,
	}), nil
}

func (a *App) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
}
