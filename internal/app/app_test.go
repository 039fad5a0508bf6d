package app

import (
	"context"
	"testing"
	"time"

	"github.com/david/campsite-finder/internal/config"
	"github.com/david/campsite-finder/internal/models"
)

func TestOpen_FileCatalog(t *testing.T) {
	cfg := config.Config{
		DataDir:        t.TempDir(),
		CatalogBackend: config.CatalogFile,
		RequestTimeout: 5 * time.Second,
		CatalogMaxAge:  time.Hour,
		UserAgent:      "test",
	}
	a, err := Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer a.Close()

	for _, src := range models.Sources {
		if a.Clients[src] == nil || a.Clients[src].Source() != src {
			t.Fatalf("missing client for %s", src)
		}
	}
	st, err := a.Catalog.Status(context.Background())
	if err != nil || !st.Stale {
		t.Fatalf("an empty data dir must report a stale catalog, got %+v %v", st, err)
	}
	if _, err := a.Builder(nil); err != nil {
		t.Fatalf("Builder: %v", err)
	}

	families, err := a.Gatherer.Gather()
	if err != nil || len(families) == 0 {
		t.Fatalf("expected runtime metrics, got %d %v", len(families), err)
	}
}
