package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/david/campsite-finder/internal/models"
)

// Backend persists the catalog for each source.
type Backend interface {
	// Load returns every stored park. A source never built contributes nothing.
	Load(ctx context.Context) ([]models.CatalogPark, error)
	// Save replaces the stored parks of one source.
	Save(ctx context.Context, src models.Source, parks []models.CatalogPark) error
	// BuiltAt reports when each stored source was last written. Sources
	// never built are absent.
	BuiltAt(ctx context.Context) (map[models.Source]time.Time, error)
}

var fileNames = map[models.Source]string{
	models.SourceRecreationGov:     "catalog_recgov.json",
	models.SourceReserveCalifornia: "catalog_rca.json",
}

// FileBackend stores one JSON document per source in a data directory.
// Build time is the file modification time.
type FileBackend struct {
	dir string
}

func NewFileBackend(dir string) *FileBackend {
	return &FileBackend{dir: dir}
}

func (b *FileBackend) path(src models.Source) string {
	return filepath.Join(b.dir, fileNames[src])
}

func (b *FileBackend) Load(_ context.Context) ([]models.CatalogPark, error) {
	var parks []models.CatalogPark
	for _, src := range models.Sources {
		data, err := os.ReadFile(b.path(src))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read %s catalog: %w", src, err)
		}
		var batch []models.CatalogPark
		if err := json.Unmarshal(data, &batch); err != nil {
			return nil, fmt.Errorf("decode %s catalog: %w", src, err)
		}
		for i := range batch {
			if batch[i].Source == "" {
				batch[i].Source = src
			}
		}
		parks = append(parks, batch...)
	}
	return parks, nil
}

func (b *FileBackend) Save(_ context.Context, src models.Source, parks []models.CatalogPark) error {
	if _, ok := fileNames[src]; !ok {
		return fmt.Errorf("%w: %q", models.ErrUnknownSource, src)
	}
	if parks == nil {
		parks = []models.CatalogPark{}
	}
	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	data, err := json.MarshalIndent(parks, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s catalog: %w", src, err)
	}

	tmp, err := os.CreateTemp(b.dir, fileNames[src]+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp catalog: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp catalog: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp catalog: %w", err)
	}
	return os.Rename(tmp.Name(), b.path(src))
}

func (b *FileBackend) BuiltAt(_ context.Context) (map[models.Source]time.Time, error) {
	out := map[models.Source]time.Time{}
	for _, src := range models.Sources {
		info, err := os.Stat(b.path(src))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[src] = info.ModTime()
	}
	return out, nil
}
