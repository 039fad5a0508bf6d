package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/david/campsite-finder/internal/models"
)

// CatalogStore keeps the park catalog in Postgres. It satisfies
// catalog.Backend.
type CatalogStore struct {
	pool *pgxpool.Pool
}

func NewCatalogStore(pool *pgxpool.Pool) *CatalogStore {
	return &CatalogStore{pool: pool}
}

const parkCols = `source, id, name, latitude, longitude, description, reservation_url, facilities`

// encodeFacilities maps nil to SQL NULL and any slice, empty included, to a
// JSON array.
func encodeFacilities(f []models.CatalogFacility) (any, error) {
	if f == nil {
		return nil, nil
	}
	raw, err := json.Marshal(f)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

func decodeFacilities(raw []byte) ([]models.CatalogFacility, error) {
	if raw == nil {
		return nil, nil
	}
	out := []models.CatalogFacility{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []models.CatalogFacility{}
	}
	return out, nil
}

func (s *CatalogStore) Load(ctx context.Context) ([]models.CatalogPark, error) {
	rows, err := s.pool.Query(ctx, "SELECT "+parkCols+" FROM catalog_parks ORDER BY lower(name)")
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var parks []models.CatalogPark
	for rows.Next() {
		var p models.CatalogPark
		var src string
		var facilitiesRaw []byte
		if err := rows.Scan(&src, &p.ID, &p.Name, &p.Latitude, &p.Longitude, &p.Description, &p.ReservationURL, &facilitiesRaw); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		p.Source = models.Source(src)
		if p.Facilities, err = decodeFacilities(facilitiesRaw); err != nil {
			return nil, fmt.Errorf("decode facilities of %s/%s: %w", src, p.ID, err)
		}
		parks = append(parks, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}
	return parks, nil
}

// Save replaces every park of src and records the build time in one
// transaction.
func (s *CatalogStore) Save(ctx context.Context, src models.Source, parks []models.CatalogPark) error {
	rows := make([][]any, 0, len(parks))
	for _, p := range parks {
		fac, err := encodeFacilities(p.Facilities)
		if err != nil {
			return fmt.Errorf("encode facilities of %s: %w", p.ID, err)
		}
		rows = append(rows, []any{string(src), p.ID, p.Name, p.Latitude, p.Longitude, p.Description, p.ReservationURL, fac})
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "DELETE FROM catalog_parks WHERE source = $1", string(src)); err != nil {
			return fmt.Errorf("clear %s parks: %w", src, err)
		}
		if _, err := tx.CopyFrom(ctx,
			pgx.Identifier{"catalog_parks"},
			[]string{"source", "id", "name", "latitude", "longitude", "description", "reservation_url", "facilities"},
			pgx.CopyFromRows(rows),
		); err != nil {
			return fmt.Errorf("copy %s parks: %w", src, err)
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO catalog_builds (source, park_count, built_at)
			VALUES ($1, $2, NOW())
			ON CONFLICT (source) DO UPDATE SET park_count = EXCLUDED.park_count, built_at = EXCLUDED.built_at
		`, string(src), len(parks))
		return err
	})
}

func (s *CatalogStore) BuiltAt(ctx context.Context) (map[models.Source]time.Time, error) {
	rows, err := s.pool.Query(ctx, "SELECT source, built_at FROM catalog_builds")
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	out := map[models.Source]time.Time{}
	for rows.Next() {
		var src string
		var at time.Time
		if err := rows.Scan(&src, &at); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		out[models.Source(src)] = at
	}
	return out, rows.Err()
}
