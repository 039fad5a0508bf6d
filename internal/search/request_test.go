package search

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/david/campsite-finder/internal/models"
)

func TestRequest_DefaultsAndSources(t *testing.T) {
	var r Request
	body := `{"location":"Big Sur","startDate":"2024-06-01","endDate":"2024-06-03","excludeBoatIn":true,"includeTent":true}`
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if err := r.Normalize(); err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if r.RadiusMiles != DefaultRadiusMiles || r.NumPeople != 1 {
		t.Fatalf("defaults not applied: %+v", r)
	}
	if srcs := r.Sources(); len(srcs) != 1 || srcs[0] != models.SourceRecreationGov {
		t.Fatalf("Recreation.gov is on by default, got %v", srcs)
	}
	f := r.Filter()
	if f.Allows(models.CategoryBoatIn) || f.Allows(models.CategoryRV) || !f.Allows(models.CategoryTent) {
		t.Fatalf("unexpected filter %+v", f)
	}

	off := false
	r.SearchRecreationGov = &off
	r.SearchReserveCalifornia = true
	if srcs := r.Sources(); len(srcs) != 1 || srcs[0] != models.SourceReserveCalifornia {
		t.Fatalf("unexpected sources %v", srcs)
	}
}

func TestRequest_Invalid(t *testing.T) {
	lat := 36.2
	tests := []struct {
		name string
		req  Request
	}{
		{"no location", Request{StartDate: models.NewDate(2024, 6, 1), EndDate: models.NewDate(2024, 6, 2)}},
		{"half coordinates", Request{Location: "x", Latitude: &lat, StartDate: models.NewDate(2024, 6, 1), EndDate: models.NewDate(2024, 6, 2)}},
		{"missing dates", Request{Location: "x"}},
		{"end before start", Request{Location: "x", StartDate: models.NewDate(2024, 6, 2), EndDate: models.NewDate(2024, 6, 2)}},
		{"negative party", Request{Location: "x", NumPeople: -2, StartDate: models.NewDate(2024, 6, 1), EndDate: models.NewDate(2024, 6, 2)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.req.Normalize(); !errors.Is(err, ErrInvalidRequest) {
				t.Fatalf("expected ErrInvalidRequest, got %v", err)
			}
		})
	}

	var r Request
	if err := json.Unmarshal([]byte(`{"location":"x","startDate":"06/01/2024"}`), &r); err == nil {
		t.Fatal("malformed dates must fail decoding")
	}
}
