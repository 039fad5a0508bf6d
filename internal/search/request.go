package search

import (
	"errors"
	"fmt"
	"strings"

	"github.com/david/campsite-finder/internal/classify"
	"github.com/david/campsite-finder/internal/geo"
	"github.com/david/campsite-finder/internal/models"
)

const (
	DefaultRadiusMiles     = 100.0
	DefaultLookaheadMonths = 6
	MaxLookaheadMonths     = 24
)

// ErrInvalidRequest wraps every request validation failure.
var ErrInvalidRequest = errors.New("invalid request")

// Request is the wire shape of a range search.
type Request struct {
	Location    string      `json:"location"`
	Latitude    *float64    `json:"latitude,omitempty"`
	Longitude   *float64    `json:"longitude,omitempty"`
	RadiusMiles float64     `json:"radiusMiles"`
	StartDate   models.Date `json:"startDate"`
	EndDate     models.Date `json:"endDate"`
	NumPeople   int         `json:"numPeople"`

	// SearchRecreationGov defaults to true when absent.
	SearchRecreationGov     *bool `json:"searchRecreationGov,omitempty"`
	SearchReserveCalifornia bool  `json:"searchReserveCalifornia"`

	ExcludeBoatIn      bool `json:"excludeBoatIn"`
	ExcludeEquestrian  bool `json:"excludeEquestrian"`
	ExcludeDayUse      bool `json:"excludeDayUse"`
	IncludeTent        bool `json:"includeTent"`
	IncludeRv          bool `json:"includeRv"`
	IncludeBackpacking bool `json:"includeBackpacking"`
	IncludeLodging     bool `json:"includeLodging"`
}

// Normalize fills defaults and validates the request.
func (r *Request) Normalize() error {
	r.Location = strings.TrimSpace(r.Location)
	if !r.HasCoordinates() && r.Location == "" {
		return fmt.Errorf("%w: location or latitude/longitude required", ErrInvalidRequest)
	}
	if (r.Latitude == nil) != (r.Longitude == nil) {
		return fmt.Errorf("%w: latitude and longitude go together", ErrInvalidRequest)
	}
	if r.RadiusMiles == 0 {
		r.RadiusMiles = DefaultRadiusMiles
	}
	if r.RadiusMiles < 0 {
		return fmt.Errorf("%w: radiusMiles must be positive", ErrInvalidRequest)
	}
	if r.NumPeople == 0 {
		r.NumPeople = 1
	}
	if r.NumPeople < 1 {
		return fmt.Errorf("%w: numPeople must be at least 1", ErrInvalidRequest)
	}
	if r.StartDate.IsZero() || r.EndDate.IsZero() {
		return fmt.Errorf("%w: startDate and endDate are required", ErrInvalidRequest)
	}
	if !r.EndDate.After(r.StartDate) {
		return fmt.Errorf("%w: endDate must be after startDate", ErrInvalidRequest)
	}
	return nil
}

func (r Request) HasCoordinates() bool {
	return r.Latitude != nil && r.Longitude != nil
}

// Sources lists the enabled backends in drain order.
func (r Request) Sources() []models.Source {
	var out []models.Source
	if r.SearchRecreationGov == nil || *r.SearchRecreationGov {
		out = append(out, models.SourceRecreationGov)
	}
	if r.SearchReserveCalifornia {
		out = append(out, models.SourceReserveCalifornia)
	}
	return out
}

func (r Request) Filter() classify.Filter {
	var include, exclude []models.Category
	flag := func(on bool, c models.Category, into *[]models.Category) {
		if on {
			*into = append(*into, c)
		}
	}
	flag(r.ExcludeBoatIn, models.CategoryBoatIn, &exclude)
	flag(r.ExcludeEquestrian, models.CategoryEquestrian, &exclude)
	flag(r.ExcludeDayUse, models.CategoryDayUse, &exclude)
	flag(r.IncludeTent, models.CategoryTent, &include)
	flag(r.IncludeRv, models.CategoryRV, &include)
	flag(r.IncludeBackpacking, models.CategoryBackpacking, &include)
	flag(r.IncludeLodging, models.CategoryLodging, &include)
	return classify.NewFilter(include, exclude)
}

// Params binds a normalized request to a resolved search center.
func (r Request) Params(center geo.Point) Params {
	return Params{
		Center:      center,
		RadiusMiles: r.RadiusMiles,
		Start:       r.StartDate,
		End:         r.EndDate,
		NumPeople:   r.NumPeople,
		Filter:      r.Filter(),
	}
}

// LookaheadRequest is the wire shape of a "next available" search.
type LookaheadRequest struct {
	ParkID          string        `json:"parkId"`
	Source          models.Source `json:"source"`
	FilterDays      []int         `json:"filterDays,omitempty"`
	LookaheadMonths int           `json:"lookaheadMonths"`
	SearchAllMonths bool          `json:"searchAllMonths"`
	FacilityID      string        `json:"facilityId,omitempty"`
	SiteNames       []string      `json:"siteNames,omitempty"`
}

func (r *LookaheadRequest) Normalize() error {
	r.ParkID = strings.TrimSpace(r.ParkID)
	if r.ParkID == "" {
		return fmt.Errorf("%w: parkId is required", ErrInvalidRequest)
	}
	src, err := models.ParseSource(string(r.Source))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	r.Source = src
	for _, d := range r.FilterDays {
		if d < 0 || d > 6 {
			return fmt.Errorf("%w: filterDays must be 0 (Monday) to 6 (Sunday), got %d", ErrInvalidRequest, d)
		}
	}
	switch {
	case r.LookaheadMonths == 0:
		r.LookaheadMonths = DefaultLookaheadMonths
	case r.LookaheadMonths < 0:
		return fmt.Errorf("%w: lookaheadMonths must be positive", ErrInvalidRequest)
	case r.LookaheadMonths > MaxLookaheadMonths:
		r.LookaheadMonths = MaxLookaheadMonths
	}
	return nil
}

func (r LookaheadRequest) Params() LookaheadParams {
	return LookaheadParams{
		ParkID:          r.ParkID,
		FilterDays:      r.FilterDays,
		Months:          r.LookaheadMonths,
		SearchAllMonths: r.SearchAllMonths,
		FacilityID:      r.FacilityID,
		SiteNames:       r.SiteNames,
	}
}
