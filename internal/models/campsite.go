package models

import (
	"errors"
	"fmt"
	"strings"
)

// Source identifies one upstream booking backend.
type Source string

const (
	SourceRecreationGov     Source = "recreation_gov"
	SourceReserveCalifornia Source = "reserve_california"
)

// ErrUnknownSource is returned when a source tag is not one of the known backends.
var ErrUnknownSource = errors.New("unknown source")

// Sources lists every backend in the order a search drains them.
var Sources = []Source{SourceRecreationGov, SourceReserveCalifornia}

// ParseSource maps a wire tag to a Source.
func ParseSource(s string) (Source, error) {
	switch Source(strings.ToLower(strings.TrimSpace(s))) {
	case SourceRecreationGov:
		return SourceRecreationGov, nil
	case SourceReserveCalifornia:
		return SourceReserveCalifornia, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSource, s)
}

// Label is the human-readable backend name used in status messages.
func (s Source) Label() string {
	switch s {
	case SourceRecreationGov:
		return "Recreation.gov"
	case SourceReserveCalifornia:
		return "ReserveCalifornia"
	}
	return string(s)
}

// Category is the normalized site classification.
type Category string

const (
	CategoryTent        Category = "tent"
	CategoryRV          Category = "rv"
	CategoryBackpacking Category = "backpacking"
	CategoryLodging     Category = "lodging"
	CategoryBoatIn      Category = "boat_in"
	CategoryEquestrian  Category = "equestrian"
	CategoryDayUse      Category = "day_use"
)

// SiteAvailability lists the open dates of one display site.
type SiteAvailability struct {
	SiteName       string `json:"siteName"`
	SiteType       string `json:"siteType"`
	AvailableDates []Date `json:"availableDates"`
}

// Campsite is one qualifying facility in a search result.
type Campsite struct {
	Name             string             `json:"name"`
	FacilityID       string             `json:"facilityId"`
	Source           Source             `json:"source"`
	Latitude         *float64           `json:"latitude,omitempty"`
	Longitude        *float64           `json:"longitude,omitempty"`
	DistanceMiles    *float64           `json:"distanceMiles,omitempty"`
	AvailableDates   []Date             `json:"availableDates"`
	SiteAvailability []SiteAvailability `json:"siteAvailability"`
	Description      string             `json:"description"`
	ReservationURL   string             `json:"reservationUrl"`
	CampsiteType     string             `json:"campsiteType"`
}
