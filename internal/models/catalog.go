package models

import "time"

// CatalogFacility is a pre-resolved bookable facility inside a park.
type CatalogFacility struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CatalogPark is one catalog entry produced by the catalog builder.
//
// Facilities is nil when facility metadata has not been resolved and a
// (possibly empty) slice when it has; the two states are kept distinct
// through JSON and the database.
type CatalogPark struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	Source         Source            `json:"source"`
	Latitude       *float64          `json:"latitude"`
	Longitude      *float64          `json:"longitude"`
	Description    string            `json:"description"`
	ReservationURL string            `json:"reservationUrl"`
	Facilities     []CatalogFacility `json:"facilities"`
}

// HasCoordinates reports whether the park can take part in radius search.
func (p CatalogPark) HasCoordinates() bool {
	return p.Latitude != nil && p.Longitude != nil
}

// Candidate is a catalog park resolved for one search, with its distance
// from the search center.
type Candidate struct {
	Park          CatalogPark
	DistanceMiles float64
}

// CatalogStatus summarizes the loaded catalog.
type CatalogStatus struct {
	Counts  map[Source]int `json:"counts"`
	BuiltAt *time.Time     `json:"builtAt"`
	Stale   bool           `json:"stale"`
}

// ParkSite is one Recreation.gov campsite in the children metadata.
type ParkSite struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Loop     string   `json:"loop,omitempty"`
	Type     string   `json:"type"`
	Category Category `json:"category"`
}

// ParkUnit is one ReserveCalifornia unit in the children metadata.
type ParkUnit struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	CategoryID int      `json:"categoryId"`
	Category   Category `json:"category"`
}

// ParkFacility groups ReserveCalifornia units.
type ParkFacility struct {
	ID    string     `json:"id"`
	Name  string     `json:"name"`
	Units []ParkUnit `json:"units"`
}

// ParkChildren is the facility/unit metadata tree of one park.
type ParkChildren struct {
	Source     Source         `json:"source"`
	ParkID     string         `json:"parkId"`
	Sites      []ParkSite     `json:"sites,omitempty"`
	Facilities []ParkFacility `json:"facilities,omitempty"`
}
