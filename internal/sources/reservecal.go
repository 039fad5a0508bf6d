package sources

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strconv"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/david/campsite-finder/internal/availability"
	"github.com/david/campsite-finder/internal/classify"
	"github.com/david/campsite-finder/internal/models"
)

// RCAPlaceRequest is the body of POST /search/place. With PlaceId 0 and a
// coordinate it lists nearby parks; with a PlaceId it resolves one park.
type RCAPlaceRequest struct {
	PlaceID             int     `json:"PlaceId"`
	Latitude            float64 `json:"Latitude"`
	Longitude           float64 `json:"Longitude"`
	StartDate           string  `json:"StartDate"`
	EndDate             string  `json:"EndDate"`
	Nights              int     `json:"Nights"`
	CountNearby         bool    `json:"CountNearby"`
	NearbyLimit         int     `json:"NearbyLimit"`
	NearbyOnlyAvailable bool    `json:"NearbyOnlyAvailable"`
	Sort                string  `json:"Sort"`
	CustomerAccountID   int     `json:"CustomerAccountId"`
	IsADA               bool    `json:"IsADA"`
	UnitCategoryID      int     `json:"UnitCategoryId"`
	SleepingUnitID      int     `json:"SleepingUnitId"`
	MinVehicleLength    int     `json:"MinVehicleLength"`
}

// NewPlaceRequest builds a place lookup for placeID over a one-week dummy
// stay starting at from. placeID 0 turns it into a nearby search.
func NewPlaceRequest(placeID int, lat, lon float64, from models.Date) RCAPlaceRequest {
	req := RCAPlaceRequest{
		PlaceID:   placeID,
		Latitude:  lat,
		Longitude: lon,
		StartDate: from.String(),
		EndDate:   from.AddDays(6).String(),
		Nights:    1,
		Sort:      "distance",
	}
	if placeID == 0 {
		req.CountNearby = true
		req.NearbyLimit = 200
	}
	return req
}

type RCAPlaceResponse struct {
	SelectedPlace *struct {
		PlaceID    int                    `json:"PlaceId"`
		Name       string                 `json:"Name"`
		Facilities map[string]RCAFacility `json:"Facilities"`
	} `json:"SelectedPlace"`
	NearbyPlaces []RCANearbyPlace `json:"NearbyPlaces"`
}

type RCAFacility struct {
	FacilityID int    `json:"FacilityId"`
	Name       string `json:"Name"`
}

type RCANearbyPlace struct {
	PlaceID     int      `json:"PlaceId"`
	Name        string   `json:"Name"`
	Latitude    *float64 `json:"Latitude"`
	Longitude   *float64 `json:"Longitude"`
	Description string   `json:"Description"`
}

// Facilities flattens the selected place's facility map, sorted by name.
func (r RCAPlaceResponse) Facilities() []models.CatalogFacility {
	out := []models.CatalogFacility{}
	if r.SelectedPlace == nil {
		return out
	}
	for id, f := range r.SelectedPlace.Facilities {
		fid := id
		if f.FacilityID != 0 {
			fid = strconv.Itoa(f.FacilityID)
		}
		out = append(out, models.CatalogFacility{ID: fid, Name: f.Name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

type rcaGridRequest struct {
	FacilityID        int    `json:"FacilityId"`
	StartDate         string `json:"StartDate"`
	EndDate           string `json:"EndDate"`
	IsADA             bool   `json:"IsADA"`
	MinVehicleLength  int    `json:"MinVehicleLength"`
	UnitCategoryID    int    `json:"UnitCategoryId"`
	UnitTypesGroupIDs []int  `json:"UnitTypesGroupIds"`
	WebOnly           bool   `json:"WebOnly"`
	SleepingUnitID    int    `json:"SleepingUnitId"`
	UnitSort          string `json:"UnitSort"`
	InSeasonOnly      bool   `json:"InSeasonOnly"`
}

// RCAGrid is the per-facility unit calendar.
type RCAGrid struct {
	Facility struct {
		FacilityID int                `json:"FacilityId"`
		Name       string             `json:"Name"`
		Units      map[string]RCAUnit `json:"Units"`
	} `json:"Facility"`
}

type RCAUnit struct {
	UnitID         int                 `json:"UnitId"`
	Name           string              `json:"Name"`
	ShortName      string              `json:"ShortName"`
	UnitCategoryID int                 `json:"UnitCategoryId"`
	Slices         map[string]RCASlice `json:"Slices"`
}

type RCASlice struct {
	Date      string `json:"Date"`
	IsFree    bool   `json:"IsFree"`
	IsBlocked bool   `json:"IsBlocked"`
}

func (u RCAUnit) displayName() string {
	if u.Name != "" {
		return u.Name
	}
	if u.ShortName != "" {
		return u.ShortName
	}
	return strconv.Itoa(u.UnitID)
}

var unitCategoryNames = map[int]string{
	1: "Campsite",
	2: "Lodging",
	3: "Day Use",
	4: "Group Campsite",
	5: "RV Site",
	6: "Equestrian",
	7: "Boat-In",
	8: "Hike/Bike",
}

func unitCategoryName(id int) string {
	if n, ok := unitCategoryNames[id]; ok {
		return n
	}
	return "Unit Category " + strconv.Itoa(id)
}

// ReserveCAClient talks to the state parks reservation API. A park holds
// facilities and each facility's unit calendar is a separate grid call.
type ReserveCAClient struct {
	cfg     SourceConfig
	fetcher *Fetcher
	catalog CatalogReader
	today   func() models.Date
}

func NewReserveCAClient(cfg SourceConfig, fetcher *Fetcher, catalog CatalogReader) *ReserveCAClient {
	return &ReserveCAClient{cfg: cfg, fetcher: fetcher, catalog: catalog, today: models.Today}
}

func (c *ReserveCAClient) Source() models.Source { return models.SourceReserveCalifornia }

func (c *ReserveCAClient) ParkURL(parkID string) string { return c.cfg.ParkURL(parkID) }

// Facilities returns the park's facilities. Catalog-resolved facilities are
// used as is; otherwise a place lookup resolves them.
func (c *ReserveCAClient) Facilities(ctx context.Context, park models.CatalogPark) ([]models.CatalogFacility, error) {
	if park.Facilities != nil {
		return park.Facilities, nil
	}

	placeID, err := strconv.Atoi(park.ID)
	if err != nil {
		return nil, &UpstreamError{Source: models.SourceReserveCalifornia, Op: "place", Err: fmt.Errorf("park id %q is not numeric", park.ID)}
	}
	var resp RCAPlaceResponse
	if err := c.fetcher.PostJSON(ctx, "place", c.cfg.BaseURL+c.cfg.PlacePath, NewPlaceRequest(placeID, 0, 0, c.today()), &resp); err != nil {
		return nil, err
	}
	return resp.Facilities(), nil
}

// FetchGrid retrieves one month of unit availability for a facility.
func (c *ReserveCAClient) FetchGrid(ctx context.Context, facilityID string, month models.Date) (*RCAGrid, error) {
	fid, err := strconv.Atoi(facilityID)
	if err != nil {
		return nil, &UpstreamError{Source: models.SourceReserveCalifornia, Op: "grid", Err: fmt.Errorf("facility id %q is not numeric", facilityID)}
	}
	first := month.FirstOfMonth()
	body := rcaGridRequest{
		FacilityID:        fid,
		StartDate:         first.String(),
		EndDate:           first.AddMonths(1).AddDays(-1).String(),
		UnitTypesGroupIDs: []int{},
		WebOnly:           true,
		UnitSort:          "orderby",
		InSeasonOnly:      true,
	}

	var grid RCAGrid
	if err := c.fetcher.PostJSON(ctx, "grid", c.cfg.BaseURL+c.cfg.GridPath, body, &grid); err != nil {
		return nil, err
	}
	return &grid, nil
}

// Check fans out facility × month grid calls. The first rate limit cancels
// the calls still pending.
func (c *ReserveCAClient) Check(ctx context.Context, cand models.Candidate, months []models.Date, opts CheckOptions) []Fetch {
	facilities, err := c.Facilities(ctx, cand.Park)
	if err != nil {
		return []Fetch{{Label: cand.Park.ID, Err: err}}
	}
	if opts.FacilityID != "" {
		facilities = onlyFacility(facilities, opts.FacilityID)
		if len(facilities) == 0 {
			return []Fetch{{Label: cand.Park.ID, Err: fmt.Errorf("%w: %s in park %s", ErrFacilityNotFound, opts.FacilityID, cand.Park.ID)}}
		}
	}
	prefix := len(facilities) > 1

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	fetches := make([]Fetch, len(facilities)*len(months))
	var g errgroup.Group
	for fi, fac := range facilities {
		for mi, month := range months {
			i := fi*len(months) + mi
			g.Go(func() error {
				label := fetchLabel(fac.ID, month)
				grid, err := c.FetchGrid(ctx, fac.ID, month)
				if err != nil {
					if IsRateLimited(err) {
						cancel()
					}
					fetches[i] = Fetch{Label: label, Err: err}
					return nil
				}
				fetches[i] = Fetch{Label: label, Entries: gridEntries(grid, fac, prefix)}
				return nil
			})
		}
	}
	_ = g.Wait()
	return fetches
}

func gridEntries(grid *RCAGrid, fac models.CatalogFacility, prefix bool) []availability.Entry {
	var out []availability.Entry
	for _, unit := range grid.Facility.Units {
		name := unit.displayName()
		category := classify.ClassifyUnit(name, unit.UnitCategoryID)
		if prefix && fac.Name != "" {
			name = fac.Name + availability.NameSeparator + name
		}
		for key, slice := range unit.Slices {
			date := slice.Date
			if date == "" {
				date = key
			}
			out = append(out, availability.Entry{
				SiteName:  name,
				SiteType:  unitCategoryName(unit.UnitCategoryID),
				Category:  category,
				Date:      date,
				Available: slice.IsFree && !slice.IsBlocked,
			})
		}
	}
	return out
}

func onlyFacility(facilities []models.CatalogFacility, id string) []models.CatalogFacility {
	for _, f := range facilities {
		if f.ID == id {
			return []models.CatalogFacility{f}
		}
	}
	return nil
}

// Children lists every facility of a park with its units. Units come from
// the current month's grid.
func (c *ReserveCAClient) Children(ctx context.Context, parkID string) (models.ParkChildren, error) {
	park := models.CatalogPark{ID: parkID, Source: models.SourceReserveCalifornia}
	if c.catalog != nil {
		if p, err := c.catalog.Park(ctx, models.SourceReserveCalifornia, parkID); err == nil {
			park = p
		}
	}

	facilities, err := c.Facilities(ctx, park)
	if err != nil {
		return models.ParkChildren{}, err
	}

	month := c.today().FirstOfMonth()
	out := make([]models.ParkFacility, len(facilities))
	var mu sync.Mutex
	var firstErr error
	var g errgroup.Group
	for i, fac := range facilities {
		g.Go(func() error {
			pf := models.ParkFacility{ID: fac.ID, Name: fac.Name, Units: []models.ParkUnit{}}
			grid, err := c.FetchGrid(ctx, fac.ID, month)
			if err != nil {
				mu.Lock()
				if firstErr == nil || IsRateLimited(err) {
					firstErr = err
				}
				mu.Unlock()
				out[i] = pf
				return nil
			}
			for _, unit := range grid.Facility.Units {
				name := unit.displayName()
				pf.Units = append(pf.Units, models.ParkUnit{
					ID:         strconv.Itoa(unit.UnitID),
					Name:       name,
					CategoryID: unit.UnitCategoryID,
					Category:   classify.ClassifyUnit(name, unit.UnitCategoryID),
				})
			}
			sort.Slice(pf.Units, func(a, b int) bool { return pf.Units[a].Name < pf.Units[b].Name })
			out[i] = pf
			return nil
		})
	}
	_ = g.Wait()

	if IsRateLimited(firstErr) {
		return models.ParkChildren{}, firstErr
	}
	if firstErr != nil {
		log.Printf("[ReserveCA] Partial children for park %s: %v", parkID, firstErr)
	}
	return models.ParkChildren{Source: models.SourceReserveCalifornia, ParkID: parkID, Facilities: out}, nil
}
