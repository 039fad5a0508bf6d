package sources

import (
	"context"
	"log"
	"net/url"
	"sort"
	"strings"

	"github.com/david/campsite-finder/internal/availability"
	"github.com/david/campsite-finder/internal/classify"
	"github.com/david/campsite-finder/internal/models"
)

// RecGovMonth is the month availability payload of one campground.
type RecGovMonth struct {
	Campsites map[string]RecGovCampsite `json:"campsites"`
}

type RecGovCampsite struct {
	CampsiteID     string            `json:"campsite_id"`
	Site           string            `json:"site"`
	Loop           string            `json:"loop"`
	CampsiteType   string            `json:"campsite_type"`
	TypeOfUse      string            `json:"type_of_use"`
	MinNumPeople   int               `json:"min_num_people"`
	MaxNumPeople   int               `json:"max_num_people"`
	Availabilities map[string]string `json:"availabilities"`
}

// DisplayName is "loop — site" when the site sits in a loop.
func (c RecGovCampsite) DisplayName() string {
	site := strings.TrimSpace(c.Site)
	if site == "" {
		site = c.CampsiteID
	}
	if loop := strings.TrimSpace(c.Loop); loop != "" {
		return loop + availability.NameSeparator + site
	}
	return site
}

type recGovCampsiteList struct {
	Campsites []struct {
		CampsiteID         string `json:"campsite_id"`
		Name               string `json:"name"`
		Loop               string `json:"loop"`
		Type               string `json:"type"`
		PermittedEquipment []struct {
			EquipmentName string `json:"equipment_name"`
		} `json:"permitted_equipment"`
	} `json:"campsites"`
}

// RecGovClient talks to the federal reservation API. Each candidate is one
// campground and each campground is fetched month by month.
type RecGovClient struct {
	cfg     SourceConfig
	fetcher *Fetcher
}

func NewRecGovClient(cfg SourceConfig, fetcher *Fetcher) *RecGovClient {
	return &RecGovClient{cfg: cfg, fetcher: fetcher}
}

func (c *RecGovClient) Source() models.Source { return models.SourceRecreationGov }

func (c *RecGovClient) ParkURL(parkID string) string { return c.cfg.ParkURL(parkID) }

// FetchMonth retrieves one month of availability for a campground.
func (c *RecGovClient) FetchMonth(ctx context.Context, facilityID string, month models.Date) (*RecGovMonth, error) {
	q := url.Values{}
	q.Set("start_date", month.FirstOfMonth().Format("2006-01-02")+"T00:00:00.000Z")
	endpoint := c.cfg.BaseURL + strings.ReplaceAll(c.cfg.AvailabilityPath, "{id}", url.PathEscape(facilityID)) + "?" + q.Encode()

	var payload RecGovMonth
	if err := c.fetcher.GetJSON(ctx, "availability", endpoint, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// Check fetches the months in order and stops at the first rate limit.
func (c *RecGovClient) Check(ctx context.Context, cand models.Candidate, months []models.Date, _ CheckOptions) []Fetch {
	fetches := make([]Fetch, 0, len(months))
	for _, month := range months {
		label := fetchLabel(cand.Park.ID, month)
		payload, err := c.FetchMonth(ctx, cand.Park.ID, month)
		if err != nil {
			fetches = append(fetches, Fetch{Label: label, Err: err})
			if IsRateLimited(err) || ctx.Err() != nil {
				break
			}
			continue
		}
		fetches = append(fetches, Fetch{Label: label, Entries: c.entries(payload)})
	}
	return fetches
}

func (c *RecGovClient) entries(payload *RecGovMonth) []availability.Entry {
	var out []availability.Entry
	for _, site := range payload.Campsites {
		name := site.DisplayName()
		category := classify.Classify(classify.Record{
			Source:   models.SourceRecreationGov,
			Name:     name,
			TypeCode: site.CampsiteType,
		})
		for date, status := range site.Availabilities {
			out = append(out, availability.Entry{
				SiteName:  name,
				SiteType:  site.CampsiteType,
				Category:  category,
				Date:      date,
				Available: status == c.cfg.StatusAvailable,
				MaxPeople: site.MaxNumPeople,
			})
		}
	}
	return out
}

// Children lists the campsites of a campground with derived categories.
func (c *RecGovClient) Children(ctx context.Context, parkID string) (models.ParkChildren, error) {
	q := url.Values{}
	q.Set("fq", "asset_id:"+parkID)
	q.Set("size", "1000")
	endpoint := c.cfg.BaseURL + c.cfg.ChildrenPath + "?" + q.Encode()

	var list recGovCampsiteList
	if err := c.fetcher.GetJSON(ctx, "children", endpoint, &list); err != nil {
		return models.ParkChildren{}, err
	}

	sites := make([]models.ParkSite, 0, len(list.Campsites))
	for _, cs := range list.Campsites {
		equipment := make([]string, 0, len(cs.PermittedEquipment))
		for _, e := range cs.PermittedEquipment {
			equipment = append(equipment, e.EquipmentName)
		}
		name := RecGovCampsite{CampsiteID: cs.CampsiteID, Site: cs.Name, Loop: cs.Loop}.DisplayName()
		sites = append(sites, models.ParkSite{
			ID:   cs.CampsiteID,
			Name: name,
			Loop: cs.Loop,
			Type: cs.Type,
			Category: classify.Classify(classify.Record{
				Source:    models.SourceRecreationGov,
				Name:      name,
				TypeCode:  cs.Type,
				Equipment: equipment,
			}),
		})
	}
	sort.Slice(sites, func(i, j int) bool { return sites[i].Name < sites[j].Name })

	log.Printf("[RecGov] %d campsites for campground %s", len(sites), parkID)
	return models.ParkChildren{Source: models.SourceRecreationGov, ParkID: parkID, Sites: sites}, nil
}
