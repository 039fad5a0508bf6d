package availability

import (
	"sort"
	"strings"
	"time"

	"github.com/david/campsite-finder/internal/models"
)

// NameSeparator joins a group (loop or facility) and a unit in a display
// name.
const NameSeparator = " — "

// Entry is one upstream slice: whether a site is free on a given date.
type Entry struct {
	SiteName  string // display name, e.g. "Loop A — 005"
	SiteType  string // raw upstream type string
	Category  models.Category
	Date      string // raw upstream date token
	Available bool   // status token already interpreted by the source client
	MaxPeople int    // 0 when upstream does not report capacity
}

// Window is a half-open date range [Start, End).
type Window struct {
	Start models.Date
	End   models.Date
}

func (w Window) Contains(d models.Date) bool {
	return !d.Before(w.Start) && d.Before(w.End)
}

// MonthsOverlapping returns the first day of every calendar month touched by
// [start, end], ascending.
func MonthsOverlapping(start, end models.Date) []models.Date {
	var months []models.Date
	last := end.FirstOfMonth()
	for cur := start.FirstOfMonth(); !cur.After(last); cur = cur.AddMonths(1) {
		months = append(months, cur)
	}
	return months
}

// MonthWindow is the part of month that is not in the past relative to today.
func MonthWindow(month, today models.Date) Window {
	start := month.FirstOfMonth()
	if today.After(start) {
		start = today
	}
	return Window{Start: start, End: month.FirstOfMonth().AddMonths(1)}
}

var dateLayouts = []string{
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05.000Z",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01-02",
}

// ParseEntryDate accepts the date tokens the upstream APIs emit.
func ParseEntryDate(raw string) (models.Date, bool) {
	raw = strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return models.DateOf(t), true
		}
	}
	return models.Date{}, false
}

type siteKey struct {
	name string
	typ  string
}

// ExtractAvailableDates reduces raw entries to the union of available dates
// inside [start, end) and a per-site breakdown. keep may be nil. Entries with
// an unparseable date are skipped.
func ExtractAvailableDates(entries []Entry, start, end models.Date, keep func(Entry) bool) ([]models.Date, []models.SiteAvailability) {
	win := Window{Start: start, End: end}
	union := map[string]models.Date{}
	perSite := map[siteKey]map[string]models.Date{}

	for _, e := range entries {
		if !e.Available {
			continue
		}
		if keep != nil && !keep(e) {
			continue
		}
		d, ok := ParseEntryDate(e.Date)
		if !ok || !win.Contains(d) {
			continue
		}
		key := siteKey{name: e.SiteName, typ: e.SiteType}
		if perSite[key] == nil {
			perSite[key] = map[string]models.Date{}
		}
		perSite[key][d.String()] = d
		union[d.String()] = d
	}

	sites := make([]models.SiteAvailability, 0, len(perSite))
	for key, dates := range perSite {
		sites = append(sites, models.SiteAvailability{
			SiteName:       key.name,
			SiteType:       key.typ,
			AvailableDates: sortedDates(dates),
		})
	}
	SortSites(sites)
	return sortedDates(union), sites
}

// MergeSites folds site groups with the same name and type together.
func MergeSites(groups ...[]models.SiteAvailability) []models.SiteAvailability {
	merged := map[siteKey]map[string]models.Date{}
	for _, group := range groups {
		for _, s := range group {
			key := siteKey{name: s.SiteName, typ: s.SiteType}
			if merged[key] == nil {
				merged[key] = map[string]models.Date{}
			}
			for _, d := range s.AvailableDates {
				merged[key][d.String()] = d
			}
		}
	}
	out := make([]models.SiteAvailability, 0, len(merged))
	for key, dates := range merged {
		if len(dates) == 0 {
			continue
		}
		out = append(out, models.SiteAvailability{SiteName: key.name, SiteType: key.typ, AvailableDates: sortedDates(dates)})
	}
	SortSites(out)
	return out
}

// Union returns the sorted, deduplicated dates across sites.
func Union(sites []models.SiteAvailability) []models.Date {
	all := map[string]models.Date{}
	for _, s := range sites {
		for _, d := range s.AvailableDates {
			all[d.String()] = d
		}
	}
	return sortedDates(all)
}

// FilterWeekdays keeps only dates whose weekday (0=Monday..6=Sunday) is in
// days, dropping sites left with no dates. An empty days set is a no-op.
func FilterWeekdays(sites []models.SiteAvailability, days []int) []models.SiteAvailability {
	if len(days) == 0 {
		return sites
	}
	allowed := map[int]bool{}
	for _, d := range days {
		allowed[d] = true
	}
	out := make([]models.SiteAvailability, 0, len(sites))
	for _, s := range sites {
		var kept []models.Date
		for _, d := range s.AvailableDates {
			if allowed[d.MondayWeekday()] {
				kept = append(kept, d)
			}
		}
		if len(kept) == 0 {
			continue
		}
		out = append(out, models.SiteAvailability{SiteName: s.SiteName, SiteType: s.SiteType, AvailableDates: kept})
	}
	return out
}

// FilterSiteNames keeps sites whose name matches one of names
// (case-insensitive). A bare unit name also matches a grouped display name
// ending in it, so "012" matches "Moro — 012". An empty names list is a
// no-op.
func FilterSiteNames(sites []models.SiteAvailability, names []string) []models.SiteAvailability {
	if len(names) == 0 {
		return sites
	}
	wanted := map[string]bool{}
	for _, n := range names {
		wanted[strings.ToLower(strings.TrimSpace(n))] = true
	}
	out := make([]models.SiteAvailability, 0, len(sites))
	for _, s := range sites {
		name := strings.ToLower(strings.TrimSpace(s.SiteName))
		if wanted[name] {
			out = append(out, s)
			continue
		}
		if i := strings.LastIndex(name, NameSeparator); i >= 0 && wanted[strings.TrimSpace(name[i+len(NameSeparator):])] {
			out = append(out, s)
		}
	}
	return out
}

func SortSites(sites []models.SiteAvailability) {
	sort.Slice(sites, func(i, j int) bool {
		if sites[i].SiteName != sites[j].SiteName {
			return sites[i].SiteName < sites[j].SiteName
		}
		return sites[i].SiteType < sites[j].SiteType
	})
}

func sortedDates(set map[string]models.Date) []models.Date {
	out := make([]models.Date, 0, len(set))
	for _, d := range set {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}
