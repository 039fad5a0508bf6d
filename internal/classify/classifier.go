package classify

import (
	"regexp"
	"strings"

	"github.com/david/campsite-finder/internal/models"
)

// Record is the raw upstream description of one site or unit.
type Record struct {
	Source         models.Source
	Name           string
	TypeCode       string   // Recreation.gov campsite_type, e.g. "TENT ONLY NONELECTRIC"
	UnitCategoryID int      // ReserveCalifornia UnitCategoryId, 0 when unknown
	Equipment      []string // permitted equipment names
}

type nameRule struct {
	pattern  *regexp.Regexp
	category models.Category
}

// Name keywords beat formal type codes: upstream codes regularly contradict
// the human-readable name (a boat-in site typed as a group tent area).
// Keywords match anywhere in the name, so compounds like "Houseboat" count.
// Only "trail" and "lodge" need a trailing boundary, to skip "Trailer" and
// "Lodgepole".
var nameRules = []nameRule{
	{regexp.MustCompile(`(?i)(boat|sail|anchor|mooring)`), models.CategoryBoatIn},
	{regexp.MustCompile(`(?i)(cabin|yurt|lodges?\b|lookout|chalet|bunkhouse)`), models.CategoryLodging},
	{regexp.MustCompile(`(?i)(hik(e|ing)|walk|trails?\b|trailhead|backpack|remote|backcountry|wilderness)`), models.CategoryBackpacking},
	{regexp.MustCompile(`(?i)(equestrian|horse)`), models.CategoryEquestrian},
}

var recGovTypes = map[string]models.Category{
	"BOAT IN":                          models.CategoryBoatIn,
	"ANCHORAGE":                        models.CategoryBoatIn,
	"CABIN NONELECTRIC":                models.CategoryLodging,
	"CABIN ELECTRIC":                   models.CategoryLodging,
	"YURT":                             models.CategoryLodging,
	"LOOKOUT":                          models.CategoryLodging,
	"SHELTER NONELECTRIC":              models.CategoryLodging,
	"SHELTER ELECTRIC":                 models.CategoryLodging,
	"HIKE TO":                          models.CategoryBackpacking,
	"WALK TO":                          models.CategoryBackpacking,
	"GROUP HIKE TO":                    models.CategoryBackpacking,
	"GROUP WALK TO":                    models.CategoryBackpacking,
	"EQUESTRIAN NONELECTRIC":           models.CategoryEquestrian,
	"EQUESTRIAN ELECTRIC":              models.CategoryEquestrian,
	"GROUP EQUESTRIAN":                 models.CategoryEquestrian,
	"RV NONELECTRIC":                   models.CategoryRV,
	"RV ELECTRIC":                      models.CategoryRV,
	"STANDARD ELECTRIC":                models.CategoryRV,
	"TENT ONLY NONELECTRIC":            models.CategoryTent,
	"TENT ONLY ELECTRIC":               models.CategoryTent,
	"GROUP TENT ONLY AREA NONELECTRIC": models.CategoryTent,
	"GROUP PICNIC AREA":                models.CategoryDayUse,
	"PICNIC":                           models.CategoryDayUse,
	"DAY USE":                          models.CategoryDayUse,
	"PARKING":                          models.CategoryDayUse,
}

// ReserveCalifornia UnitCategoryId values.
var rcaUnitCategories = map[int]models.Category{
	1: models.CategoryTent,        // campsite
	2: models.CategoryLodging,     // cabins, yurts, lodging
	3: models.CategoryDayUse,      // day use
	4: models.CategoryTent,        // group camp
	5: models.CategoryRV,          // RV hookup
	6: models.CategoryEquestrian,  // equestrian
	7: models.CategoryBoatIn,      // boat-in / mooring
	8: models.CategoryBackpacking, // hike/bike, environmental
}

var rvEquipment = []string{"rv", "trailer", "fifth wheel", "motorhome", "camper", "pop up", "pickup camper"}

// Classify maps a raw record to exactly one category. It never fails.
func Classify(r Record) models.Category {
	if cat, ok := byName(r.Name); ok {
		return cat
	}
	if cat, ok := byFormalType(r); ok {
		return cat
	}
	if cat, ok := byEquipment(r.Equipment); ok {
		return cat
	}
	return models.CategoryTent
}

// ClassifyUnit classifies a ReserveCalifornia unit from its name and
// UnitCategoryId.
func ClassifyUnit(name string, unitCategoryID int) models.Category {
	return Classify(Record{
		Source:         models.SourceReserveCalifornia,
		Name:           name,
		UnitCategoryID: unitCategoryID,
	})
}

func byName(name string) (models.Category, bool) {
	if name == "" {
		return "", false
	}
	for _, rule := range nameRules {
		if rule.pattern.MatchString(name) {
			return rule.category, true
		}
	}
	return "", false
}

func byFormalType(r Record) (models.Category, bool) {
	switch r.Source {
	case models.SourceReserveCalifornia:
		cat, ok := rcaUnitCategories[r.UnitCategoryID]
		return cat, ok
	default:
		cat, ok := recGovTypes[strings.ToUpper(strings.TrimSpace(r.TypeCode))]
		return cat, ok
	}
}

func byEquipment(equipment []string) (models.Category, bool) {
	tent := false
	for _, e := range equipment {
		name := strings.ToLower(strings.TrimSpace(e))
		for _, rv := range rvEquipment {
			if strings.Contains(name, rv) {
				return models.CategoryRV, true
			}
		}
		if strings.Contains(name, "tent") {
			tent = true
		}
	}
	if tent {
		return models.CategoryTent, true
	}
	return "", false
}
