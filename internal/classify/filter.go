package classify

import "github.com/david/campsite-finder/internal/models"

// Filter narrows results by category. Exclude is checked before Include;
// an empty Include admits every category not excluded.
type Filter struct {
	Include map[models.Category]bool
	Exclude map[models.Category]bool
}

// NewFilter builds a Filter from category lists.
func NewFilter(include, exclude []models.Category) Filter {
	f := Filter{}
	if len(include) > 0 {
		f.Include = make(map[models.Category]bool, len(include))
		for _, c := range include {
			f.Include[c] = true
		}
	}
	if len(exclude) > 0 {
		f.Exclude = make(map[models.Category]bool, len(exclude))
		for _, c := range exclude {
			f.Exclude[c] = true
		}
	}
	return f
}

func (f Filter) Allows(c models.Category) bool {
	if f.Exclude[c] {
		return false
	}
	if len(f.Include) > 0 && !f.Include[c] {
		return false
	}
	return true
}

// IsZero reports whether the filter admits everything.
func (f Filter) IsZero() bool {
	return len(f.Include) == 0 && len(f.Exclude) == 0
}
