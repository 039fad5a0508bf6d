package sources

import (
	"errors"
	"fmt"

	"github.com/david/campsite-finder/internal/models"
)

// ErrRateLimited reports an upstream HTTP 429. Searches abandon their
// remaining batches when they see it.
var ErrRateLimited = errors.New("upstream rate limited")

// ErrFacilityNotFound is returned when a facility filter names a facility the
// park does not have.
var ErrFacilityNotFound = errors.New("facility not found")

// UpstreamError is any other upstream failure: transport error, non-2xx
// status or an undecodable body.
type UpstreamError struct {
	Source     models.Source
	Op         string
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: status %d", e.Source, e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: %v", e.Source, e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// IsRateLimited reports whether err is or wraps ErrRateLimited.
func IsRateLimited(err error) bool { return errors.Is(err, ErrRateLimited) }
