package discovery

import (
	"fmt"

	"github.com/desertthunder/crawlmix/internal/models"
	"github.com/desertthunder/crawlmix/internal/shared"
)

// FilterSpec bounds the release year and popularity of accepted tracks. Both ranges are inclusive.
type FilterSpec struct {
	YearFrom      int
	YearTo        int
	MinPopularity int
	MaxPopularity int
}

// Validate reports an [shared.ErrInvalidInput] for inverted ranges.
//
// Popularity bounds beyond 0..100 are accepted; they simply exclude nothing on that side.
func (f FilterSpec) Validate() error {
	if f.YearTo < f.YearFrom {
		return fmt.Errorf("%w: year range %d-%d is inverted", shared.ErrInvalidInput, f.YearFrom, f.YearTo)
	}
	if f.MinPopularity > f.MaxPopularity {
		return fmt.Errorf("%w: popularity range %d-%d is inverted", shared.ErrInvalidInput, f.MinPopularity, f.MaxPopularity)
	}
	return nil
}

// Accepts reports whether the track's year is known and both its year and popularity are in range.
func (f FilterSpec) Accepts(t models.TrackCandidate) bool {
	if !t.YearKnown() {
		return false
	}
	return t.ReleaseYear >= f.YearFrom && t.ReleaseYear <= f.YearTo &&
		t.Popularity >= f.MinPopularity && t.Popularity <= f.MaxPopularity
}

func (f FilterSpec) String() string {
	return fmt.Sprintf("years %d-%d, popularity %d-%d", f.YearFrom, f.YearTo, f.MinPopularity, f.MaxPopularity)
}
