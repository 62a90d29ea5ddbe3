package discovery

import (
	"errors"
	"testing"

	"github.com/desertthunder/crawlmix/internal/models"
	"github.com/desertthunder/crawlmix/internal/shared"
)

func TestFilterSpec(t *testing.T) {
	spec := FilterSpec{YearFrom: 1995, YearTo: 2008, MinPopularity: 10, MaxPopularity: 60}

	t.Run("Accepts", func(t *testing.T) {
		tc := []struct {
			name  string
			track models.TrackCandidate
			want  bool
		}{
			{"inside both ranges", models.TrackCandidate{ReleaseYear: 2001, Popularity: 40}, true},
			{"lower bounds inclusive", models.TrackCandidate{ReleaseYear: 1995, Popularity: 10}, true},
			{"upper bounds inclusive", models.TrackCandidate{ReleaseYear: 2008, Popularity: 60}, true},
			{"year too early", models.TrackCandidate{ReleaseYear: 1994, Popularity: 40}, false},
			{"year too late", models.TrackCandidate{ReleaseYear: 2009, Popularity: 40}, false},
			{"too obscure", models.TrackCandidate{ReleaseYear: 2001, Popularity: 9}, false},
			{"too popular", models.TrackCandidate{ReleaseYear: 2001, Popularity: 61}, false},
			{"unknown year", models.TrackCandidate{ReleaseYear: 0, Popularity: 40}, false},
		}

		for _, tt := range tc {
			t.Run(tt.name, func(t *testing.T) {
				if got := spec.Accepts(tt.track); got != tt.want {
					t.Errorf("Accepts(%+v) = %v, want %v", tt.track, got, tt.want)
				}
			})
		}
	})

	t.Run("unknown year fails closed for any range", func(t *testing.T) {
		wide := FilterSpec{YearFrom: -10000, YearTo: 10000, MinPopularity: 0, MaxPopularity: 100}
		track := models.TrackCandidate{ReleaseDate: "unknown", ReleaseYear: models.ParseReleaseYear("unknown"), Popularity: 50}
		if wide.Accepts(track) {
			t.Error("track with unparseable date must be rejected")
		}
	})

	t.Run("out-of-range bounds", func(t *testing.T) {
		loose := FilterSpec{YearFrom: 1995, YearTo: 2008, MinPopularity: -1, MaxPopularity: 150}
		for _, pop := range []int{0, 50, 100} {
			if !loose.Accepts(models.TrackCandidate{ReleaseYear: 2000, Popularity: pop}) {
				t.Errorf("popularity %d should be accepted by %s", pop, loose)
			}
		}
	})

	t.Run("Validate", func(t *testing.T) {
		tc := []struct {
			name    string
			spec    FilterSpec
			wantErr bool
		}{
			{"valid", spec, false},
			{"single year", FilterSpec{YearFrom: 2000, YearTo: 2000, MaxPopularity: 100}, false},
			{"inverted years", FilterSpec{YearFrom: 2008, YearTo: 1995, MaxPopularity: 100}, true},
			{"inverted popularity", FilterSpec{YearFrom: 1995, YearTo: 2008, MinPopularity: 80, MaxPopularity: 20}, true},
			{"negative popularity", FilterSpec{YearFrom: 1995, YearTo: 2008, MinPopularity: -1, MaxPopularity: 20}, false},
			{"popularity above 100", FilterSpec{YearFrom: 1995, YearTo: 2008, MaxPopularity: 101}, false},
			{"inverted out-of-range popularity", FilterSpec{YearFrom: 1995, YearTo: 2008, MinPopularity: 120, MaxPopularity: -5}, true},
		}

		for _, tt := range tc {
			t.Run(tt.name, func(t *testing.T) {
				err := tt.spec.Validate()
				if tt.wantErr && !errors.Is(err, shared.ErrInvalidInput) {
					t.Errorf("expected ErrInvalidInput, got %v", err)
				}
				if !tt.wantErr && err != nil {
					t.Errorf("expected no error, got %v", err)
				}
			})
		}
	})
}

func TestParseReleaseYear(t *testing.T) {
	tc := []struct {
		date string
		want int
	}{
		{"2001-06-12", 2001},
		{"1999-03", 1999},
		{"2004", 2004},
		{"", 0},
		{"199", 0},
		{"abcd-01-01", 0},
		{"0000-01-01", 0},
	}

	for _, tt := range tc {
		t.Run(tt.date, func(t *testing.T) {
			if got := models.ParseReleaseYear(tt.date); got != tt.want {
				t.Errorf("ParseReleaseYear(%q) = %d, want %d", tt.date, got, tt.want)
			}
		})
	}
}
