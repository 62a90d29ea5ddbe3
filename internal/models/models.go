// package models defines the data model for the discovery crawler
package models

import (
	"strconv"
	"time"
)

// Model defines the base interface for all persistent models.
type Model interface {
	ID() string           // ID returns the unique identifier for this model
	CreatedAt() time.Time // CreatedAt returns when this model was created
	UpdatedAt() time.Time // UpdatedAt returns when this model was last updated
	Validate() error      // Validate checks if the model's data is valid and returns an error if not
}

// Repository defines the interface for data access operations.
// Implementations handle database interactions for specific model types.
type Repository[T Model] interface {
	Create(model T) error                      // Create inserts a new model into the database
	Get(id string) (T, error)                  // Get retrieves a model by its ID
	Update(model T) error                      // Update modifies an existing model in the database
	Delete(id string) error                    // Delete removes a model from the database by its ID
	List(criteria map[string]any) ([]T, error) // List retrieves all models matching the given criteria
}

// ArtistRef identifies an artist in the catalog. Identity is the ID.
type ArtistRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// TrackCandidate is a track considered for the playlist.
//
// ReleaseYear is 0 when the release date could not be parsed.
type TrackCandidate struct {
	URI         string `json:"uri"`
	ID          string `json:"id"`
	Name        string `json:"name"`
	Artist      string `json:"artist"`
	Album       string `json:"album"`
	ReleaseDate string `json:"release_date"`
	ReleaseYear int    `json:"release_year"`
	Popularity  int    `json:"popularity"`
}

// YearKnown reports whether the release year was parsed.
func (t TrackCandidate) YearKnown() bool {
	return t.ReleaseYear > 0
}

// ParseReleaseYear extracts the year from the first four characters of a release date
// such as "2001", "2001-06" or "2001-06-12". It returns 0 when they are not a positive integer.
func ParseReleaseYear(date string) int {
	if len(date) < 4 {
		return 0
	}
	year, err := strconv.Atoi(date[:4])
	if err != nil || year <= 0 {
		return 0
	}
	return year
}

// PlaylistSpec describes a playlist to create.
type PlaylistSpec struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Public      bool   `json:"public"`
}

// PlaylistRef is a created playlist.
type PlaylistRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

// User is the authenticated catalog account.
type User struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}
