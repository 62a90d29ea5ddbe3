package testing

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/desertthunder/crawlmix/internal/models"
)

// FakeCatalog is an in-memory artist graph implementing services.Catalog.
//
// Artists are looked up by exact name (case-insensitive). Every call is counted.
type FakeCatalog struct {
	mu sync.Mutex

	artists map[string]models.ArtistRef // by lowercased name
	related map[string][]models.ArtistRef
	tracks  map[string][]models.TrackCandidate
	calls   map[string]int

	User      *models.User
	UserErr   error
	CreateErr error

	// AppendErr, when set, is consulted before every AddTracks call with its 1-based batch number.
	AppendErr func(batch int, uris []string) error

	Playlists []models.PlaylistSpec
	Appended  [][]string
}

// NewFakeCatalog returns an empty graph with an authenticated user.
func NewFakeCatalog() *FakeCatalog {
	return &FakeCatalog{
		artists: make(map[string]models.ArtistRef),
		related: make(map[string][]models.ArtistRef),
		tracks:  make(map[string][]models.TrackCandidate),
		calls:   make(map[string]int),
		User:    &models.User{ID: "user-1", DisplayName: "Test User"},
	}
}

// AddArtist registers an artist whose id is derived from its name.
func (f *FakeCatalog) AddArtist(name string) models.ArtistRef {
	f.mu.Lock()
	defer f.mu.Unlock()

	a := models.ArtistRef{ID: ArtistID(name), Name: name}
	f.artists[strings.ToLower(name)] = a
	return a
}

// Relate adds edges from one artist to others, registering any unknown names.
func (f *FakeCatalog) Relate(from string, to ...string) {
	f.AddArtist(from)
	for _, name := range to {
		a := f.AddArtist(name)
		f.mu.Lock()
		f.related[ArtistID(from)] = append(f.related[ArtistID(from)], a)
		f.mu.Unlock()
	}
}

// SetTracks replaces an artist's top tracks, filling in the artist name.
func (f *FakeCatalog) SetTracks(artist string, tracks ...models.TrackCandidate) {
	f.AddArtist(artist)

	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range tracks {
		tracks[i].Artist = artist
	}
	f.tracks[ArtistID(artist)] = tracks
}

// Calls returns how many times op was invoked. Read ops may be qualified with an artist id, e.g. "related:a".
func (f *FakeCatalog) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// TotalCalls returns the number of catalog calls of any kind.
func (f *FakeCatalog) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for op, c := range f.calls {
		if !strings.Contains(op, ":") {
			n += c
		}
	}
	return n
}

func (f *FakeCatalog) count(op, qualifier string) {
	f.calls[op]++
	if qualifier != "" {
		f.calls[op+":"+qualifier]++
	}
}

func (f *FakeCatalog) FindArtistByName(ctx context.Context, name string) (models.ArtistRef, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.count("search", name)
	a, ok := f.artists[strings.ToLower(name)]
	return a, ok
}

func (f *FakeCatalog) RelatedArtists(ctx context.Context, artistID string) []models.ArtistRef {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.count("related", artistID)
	return append([]models.ArtistRef(nil), f.related[artistID]...)
}

func (f *FakeCatalog) TopTracks(ctx context.Context, artistID string) []models.TrackCandidate {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.count("top", artistID)
	return append([]models.TrackCandidate(nil), f.tracks[artistID]...)
}

func (f *FakeCatalog) CreatePlaylist(ctx context.Context, userID string, spec models.PlaylistSpec) (*models.PlaylistRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.count("create", "")
	if f.CreateErr != nil {
		return nil, f.CreateErr
	}
	f.Playlists = append(f.Playlists, spec)
	id := fmt.Sprintf("playlist-%d", len(f.Playlists))
	return &models.PlaylistRef{ID: id, Name: spec.Name, URL: "https://open.spotify.com/playlist/" + id}, nil
}

func (f *FakeCatalog) AddTracks(ctx context.Context, playlistID string, uris []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.count("append", "")
	if len(uris) > 100 {
		return fmt.Errorf("batch of %d exceeds 100", len(uris))
	}
	if f.AppendErr != nil {
		if err := f.AppendErr(f.calls["append"], uris); err != nil {
			return err
		}
	}
	f.Appended = append(f.Appended, append([]string(nil), uris...))
	return nil
}

func (f *FakeCatalog) CurrentUser(ctx context.Context) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.count("me", "")
	if f.UserErr != nil {
		return nil, f.UserErr
	}
	return f.User, nil
}

// AppendedURIs flattens every successful AddTracks batch.
func (f *FakeCatalog) AppendedURIs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []string
	for _, b := range f.Appended {
		out = append(out, b...)
	}
	return out
}

// ArtistID derives the fake catalog id of an artist name.
func ArtistID(name string) string {
	return "id-" + strings.ToLower(strings.ReplaceAll(name, " ", "-"))
}

// Track builds a candidate with a URI derived from name.
func Track(name string, year, popularity int) models.TrackCandidate {
	date := ""
	if year > 0 {
		date = fmt.Sprintf("%04d-01-01", year)
	}
	return models.TrackCandidate{
		URI:         "spotify:track:" + name,
		ID:          name,
		Name:        name,
		ReleaseDate: date,
		ReleaseYear: year,
		Popularity:  popularity,
	}
}
