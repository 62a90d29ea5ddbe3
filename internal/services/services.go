// package services defines the [Catalog] interface for the streaming catalog API
//
// Spotify Web API
package services

import (
	"context"
	"fmt"

	"github.com/desertthunder/crawlmix/internal/models"
	"github.com/desertthunder/crawlmix/internal/shared"
)

// MaxTracksPerRequest is the largest batch accepted by [Catalog.AddTracks].
const MaxTracksPerRequest = 100

// Catalog is the set of catalog operations used by the discovery crawl.
//
// Read operations never fail: a transport or API failure is logged and observed by
// the caller as an empty result, the same as a legitimately empty one.
// Write operations surface every failure.
type Catalog interface {
	// FindArtistByName returns the first artist matching name, or false when there is none.
	FindArtistByName(ctx context.Context, name string) (models.ArtistRef, bool)

	// RelatedArtists returns the artists the catalog considers similar to artistID.
	RelatedArtists(ctx context.Context, artistID string) []models.ArtistRef

	// TopTracks returns the artist's most popular tracks in the user's market.
	TopTracks(ctx context.Context, artistID string) []models.TrackCandidate

	// CreatePlaylist creates an empty playlist owned by userID.
	CreatePlaylist(ctx context.Context, userID string, spec models.PlaylistSpec) (*models.PlaylistRef, error)

	// AddTracks appends up to [MaxTracksPerRequest] track URIs to a playlist.
	AddTracks(ctx context.Context, playlistID string, uris []string) error

	// CurrentUser returns the authenticated user.
	CurrentUser(ctx context.Context) (*models.User, error)
}

// APIError is a non-success response from the catalog API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("spotify API error: status %d: %s", e.StatusCode, e.Body)
}

// Unwrap lets callers match any API failure with [shared.ErrAPIRequest].
func (e *APIError) Unwrap() error {
	return shared.ErrAPIRequest
}
