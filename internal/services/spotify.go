// Spotify API implementation of [Catalog]
//
// Spotify API response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/crawlmix/internal/models"
	"github.com/desertthunder/crawlmix/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"

	defaultRequestTimeout = 15 * time.Second
)

// SpotifyUser represents a Spotify user profile.
type SpotifyUser struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Country     string `json:"country"`
	Product     string `json:"product"` // premium, free, etc.
}

type externalURLs struct {
	Spotify string `json:"spotify"`
}

// SpotifyArtist represents a Spotify artist.
type SpotifyArtist struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Genres     []string `json:"genres"`
	Popularity int      `json:"popularity"`
	URI        string   `json:"uri"`
}

// SpotifyAlbum represents a Spotify album.
type SpotifyAlbum struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ReleaseDate string `json:"release_date"`
	URI         string `json:"uri"`
}

// SpotifyTrack represents a Spotify track.
type SpotifyTrack struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Artists    []SpotifyArtist `json:"artists"`
	Album      SpotifyAlbum    `json:"album"`
	DurationMS int             `json:"duration_ms"`
	Popularity int             `json:"popularity"`
	URI        string          `json:"uri"`
}

// SpotifyPlaylist represents a Spotify playlist.
type SpotifyPlaylist struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Description  string       `json:"description"`
	Public       bool         `json:"public"`
	ExternalURLs externalURLs `json:"external_urls"`
	URI          string       `json:"uri"`
}

type artistSearch struct {
	Artists struct {
		Items []SpotifyArtist `json:"items"`
	} `json:"artists"`
}

// SpotifyOption configures a [SpotifyService].
type SpotifyOption func(*SpotifyService)

// WithBaseURL points the service at a different API root.
func WithBaseURL(baseURL string) SpotifyOption {
	return func(s *SpotifyService) {
		if baseURL != "" {
			s.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// WithRateLimit paces requests to rps per second. Zero or less disables pacing.
func WithRateLimit(rps float64) SpotifyOption {
	return func(s *SpotifyService) {
		if rps > 0 {
			s.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		} else {
			s.limiter = nil
		}
	}
}

// WithRequestTimeout bounds every API call.
func WithRequestTimeout(d time.Duration) SpotifyOption {
	return func(s *SpotifyService) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithHTTPClient replaces the client used for API calls.
func WithHTTPClient(client *http.Client) SpotifyOption {
	return func(s *SpotifyService) {
		if client != nil {
			s.httpClient = client
		}
	}
}

// WithLogger sets the logger used for degraded reads.
func WithLogger(l *log.Logger) SpotifyOption {
	return func(s *SpotifyService) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithAPIConfig applies the [spotify] section of the config file.
func WithAPIConfig(cfg shared.SpotifyAPIConfig) SpotifyOption {
	return func(s *SpotifyService) {
		WithBaseURL(cfg.BaseURL)(s)
		WithRateLimit(cfg.RequestsPerSecond)(s)
		WithRequestTimeout(cfg.RequestTimeout)(s)
	}
}

// SpotifyService implements the [Catalog] interface for Spotify API interactions.
// Uses [oauth2] with PKCE for authentication.
type SpotifyService struct {
	config         *oauth2.Config
	httpClient     *http.Client
	baseURL        string
	timeout        time.Duration
	limiter        *rate.Limiter
	logger         *log.Logger
	credentials    map[string]string
	onTokenRefresh func(*oauth2.Token)

	mu     sync.Mutex
	source oauth2.TokenSource
}

// NewSpotifyService creates a new Spotify service with the given OAuth2 credentials.
//
// Only client_id is required: without a client_secret the service acts as a public PKCE client.
func NewSpotifyService(credentials map[string]string, opts ...SpotifyOption) (*SpotifyService, error) {
	clientID, ok := credentials["client_id"]
	if !ok || clientID == "" {
		return nil, fmt.Errorf("%w: missing client_id in credentials", shared.ErrMissingCredentials)
	}

	redirectURI, ok := credentials["redirect_uri"]
	if !ok || redirectURI == "" {
		redirectURI = "http://127.0.0.1:3000/callback"
	}

	config := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: credentials["client_secret"],
		RedirectURL:  redirectURI,
		Scopes: []string{
			"user-read-private",
			"playlist-modify-private",
			"playlist-modify-public",
		},
		Endpoint: oauth2.Endpoint{
			AuthURL:   spotifyAuthURL,
			TokenURL:  spotifyTokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	s := &SpotifyService{
		config:      config,
		httpClient:  http.DefaultClient,
		baseURL:     spotifyBaseURL,
		timeout:     defaultRequestTimeout,
		logger:      log.Default(),
		credentials: credentials,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *SpotifyService) Name() string {
	return "Spotify"
}

// SetTokenRefreshCallback registers fn to be called whenever a new token is issued.
func (s *SpotifyService) SetTokenRefreshCallback(fn func(*oauth2.Token)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onTokenRefresh = fn
	if rs, ok := s.source.(*refreshableTokenSource); ok {
		rs.mu.Lock()
		rs.callback = fn
		rs.mu.Unlock()
	}
}

// Authenticate performs OAuth2 authentication with Spotify.
//
// Expects either an "access_token" (with optional "refresh_token" and RFC 3339 "token_expiry")
// or an "auth_code" with the PKCE "code_verifier" used to request it.
func (s *SpotifyService) Authenticate(ctx context.Context, credentials map[string]string) error {
	if accessToken, ok := credentials["access_token"]; ok && accessToken != "" {
		token := &oauth2.Token{
			AccessToken:  accessToken,
			RefreshToken: credentials["refresh_token"],
			TokenType:    "Bearer",
		}
		if expiry, err := time.Parse(time.RFC3339, credentials["token_expiry"]); err == nil {
			token.Expiry = expiry
		}
		s.SetToken(ctx, token)
		return nil
	}

	if authCode, ok := credentials["auth_code"]; ok && authCode != "" {
		token, err := s.Exchange(ctx, authCode, credentials["code_verifier"])
		if err != nil {
			return err
		}
		s.SetToken(ctx, token)
		return nil
	}

	return fmt.Errorf("%w: missing access_token or auth_code in credentials", shared.ErrMissingCredentials)
}

// SetToken installs token as the current credential. Expired tokens with a refresh token are refreshed on demand.
func (s *SpotifyService) SetToken(ctx context.Context, token *oauth2.Token) {
	s.mu.Lock()
	defer s.mu.Unlock()

	base := oauth2.ReuseTokenSource(token, s.config.TokenSource(context.WithoutCancel(ctx), token))
	s.source = &refreshableTokenSource{
		source:    base,
		callback:  s.onTokenRefresh,
		lastToken: token.AccessToken,
	}
}

// AuthURL returns the authorization URL for user login with an S256 PKCE challenge derived from verifier.
func (s *SpotifyService) AuthURL(state, verifier string) string {
	return s.config.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))
}

// Exchange trades an authorization code for a token.
func (s *SpotifyService) Exchange(ctx context.Context, code, verifier string) (*oauth2.Token, error) {
	var opts []oauth2.AuthCodeOption
	if verifier != "" {
		opts = append(opts, oauth2.VerifierOption(verifier))
	}

	token, err := s.config.Exchange(ctx, code, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to exchange auth code: %w", shared.ErrAuthFailed, err)
	}
	return token, nil
}

// ValidToken returns a usable bearer token, refreshing it when it has expired.
func (s *SpotifyService) ValidToken(ctx context.Context) (*oauth2.Token, error) {
	s.mu.Lock()
	source := s.source
	s.mu.Unlock()

	if source == nil {
		return nil, shared.ErrNotAuthenticated
	}

	token, err := source.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrAuthFailed, err)
	}
	if !token.Valid() {
		return nil, shared.ErrTokenExpired
	}
	return token, nil
}

// doRequest performs one authenticated HTTP request to the Spotify API.
//
// body, when non-nil, is sent as JSON. Non-success responses, 429 included, are returned as [*APIError]
// without a retry; callers decide whether to degrade or surface them.
func (s *SpotifyService) doRequest(ctx context.Context, method, endpoint string, body any, result any) error {
	token, err := s.ValidToken(ctx)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	token.SetAuthHeader(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", shared.ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
		if resp.StatusCode == http.StatusTooManyRequests {
			s.logger.Warn("rate limited", "endpoint", endpoint, "retry_after", resp.Header.Get("Retry-After"))
		}
		return apiErr
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// UserProfile retrieves the current authenticated user's profile.
func (s *SpotifyService) UserProfile(ctx context.Context) (*SpotifyUser, error) {
	var user SpotifyUser
	if err := s.doRequest(ctx, http.MethodGet, "/me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// CurrentUser returns the authenticated user. Any failure wraps [shared.ErrAuthFailed].
func (s *SpotifyService) CurrentUser(ctx context.Context) (*models.User, error) {
	user, err := s.UserProfile(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrAuthFailed, err)
	}
	if user.ID == "" {
		return nil, fmt.Errorf("%w: profile has no id", shared.ErrAuthFailed)
	}
	return &models.User{ID: user.ID, DisplayName: user.DisplayName}, nil
}

// FindArtistByName searches for an artist and returns the first match.
func (s *SpotifyService) FindArtistByName(ctx context.Context, name string) (models.ArtistRef, bool) {
	q := url.Values{}
	q.Set("q", name)
	q.Set("type", "artist")
	q.Set("limit", "1")

	var response artistSearch
	if err := s.doRequest(ctx, http.MethodGet, "/search?"+q.Encode(), nil, &response); err != nil {
		s.logger.Warn("artist search failed", "artist", name, "error", err)
		return models.ArtistRef{}, false
	}
	if len(response.Artists.Items) == 0 {
		return models.ArtistRef{}, false
	}

	a := response.Artists.Items[0]
	return models.ArtistRef{ID: a.ID, Name: a.Name}, true
}

// RelatedArtists retrieves the artists related to artistID.
func (s *SpotifyService) RelatedArtists(ctx context.Context, artistID string) []models.ArtistRef {
	var response struct {
		Artists []SpotifyArtist `json:"artists"`
	}

	endpoint := fmt.Sprintf("/artists/%s/related-artists", url.PathEscape(artistID))
	if err := s.doRequest(ctx, http.MethodGet, endpoint, nil, &response); err != nil {
		s.logger.Warn("related artists lookup failed", "artist_id", artistID, "error", err)
		return nil
	}

	artists := make([]models.ArtistRef, 0, len(response.Artists))
	for _, a := range response.Artists {
		artists = append(artists, models.ArtistRef{ID: a.ID, Name: a.Name})
	}
	return artists
}

// TopTracks retrieves the artist's top tracks in the market of the current user.
func (s *SpotifyService) TopTracks(ctx context.Context, artistID string) []models.TrackCandidate {
	var response struct {
		Tracks []SpotifyTrack `json:"tracks"`
	}

	endpoint := fmt.Sprintf("/artists/%s/top-tracks?market=from_token", url.PathEscape(artistID))
	if err := s.doRequest(ctx, http.MethodGet, endpoint, nil, &response); err != nil {
		s.logger.Warn("top tracks lookup failed", "artist_id", artistID, "error", err)
		return nil
	}

	tracks := make([]models.TrackCandidate, 0, len(response.Tracks))
	for _, t := range response.Tracks {
		tracks = append(tracks, toCandidate(t))
	}
	return tracks
}

// CreatePlaylist creates an empty playlist for userID.
func (s *SpotifyService) CreatePlaylist(ctx context.Context, userID string, spec models.PlaylistSpec) (*models.PlaylistRef, error) {
	body := map[string]any{
		"name":        spec.Name,
		"public":      spec.Public,
		"description": spec.Description,
	}

	var playlist SpotifyPlaylist
	endpoint := fmt.Sprintf("/users/%s/playlists", url.PathEscape(userID))
	if err := s.doRequest(ctx, http.MethodPost, endpoint, body, &playlist); err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrPlaylistCreation, err)
	}

	return &models.PlaylistRef{
		ID:   playlist.ID,
		Name: playlist.Name,
		URL:  playlist.ExternalURLs.Spotify,
	}, nil
}

// AddTracks appends one batch of track URIs to a playlist.
func (s *SpotifyService) AddTracks(ctx context.Context, playlistID string, uris []string) error {
	if len(uris) > MaxTracksPerRequest {
		return fmt.Errorf("%w: %d tracks exceeds the batch limit of %d", shared.ErrInvalidInput, len(uris), MaxTracksPerRequest)
	}
	if len(uris) == 0 {
		return nil
	}

	body := map[string]any{"uris": uris}
	endpoint := fmt.Sprintf("/playlists/%s/tracks", url.PathEscape(playlistID))
	if err := s.doRequest(ctx, http.MethodPost, endpoint, body, nil); err != nil {
		return fmt.Errorf("%w: %w", shared.ErrTrackAppend, err)
	}
	return nil
}

func toCandidate(t SpotifyTrack) models.TrackCandidate {
	c := models.TrackCandidate{
		URI:         t.URI,
		ID:          t.ID,
		Name:        t.Name,
		Album:       t.Album.Name,
		ReleaseDate: t.Album.ReleaseDate,
		ReleaseYear: models.ParseReleaseYear(t.Album.ReleaseDate),
		Popularity:  t.Popularity,
	}
	if len(t.Artists) > 0 {
		c.Artist = t.Artists[0].Name
	}
	return c
}

// refreshableTokenSource reports every newly issued token to callback.
type refreshableTokenSource struct {
	source    oauth2.TokenSource
	callback  func(*oauth2.Token)
	mu        sync.Mutex
	lastToken string
}

func (r *refreshableTokenSource) Token() (*oauth2.Token, error) {
	token, err := r.source.Token()
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	changed := token.AccessToken != r.lastToken
	r.lastToken = token.AccessToken
	cb := r.callback
	r.mu.Unlock()

	if changed && cb != nil {
		cb(token)
	}
	return token, nil
}
