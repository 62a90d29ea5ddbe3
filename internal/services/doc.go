// Package services defines the [Catalog] interface consumed by the discovery crawl and implements it for Spotify.
//
// # Catalog Interface
//
// The crawl needs three reads (artist search, related artists, top tracks), two writes
// (create playlist, append tracks) and the current user profile.
// Reads degrade to an empty result on any failure and log a warning; writes return errors.
//
// # Spotify Implementation
//
// [SpotifyService] uses OAuth2 with PKCE for authentication and refreshes expired tokens
// from the stored refresh token. A callback registered with [SpotifyService.SetTokenRefreshCallback]
// is invoked whenever the token changes so it can be persisted.
//
// Requests are paced by a token-bucket limiter and bounded by a per-request timeout.
//
// # Error Handling
//
// Services use typed errors from shared package:
//   - [shared.ErrNotAuthenticated] : Authenticate() not called
//   - [shared.ErrAuthFailed] : no usable token or the profile lookup was rejected
//   - [shared.ErrPlaylistCreation] : playlist creation was rejected
//   - [shared.ErrTrackAppend] : a track batch was rejected
//   - [shared.ErrInvalidInput] : a batch larger than [MaxTracksPerRequest]
//
// Non-success responses are carried as [*APIError] with the status and body.
package services
