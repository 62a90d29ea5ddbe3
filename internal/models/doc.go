// Package models defines domain entities and persistence interfaces for crawlmix.
//
// The package contains two categories of types:
//
// 1. Data Transfer Objects (DTOs): Lightweight structs representing catalog data
//   - [ArtistRef] : Artist identity from the related-artist graph
//   - [TrackCandidate] : Track metadata evaluated by the discovery filter
//   - [PlaylistSpec] / [PlaylistRef] : Playlist creation request and result
//   - [User] : The authenticated catalog account
//
// 2. Persistent Entities: Database-backed models for the optional run ledger
//   - [Run] : A finished discovery session with its request, outcome and tracks
//
// Persistent entities implement the Model interface providing ID, timestamps and validation.
// The Repository[T] interface defines standard CRUD operations for database access.
package models
