// Package tasks runs discovery sessions with real-time progress reporting.
//
// # Core Operation
//
// [DiscoveryEngine.Generate] turns a [Request] into a playlist:
//
//  1. Validates the size, filter and seed list before any network call
//  2. Resolves the current user
//  3. Crawls from the seeds in shuffled round-robin passes, one bounded wave per seed,
//     until the target size is reached or the iteration budget is spent
//  4. Truncates the collection to the requested size, keeping collection order
//  5. Creates the playlist and appends the tracks in batches of 100
//
// An undersized collection is returned as is. An empty one is [shared.ErrNoResults].
// A failed append returns the partial [Result] with a [*TrackAppendError].
//
// # Progress Reporting
//
// The [ProgressUpdate] struct contains phase, step counters, the collected count, messages,
// and optional data for advanced UI rendering. Updates use select with default to prevent blocking.
//
// # Run Ledger
//
// The optional [RunRecorder] receives a [models.Run] when a session ends.
// Recording errors are logged and ignored.
package tasks
