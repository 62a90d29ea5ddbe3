package models

import (
	"fmt"
	"time"
)

// RunStatus is the outcome of a discovery session.
type RunStatus string

const (
	RunCompleted RunStatus = "completed" // playlist created with every collected track
	RunPartial   RunStatus = "partial"   // playlist created but an append batch failed
	RunDryRun    RunStatus = "dry_run"   // crawl only, nothing written
	RunFailed    RunStatus = "failed"    // no playlist
)

// Valid reports whether s is a known status.
func (s RunStatus) Valid() bool {
	switch s {
	case RunCompleted, RunPartial, RunDryRun, RunFailed:
		return true
	}
	return false
}

// Run is a ledger entry for one discovery session.
type Run struct {
	id            string
	sequence      int
	status        RunStatus
	requestedSize int
	yearFrom      int
	yearTo        int
	minPopularity int
	maxPopularity int
	seeds         []string
	playlistID    string
	playlistURL   string
	errMsg        string
	iterations    int
	passes        int
	tracks        []TrackCandidate
	createdAt     time.Time
	updatedAt     time.Time
	deletedAt     *time.Time
}

// NewRun creates a [Run] for a request of requestedSize tracks drawn from seeds.
func NewRun(sequence, requestedSize int, seeds []string) *Run {
	now := time.Now()
	return &Run{
		sequence:      sequence,
		status:        RunCompleted,
		requestedSize: requestedSize,
		seeds:         append([]string(nil), seeds...),
		createdAt:     now,
		updatedAt:     now,
	}
}

func (r *Run) ID() string               { return r.id }
func (r *Run) Sequence() int            { return r.sequence }
func (r *Run) Status() RunStatus        { return r.status }
func (r *Run) RequestedSize() int       { return r.requestedSize }
func (r *Run) YearFrom() int            { return r.yearFrom }
func (r *Run) YearTo() int              { return r.yearTo }
func (r *Run) MinPopularity() int       { return r.minPopularity }
func (r *Run) MaxPopularity() int       { return r.maxPopularity }
func (r *Run) Seeds() []string          { return r.seeds }
func (r *Run) PlaylistID() string       { return r.playlistID }
func (r *Run) PlaylistURL() string      { return r.playlistURL }
func (r *Run) Error() string            { return r.errMsg }
func (r *Run) Iterations() int          { return r.iterations }
func (r *Run) Passes() int              { return r.passes }
func (r *Run) Tracks() []TrackCandidate { return r.tracks }
func (r *Run) CreatedAt() time.Time     { return r.createdAt }
func (r *Run) UpdatedAt() time.Time     { return r.updatedAt }
func (r *Run) DeletedAt() *time.Time    { return r.deletedAt }

// Collected returns the number of tracks recorded for the run.
func (r *Run) Collected() int { return len(r.tracks) }

func (r *Run) SetID(id string)                   { r.id = id }
func (r *Run) SetSequence(sequence int)          { r.sequence = sequence }
func (r *Run) SetStatus(status RunStatus)        { r.status = status }
func (r *Run) SetError(msg string)               { r.errMsg = msg }
func (r *Run) SetTracks(tracks []TrackCandidate) { r.tracks = tracks }
func (r *Run) SetCreatedAt(t time.Time)          { r.createdAt = t }
func (r *Run) SetUpdatedAt(t time.Time)          { r.updatedAt = t }
func (r *Run) SetDeletedAt(t *time.Time)         { r.deletedAt = t }

// SetFilter records the year and popularity bounds of the request.
func (r *Run) SetFilter(yearFrom, yearTo, minPopularity, maxPopularity int) {
	r.yearFrom, r.yearTo = yearFrom, yearTo
	r.minPopularity, r.maxPopularity = minPopularity, maxPopularity
}

// SetPlaylist records the created playlist.
func (r *Run) SetPlaylist(id, url string) {
	r.playlistID, r.playlistURL = id, url
}

// SetProgress records how many crawls and passes the session used.
func (r *Run) SetProgress(iterations, passes int) {
	r.iterations, r.passes = iterations, passes
}

// Validate checks the run before it is written.
func (r *Run) Validate() error {
	if r.id == "" {
		return fmt.Errorf("run id is required")
	}
	if !r.status.Valid() {
		return fmt.Errorf("invalid run status: %q", r.status)
	}
	if r.requestedSize <= 0 {
		return fmt.Errorf("requested size must be positive, got %d", r.requestedSize)
	}
	if len(r.tracks) > r.requestedSize {
		return fmt.Errorf("run has %d tracks, more than the requested %d", len(r.tracks), r.requestedSize)
	}
	return nil
}
