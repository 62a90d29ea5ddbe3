package repositories

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/crawlmix/internal/models"
	"github.com/desertthunder/crawlmix/internal/shared"
)

const runColumns = `id, sequence, status, requested_size, year_from, year_to, min_popularity, max_popularity,
	seeds, playlist_id, playlist_url, error, iterations, passes, created_at, updated_at, deleted_at`

var _ models.Repository[*models.Run] = (*RunRepository)(nil)

// RunRepository implements models.Repository[*models.Run] for the discovery ledger.
//
// A run's collected tracks live in run_tracks and are written in the same transaction as the run.
type RunRepository struct {
	db *sql.DB
}

// NewRunRepository creates a new RunRepository with the given database connection
func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Create inserts a new run and its tracks with a generated ID and sequence
func (r *RunRepository) Create(run *models.Run) error {
	sequence, err := NextSequence(r.db, "runs")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	run.SetID(shared.GenerateID())
	run.SetSequence(sequence)

	if err := run.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	seeds, err := json.Marshal(run.Seeds())
	if err != nil {
		return fmt.Errorf("failed to encode seeds: %w", err)
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO runs (id, sequence, status, requested_size, collected, year_from, year_to, min_popularity, max_popularity,
			seeds, playlist_id, playlist_url, error, iterations, passes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = tx.Exec(query,
		run.ID(),
		run.Sequence(),
		string(run.Status()),
		run.RequestedSize(),
		run.Collected(),
		run.YearFrom(),
		run.YearTo(),
		run.MinPopularity(),
		run.MaxPopularity(),
		string(seeds),
		run.PlaylistID(),
		run.PlaylistURL(),
		run.Error(),
		run.Iterations(),
		run.Passes(),
		run.CreatedAt(),
		run.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	if err := insertRunTracks(tx, run.ID(), run.Tracks()); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

// Get retrieves a run and its tracks by ID, excluding soft-deleted runs
func (r *RunRepository) Get(id string) (*models.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE id = ? AND deleted_at IS NULL`

	run, err := scanRun(r.db.QueryRow(query, id))
	if err != nil {
		return nil, err
	}
	if err := r.loadTracks(run); err != nil {
		return nil, err
	}
	return run, nil
}

// GetBySequence retrieves a run by its sequence number
func (r *RunRepository) GetBySequence(sequence int) (*models.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE sequence = ? AND deleted_at IS NULL`

	run, err := scanRun(r.db.QueryRow(query, sequence))
	if err != nil {
		return nil, err
	}
	if err := r.loadTracks(run); err != nil {
		return nil, err
	}
	return run, nil
}

// Update rewrites a run's outcome and replaces its tracks
func (r *RunRepository) Update(run *models.Run) error {
	if err := run.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now()
	run.SetUpdatedAt(now)

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		UPDATE runs
		SET status = ?, collected = ?, playlist_id = ?, playlist_url = ?, error = ?, iterations = ?, passes = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := tx.Exec(query,
		string(run.Status()),
		run.Collected(),
		run.PlaylistID(),
		run.PlaylistURL(),
		run.Error(),
		run.Iterations(),
		run.Passes(),
		now,
		run.ID(),
	)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrRunNotFound, run.ID())
	}

	if _, err := tx.Exec(`DELETE FROM run_tracks WHERE run_id = ?`, run.ID()); err != nil {
		return fmt.Errorf("failed to clear run tracks: %w", err)
	}
	if err := insertRunTracks(tx, run.ID(), run.Tracks()); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

// Delete soft-deletes a run by ID
func (r *RunRepository) Delete(id string) error {
	query := `
		UPDATE runs
		SET deleted_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := r.db.Exec(query, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrRunNotFound, id)
	}
	return nil
}

// List retrieves runs newest first, excluding soft-deleted runs.
//
// Supported criteria: "status" (string or [models.RunStatus]) and "limit" (int).
func (r *RunRepository) List(criteria map[string]any) ([]*models.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE deleted_at IS NULL`
	args := []any{}

	switch status := criteria["status"].(type) {
	case models.RunStatus:
		query += " AND status = ?"
		args = append(args, string(status))
	case string:
		if status != "" {
			query += " AND status = ?"
			args = append(args, status)
		}
	}

	query += " ORDER BY sequence DESC"

	if limit, ok := criteria["limit"].(int); ok && limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	for _, run := range runs {
		if err := r.loadTracks(run); err != nil {
			return nil, err
		}
	}
	return runs, nil
}

func (r *RunRepository) loadTracks(run *models.Run) error {
	rows, err := r.db.Query(`
		SELECT uri, name, artist, release_year, popularity
		FROM run_tracks
		WHERE run_id = ?
		ORDER BY position ASC
	`, run.ID())
	if err != nil {
		return fmt.Errorf("failed to query run tracks: %w", err)
	}
	defer rows.Close()

	var tracks []models.TrackCandidate
	for rows.Next() {
		var t models.TrackCandidate
		if err := rows.Scan(&t.URI, &t.Name, &t.Artist, &t.ReleaseYear, &t.Popularity); err != nil {
			return fmt.Errorf("failed to scan run track: %w", err)
		}
		tracks = append(tracks, t)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("row iteration error: %w", err)
	}

	run.SetTracks(tracks)
	return nil
}

func insertRunTracks(tx *sql.Tx, runID string, tracks []models.TrackCandidate) error {
	if len(tracks) == 0 {
		return nil
	}

	stmt, err := tx.Prepare(`
		INSERT INTO run_tracks (run_id, position, uri, name, artist, release_year, popularity)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare run track insert: %w", err)
	}
	defer stmt.Close()

	for i, t := range tracks {
		if _, err := stmt.Exec(runID, i, t.URI, t.Name, t.Artist, t.ReleaseYear, t.Popularity); err != nil {
			return fmt.Errorf("failed to insert run track %s: %w", t.URI, err)
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanRun scans a single runs row into a [models.Run] without its tracks
func scanRun(row rowScanner) (*models.Run, error) {
	var (
		id            string
		sequence      int
		status        string
		requestedSize int
		yearFrom      int
		yearTo        int
		minPopularity int
		maxPopularity int
		seedsJSON     string
		playlistID    string
		playlistURL   string
		errMsg        string
		iterations    int
		passes        int
		createdAt     time.Time
		updatedAt     time.Time
		deletedAt     sql.NullTime
	)

	err := row.Scan(&id, &sequence, &status, &requestedSize, &yearFrom, &yearTo, &minPopularity, &maxPopularity,
		&seedsJSON, &playlistID, &playlistURL, &errMsg, &iterations, &passes, &createdAt, &updatedAt, &deletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	var seeds []string
	if err := json.Unmarshal([]byte(seedsJSON), &seeds); err != nil {
		return nil, fmt.Errorf("failed to decode seeds of run %s: %w", id, err)
	}

	run := models.NewRun(sequence, requestedSize, seeds)
	run.SetID(id)
	run.SetStatus(models.RunStatus(status))
	run.SetFilter(yearFrom, yearTo, minPopularity, maxPopularity)
	run.SetPlaylist(playlistID, playlistURL)
	run.SetError(errMsg)
	run.SetProgress(iterations, passes)
	run.SetCreatedAt(createdAt)
	run.SetUpdatedAt(updatedAt)
	if deletedAt.Valid {
		run.SetDeletedAt(&deletedAt.Time)
	}
	return run, nil
}
