package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/crawlmix/internal/formatter"
	"github.com/desertthunder/crawlmix/internal/models"
	"github.com/desertthunder/crawlmix/internal/repositories"
	"github.com/desertthunder/crawlmix/internal/shared"
	"github.com/desertthunder/crawlmix/internal/tasks"
	"github.com/urfave/cli/v3"
)

// runSummary is the JSON shape of a ledger entry.
type runSummary struct {
	ID            string                  `json:"id"`
	Number        int                     `json:"number"`
	Status        models.RunStatus        `json:"status"`
	Requested     int                     `json:"requested"`
	Collected     int                     `json:"collected"`
	YearFrom      int                     `json:"year_from"`
	YearTo        int                     `json:"year_to"`
	MinPopularity int                     `json:"min_popularity"`
	MaxPopularity int                     `json:"max_popularity"`
	Seeds         []string                `json:"seeds"`
	PlaylistID    string                  `json:"playlist_id,omitempty"`
	PlaylistURL   string                  `json:"playlist_url,omitempty"`
	Error         string                  `json:"error,omitempty"`
	Iterations    int                     `json:"iterations"`
	Passes        int                     `json:"passes"`
	CreatedAt     time.Time               `json:"created_at"`
	Tracks        []models.TrackCandidate `json:"tracks,omitempty"`
}

func summarize(run *models.Run, withTracks bool) runSummary {
	s := runSummary{
		ID:            run.ID(),
		Number:        run.Sequence(),
		Status:        run.Status(),
		Requested:     run.RequestedSize(),
		Collected:     run.Collected(),
		YearFrom:      run.YearFrom(),
		YearTo:        run.YearTo(),
		MinPopularity: run.MinPopularity(),
		MaxPopularity: run.MaxPopularity(),
		Seeds:         run.Seeds(),
		PlaylistID:    run.PlaylistID(),
		PlaylistURL:   run.PlaylistURL(),
		Error:         run.Error(),
		Iterations:    run.Iterations(),
		Passes:        run.Passes(),
		CreatedAt:     run.CreatedAt(),
	}
	if withTracks {
		s.Tracks = run.Tracks()
	}
	return s
}

// requireLedger returns the run repository or explains how to enable it.
func (r *Runner) requireLedger() (*repositories.RunRepository, error) {
	repo, err := r.ledger()
	if err != nil {
		return nil, err
	}
	if repo == nil {
		return nil, fmt.Errorf("%w: run history is disabled; set database.enabled = true in %s or CRAWLMIX_DB",
			shared.ErrMissingConfig, r.configPath)
	}
	return repo, nil
}

// findRun resolves a run number or id.
func findRun(repo *repositories.RunRepository, ref string) (*models.Run, error) {
	if ref == "" {
		return nil, fmt.Errorf("%w: run number or id", shared.ErrMissingArgument)
	}
	if n, err := strconv.Atoi(strings.TrimPrefix(ref, "#")); err == nil {
		return repo.GetBySequence(n)
	}
	return repo.Get(ref)
}

// HistoryList prints recorded runs.
func (r *Runner) HistoryList(ctx context.Context, cmd *cli.Command) error {
	repo, err := r.requireLedger()
	if err != nil {
		return err
	}

	criteria := map[string]any{"limit": cmd.Int("limit")}
	if status := cmd.String("status"); status != "" {
		if !models.RunStatus(status).Valid() {
			return fmt.Errorf("%w: unknown status %q", shared.ErrInvalidArgument, status)
		}
		criteria["status"] = models.RunStatus(status)
	}

	runs, err := repo.List(criteria)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		out := make([]runSummary, len(runs))
		for i, run := range runs {
			out[i] = summarize(run, false)
		}
		return r.writeJSON(out, true)
	}

	if len(runs) == 0 {
		return r.writePlain("No runs recorded yet.\n")
	}

	r.writePlain("Found %d runs:\n\n", len(runs))
	for _, run := range runs {
		r.writePlain("#%d  %-9s  %d/%d tracks  %d-%d  %s\n",
			run.Sequence(), run.Status(), run.Collected(), run.RequestedSize(),
			run.YearFrom(), run.YearTo(), run.CreatedAt().Local().Format("2006-01-02 15:04"))
		if run.PlaylistURL() != "" {
			r.writePlain("     %s\n", run.PlaylistURL())
		}
	}
	return nil
}

// HistoryShow prints one run with its tracks, optionally exporting them.
func (r *Runner) HistoryShow(ctx context.Context, cmd *cli.Command) error {
	repo, err := r.requireLedger()
	if err != nil {
		return err
	}

	run, err := findRun(repo, cmd.StringArg("run"))
	if err != nil {
		return err
	}

	if path := cmd.String("output"); path != "" {
		written, err := formatter.WriteExport(runExport(run), path, "")
		if err != nil {
			return err
		}
		r.logger.Info("run exported", "path", written)
	}

	if cmd.Bool("json") {
		return r.writeJSON(summarize(run, true), true)
	}

	r.writePlainHeader(fmt.Sprintf("Run #%d (%s)", run.Sequence(), run.Status()))
	r.writePlain("ID: %s\n", run.ID())
	r.writePlain("Created: %s\n", run.CreatedAt().Local().Format(time.RFC1123))
	r.writePlain("Seeds: %s\n", strings.Join(run.Seeds(), ", "))
	r.writePlain("Filter: years %d-%d, popularity %d-%d\n", run.YearFrom(), run.YearTo(), run.MinPopularity(), run.MaxPopularity())
	r.writePlain("Tracks: %d/%d in %d crawls over %d passes\n", run.Collected(), run.RequestedSize(), run.Iterations(), run.Passes())
	if run.PlaylistURL() != "" {
		r.writePlain("Playlist: %s\n", run.PlaylistURL())
	}
	if run.Error() != "" {
		r.writePlain("Error: %s\n", run.Error())
	}

	r.writePlain("\n")
	for i, t := range run.Tracks() {
		r.writePlain("%3d. %s - %s (%d, %d)\n", i+1, t.Artist, t.Name, t.ReleaseYear, t.Popularity)
	}
	return nil
}

// HistoryDelete soft-deletes a run.
func (r *Runner) HistoryDelete(ctx context.Context, cmd *cli.Command) error {
	repo, err := r.requireLedger()
	if err != nil {
		return err
	}

	run, err := findRun(repo, cmd.StringArg("run"))
	if err != nil {
		return err
	}
	if err := repo.Delete(run.ID()); err != nil {
		return err
	}
	return r.writePlain("✓ Deleted run #%d\n", run.Sequence())
}

func runExport(run *models.Run) *formatter.Export {
	req := tasks.Request{
		YearFrom:      run.YearFrom(),
		YearTo:        run.YearTo(),
		MinPopularity: run.MinPopularity(),
		MaxPopularity: run.MaxPopularity(),
	}
	return &formatter.Export{
		Playlist:    req.PlaylistSpec(),
		URL:         run.PlaylistURL(),
		Filter:      req.Filter().String(),
		Seeds:       run.Seeds(),
		Requested:   run.RequestedSize(),
		Tracks:      run.Tracks(),
		GeneratedAt: run.CreatedAt(),
	}
}
