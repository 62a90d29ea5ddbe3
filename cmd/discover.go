package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/desertthunder/crawlmix/internal/formatter"
	"github.com/desertthunder/crawlmix/internal/tasks"
	"github.com/urfave/cli/v3"
)

// requestFromFlags builds a request from the config defaults overridden by any flags that were set.
func (r *Runner) requestFromFlags(cmd *cli.Command) tasks.Request {
	d := r.config.Discovery
	req := tasks.Request{
		Size:          d.Size,
		YearFrom:      d.YearFrom,
		YearTo:        d.YearTo,
		MinPopularity: d.MinPopularity,
		MaxPopularity: d.MaxPopularity,
		Seeds:         d.Seeds,
		PlaylistName:  d.PlaylistName,
		Public:        d.Public,
		DryRun:        cmd.Bool("dry-run"),
	}

	if cmd.IsSet("size") {
		req.Size = cmd.Int("size")
	}
	if cmd.IsSet("year-from") {
		req.YearFrom = cmd.Int("year-from")
	}
	if cmd.IsSet("year-to") {
		req.YearTo = cmd.Int("year-to")
	}
	if cmd.IsSet("min-popularity") {
		req.MinPopularity = cmd.Int("min-popularity")
	}
	if cmd.IsSet("max-popularity") {
		req.MaxPopularity = cmd.Int("max-popularity")
	}
	if seeds := cmd.StringSlice("seed"); len(seeds) > 0 {
		req.Seeds = seeds
	}
	if cmd.IsSet("name") {
		req.PlaylistName = cmd.String("name")
	}
	if cmd.IsSet("public") {
		req.Public = cmd.Bool("public")
	}
	return req
}

// Discover runs one discovery session and reports the playlist it built.
func (r *Runner) Discover(ctx context.Context, cmd *cli.Command) error {
	req := r.requestFromFlags(cmd)
	if err := req.Validate(); err != nil {
		return err
	}

	format, err := outputFormat(cmd)
	if err != nil {
		return err
	}

	engine, err := r.newEngine(cmd.Bool("parallel"))
	if err != nil {
		return err
	}

	useJSON := cmd.Bool("json")
	quiet := cmd.Bool("quiet") || useJSON

	r.logger.Info("starting discovery", "size", req.Size, "seeds", len(req.Seeds), "filter", req.Filter().String())
	if !quiet {
		r.writePlain("Crawling %d seed artists for %d tracks (%s)\n\n", len(req.Seeds), req.Size, req.Filter())
	}

	progressCh := make(chan tasks.ProgressUpdate, 100)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for update := range progressCh {
			if !quiet {
				r.printProgress(update)
			}
		}
	}()

	result, err := engine.Generate(ctx, req, progressCh)
	close(progressCh)
	wg.Wait()

	if result == nil {
		return err
	}

	if path := cmd.String("output"); path != "" {
		written, werr := formatter.WriteExport(newExport(req, result), path, format)
		if werr != nil {
			r.logger.Error("failed to write export", "error", werr)
		} else {
			r.logger.Info("tracks exported", "path", written, "format", format)
		}
	}

	if useJSON {
		if jerr := r.writeJSON(newExport(req, result), cmd.Bool("pretty")); jerr != nil {
			return jerr
		}
	} else {
		r.printResult(result, err)
	}

	if cmd.Bool("open") && result.Playlist != nil && result.Playlist.URL != "" {
		if oerr := r.openURL(result.Playlist.URL); oerr != nil {
			r.logger.Warn("failed to open playlist", "url", result.Playlist.URL, "error", oerr)
		}
	}

	return err
}

func (r *Runner) printProgress(update tasks.ProgressUpdate) {
	switch update.Phase {
	case tasks.Authenticate:
		r.writePlain("🔑 %s\n", update.Message)
	case tasks.SeedChosen:
		r.writePlain("\n🌱 %s\n", update.Message)
	case tasks.BranchExplored:
		r.writePlain("   %s\n", update.Message)
	case tasks.TracksCollected:
		r.writePlain("   %s\n", update.Message)
	case tasks.PassComplete:
		r.writePlain("\n🔁 %s\n", update.Message)
	case tasks.CreatePlaylist:
		r.writePlain("\n📝 %s\n", update.Message)
	case tasks.AppendTracks:
		r.writePlain("   %s\n", update.Message)
	}
}

func (r *Runner) printResult(result *tasks.Result, err error) {
	r.writePlain("\n")
	switch {
	case err != nil:
		r.writePlainHeader("Playlist Incomplete")
	case result.DryRun:
		r.writePlainHeader("Dry Run Complete")
	default:
		r.writePlainHeader("Playlist Created")
	}

	if result.Playlist != nil {
		r.writePlain("Playlist: %s\n", result.Playlist.Name)
		r.writePlain("URL: %s\n", result.Playlist.URL)
		r.writePlain("Added: %d/%d tracks\n", result.Appended, len(result.Tracks))
	}
	r.writePlain("Collected: %d/%d tracks in %d crawls over %d passes\n",
		len(result.Tracks), result.Requested, result.Iterations, result.Passes)
	if result.RunID != "" {
		r.writePlain("Run: %s\n", result.RunID)
	}

	if result.Short() {
		r.writePlain("\n⚠ Only %d of %d requested tracks matched the filter\n", len(result.Tracks), result.Requested)
	}

	var appendErr *tasks.TrackAppendError
	if errors.As(err, &appendErr) {
		r.writePlain("\n⚠ %d of %d tracks were added before the failure: %v\n", appendErr.Appended, appendErr.Total, appendErr.Err)
	}

	r.writePlain("\n")
	for i, t := range result.Tracks {
		year := "????"
		if t.YearKnown() {
			year = fmt.Sprint(t.ReleaseYear)
		}
		r.writePlain("%3d. %s - %s (%s, %d)\n", i+1, t.Artist, t.Name, year, t.Popularity)
	}
}

func outputFormat(cmd *cli.Command) (formatter.Format, error) {
	if !cmd.IsSet("format") {
		return "", nil
	}
	return formatter.ParseFormat(cmd.String("format"))
}

func newExport(req tasks.Request, result *tasks.Result) *formatter.Export {
	export := &formatter.Export{
		Playlist:    req.PlaylistSpec(),
		Filter:      req.Filter().String(),
		Seeds:       req.Seeds,
		Requested:   result.Requested,
		Tracks:      result.Tracks,
		GeneratedAt: time.Now().UTC(),
	}
	if result.Playlist != nil {
		export.URL = result.Playlist.URL
	}
	return export
}
