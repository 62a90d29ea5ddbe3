// package tasks implements the discovery session that turns seed artists into a playlist.
//
// The core abstraction is DiscoveryEngine, which drives repeated crawls and assembles the playlist.
// Operations emit progress updates via channels for non-blocking status reporting to CLI/UI layers.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/crawlmix/internal/discovery"
	"github.com/desertthunder/crawlmix/internal/models"
	"github.com/desertthunder/crawlmix/internal/services"
	"github.com/desertthunder/crawlmix/internal/shared"
)

const (
	DefaultPlaylistName = "Nu Metal Discovery Mix"
	defaultDescription  = "Auto-generated via related-artist crawl. Popularity %d–%d."
)

// Request is one playlist-generation request.
type Request struct {
	Size          int
	YearFrom      int
	YearTo        int
	MinPopularity int
	MaxPopularity int
	Seeds         []string
	PlaylistName  string // Base name; the year range is appended
	Description   string // Defaults to a summary of the popularity range
	Public        bool
	DryRun        bool // Crawl only, nothing is written to the catalog
}

// Filter returns the request's track filter.
func (r Request) Filter() discovery.FilterSpec {
	return discovery.FilterSpec{
		YearFrom:      r.YearFrom,
		YearTo:        r.YearTo,
		MinPopularity: r.MinPopularity,
		MaxPopularity: r.MaxPopularity,
	}
}

// Validate checks the request before any catalog call. Errors wrap [shared.ErrInvalidInput].
func (r Request) Validate() error {
	if r.Size <= 0 {
		return fmt.Errorf("%w: size must be positive, got %d", shared.ErrInvalidInput, r.Size)
	}
	if err := r.Filter().Validate(); err != nil {
		return err
	}
	if len(seedNames(r.Seeds)) == 0 {
		return fmt.Errorf("%w: at least one seed artist is required", shared.ErrInvalidInput)
	}
	return nil
}

// PlaylistSpec returns the name, description and visibility of the playlist to create.
func (r Request) PlaylistSpec() models.PlaylistSpec {
	name := strings.TrimSpace(r.PlaylistName)
	if name == "" {
		name = DefaultPlaylistName
	}
	desc := r.Description
	if desc == "" {
		desc = fmt.Sprintf(defaultDescription, r.MinPopularity, r.MaxPopularity)
	}
	return models.PlaylistSpec{
		Name:        fmt.Sprintf("%s (%d–%d)", name, r.YearFrom, r.YearTo),
		Description: desc,
		Public:      r.Public,
	}
}

// Result is the outcome of a discovery session.
type Result struct {
	Tracks     []models.TrackCandidate // Collected tracks in collection order, at most Requested
	Requested  int
	User       *models.User
	Playlist   *models.PlaylistRef // nil on a dry run
	Appended   int                 // Tracks added to the playlist
	Iterations int                 // Crawls performed
	Passes     int                 // Passes over the seed list
	LowYield   int                 // Crawls that yielded fewer than the minimum
	DryRun     bool
	RunID      string // Ledger id when the run was recorded
}

// URIs returns the URIs of the collected tracks in order.
func (r *Result) URIs() []string {
	out := make([]string, len(r.Tracks))
	for i, t := range r.Tracks {
		out[i] = t.URI
	}
	return out
}

// Short reports whether fewer tracks than requested were collected.
func (r *Result) Short() bool {
	return len(r.Tracks) < r.Requested
}

// RunRecorder persists finished sessions. repositories.RunRepository implements it.
type RunRecorder interface {
	Create(run *models.Run) error
}

// EngineOpts tunes the orchestration loop. Zero values take the defaults.
type EngineOpts struct {
	WaveCap       int // Most tracks one crawl may contribute
	MinYield      int // Crawls below this yield are counted as low yield
	MaxIterations int // Crawls per session
	MaxPasses     int // Passes per session; 0 disables the bound
	Crawl         discovery.Options
	Logger        *log.Logger
	Recorder      RunRecorder
	Rand          func() *rand.Rand // Source for each session; nil seeds one randomly
}

// DefaultEngineOpts returns the loop bounds of the original crawler.
func DefaultEngineOpts() EngineOpts {
	return EngineOpts{
		WaveCap:       20,
		MinYield:      4,
		MaxIterations: 200,
		Crawl:         discovery.DefaultOptions(),
	}
}

// DiscoveryEngine runs discovery sessions against a catalog.
//
// Each call to Generate gets its own session, so one engine may serve concurrent requests.
type DiscoveryEngine struct {
	catalog services.Catalog
	opts    EngineOpts
	logger  *log.Logger
}

// NewDiscoveryEngine creates a new DiscoveryEngine with the provided catalog.
func NewDiscoveryEngine(catalog services.Catalog, opts EngineOpts) *DiscoveryEngine {
	d := DefaultEngineOpts()
	if opts.WaveCap <= 0 {
		opts.WaveCap = d.WaveCap
	}
	if opts.MinYield <= 0 {
		opts.MinYield = d.MinYield
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = d.MaxIterations
	}
	if opts.MaxPasses < 0 {
		opts.MaxPasses = 0
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &DiscoveryEngine{catalog: catalog, opts: opts, logger: logger}
}

// sendProgress sends a progress update through the channel without blocking.
// Uses select with default to ensure progress reporting never blocks execution.
func (e *DiscoveryEngine) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

func (e *DiscoveryEngine) newRand() *rand.Rand {
	if e.opts.Rand != nil {
		return e.opts.Rand()
	}
	return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
}

// Generate crawls from the request's seeds until Size tracks are collected or the iteration budget
// is spent, then creates the playlist and appends the tracks in batches of [services.MaxTracksPerRequest].
//
// An undersized but non-empty collection is not an error. When an append batch fails the partial
// result is returned together with a [*TrackAppendError]; the playlist is left as it is.
func (e *DiscoveryEngine) Generate(ctx context.Context, req Request, progress chan<- ProgressUpdate) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if e.catalog == nil {
		return nil, fmt.Errorf("%w: catalog not initialized", shared.ErrServiceUnavailable)
	}

	user, err := e.catalog.CurrentUser(ctx)
	if err != nil {
		if !errors.Is(err, shared.ErrAuthFailed) {
			err = fmt.Errorf("%w: %w", shared.ErrAuthFailed, err)
		}
		return nil, err
	}
	e.sendProgress(progress, authenticatedUpdate(user))

	result := &Result{Requested: req.Size, User: user, DryRun: req.DryRun}

	session := discovery.NewSession()
	if err := e.crawl(ctx, session, req, result, progress); err != nil {
		return nil, err
	}

	collected := session.Tracks()
	if len(collected) == 0 {
		e.record(req, result, models.RunFailed, shared.ErrNoResults)
		return nil, fmt.Errorf("%w (%s)", shared.ErrNoResults, req.Filter())
	}
	if len(collected) > req.Size {
		collected = collected[:req.Size]
	}
	result.Tracks = collected

	e.logger.Info("crawl finished",
		"collected", len(collected), "requested", req.Size,
		"iterations", result.Iterations, "passes", result.Passes)

	if req.DryRun {
		e.record(req, result, models.RunDryRun, nil)
		e.sendProgress(progress, completeUpdate(result))
		return result, nil
	}

	if err := e.assemble(ctx, req, result, progress); err != nil {
		var appendErr *TrackAppendError
		if errors.As(err, &appendErr) {
			e.record(req, result, models.RunPartial, err)
			return result, err
		}
		e.record(req, result, models.RunFailed, err)
		return nil, err
	}

	e.record(req, result, models.RunCompleted, nil)
	e.sendProgress(progress, completeUpdate(result))
	return result, nil
}

// crawl runs waves round-robin over shuffled seeds until the session holds req.Size tracks
// or the iteration or pass budget is spent.
func (e *DiscoveryEngine) crawl(ctx context.Context, session *discovery.Session, req Request, result *Result, progress chan<- ProgressUpdate) error {
	rng := e.newRand()
	crawler := discovery.NewCrawler(e.catalog, req.Filter(), rng, e.opts.Crawl)
	crawler.SetLogger(e.logger)
	crawler.OnHop = func(hop discovery.Hop) {
		e.sendProgress(progress, branchExploredUpdate(hop, session.Len()))
	}

	seeds := seedNames(req.Seeds)
	done := func() bool {
		return session.Len() >= req.Size || result.Iterations >= e.opts.MaxIterations
	}

	for !done() {
		if e.opts.MaxPasses > 0 && result.Passes >= e.opts.MaxPasses {
			break
		}
		result.Passes++
		order := discovery.Pick(rng, seeds, len(seeds))

		for i, seed := range order {
			if done() {
				break
			}
			result.Iterations++

			need := min(req.Size-session.Len(), e.opts.WaveCap)
			e.sendProgress(progress, seedChosenUpdate(result.Iterations, e.opts.MaxIterations, result.Passes, seed, session.Len(), req.Size))

			res, err := crawler.Crawl(ctx, session, seed, need)
			if err != nil {
				return err
			}

			e.logger.Info("wave",
				"pass", result.Passes, "seed", seed, "state", res.State,
				"yield", len(res.Tracks), "hops", res.Hops, "collected", session.Len())
			e.sendProgress(progress, tracksCollectedUpdate(res, seed, session.Len(), req.Size))

			if len(res.Tracks) < e.opts.MinYield {
				result.LowYield++
				if i < len(order)-1 {
					e.logger.Debug("low yield, moving to next seed", "seed", seed, "yield", len(res.Tracks))
				}
			}
		}

		if !done() {
			e.sendProgress(progress, passCompleteUpdate(result.Passes, session.Len(), req.Size))
		}
	}
	return nil
}

// assemble creates the playlist and appends result.Tracks in batches.
func (e *DiscoveryEngine) assemble(ctx context.Context, req Request, result *Result, progress chan<- ProgressUpdate) error {
	spec := req.PlaylistSpec()
	e.sendProgress(progress, creatingPlaylistUpdate(spec.Name, len(result.Tracks)))

	playlist, err := e.catalog.CreatePlaylist(ctx, result.User.ID, spec)
	if err != nil {
		if !errors.Is(err, shared.ErrPlaylistCreation) {
			err = fmt.Errorf("%w: %w", shared.ErrPlaylistCreation, err)
		}
		return err
	}
	result.Playlist = playlist
	e.sendProgress(progress, playlistCreatedUpdate(playlist, len(result.Tracks)))

	uris := result.URIs()
	batches := chunk(uris, services.MaxTracksPerRequest)
	for i, batch := range batches {
		if err := e.catalog.AddTracks(ctx, playlist.ID, batch); err != nil {
			e.logger.Error("append failed", "playlist", playlist.ID, "batch", i+1, "appended", result.Appended, "error", err)
			return &TrackAppendError{
				Playlist: playlist,
				Appended: result.Appended,
				Total:    len(uris),
				Err:      err,
			}
		}
		result.Appended += len(batch)
		e.sendProgress(progress, appendTracksUpdate(i+1, len(batches), result.Appended, len(uris)))
	}
	return nil
}

// record writes the session to the ledger. Failures are logged and never change the outcome.
func (e *DiscoveryEngine) record(req Request, result *Result, status models.RunStatus, cause error) {
	if e.opts.Recorder == nil {
		return
	}

	run := models.NewRun(0, req.Size, seedNames(req.Seeds))
	run.SetFilter(req.YearFrom, req.YearTo, req.MinPopularity, req.MaxPopularity)
	run.SetStatus(status)
	run.SetProgress(result.Iterations, result.Passes)
	run.SetTracks(result.Tracks)
	if result.Playlist != nil {
		run.SetPlaylist(result.Playlist.ID, result.Playlist.URL)
	}
	if cause != nil {
		run.SetError(cause.Error())
	}

	if err := e.opts.Recorder.Create(run); err != nil {
		e.logger.Warn("failed to record run", "error", err)
		return
	}
	result.RunID = run.ID()
}

// seedNames trims names and drops blanks.
func seedNames(seeds []string) []string {
	out := make([]string, 0, len(seeds))
	for _, s := range seeds {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func chunk(items []string, size int) [][]string {
	var out [][]string
	for i := 0; i < len(items); i += size {
		out = append(out, items[i:min(i+size, len(items))])
	}
	return out
}
