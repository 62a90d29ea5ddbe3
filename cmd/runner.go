package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/crawlmix/internal/discovery"
	"github.com/desertthunder/crawlmix/internal/repositories"
	"github.com/desertthunder/crawlmix/internal/services"
	"github.com/desertthunder/crawlmix/internal/shared"
	"github.com/desertthunder/crawlmix/internal/tasks"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	configPath string
	spotify    *services.SpotifyService
	catalog    services.Catalog
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer
	db         *sql.DB
	openURL    func(string) error
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	Catalog    services.Catalog // Overrides the Spotify client built from the config
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
	OpenURL    func(string) error
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.OpenURL == nil {
		opts.OpenURL = shared.OpenBrowser
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		catalog:    opts.Catalog,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
		openURL:    opts.OpenURL,
	}
}

// SetLogger replaces the runner's logger, e.g. with a file logger while the TUI owns the terminal.
func (r *Runner) SetLogger(logger *log.Logger) {
	r.logger = logger
	if r.spotify != nil {
		services.WithLogger(logger)(r.spotify)
	}
}

// Load reads the config file named by --config, applies the environment and builds the Spotify client.
// Runs before every command.
func (r *Runner) Load(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if cmd.Bool("verbose") {
		shared.SetLogLevel(r.logger, log.DebugLevel)
	}

	if path := cmd.String("config"); path != "" {
		r.configPath = path
	}

	if _, err := os.Stat(r.configPath); err == nil {
		config, err := shared.LoadConfig(r.configPath)
		if err != nil {
			return ctx, err
		}
		r.config = config
	} else {
		r.logger.Debug("config file not found, using defaults", "path", r.configPath)
	}
	r.config.ApplyEnv()

	if r.catalog == nil && r.config.Credentials.Spotify.ClientID != "" {
		if err := r.initSpotify(ctx); err != nil {
			r.logger.Warn("spotify client unavailable", "error", err)
		}
	}
	return ctx, nil
}

func (r *Runner) initSpotify(ctx context.Context) error {
	credentials := r.config.Credentials.Spotify.Map()
	credentials["redirect_uri"] = r.redirectURI()

	svc, err := services.NewSpotifyService(
		credentials,
		services.WithAPIConfig(r.config.Spotify),
		services.WithHTTPClient(r.httpClient),
		services.WithLogger(r.logger),
	)
	if err != nil {
		return err
	}

	svc.SetTokenRefreshCallback(r.saveToken)
	if token := r.config.Credentials.Spotify.Token(); token != nil {
		svc.SetToken(ctx, token)
	}

	r.spotify = svc
	r.catalog = svc
	return nil
}

// saveToken persists a refreshed token so the next invocation does not need to log in again.
func (r *Runner) saveToken(token *oauth2.Token) {
	if err := r.config.Credentials.Spotify.Update(token); err != nil {
		r.logger.Warn("ignoring refreshed token", "error", err)
		return
	}
	if r.configPath == "" {
		return
	}
	if err := shared.SaveConfig(r.configPath, r.config); err != nil {
		r.logger.Warn("failed to save refreshed token", "error", err)
		return
	}
	r.logger.Debug("refreshed token saved", "path", r.configPath)
}

// requireCatalog returns the catalog or an error naming the missing setup step.
func (r *Runner) requireCatalog() (services.Catalog, error) {
	if r.catalog == nil {
		return nil, fmt.Errorf("%w: set credentials.spotify.client_id in %s or SPOTIFY_CLIENT_ID, then run `crawlmix auth`",
			shared.ErrMissingCredentials, r.configPath)
	}
	return r.catalog, nil
}

// ledger opens the run database once. It returns nil when the ledger is disabled.
func (r *Runner) ledger() (*repositories.RunRepository, error) {
	if r.db == nil {
		if !r.config.Database.Enabled {
			return nil, nil
		}
		db, err := shared.OpenLedger(r.config.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to open ledger: %w", err)
		}
		r.db = db
	}
	return repositories.NewRunRepository(r.db), nil
}

// Close releases the ledger connection.
func (r *Runner) Close() error {
	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	return err
}

// engineOpts maps the discovery config onto the engine's loop bounds.
func (r *Runner) engineOpts(parallel bool) tasks.EngineOpts {
	d := r.config.Discovery
	return tasks.EngineOpts{
		WaveCap:       d.WaveCap,
		MinYield:      d.MinYield,
		MaxIterations: d.MaxIterations,
		MaxPasses:     d.MaxPasses,
		Crawl: discovery.Options{
			HopLimit:         d.HopLimit,
			BranchMin:        d.BranchMin,
			BranchMax:        d.BranchMax,
			TracksPerArtist:  d.TracksPerArtist,
			ParallelFetch:    d.ParallelFetch || parallel,
			FetchConcurrency: d.FetchConcurrency,
		},
		Logger: r.logger,
	}
}

// newEngine builds a discovery engine, recording runs when the ledger is enabled.
func (r *Runner) newEngine(parallel bool) (*tasks.DiscoveryEngine, error) {
	catalog, err := r.requireCatalog()
	if err != nil {
		return nil, err
	}

	opts := r.engineOpts(parallel)
	repo, err := r.ledger()
	if err != nil {
		r.logger.Warn("runs will not be recorded", "error", err)
	} else if repo != nil {
		opts.Recorder = repo
	}
	return tasks.NewDiscoveryEngine(catalog, opts), nil
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		discoverCommand, authCommand, whoamiCommand, historyCommand, setupCommand, tuiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
