package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/desertthunder/crawlmix/internal/formatter"
	"github.com/desertthunder/crawlmix/internal/models"
	"github.com/desertthunder/crawlmix/internal/shared"
	tu "github.com/desertthunder/crawlmix/internal/testing"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

// runApp executes the command tree the way main does, against a config file in a temp dir.
func runApp(t *testing.T, r *Runner, args ...string) error {
	t.Helper()

	if r.configPath == "" {
		r.configPath = filepath.Join(t.TempDir(), "config.toml")
	}

	app := &cli.Command{
		Name: "crawlmix",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Value: r.configPath},
			&cli.BoolFlag{Name: "verbose"},
		},
		Before:   r.Load,
		Commands: r.register(),
	}
	return app.Run(context.Background(), append([]string{"crawlmix"}, args...))
}

// nuMetalGraph wires a hub seed to a small, fully connected set of artists with in-range tracks.
func nuMetalGraph() *tu.FakeCatalog {
	fc := tu.NewFakeCatalog()
	names := []string{"Deftones", "Slipknot", "Mudvayne", "Chevelle", "Sevendust", "Spineshank"}
	fc.Relate("Korn", names...)
	for i, name := range names {
		others := append(append([]string{}, names[:i]...), names[i+1:]...)
		fc.Relate(name, others...)
		fc.SetTracks(name,
			tu.Track(name+"-1", 2001, 40),
			tu.Track(name+"-2", 2003, 55),
			tu.Track(name+"-3", 1989, 60),
		)
	}
	return fc
}

func newTestRunner(t *testing.T, fc *tu.FakeCatalog) (*Runner, *bytes.Buffer) {
	t.Helper()
	t.Setenv("CRAWLMIX_DB", "")
	t.Setenv("SPOTIFY_CLIENT_ID", "")

	output := &bytes.Buffer{}
	runner := NewRunner(RunnerOpts{
		Config:     shared.DefaultConfig(),
		ConfigPath: filepath.Join(t.TempDir(), "config.toml"),
		Catalog:    fc,
		Logger:     shared.NewLogger(&bytes.Buffer{}),
		Output:     output,
		OpenURL:    func(string) error { return nil },
	})
	t.Cleanup(func() { runner.Close() })
	return runner, output
}

func withLedger(t *testing.T, r *Runner) {
	t.Helper()
	r.config.Database.Enabled = true
	r.config.Database.Path = filepath.Join(t.TempDir(), "runs.db")
}

var discoverArgs = []string{
	"--seed", "Korn", "--size", "4",
	"--year-from", "1995", "--year-to", "2008",
	"--min-popularity", "0", "--max-popularity", "100",
}

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("with all dependencies provided", func(t *testing.T) {
			config := shared.DefaultConfig()
			logger := shared.NewLogger(nil)
			output := &bytes.Buffer{}
			httpClient := &http.Client{}
			catalog := tu.NewFakeCatalog()

			runner := NewRunner(RunnerOpts{
				Config:     config,
				Logger:     logger,
				Output:     output,
				HTTPClient: httpClient,
				Catalog:    catalog,
			})

			if runner.config != config {
				t.Error("expected config to be set")
			}
			if runner.logger != logger {
				t.Error("expected logger to be set")
			}
			if runner.output != output {
				t.Error("expected output to be set")
			}
			if runner.httpClient != httpClient {
				t.Error("expected httpClient to be set")
			}
			if runner.catalog != catalog {
				t.Error("expected catalog to be set")
			}
		})

		t.Run("with nil options uses defaults", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})

			if runner.config == nil {
				t.Error("expected default config to be set")
			}
			if runner.logger == nil {
				t.Error("expected default logger to be set")
			}
			if runner.output != os.Stdout {
				t.Error("expected output to default to stdout")
			}
			if runner.httpClient != http.DefaultClient {
				t.Error("expected default http client")
			}
			if runner.openURL == nil {
				t.Error("expected default browser opener")
			}
		})
	})

	t.Run("writeJSON", func(t *testing.T) {
		t.Run("writes formatted JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, true); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			result := output.String()
			if !strings.Contains(result, `"key": "value"`) {
				t.Errorf("expected formatted JSON, got %s", result)
			}
			if !strings.HasSuffix(result, "\n") {
				t.Error("expected output to end with newline")
			}
		})

		t.Run("writes compact JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, false); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			expected := `{"key":"value"}` + "\n"
			if output.String() != expected {
				t.Errorf("expected %q, got %q", expected, output.String())
			}
		})

		t.Run("handles marshal error with non-serializable data", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}})

			err := runner.writeJSON(make(chan int), false)
			if err == nil || !strings.Contains(err.Error(), "failed to marshal JSON") {
				t.Errorf("expected marshal error, got %v", err)
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil || !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})

		t.Run("handles newline write failure", func(t *testing.T) {
			limitedWriter := tu.NewLimitedWriter(1, 0, &bytes.Buffer{})
			runner := NewRunner(RunnerOpts{Output: &limitedWriter})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil || !strings.Contains(err.Error(), "failed to write newline") {
				t.Errorf("expected newline write error, got %v", err)
			}
		})
	})

	t.Run("writePlain", func(t *testing.T) {
		t.Run("writes plain text successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writePlain("hello %s", "world"); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if output.String() != "hello world" {
				t.Errorf("expected 'hello world', got %q", output.String())
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			err := runner.writePlain("test")
			if err == nil || !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})
	})

	t.Run("register", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{})
		commands := runner.register()

		names := map[string]bool{}
		for i, cmd := range commands {
			if cmd == nil {
				t.Fatalf("command at index %d is nil", i)
			}
			names[cmd.Name] = true
		}
		for _, want := range []string{"discover", "auth", "whoami", "history", "setup", "tui"} {
			if !names[want] {
				t.Errorf("expected %q to be registered", want)
			}
		}
	})

	t.Run("saveToken", func(t *testing.T) {
		t.Run("persists refreshed tokens", func(t *testing.T) {
			configPath := filepath.Join(t.TempDir(), "config.toml")
			config := shared.DefaultConfig()
			config.Credentials.Spotify.ClientID = "test_id"

			if err := shared.SaveConfig(configPath, config); err != nil {
				t.Fatalf("failed to create test config: %v", err)
			}

			runner := NewRunner(RunnerOpts{Config: config, ConfigPath: configPath, Logger: shared.NewLogger(&bytes.Buffer{})})
			runner.saveToken(&oauth2.Token{AccessToken: "new_access_token", RefreshToken: "new_refresh_token"})

			loaded, err := shared.LoadConfig(configPath)
			if err != nil {
				t.Fatalf("failed to reload config: %v", err)
			}
			if loaded.Credentials.Spotify.AccessToken != "new_access_token" {
				t.Errorf("expected access token to be updated, got %s", loaded.Credentials.Spotify.AccessToken)
			}
			if loaded.Credentials.Spotify.RefreshToken != "new_refresh_token" {
				t.Errorf("expected refresh token to be updated, got %s", loaded.Credentials.Spotify.RefreshToken)
			}
		})

		t.Run("updates memory without a config path", func(t *testing.T) {
			config := shared.DefaultConfig()
			runner := NewRunner(RunnerOpts{Config: config, Logger: shared.NewLogger(&bytes.Buffer{})})

			runner.saveToken(&oauth2.Token{AccessToken: "new_token"})
			if config.Credentials.Spotify.AccessToken != "new_token" {
				t.Error("expected config to be updated in memory")
			}
		})

		t.Run("ignores empty tokens", func(t *testing.T) {
			config := shared.DefaultConfig()
			config.Credentials.Spotify.AccessToken = "kept"
			runner := NewRunner(RunnerOpts{Config: config, Logger: shared.NewLogger(&bytes.Buffer{})})

			runner.saveToken(&oauth2.Token{})
			runner.saveToken(nil)
			if config.Credentials.Spotify.AccessToken != "kept" {
				t.Errorf("expected token to be kept, got %q", config.Credentials.Spotify.AccessToken)
			}
		})
	})

	t.Run("Load", func(t *testing.T) {
		t.Run("reads the config file", func(t *testing.T) {
			runner, _ := newTestRunner(t, tu.NewFakeCatalog())

			config := shared.DefaultConfig()
			config.Discovery.Size = 12
			config.Discovery.Seeds = []string{"Korn"}
			if err := shared.SaveConfig(runner.configPath, config); err != nil {
				t.Fatalf("failed to write config: %v", err)
			}

			if err := runApp(t, runner, "setup", "config"); err == nil {
				t.Fatal("expected setup config to refuse overwriting")
			}
			if runner.config.Discovery.Size != 12 {
				t.Errorf("expected size 12 from config file, got %d", runner.config.Discovery.Size)
			}
		})

		t.Run("missing config file keeps defaults", func(t *testing.T) {
			runner, _ := newTestRunner(t, tu.NewFakeCatalog())
			want := runner.config.Discovery.Size

			if err := runApp(t, runner, "history", "list"); !errors.Is(err, shared.ErrMissingConfig) {
				t.Fatalf("expected ErrMissingConfig with the ledger disabled, got %v", err)
			}
			if runner.config.Discovery.Size != want {
				t.Errorf("expected default size %d, got %d", want, runner.config.Discovery.Size)
			}
		})

		t.Run("environment enables the ledger", func(t *testing.T) {
			runner, _ := newTestRunner(t, tu.NewFakeCatalog())
			path := filepath.Join(t.TempDir(), "env.db")
			t.Setenv("CRAWLMIX_DB", path)

			if err := runApp(t, runner, "history", "list"); err != nil {
				t.Fatalf("expected history to work with CRAWLMIX_DB, got %v", err)
			}
			tu.AssertFileExists(t, path)
		})
	})

	t.Run("requireCatalog", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{ConfigPath: "config.toml"})

		if _, err := runner.requireCatalog(); !errors.Is(err, shared.ErrMissingCredentials) {
			t.Errorf("expected ErrMissingCredentials, got %v", err)
		}
	})

	t.Run("redirectURI", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{})
		runner.config.Credentials.Spotify.RedirectURI = ""
		runner.config.Server.Host = "127.0.0.1"
		runner.config.Server.Port = 8765

		addr, path, err := runner.callbackAddr()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if addr != "127.0.0.1:8765" || path != "/callback" {
			t.Errorf("unexpected callback address %s%s", addr, path)
		}

		runner.config.Credentials.Spotify.RedirectURI = "http://localhost:9000/spotify"
		if addr, path, _ := runner.callbackAddr(); addr != "localhost:9000" || path != "/spotify" {
			t.Errorf("expected configured redirect uri to win, got %s%s", addr, path)
		}
	})
}

func TestDiscover(t *testing.T) {
	t.Run("dry run writes JSON without touching playlists", func(t *testing.T) {
		fc := nuMetalGraph()
		runner, output := newTestRunner(t, fc)

		args := append([]string{"discover", "--dry-run", "--json", "--pretty=false"}, discoverArgs...)
		if err := runApp(t, runner, args...); err != nil {
			t.Fatalf("discover failed: %v", err)
		}

		var export formatter.Export
		if err := json.Unmarshal(output.Bytes(), &export); err != nil {
			t.Fatalf("output is not JSON: %v\n%s", err, output.String())
		}
		if len(export.Tracks) != 4 || export.Requested != 4 {
			t.Errorf("expected 4 of 4 tracks, got %d of %d", len(export.Tracks), export.Requested)
		}
		for _, track := range export.Tracks {
			if track.ReleaseYear < 1995 || track.ReleaseYear > 2008 {
				t.Errorf("track %s outside the year range: %d", track.Name, track.ReleaseYear)
			}
		}
		if fc.Calls("create") != 0 || fc.Calls("append") != 0 {
			t.Errorf("dry run should not write, got %d creates and %d appends", fc.Calls("create"), fc.Calls("append"))
		}
	})

	t.Run("creates the playlist and reports it", func(t *testing.T) {
		fc := nuMetalGraph()
		runner, output := newTestRunner(t, fc)
		exportPath := filepath.Join(t.TempDir(), "mix.csv")

		var opened string
		runner.openURL = func(url string) error {
			opened = url
			return nil
		}

		args := append([]string{"discover", "--open", "--output", exportPath, "--name", "Test Mix"}, discoverArgs...)
		if err := runApp(t, runner, args...); err != nil {
			t.Fatalf("discover failed: %v", err)
		}

		text := output.String()
		if !strings.Contains(text, "Playlist Created") || !strings.Contains(text, "Test Mix (1995–2008)") {
			t.Errorf("unexpected output:\n%s", text)
		}
		if len(fc.Playlists) != 1 || len(fc.AppendedURIs()) != 4 {
			t.Errorf("expected one playlist with 4 tracks, got %d playlists and %d tracks", len(fc.Playlists), len(fc.AppendedURIs()))
		}
		if opened == "" {
			t.Error("expected --open to open the playlist url")
		}
		if csv := tu.MustReadFile(t, exportPath); !strings.HasPrefix(csv, "URI,Title,Artist") {
			t.Errorf("expected a CSV export, got %q", csv)
		}
	})

	t.Run("invalid filter fails before any call", func(t *testing.T) {
		fc := nuMetalGraph()
		runner, _ := newTestRunner(t, fc)

		err := runApp(t, runner, "discover", "--seed", "Korn", "--year-from", "2010", "--year-to", "2000")
		if !errors.Is(err, shared.ErrInvalidInput) {
			t.Fatalf("expected ErrInvalidInput, got %v", err)
		}
		if fc.TotalCalls() != 0 {
			t.Errorf("expected no catalog calls, got %d", fc.TotalCalls())
		}
	})

	t.Run("unknown format", func(t *testing.T) {
		runner, _ := newTestRunner(t, nuMetalGraph())

		args := append([]string{"discover", "--format", "xml"}, discoverArgs...)
		if err := runApp(t, runner, args...); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Fatalf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("no matching tracks", func(t *testing.T) {
		fc := tu.NewFakeCatalog()
		fc.Relate("Korn", "Old Band")
		fc.SetTracks("Old Band", tu.Track("old-1", 1980, 40))
		runner, _ := newTestRunner(t, fc)

		args := append([]string{"discover"}, discoverArgs...)
		if err := runApp(t, runner, args...); !errors.Is(err, shared.ErrNoResults) {
			t.Fatalf("expected ErrNoResults, got %v", err)
		}
		if len(fc.Playlists) != 0 {
			t.Error("no playlist should be created without tracks")
		}
	})

	t.Run("partial append is reported", func(t *testing.T) {
		fc := nuMetalGraph()
		fc.AppendErr = func(batch int, uris []string) error {
			return fmt.Errorf("%w: status 502", shared.ErrServiceUnavailable)
		}
		runner, output := newTestRunner(t, fc)

		args := append([]string{"discover"}, discoverArgs...)
		if err := runApp(t, runner, args...); !errors.Is(err, shared.ErrTrackAppend) {
			t.Fatalf("expected ErrTrackAppend, got %v", err)
		}
		if !strings.Contains(output.String(), "Playlist Incomplete") {
			t.Errorf("expected incomplete header, got:\n%s", output.String())
		}
	})

	t.Run("missing credentials", func(t *testing.T) {
		t.Setenv("SPOTIFY_CLIENT_ID", "")
		runner := NewRunner(RunnerOpts{
			ConfigPath: filepath.Join(t.TempDir(), "config.toml"),
			Logger:     shared.NewLogger(&bytes.Buffer{}),
			Output:     &bytes.Buffer{},
		})

		args := append([]string{"discover"}, discoverArgs...)
		if err := runApp(t, runner, args...); !errors.Is(err, shared.ErrMissingCredentials) {
			t.Fatalf("expected ErrMissingCredentials, got %v", err)
		}
	})
}

func TestHistory(t *testing.T) {
	t.Run("records and lists runs", func(t *testing.T) {
		fc := nuMetalGraph()
		runner, output := newTestRunner(t, fc)
		withLedger(t, runner)

		dry := append([]string{"discover", "--dry-run", "--quiet"}, discoverArgs...)
		live := append([]string{"discover", "--quiet"}, discoverArgs...)
		for _, args := range [][]string{dry, live} {
			if err := runApp(t, runner, args...); err != nil {
				t.Fatalf("discover failed: %v", err)
			}
		}

		output.Reset()
		if err := runApp(t, runner, "history", "list", "--json"); err != nil {
			t.Fatalf("history list failed: %v", err)
		}

		var runs []runSummary
		if err := json.Unmarshal(output.Bytes(), &runs); err != nil {
			t.Fatalf("output is not JSON: %v", err)
		}
		if len(runs) != 2 {
			t.Fatalf("expected 2 runs, got %d", len(runs))
		}
		if runs[0].Number != 2 || runs[0].Status != models.RunCompleted || runs[0].PlaylistURL == "" {
			t.Errorf("unexpected latest run: %+v", runs[0])
		}
		if runs[1].Status != models.RunDryRun || runs[1].Collected != 4 {
			t.Errorf("unexpected dry run: %+v", runs[1])
		}

		output.Reset()
		if err := runApp(t, runner, "history", "list", "--status", "dry_run", "--json"); err != nil {
			t.Fatalf("history list failed: %v", err)
		}
		if err := json.Unmarshal(output.Bytes(), &runs); err != nil || len(runs) != 1 {
			t.Errorf("expected one dry run, got %d (%v)", len(runs), err)
		}
	})

	t.Run("show and delete", func(t *testing.T) {
		runner, output := newTestRunner(t, nuMetalGraph())
		withLedger(t, runner)

		if err := runApp(t, runner, append([]string{"discover", "--dry-run", "--quiet"}, discoverArgs...)...); err != nil {
			t.Fatalf("discover failed: %v", err)
		}

		output.Reset()
		exportPath := filepath.Join(t.TempDir(), "run.md")
		if err := runApp(t, runner, "history", "show", "--json", "--output", exportPath, "1"); err != nil {
			t.Fatalf("history show failed: %v", err)
		}

		var run runSummary
		if err := json.Unmarshal(output.Bytes(), &run); err != nil {
			t.Fatalf("output is not JSON: %v", err)
		}
		if len(run.Tracks) != 4 || run.Seeds[0] != "Korn" {
			t.Errorf("unexpected run: %+v", run)
		}
		tu.AssertFileExists(t, exportPath)

		if err := runApp(t, runner, "history", "delete", run.ID); err != nil {
			t.Fatalf("history delete failed: %v", err)
		}
		if err := runApp(t, runner, "history", "show", "#1"); !errors.Is(err, shared.ErrRunNotFound) {
			t.Errorf("expected ErrRunNotFound after delete, got %v", err)
		}
	})

	t.Run("invalid status", func(t *testing.T) {
		runner, _ := newTestRunner(t, nuMetalGraph())
		withLedger(t, runner)

		if err := runApp(t, runner, "history", "list", "--status", "bogus"); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("missing run reference", func(t *testing.T) {
		runner, _ := newTestRunner(t, nuMetalGraph())
		withLedger(t, runner)

		if err := runApp(t, runner, "history", "show"); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})
}

func TestSetup(t *testing.T) {
	t.Run("config", func(t *testing.T) {
		runner, output := newTestRunner(t, tu.NewFakeCatalog())

		if err := runApp(t, runner, "setup", "config"); err != nil {
			t.Fatalf("setup config failed: %v", err)
		}
		tu.AssertFileExists(t, runner.configPath)
		if !strings.Contains(output.String(), runner.configPath) {
			t.Errorf("expected output to name the config file, got %q", output.String())
		}

		if err := runApp(t, runner, "setup", "config"); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected refusal without --force, got %v", err)
		}
		if err := runApp(t, runner, "setup", "config", "--force"); err != nil {
			t.Errorf("expected --force to overwrite, got %v", err)
		}
	})

	t.Run("database", func(t *testing.T) {
		runner, _ := newTestRunner(t, tu.NewFakeCatalog())
		if err := shared.SaveConfig(runner.configPath, shared.DefaultConfig()); err != nil {
			t.Fatalf("failed to write config: %v", err)
		}
		dbPath := filepath.Join(t.TempDir(), "ledger.db")
		t.Setenv("CRAWLMIX_DB", dbPath)

		if err := runApp(t, runner, "setup", "database"); err != nil {
			t.Fatalf("setup database failed: %v", err)
		}
		tu.AssertFileExists(t, dbPath)
	})
}
