package main

import (
	"context"
	"errors"
	"os"

	"github.com/desertthunder/crawlmix/internal/shared"
	"github.com/urfave/cli/v3"
)

func main() {
	logger := shared.NewLogger(nil)

	if err := shared.LoadEnv(); err != nil {
		logger.Warn("ignoring .env", "error", err)
	}

	runner := NewRunner(RunnerOpts{Logger: logger, ConfigPath: "config.toml"})
	defer runner.Close()

	app := &cli.Command{
		Name:    "crawlmix",
		Usage:   "Build Spotify playlists by crawling related artists",
		Version: "0.1.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "config.toml",
				Sources: cli.EnvVars("CRAWLMIX_CONFIG"),
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Enable debug logging",
			},
		},
		Before:   runner.Load,
		Commands: runner.register(),
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		switch {
		case errors.Is(err, context.Canceled):
			logger.Warn("stopped before the session finished", "error", err)
		case errors.Is(err, shared.ErrNoResults):
			logger.Error("no tracks matched; widen the year or popularity range or add seeds", "error", err)
		case errors.Is(err, shared.ErrNotAuthenticated), errors.Is(err, shared.ErrAuthFailed), errors.Is(err, shared.ErrTokenExpired):
			logger.Error("spotify rejected the credentials; run `crawlmix auth`", "error", err)
		case errors.Is(err, shared.ErrTrackAppend):
			logger.Error("playlist created but not every track was added", "error", err)
		default:
			logger.Error("application error", "error", err)
		}
		runner.Close()
		os.Exit(1)
	}
}
