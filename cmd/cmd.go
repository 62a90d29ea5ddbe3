// submodule cmd contains command definitions
package main

import (
	"github.com/desertthunder/crawlmix/internal/formatter"
	"github.com/urfave/cli/v3"
)

// requestFlags are shared by every command that starts a discovery session.
// Unset flags fall back to the [discovery] section of the config.
func requestFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:    "size",
			Aliases: []string{"n"},
			Usage:   "Number of tracks to collect",
		},
		&cli.IntFlag{
			Name:  "year-from",
			Usage: "Earliest release year (inclusive)",
		},
		&cli.IntFlag{
			Name:  "year-to",
			Usage: "Latest release year (inclusive)",
		},
		&cli.IntFlag{
			Name:  "min-popularity",
			Usage: "Minimum track popularity (0-100)",
		},
		&cli.IntFlag{
			Name:  "max-popularity",
			Usage: "Maximum track popularity (0-100)",
		},
		&cli.StringSliceFlag{
			Name:    "seed",
			Aliases: []string{"s"},
			Usage:   "Seed artist name (repeatable)",
		},
		&cli.StringFlag{
			Name:  "name",
			Usage: "Playlist base name; the year range is appended",
		},
		&cli.BoolFlag{
			Name:  "public",
			Usage: "Create a public playlist",
		},
		&cli.BoolFlag{
			Name:  "dry-run",
			Usage: "Crawl and print the tracks without creating a playlist",
		},
		&cli.BoolFlag{
			Name:  "parallel",
			Usage: "Fetch top tracks of sampled artists concurrently",
		},
	}
}

// discoverCommand builds a playlist from related-artist crawls
func discoverCommand(r *Runner) *cli.Command {
	flags := append(requestFlags(),
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Also write the collected tracks to a file",
		},
		&cli.StringFlag{
			Name:  "format",
			Usage: "Output file format: json, csv, md or txt (default: from extension)",
		},
		&cli.BoolFlag{
			Name:  "open",
			Usage: "Open the playlist in the browser when done",
		},
		&cli.BoolFlag{
			Name:  "json",
			Usage: "Print the result as JSON",
		},
		&cli.BoolFlag{
			Name:  "pretty",
			Usage: "Pretty-print JSON output",
			Value: true,
		},
		&cli.BoolFlag{
			Name:    "quiet",
			Aliases: []string{"q"},
			Usage:   "Hide progress messages",
		},
	)

	return &cli.Command{
		Name:    "discover",
		Aliases: []string{"mix"},
		Usage:   "Crawl related artists from the seeds and build a playlist",
		Flags:   flags,
		Action:  r.Discover,
	}
}

// authCommand runs the Spotify login
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Authenticate with Spotify (OAuth2 with PKCE)",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "How long to wait for the browser callback",
				Value: defaultAuthTimeout,
			},
			&cli.BoolFlag{
				Name:  "no-browser",
				Usage: "Print the authorization URL instead of opening it",
			},
		},
		Action: r.SpotifyAuth,
	}
}

// whoamiCommand shows the authenticated account
func whoamiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "whoami",
		Usage: "Show the authenticated Spotify account",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		},
		Action: r.WhoAmI,
	}
}

// historyCommand browses the run ledger
func historyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "history",
		Aliases: []string{"runs"},
		Usage:   "Browse recorded discovery runs",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List recent runs, newest first",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "status",
						Usage: "Only runs with this status (completed, partial, dry_run, failed)",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of runs to show",
						Value: 20,
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.HistoryList,
			},
			{
				Name:  "show",
				Usage: "Show a run and its tracks",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name:      "run",
						UsageText: "run number or id",
					},
				},
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Write the run's tracks to a file (" + formatList() + ")",
					},
				},
				Action: r.HistoryShow,
			},
			{
				Name:  "delete",
				Usage: "Remove a run from the history",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name:      "run",
						UsageText: "run number or id",
					},
				},
				Action: r.HistoryDelete,
			},
		},
	}
}

// setupCommand handles setup operations for configuration and the ledger.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:  "config",
				Usage: "Write the default configuration file",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "force",
						Usage: "Overwrite an existing file",
					},
				},
				Action: r.SetupConfig,
			},
			{
				Name:   "database",
				Usage:  "Initialize the run ledger and run migrations",
				Action: r.SetupDatabase,
			},
		},
	}
}

// tuiCommand returns the top-level TUI command for an interactive discovery session.
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "tui",
		Aliases: []string{"interactive", "ui"},
		Usage:   "Run a discovery session in an interactive TUI",
		Flags:   requestFlags(),
		Action:  r.TUI,
	}
}

func formatList() string {
	s := ""
	for i, f := range formatter.Formats {
		if i > 0 {
			s += ", "
		}
		s += string(f)
	}
	return s
}
