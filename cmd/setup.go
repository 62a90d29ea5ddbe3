package main

import (
	"context"
	"fmt"
	"os"

	"github.com/desertthunder/crawlmix/internal/shared"
	"github.com/urfave/cli/v3"
)

// SetupConfig writes the default configuration file.
func (r *Runner) SetupConfig(ctx context.Context, cmd *cli.Command) error {
	if _, err := os.Stat(r.configPath); err == nil {
		if !cmd.Bool("force") {
			return fmt.Errorf("%w: %s already exists (use --force to overwrite)", shared.ErrInvalidArgument, r.configPath)
		}
		if err := os.Remove(r.configPath); err != nil {
			return fmt.Errorf("failed to remove existing config: %w", err)
		}
	}

	if err := shared.CreateConfigFile(r.configPath); err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	r.logger.Info("config file created", "path", r.configPath)

	r.writePlain("✓ Wrote %s\n", r.configPath)
	r.writePlain("Next: set credentials.spotify.client_id, then run `crawlmix auth`\n")
	return nil
}

// SetupDatabase initializes the ledger database and runs migrations.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	if !r.config.Database.Enabled {
		r.logger.Info("enabling run history", "path", r.config.Database.Path)
		r.config.Database.Enabled = true
		if _, err := os.Stat(r.configPath); err == nil {
			if err := shared.SaveConfig(r.configPath, r.config); err != nil {
				r.logger.Warn("failed to save config", "error", err)
			}
		}
	}

	r.logger.Info("initializing database", "path", r.config.Database.Path)

	db, err := shared.OpenLedger(r.config.Database)
	if err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	defer db.Close()

	r.logger.Infof("setup complete for database: %v", r.config.Database.Path)
	return r.writePlain("✓ Run history ready at %s\n", r.config.Database.Path)
}
