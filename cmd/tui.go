package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/crawlmix/internal/shared"
	"github.com/desertthunder/crawlmix/internal/ui"
	"github.com/urfave/cli/v3"
)

// TUI runs a discovery session in the interactive terminal UI.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	req := r.requestFromFlags(cmd)
	if err := req.Validate(); err != nil {
		return err
	}

	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, err := shared.NewFileLogger("./tmp/crawlmix-tui.log")
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	r.SetLogger(fileLogger)

	engine, err := r.newEngine(cmd.Bool("parallel"))
	if err != nil {
		return err
	}

	model := ui.NewModel(ctx, engine, req)
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	// The session outcome decides the exit status, e.g. a partly filled playlist after quitting mid-crawl.
	return model.Err()
}
