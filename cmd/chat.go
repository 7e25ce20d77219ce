package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	tea "charm.land/bubbletea/v2"

	"github.com/spatiality/spatiality/internal/tui"
)

// runChat initializes and starts the interactive chat with the Bubble Tea
// TUI.
func runChat() error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			slog.Warn("app close error", "error", closeErr)
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	relay := tui.NewRelay()
	session, err := a.OpenSession(ctx, relay)
	if err != nil {
		return fmt.Errorf("failed to open session: %w", err)
	}

	model, err := tui.New(ctx, session, relay, session.Project.Name)
	if err != nil {
		return fmt.Errorf("failed to create TUI: %w", err)
	}
	program := tea.NewProgram(model, tea.WithContext(ctx))

	if _, err = program.Run(); err != nil {
		return fmt.Errorf("TUI exited: %w", err)
	}
	return nil
}
