package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
)

// consoleDisplay prints turn progress for one-shot use.
type consoleDisplay struct {
	out io.Writer
}

// UserPrompt is a no-op: the user just typed the prompt on this terminal.
func (d consoleDisplay) UserPrompt(string) {}

func (d consoleDisplay) ToolCallsRequested(names []string, note string) {
	if note == "" {
		note = "Response requires calling function(s): " + strings.Join(names, ", ")
	}
	fmt.Fprintln(d.out, "··· "+note)
}

func (d consoleDisplay) ToolInvoking(name string) {
	fmt.Fprintf(d.out, "··· Calling function %s:\n", name)
}

// FinalResponse is a no-op: runAsk prints the result itself.
func (d consoleDisplay) FinalResponse(string) {}

// runAsk sends a single question through the current project's conversation
// and prints the answer.
func runAsk(args []string) error {
	question := strings.TrimSpace(strings.Join(args, " "))
	if question == "" {
		return errors.New("usage: spatiality ask <question>")
	}

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

	session, err := a.OpenSession(ctx, consoleDisplay{out: os.Stderr})
	if err != nil {
		return fmt.Errorf("failed to open session: %w", err)
	}

	result := session.Submit(ctx, question)
	if !result.OK() {
		return errors.New(result.Text)
	}

	fmt.Println("→ " + result.Text)
	return nil
}
