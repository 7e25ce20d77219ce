// Package cmd provides CLI commands for Spatiality.
//
// Commands:
//   - chat: Interactive terminal chat with Bubble Tea TUI (default)
//   - ask: One-shot question from the command line
//   - projects: Manage projects (list, new, open, delete)
//   - key: Manage the stored API key (set, show, clear)
//
// Signal handling and graceful shutdown are implemented via context
// cancellation.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spatiality/spatiality/internal/app"
	"github.com/spatiality/spatiality/internal/config"
	"github.com/spatiality/spatiality/internal/log"
)

// Execute is the main entry point for the Spatiality CLI application.
func Execute() error {
	if len(os.Args) < 2 {
		return runChat()
	}

	switch os.Args[1] {
	case "chat":
		return runChat()
	case "ask":
		return runAsk(os.Args[2:])
	case "projects":
		return runProjects(os.Args[2:])
	case "key":
		return runKey(os.Args[2:])
	case "version", "--version", "-v":
		runVersion()
		return nil
	case "help", "--help", "-h":
		runHelp()
		return nil
	default:
		return fmt.Errorf("unknown command: %s", os.Args[1])
	}
}

// setup loads configuration, installs the logger and builds the application
// container. The caller owns the returned App and must Close it.
func setup() (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	logger := log.New(log.Config{
		Level: level,
		JSON:  cfg.LogFormat == "json",
	})
	slog.SetDefault(logger)

	a, err := app.Setup(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize application: %w", err)
	}
	return a, nil
}

// runHelp displays the help message.
func runHelp() {
	fmt.Println("Spatiality - AI-assisted physics sandbox in your terminal")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  spatiality [chat]           Start interactive chat mode (default)")
	fmt.Println("  spatiality ask <question>   Ask one question and exit")
	fmt.Println("  spatiality projects list    List projects")
	fmt.Println("  spatiality projects new <name> [context]")
	fmt.Println("  spatiality projects open <name>")
	fmt.Println("  spatiality projects delete <name>")
	fmt.Println("  spatiality key set <key>    Store the OpenAI API key")
	fmt.Println("  spatiality key show         Show the stored key (masked)")
	fmt.Println("  spatiality key clear        Remove the stored key")
	fmt.Println("  spatiality --version        Show version information")
	fmt.Println("  spatiality --help           Show this help")
	fmt.Println()
	fmt.Println("Chat commands (in interactive mode):")
	fmt.Println("  /help              Show available commands")
	fmt.Println("  /clear             Clear the visible transcript")
	fmt.Println("  /exit, /quit       Exit")
	fmt.Println()
	fmt.Println("Shortcuts:")
	fmt.Println("  Ctrl+D             Exit")
	fmt.Println("  Ctrl+C             Cancel current input or turn")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  OPENAI_API_KEY     Overrides the stored API key")
	fmt.Println("  SPATIALITY_MODEL   Overrides the configured model")
}
