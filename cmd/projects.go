package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spatiality/spatiality/internal/app"
	"github.com/spatiality/spatiality/internal/project"
)

// runProjects dispatches the projects subcommands.
func runProjects(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: spatiality projects <list|new|open|delete> [args]")
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

	ctx := context.Background()

	switch args[0] {
	case "list":
		return runProjectsList(ctx, a)
	case "new":
		if len(args) < 2 {
			return errors.New("usage: spatiality projects new <name> [default context]")
		}
		return runProjectsNew(ctx, a, args[1], strings.Join(args[2:], " "))
	case "open":
		if len(args) != 2 {
			return errors.New("usage: spatiality projects open <name>")
		}
		return runProjectsOpen(ctx, a, args[1])
	case "delete":
		if len(args) != 2 {
			return errors.New("usage: spatiality projects delete <name>")
		}
		return runProjectsDelete(ctx, a, args[1])
	default:
		return fmt.Errorf("unknown projects subcommand: %s", args[0])
	}
}

func runProjectsList(ctx context.Context, a *app.App) error {
	projects, err := a.Projects.List(ctx)
	if err != nil {
		return err
	}
	if len(projects) == 0 {
		fmt.Println("No projects yet. Create one with: spatiality projects new <name>")
		return nil
	}

	current, err := project.LoadCurrentID(a.Config.DataDir)
	if err != nil {
		return err
	}

	for _, p := range projects {
		marker := " "
		if current != nil && *current == p.ID {
			marker = "*"
		}
		fmt.Printf("%s %-24s %s\n", marker, p.Name, p.UpdatedAt.Format("2006-01-02 15:04"))
	}
	return nil
}

func runProjectsNew(ctx context.Context, a *app.App, name, defaultContext string) error {
	p, err := a.Projects.Create(ctx, name, defaultContext)
	if err != nil {
		return err
	}
	if err := project.SaveCurrentID(a.Config.DataDir, p.ID); err != nil {
		return err
	}
	fmt.Printf("Created project %q and made it current.\n", p.Name)
	return nil
}

func runProjectsOpen(ctx context.Context, a *app.App, name string) error {
	p, err := a.SwitchProject(ctx, name)
	if err != nil {
		return err
	}
	fmt.Printf("Switched to project %q.\n", p.Name)
	return nil
}

func runProjectsDelete(ctx context.Context, a *app.App, name string) error {
	p, err := a.Projects.GetByName(ctx, name)
	if err != nil {
		return err
	}
	if err := a.Projects.Delete(ctx, p.ID); err != nil {
		return err
	}

	// Drop a stale current-project marker.
	current, err := project.LoadCurrentID(a.Config.DataDir)
	if err == nil && current != nil && *current == p.ID {
		if clearErr := project.ClearCurrentID(a.Config.DataDir); clearErr != nil {
			slog.Warn("clearing current project marker", "error", clearErr)
		}
	}

	fmt.Printf("Deleted project %q and its conversation.\n", p.Name)
	return nil
}
