// Package app provides application initialization and dependency injection.
//
// App is the container that wires the credential gate, the completion
// client, the project store and the simulation into ready-to-use chat
// sessions. All components are constructed here and passed down
// explicitly; no package reaches for globals.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/spatiality/spatiality/internal/chat"
	"github.com/spatiality/spatiality/internal/config"
	"github.com/spatiality/spatiality/internal/credential"
	"github.com/spatiality/spatiality/internal/openai"
	"github.com/spatiality/spatiality/internal/project"
	"github.com/spatiality/spatiality/internal/sim"
)

// DefaultProjectName is used when no project exists yet.
const DefaultProjectName = "default"

// App is the core application container.
type App struct {
	Config      *config.Config
	Logger      *slog.Logger
	Credentials *credential.Store
	Projects    *project.Store
	Scene       *sim.Scene

	gate *credential.Gate
}

// Setup creates and initializes the application.
// Returns an App with embedded cleanup — call Close() to release.
func Setup(cfg *config.Config, logger *slog.Logger) (_ *App, retErr error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	a := &App{Config: cfg, Logger: logger}

	// On error, clean up everything already initialized
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	creds, err := credential.NewStore(cfg.DataDir, logger)
	if err != nil {
		return nil, fmt.Errorf("opening credential store: %w", err)
	}
	a.Credentials = creds

	gate, err := credential.NewGate(creds, a.clientFactory(), logger)
	if err != nil {
		return nil, fmt.Errorf("building credential gate: %w", err)
	}
	a.gate = gate

	projects, err := project.Open(cfg.DatabasePath(), logger)
	if err != nil {
		return nil, fmt.Errorf("opening project store: %w", err)
	}
	a.Projects = projects

	scene, err := sim.New(logger)
	if err != nil {
		return nil, fmt.Errorf("building simulation: %w", err)
	}
	a.Scene = scene

	return a, nil
}

// Close gracefully shuts down all resources.
func (a *App) Close() error {
	if a.Projects != nil {
		if err := a.Projects.Close(); err != nil {
			return fmt.Errorf("closing project store: %w", err)
		}
		a.Logger.Debug("project store closed")
	}
	return nil
}

// clientFactory builds completion clients from stored credentials. Called
// lazily by the gate, once per credential.
func (a *App) clientFactory() credential.ClientFactory {
	return func(apiKey string) (*openai.Client, error) {
		clientCfg := openai.Config{
			APIKey:  apiKey,
			BaseURL: a.Config.BaseURL,
			Timeout: a.Config.Timeout(),
			Logger:  a.Logger,
		}
		if rpm := a.Config.RequestsPerMin; rpm > 0 {
			clientCfg.RateLimiter = rate.NewLimiter(rate.Limit(rpm/60), 1)
		}
		return openai.New(clientCfg)
	}
}

// gateAdapter narrows the credential gate's concrete client to the
// controller's Completer interface.
type gateAdapter struct {
	gate *credential.Gate
}

func (g gateAdapter) Transport() (chat.Completer, error) {
	return g.gate.Transport()
}

// projectContext feeds a project's default context into a conversation.
type projectContext struct {
	project *project.Project
}

func (p projectContext) DefaultContext() string {
	if p.project == nil {
		return ""
	}
	return p.project.DefaultContext
}

// Session is one live chat session: a controller bound to a project, with
// persistence of completed turns.
type Session struct {
	Project    *project.Project
	Controller *chat.Controller

	projects *project.Store
	logger   *slog.Logger
}

// OpenSession builds a chat session for the current project, creating a
// default project on first run. Any previously persisted conversation
// resumes where it left off.
func (a *App) OpenSession(ctx context.Context, display chat.Display) (*Session, error) {
	p, err := a.CurrentProject(ctx)
	if err != nil {
		return nil, err
	}
	return a.OpenProjectSession(ctx, p, display)
}

// OpenProjectSession builds a chat session for a specific project.
func (a *App) OpenProjectSession(ctx context.Context, p *project.Project, display chat.Display) (*Session, error) {
	messages, err := a.Projects.Messages(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("loading conversation for %q: %w", p.Name, err)
	}

	var conv *chat.Conversation
	if len(messages) == 0 {
		conv = chat.NewConversation(a.Config.Model)
	} else {
		conv = chat.Resume(a.Config.Model, messages)
	}

	controller, err := chat.NewController(conv, chat.Config{
		Gate:          gateAdapter{gate: a.gate},
		Registry:      a.Scene,
		Context:       projectContext{project: p},
		Display:       display,
		Logger:        a.Logger,
		MaxToolRounds: a.Config.MaxToolRounds,
	})
	if err != nil {
		return nil, fmt.Errorf("building controller: %w", err)
	}

	a.Logger.Debug("session opened", "project", p.Name, "resumed_messages", len(messages))
	return &Session{
		Project:    p,
		Controller: controller,
		projects:   a.Projects,
		logger:     a.Logger,
	}, nil
}

// CurrentProject resolves the active project, falling back to (and creating
// if necessary) the default project.
func (a *App) CurrentProject(ctx context.Context) (*project.Project, error) {
	id, err := project.LoadCurrentID(a.Config.DataDir)
	if err != nil {
		return nil, err
	}
	if id != nil {
		p, err := a.Projects.Get(ctx, *id)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, project.ErrProjectNotFound) {
			return nil, err
		}
		// Stale marker; fall through to the default project.
		a.Logger.Warn("current project marker is stale", "id", *id)
	}

	p, err := a.Projects.GetByName(ctx, DefaultProjectName)
	if errors.Is(err, project.ErrProjectNotFound) {
		p, err = a.Projects.Create(ctx, DefaultProjectName, "")
	}
	if err != nil {
		return nil, fmt.Errorf("resolving default project: %w", err)
	}
	if err := project.SaveCurrentID(a.Config.DataDir, p.ID); err != nil {
		return nil, err
	}
	return p, nil
}

// SwitchProject marks a project as current.
func (a *App) SwitchProject(ctx context.Context, name string) (*project.Project, error) {
	p, err := a.Projects.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := project.SaveCurrentID(a.Config.DataDir, p.ID); err != nil {
		return nil, err
	}
	return p, nil
}

// Submit runs one conversational turn and persists whatever it appended.
// Persistence failure does not fail the turn; the in-memory conversation
// stays authoritative for the session's lifetime.
func (s *Session) Submit(ctx context.Context, text string) chat.Result {
	result := s.Controller.Submit(ctx, text)
	if len(result.Appended) > 0 {
		if err := s.projects.AppendMessages(ctx, s.Project.ID, result.Appended); err != nil {
			s.logger.Error("persisting turn failed", "project", s.Project.Name, "error", err)
		}
	}
	return result
}
