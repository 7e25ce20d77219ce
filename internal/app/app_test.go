package app

import (
	"context"
	"log/slog"
	"testing"

	"github.com/spatiality/spatiality/internal/chat"
	"github.com/spatiality/spatiality/internal/config"
	"github.com/spatiality/spatiality/internal/openai"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Model:          "gpt-4o",
		BaseURL:        "https://api.openai.com/v1",
		RequestTimeout: 120,
		MaxToolRounds:  1,
		DataDir:        t.TempDir(),
		DatabaseFile:   "test.db",
		LogLevel:       "info",
		LogFormat:      "text",
	}
}

func setupTestApp(t *testing.T) *App {
	t.Helper()
	a, err := Setup(testConfig(t), slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func TestSetupCreatesDefaultProject(t *testing.T) {
	a := setupTestApp(t)
	ctx := context.Background()

	p, err := a.CurrentProject(ctx)
	if err != nil {
		t.Fatalf("CurrentProject: %v", err)
	}
	if p.Name != DefaultProjectName {
		t.Errorf("project name = %q, want %q", p.Name, DefaultProjectName)
	}

	// Resolution is stable across calls.
	again, err := a.CurrentProject(ctx)
	if err != nil {
		t.Fatalf("CurrentProject again: %v", err)
	}
	if again.ID != p.ID {
		t.Errorf("second resolution = %s, want %s", again.ID, p.ID)
	}
}

func TestSwitchProject(t *testing.T) {
	a := setupTestApp(t)
	ctx := context.Background()

	created, err := a.Projects.Create(ctx, "pendulum lab", "You control a pendulum.")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := a.SwitchProject(ctx, "pendulum lab"); err != nil {
		t.Fatalf("SwitchProject: %v", err)
	}

	current, err := a.CurrentProject(ctx)
	if err != nil {
		t.Fatalf("CurrentProject: %v", err)
	}
	if current.ID != created.ID {
		t.Errorf("current = %q, want %q", current.Name, created.Name)
	}
}

func TestSwitchProjectUnknownName(t *testing.T) {
	a := setupTestApp(t)
	if _, err := a.SwitchProject(context.Background(), "missing"); err == nil {
		t.Error("switch to missing project succeeded")
	}
}

func TestOpenSessionResumesPersistedConversation(t *testing.T) {
	a := setupTestApp(t)
	ctx := context.Background()

	p, err := a.Projects.Create(ctx, "demo", "ctx")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	seed := []openai.Message{
		{Role: openai.RoleSystem, Content: "ctx"},
		{Role: openai.RoleUser, Content: "hello"},
		{Role: openai.RoleAssistant, Content: "hi"},
	}
	if err := a.Projects.AppendMessages(ctx, p.ID, seed); err != nil {
		t.Fatalf("AppendMessages: %v", err)
	}

	session, err := a.OpenProjectSession(ctx, p, nil)
	if err != nil {
		t.Fatalf("OpenProjectSession: %v", err)
	}

	conv := session.Controller.Conversation()
	if n := conv.History().Len(); n != 3 {
		t.Errorf("resumed history has %d messages, want 3", n)
	}
	if !conv.Ready() {
		t.Error("resumed conversation with system message not ready")
	}
}

func TestSessionSubmitWithoutCredential(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	a := setupTestApp(t)
	ctx := context.Background()

	session, err := a.OpenSession(ctx, nil)
	if err != nil {
		t.Fatalf("OpenSession: %v", err)
	}

	res := session.Submit(ctx, "hello")
	if res.Kind != chat.KindMissingCredential {
		t.Fatalf("Kind = %v, want KindMissingCredential", res.Kind)
	}

	// Nothing was persisted for the rejected turn.
	messages, err := a.Projects.Messages(ctx, session.Project.ID)
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(messages) != 0 {
		t.Errorf("rejected turn persisted %d messages", len(messages))
	}
}
