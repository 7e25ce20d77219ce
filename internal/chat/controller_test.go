package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/spatiality/spatiality/internal/openai"
	"github.com/spatiality/spatiality/internal/tools"
)

// scriptedCompleter replays canned responses and records every request it
// receives.
type scriptedCompleter struct {
	responses []openai.Message
	errs      []error

	calls    int
	requests [][]openai.Message
	schemas  [][]openai.ToolSchema
}

func (s *scriptedCompleter) Complete(_ context.Context, _ string, messages []openai.Message, toolSchemas []openai.ToolSchema) (openai.Message, error) {
	idx := s.calls
	s.calls++

	snapshot := make([]openai.Message, len(messages))
	copy(snapshot, messages)
	s.requests = append(s.requests, snapshot)
	s.schemas = append(s.schemas, toolSchemas)

	if idx < len(s.errs) && s.errs[idx] != nil {
		return openai.Message{}, s.errs[idx]
	}
	if idx >= len(s.responses) {
		return openai.Message{}, errors.New("scripted completer exhausted")
	}
	return s.responses[idx], nil
}

type fakeGate struct {
	completer Completer
	err       error
	calls     int
}

func (g *fakeGate) Transport() (Completer, error) {
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	return g.completer, nil
}

type staticContext string

func (s staticContext) DefaultContext() string { return string(s) }

type recordingDisplay struct {
	prompts   []string
	toolCalls [][]string
	invoked   []string
	finals    []string
}

func (d *recordingDisplay) UserPrompt(text string) { d.prompts = append(d.prompts, text) }
func (d *recordingDisplay) ToolCallsRequested(names []string, _ string) {
	d.toolCalls = append(d.toolCalls, names)
}
func (d *recordingDisplay) ToolInvoking(name string)  { d.invoked = append(d.invoked, name) }
func (d *recordingDisplay) FinalResponse(text string) { d.finals = append(d.finals, text) }

func assistantText(text string) openai.Message {
	return openai.Message{Role: openai.RoleAssistant, Content: text}
}

func assistantToolCalls(calls ...openai.ToolCall) openai.Message {
	return openai.Message{Role: openai.RoleAssistant, ToolCalls: calls}
}

func fnCall(id, name, args string) openai.ToolCall {
	return openai.ToolCall{
		ID:   id,
		Type: openai.ToolCallTypeFunction,
		Function: openai.FunctionCall{
			Name:      name,
			Arguments: args,
		},
	}
}

func testRegistry(fns map[string]tools.Func) tools.Registry {
	schemas := make([]openai.ToolSchema, 0, len(fns))
	for name := range fns {
		schemas = append(schemas, openai.NewFunctionSchema(name, "test tool", nil))
	}
	return &tools.Static{ToolSchemas: schemas, ToolFunctions: fns}
}

func newTestController(t *testing.T, cfg Config) (*Controller, *Conversation) {
	t.Helper()
	conv := NewConversation("test-model")
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	ctrl, err := NewController(conv, cfg)
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	return ctrl, conv
}

func TestSubmitSimpleRoundTrip(t *testing.T) {
	completer := &scriptedCompleter{responses: []openai.Message{assistantText("Hello! How can I help?")}}
	display := &recordingDisplay{}
	ctrl, conv := newTestController(t, Config{
		Gate:    &fakeGate{completer: completer},
		Context: staticContext("You control a physics simulation."),
		Display: display,
	})

	res := ctrl.Submit(context.Background(), "Hi")

	if !res.OK() {
		t.Fatalf("submit failed: kind=%v err=%v", res.Kind, res.Err)
	}
	if res.Text != "Hello! How can I help?" {
		t.Errorf("Text = %q", res.Text)
	}

	got := conv.History().All()
	wantRoles := []openai.Role{openai.RoleSystem, openai.RoleUser, openai.RoleAssistant}
	if len(got) != len(wantRoles) {
		t.Fatalf("history has %d messages, want %d", len(got), len(wantRoles))
	}
	for i, role := range wantRoles {
		if got[i].Role != role {
			t.Errorf("history[%d].Role = %q, want %q", i, got[i].Role, role)
		}
	}
	if got[0].Content != "You control a physics simulation." {
		t.Errorf("system message = %q", got[0].Content)
	}
	if len(res.Appended) != 3 {
		t.Errorf("Appended has %d messages, want 3", len(res.Appended))
	}
	if !conv.Ready() {
		t.Error("conversation not ready after first submit")
	}
	if len(display.prompts) != 1 || display.prompts[0] != "Hi" {
		t.Errorf("display prompts = %v", display.prompts)
	}
	if len(display.finals) != 1 {
		t.Errorf("display finals = %v", display.finals)
	}
}

func TestSubmitInjectsContextOnlyOnce(t *testing.T) {
	completer := &scriptedCompleter{responses: []openai.Message{
		assistantText("first"),
		assistantText("second"),
	}}
	ctrl, conv := newTestController(t, Config{
		Gate:    &fakeGate{completer: completer},
		Context: staticContext("scene context"),
	})

	ctrl.Submit(context.Background(), "one")
	ctrl.Submit(context.Background(), "two")

	systems := 0
	for _, msg := range conv.History().All() {
		if msg.Role == openai.RoleSystem {
			systems++
		}
	}
	if systems != 1 {
		t.Errorf("history contains %d system messages, want 1", systems)
	}
	if n := conv.History().Len(); n != 5 {
		t.Errorf("history has %d messages, want 5", n)
	}
}

func TestSubmitResumedConversationSkipsInjection(t *testing.T) {
	seed := []openai.Message{
		{Role: openai.RoleSystem, Content: "persisted context"},
		{Role: openai.RoleUser, Content: "earlier"},
		{Role: openai.RoleAssistant, Content: "earlier reply"},
	}
	conv := Resume("test-model", seed)
	completer := &scriptedCompleter{responses: []openai.Message{assistantText("reply")}}
	ctrl, err := NewController(conv, Config{
		Gate:    &fakeGate{completer: completer},
		Context: staticContext("fresh context that must not be injected"),
		Logger:  slog.New(slog.DiscardHandler),
	})
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}

	res := ctrl.Submit(context.Background(), "again")
	if !res.OK() {
		t.Fatalf("submit failed: %v", res.Err)
	}

	got := conv.History().All()
	if got[0].Content != "persisted context" {
		t.Errorf("history[0] = %q, resumed context replaced", got[0].Content)
	}
	if n := len(got); n != 5 {
		t.Errorf("history has %d messages, want 5", n)
	}
}

func TestSubmitMissingCredential(t *testing.T) {
	gate := &fakeGate{err: errors.New("no API key configured")}
	completer := &scriptedCompleter{}
	display := &recordingDisplay{}
	ctrl, conv := newTestController(t, Config{Gate: gate, Display: display})

	res := ctrl.Submit(context.Background(), "Hi")

	if res.Kind != KindMissingCredential {
		t.Fatalf("Kind = %v, want KindMissingCredential", res.Kind)
	}
	if want := "An error occurred. MissingCredential | no API key configured"; res.Text != want {
		t.Errorf("Text = %q, want %q", res.Text, want)
	}
	if completer.calls != 0 {
		t.Errorf("completer called %d times, want 0", completer.calls)
	}
	if !conv.History().IsEmpty() {
		t.Errorf("history mutated on rejected submit: %v", conv.History().All())
	}
	if conv.Ready() {
		t.Error("conversation marked ready on rejected submit")
	}
	// The attempt is still visible.
	if len(display.prompts) != 1 {
		t.Errorf("display prompts = %v", display.prompts)
	}
}

func TestSubmitTransportErrorLeavesDanglingUserMessage(t *testing.T) {
	completer := &scriptedCompleter{errs: []error{errors.New("connection refused")}}
	ctrl, conv := newTestController(t, Config{
		Gate:    &fakeGate{completer: completer},
		Context: staticContext("ctx"),
	})

	res := ctrl.Submit(context.Background(), "Hi")

	if res.Kind != KindTransport {
		t.Fatalf("Kind = %v, want KindTransport", res.Kind)
	}
	if !strings.HasPrefix(res.Text, "An error occurred. TransportError | ") {
		t.Errorf("Text = %q", res.Text)
	}

	got := conv.History().All()
	if len(got) != 2 {
		t.Fatalf("history has %d messages, want 2", len(got))
	}
	if got[1].Role != openai.RoleUser {
		t.Errorf("last message role = %q, want user", got[1].Role)
	}
	if !conv.Ready() {
		t.Error("context injection should survive a transport failure")
	}

	// The conversation stays usable afterwards.
	completer.errs = nil
	completer.responses = []openai.Message{assistantText("recovered")}
	completer.calls = 0
	res = ctrl.Submit(context.Background(), "retry")
	if !res.OK() || res.Text != "recovered" {
		t.Errorf("retry after transport failure: kind=%v text=%q", res.Kind, res.Text)
	}
}

func TestSubmitToolRoundTrip(t *testing.T) {
	var order []string
	registry := testRegistry(map[string]tools.Func{
		"add_object": func(_ context.Context, args map[string]any) (any, error) {
			order = append(order, "add_object")
			return map[string]any{"id": "obj-1", "shape": args["shape"]}, nil
		},
		"list_objects": func(_ context.Context, _ map[string]any) (any, error) {
			order = append(order, "list_objects")
			return "1 object in scene", nil
		},
	})
	completer := &scriptedCompleter{responses: []openai.Message{
		assistantToolCalls(
			fnCall("call_1", "add_object", `{"shape":"sphere"}`),
			fnCall("call_2", "list_objects", `{}`),
		),
		assistantText("Added a sphere; the scene now has one object."),
	}}
	display := &recordingDisplay{}
	ctrl, conv := newTestController(t, Config{
		Gate:     &fakeGate{completer: completer},
		Registry: registry,
		Display:  display,
	})

	res := ctrl.Submit(context.Background(), "Add a sphere")

	if !res.OK() {
		t.Fatalf("submit failed: kind=%v err=%v", res.Kind, res.Err)
	}
	if res.Text != "Added a sphere; the scene now has one object." {
		t.Errorf("Text = %q", res.Text)
	}

	// Tools ran strictly in request order.
	if len(order) != 2 || order[0] != "add_object" || order[1] != "list_objects" {
		t.Errorf("execution order = %v", order)
	}

	// First request advertised tools, follow-up did not.
	if completer.calls != 2 {
		t.Fatalf("completer called %d times, want 2", completer.calls)
	}
	if len(completer.schemas[0]) != 2 {
		t.Errorf("first request carried %d schemas, want 2", len(completer.schemas[0]))
	}
	if len(completer.schemas[1]) != 0 {
		t.Errorf("follow-up request carried %d schemas, want 0", len(completer.schemas[1]))
	}

	// History: system, user, assistant(tool_calls), tool, tool, assistant.
	got := conv.History().All()
	if len(got) != 6 {
		t.Fatalf("history has %d messages, want 6", len(got))
	}
	if !got[2].HasToolCalls() {
		t.Error("deferred assistant message missing from history")
	}
	if got[3].Role != openai.RoleTool || got[3].ToolCallID != "call_1" || got[3].Name != "add_object" {
		t.Errorf("first tool message = %+v", got[3])
	}
	if want := `{"id":"obj-1","shape":"sphere"}`; got[3].Content != want {
		t.Errorf("tool result content = %q, want %q", got[3].Content, want)
	}
	if got[4].ToolCallID != "call_2" || got[4].Content != "1 object in scene" {
		t.Errorf("second tool message = %+v", got[4])
	}

	// The follow-up request saw the full sequence including tool results.
	if n := len(completer.requests[1]); n != 5 {
		t.Errorf("follow-up request carried %d messages, want 5", n)
	}

	if len(res.ToolEvents) != 2 {
		t.Fatalf("ToolEvents = %v", res.ToolEvents)
	}
	if res.ToolEvents[0].Name != "add_object" || res.ToolEvents[0].CallID != "call_1" {
		t.Errorf("first tool event = %+v", res.ToolEvents[0])
	}
	if len(display.invoked) != 2 {
		t.Errorf("display invoked = %v", display.invoked)
	}
}

func TestSubmitToolArgumentParseError(t *testing.T) {
	registry := testRegistry(map[string]tools.Func{
		"add_object": func(_ context.Context, _ map[string]any) (any, error) {
			t.Error("tool invoked despite unparseable arguments")
			return nil, nil
		},
	})
	completer := &scriptedCompleter{responses: []openai.Message{
		assistantToolCalls(fnCall("call_1", "add_object", `{not json`)),
	}}
	ctrl, conv := newTestController(t, Config{
		Gate:     &fakeGate{completer: completer},
		Registry: registry,
	})

	res := ctrl.Submit(context.Background(), "go")

	if res.Kind != KindToolArgumentParse {
		t.Fatalf("Kind = %v, want KindToolArgumentParse", res.Kind)
	}
	if !strings.HasPrefix(res.Text, "An error occurred. ToolArgumentParseError | ") {
		t.Errorf("Text = %q", res.Text)
	}
	// The deferred assistant message is still on record; no follow-up was sent.
	got := conv.History().All()
	if got[len(got)-1].Role != openai.RoleAssistant || !got[len(got)-1].HasToolCalls() {
		t.Errorf("last message = %+v", got[len(got)-1])
	}
	if completer.calls != 1 {
		t.Errorf("completer called %d times, want 1", completer.calls)
	}
}

func TestSubmitUnknownTool(t *testing.T) {
	completer := &scriptedCompleter{responses: []openai.Message{
		assistantToolCalls(fnCall("call_1", "launch_rocket", `{}`)),
	}}
	ctrl, _ := newTestController(t, Config{
		Gate:     &fakeGate{completer: completer},
		Registry: testRegistry(map[string]tools.Func{}),
	})

	res := ctrl.Submit(context.Background(), "go")

	if res.Kind != KindUnknownTool {
		t.Fatalf("Kind = %v, want KindUnknownTool", res.Kind)
	}
	if !strings.Contains(res.Text, "launch_rocket") {
		t.Errorf("Text = %q, want the tool name mentioned", res.Text)
	}
}

func TestSubmitToolExecutionError(t *testing.T) {
	registry := testRegistry(map[string]tools.Func{
		"measure_distance": func(_ context.Context, _ map[string]any) (any, error) {
			return nil, errors.New("object not found")
		},
	})
	completer := &scriptedCompleter{responses: []openai.Message{
		assistantToolCalls(fnCall("call_1", "measure_distance", `{}`)),
	}}
	ctrl, _ := newTestController(t, Config{
		Gate:     &fakeGate{completer: completer},
		Registry: registry,
	})

	res := ctrl.Submit(context.Background(), "go")

	if res.Kind != KindToolExecution {
		t.Fatalf("Kind = %v, want KindToolExecution", res.Kind)
	}
	if !strings.Contains(res.Text, "object not found") {
		t.Errorf("Text = %q", res.Text)
	}
}

func TestSubmitToolPanicBecomesExecutionError(t *testing.T) {
	registry := testRegistry(map[string]tools.Func{
		"reset_scene": func(_ context.Context, _ map[string]any) (any, error) {
			panic("index out of range")
		},
	})
	completer := &scriptedCompleter{responses: []openai.Message{
		assistantToolCalls(fnCall("call_1", "reset_scene", `{}`)),
	}}
	ctrl, _ := newTestController(t, Config{
		Gate:     &fakeGate{completer: completer},
		Registry: registry,
	})

	res := ctrl.Submit(context.Background(), "go")

	if res.Kind != KindToolExecution {
		t.Fatalf("Kind = %v, want KindToolExecution", res.Kind)
	}
	if !strings.Contains(res.Text, "index out of range") {
		t.Errorf("Text = %q", res.Text)
	}
}

func TestSubmitTransportErrorOnFollowUp(t *testing.T) {
	registry := testRegistry(map[string]tools.Func{
		"list_objects": func(_ context.Context, _ map[string]any) (any, error) {
			return "empty", nil
		},
	})
	completer := &scriptedCompleter{
		responses: []openai.Message{
			assistantToolCalls(fnCall("call_1", "list_objects", `{}`)),
		},
		errs: []error{nil, errors.New("gateway timeout")},
	}
	ctrl, conv := newTestController(t, Config{
		Gate:     &fakeGate{completer: completer},
		Registry: registry,
	})

	res := ctrl.Submit(context.Background(), "go")

	if res.Kind != KindTransport {
		t.Fatalf("Kind = %v, want KindTransport", res.Kind)
	}
	// The executed tool result stays on record even though the follow-up died.
	got := conv.History().All()
	if got[len(got)-1].Role != openai.RoleTool {
		t.Errorf("last message role = %q, want tool", got[len(got)-1].Role)
	}
	if len(res.ToolEvents) != 1 {
		t.Errorf("ToolEvents = %v", res.ToolEvents)
	}
}

func TestSubmitDeferredAgainAfterBudgetReturnsContent(t *testing.T) {
	registry := testRegistry(map[string]tools.Func{
		"list_objects": func(_ context.Context, _ map[string]any) (any, error) {
			return "empty", nil
		},
	})
	completer := &scriptedCompleter{responses: []openai.Message{
		assistantToolCalls(fnCall("call_1", "list_objects", `{}`)),
		{
			Role:      openai.RoleAssistant,
			Content:   "I still need another look.",
			ToolCalls: []openai.ToolCall{fnCall("call_2", "list_objects", `{}`)},
		},
	}}
	ctrl, _ := newTestController(t, Config{
		Gate:     &fakeGate{completer: completer},
		Registry: registry,
	})

	res := ctrl.Submit(context.Background(), "go")

	if !res.OK() {
		t.Fatalf("submit failed: %v", res.Err)
	}
	if res.Text != "I still need another look." {
		t.Errorf("Text = %q", res.Text)
	}
	// Only the first round's tool ran.
	if len(res.ToolEvents) != 1 {
		t.Errorf("ToolEvents = %v", res.ToolEvents)
	}
	if completer.calls != 2 {
		t.Errorf("completer called %d times, want 2", completer.calls)
	}
}

func TestSubmitMultipleToolRounds(t *testing.T) {
	registry := testRegistry(map[string]tools.Func{
		"list_objects": func(_ context.Context, _ map[string]any) (any, error) {
			return "two objects", nil
		},
	})
	completer := &scriptedCompleter{responses: []openai.Message{
		assistantToolCalls(fnCall("call_1", "list_objects", `{}`)),
		assistantToolCalls(fnCall("call_2", "list_objects", `{}`)),
		assistantText("done"),
	}}
	ctrl, _ := newTestController(t, Config{
		Gate:          &fakeGate{completer: completer},
		Registry:      registry,
		MaxToolRounds: 2,
	})

	res := ctrl.Submit(context.Background(), "go")

	if !res.OK() || res.Text != "done" {
		t.Fatalf("kind=%v text=%q", res.Kind, res.Text)
	}
	if completer.calls != 3 {
		t.Fatalf("completer called %d times, want 3", completer.calls)
	}
	// Schemas accompany every request except the last permitted follow-up.
	if len(completer.schemas[0]) == 0 {
		t.Error("first request missing schemas")
	}
	if len(completer.schemas[1]) == 0 {
		t.Error("intermediate follow-up missing schemas")
	}
	if len(completer.schemas[2]) != 0 {
		t.Error("final follow-up still carried schemas")
	}
	if len(res.ToolEvents) != 2 {
		t.Errorf("ToolEvents = %v", res.ToolEvents)
	}
}

func TestSubmitNoRegistryOmitsSchemas(t *testing.T) {
	completer := &scriptedCompleter{responses: []openai.Message{assistantText("hi")}}
	ctrl, _ := newTestController(t, Config{Gate: &fakeGate{completer: completer}})

	res := ctrl.Submit(context.Background(), "hi")
	if !res.OK() {
		t.Fatalf("submit failed: %v", res.Err)
	}
	if completer.schemas[0] != nil {
		t.Errorf("schemas = %v, want nil", completer.schemas[0])
	}
}

func TestNewControllerValidation(t *testing.T) {
	if _, err := NewController(nil, Config{Gate: &fakeGate{}}); err == nil {
		t.Error("nil conversation accepted")
	}
	if _, err := NewController(NewConversation("m"), Config{}); err == nil {
		t.Error("missing gate accepted")
	}
	if _, err := NewController(NewConversation("m"), Config{Gate: &fakeGate{}, MaxToolRounds: -1}); err == nil {
		t.Error("negative round budget accepted")
	}
}
