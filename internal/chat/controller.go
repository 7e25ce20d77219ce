package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spatiality/spatiality/internal/openai"
	"github.com/spatiality/spatiality/internal/tools"
)

// Completer sends one completion request. *openai.Client implements it; test
// doubles script it.
type Completer interface {
	Complete(ctx context.Context, model string, messages []openai.Message, toolSchemas []openai.ToolSchema) (openai.Message, error)
}

// Gate guards the transport: it either yields a usable Completer or fails
// because no usable credential exists. The controller consults it before
// every request cycle.
type Gate interface {
	Transport() (Completer, error)
}

// ContextSource supplies the default context injected at first use, read
// once per conversation from the active project.
type ContextSource interface {
	DefaultContext() string
}

// Config contains all parameters for Controller construction.
type Config struct {
	// Gate is the credential/transport precondition check. Required.
	Gate Gate

	// Registry supplies the active tool set. Snapshotted fresh each turn;
	// nil disables tool calling.
	Registry tools.Registry

	// Context supplies the default context for first-use injection. Nil
	// injects an empty context.
	Context ContextSource

	// Display receives informational notifications. Nil is allowed.
	Display Display

	// Logger for diagnostics. Nil uses slog.Default().
	Logger *slog.Logger

	// MaxToolRounds caps how many rounds of tool execution a single submit
	// may perform before the follow-up request must synthesize. Tool schemas
	// are only sent while further rounds remain, so the last request cannot
	// productively defer again. Zero means the default of 1, the
	// conservative single-level policy that prevents runaway request chains
	// against a paid service.
	MaxToolRounds int
}

func (cfg Config) validate() error {
	if cfg.Gate == nil {
		return errors.New("gate is required")
	}
	if cfg.MaxToolRounds < 0 {
		return errors.New("max tool rounds must not be negative")
	}
	return nil
}

// Controller drives the conversation protocol for exactly one Conversation:
// credential check, first-use context injection, completion request,
// sequential tool dispatch, follow-up request.
//
// At most one Submit call may be in flight per Controller; callers (the UI
// layer) are responsible for disabling input while a call is pending.
type Controller struct {
	conv     *Conversation
	gate     Gate
	registry tools.Registry
	context  ContextSource
	display  Display
	logger   *slog.Logger
	rounds   int
}

// NewController creates a Controller for the given Conversation.
func NewController(conv *Conversation, cfg Config) (*Controller, error) {
	if conv == nil {
		return nil, errors.New("conversation is required")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	display := cfg.Display
	if display == nil {
		display = nopDisplay{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	rounds := cfg.MaxToolRounds
	if rounds == 0 {
		rounds = 1
	}

	return &Controller{
		conv:     conv,
		gate:     cfg.Gate,
		registry: cfg.Registry,
		context:  cfg.Context,
		display:  display,
		logger:   logger,
		rounds:   rounds,
	}, nil
}

// Conversation returns the conversation this controller drives.
func (c *Controller) Conversation() *Conversation { return c.conv }

// turn accumulates the state of one submit call.
type turn struct {
	appended []openai.Message
	events   []ToolEvent
}

func (t *turn) result(text string) Result {
	return Result{Text: text, Appended: t.appended, ToolEvents: t.events}
}

func (t *turn) fail(kind ErrorKind, err error) Result {
	return Result{
		Text:       errorText(kind, err),
		Kind:       kind,
		Err:        err,
		Appended:   t.appended,
		ToolEvents: t.events,
	}
}

// append records a message in both the conversation and the turn log.
func (c *Controller) append(t *turn, msg openai.Message) {
	c.conv.History().Append(msg)
	t.appended = append(t.appended, msg)
}

// Submit runs one full conversational turn and returns its structured
// result. Every failure — missing credential, transport, argument parsing,
// unknown tool, tool execution — is converted to a Result at this boundary;
// Submit never panics through and never returns a Go error.
//
// The history is only mutated after the gate has produced a transport: a
// turn that fails the credential check leaves no trace in the record, while
// a turn that fails mid-protocol may legitimately end on a dangling user
// message. Consumers replaying the record must tolerate that.
func (c *Controller) Submit(ctx context.Context, userText string) Result {
	t := &turn{}

	// The display sees the prompt unconditionally, preserving a visible
	// record of the attempt even when the gate rejects it.
	c.display.UserPrompt(userText)

	completer, err := c.gate.Transport()
	if err != nil {
		c.logger.Warn("submit rejected: no transport", "error", err)
		return t.fail(KindMissingCredential, err)
	}

	if !c.conv.Ready() {
		var defaultContext string
		if c.context != nil {
			defaultContext = c.context.DefaultContext()
		}
		if msg, injected := c.conv.injectContext(defaultContext); injected {
			t.appended = append(t.appended, msg)
			c.logger.Debug("default context injected", "length", len(defaultContext))
		}
	}

	c.append(t, openai.Message{Role: openai.RoleUser, Content: userText})

	// Fresh snapshot: the active tool set can change between turns.
	snap := tools.Take(c.registry)

	response, err := completer.Complete(ctx, c.conv.Model(), c.conv.History().All(), snap.Schemas)
	if err != nil {
		c.logger.Warn("completion request failed", "error", err)
		return t.fail(KindTransport, err)
	}

	// The assistant's response joins the record whether final or deferred,
	// so its own claim about what it is doing survives a later tool failure.
	c.append(t, response)

	for round := 0; response.HasToolCalls() && round < c.rounds; round++ {
		c.display.ToolCallsRequested(callNames(response.ToolCalls), response.Content)

		if result, ok := c.executeToolCalls(ctx, t, snap, response.ToolCalls); !ok {
			return result
		}

		// Schemas are withheld on the last permitted round so the follow-up
		// is a synthesis request rather than another deferral.
		var schemas []openai.ToolSchema
		if round+1 < c.rounds {
			schemas = snap.Schemas
		}

		response, err = completer.Complete(ctx, c.conv.Model(), c.conv.History().All(), schemas)
		if err != nil {
			c.logger.Warn("follow-up request failed", "error", err, "round", round+1)
			return t.fail(KindTransport, err)
		}
		c.append(t, response)
	}

	if response.HasToolCalls() {
		// Round budget exhausted but the service deferred again. Do not
		// execute; return the response's content as-is.
		c.logger.Warn("tool round budget exhausted with pending tool calls",
			"pending", len(response.ToolCalls))
		c.display.FinalResponse(response.Content)
		return t.result(response.Content)
	}

	c.display.FinalResponse(response.Content)
	return t.result(response.Content)
}

// executeToolCalls dispatches the calls strictly in the order the model
// emitted them: later tools may depend on earlier effects, and the service
// expects result messages in request order. Any failure aborts the turn.
func (c *Controller) executeToolCalls(ctx context.Context, t *turn, snap tools.Snapshot, calls []openai.ToolCall) (Result, bool) {
	for _, call := range calls {
		name := call.Function.Name

		var args map[string]any
		if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
			// The service violated its own schema contract; no partial
			// recovery for this turn.
			wrapped := fmt.Errorf("parsing arguments for %q: %w", name, err)
			c.logger.Error("tool arguments unparseable", "tool", name, "error", err)
			return t.fail(KindToolArgumentParse, wrapped), false
		}

		fn, ok := snap.Functions[name]
		if !ok {
			err := fmt.Errorf("no function %q in the active tool registry", name)
			c.logger.Error("unknown tool requested", "tool", name)
			return t.fail(KindUnknownTool, err), false
		}

		c.display.ToolInvoking(name)
		c.logger.Debug("invoking tool", "tool", name, "call_id", call.ID)

		started := time.Now()
		raw, err := invoke(ctx, fn, args)
		if err != nil {
			wrapped := fmt.Errorf("tool %q: %w", name, err)
			c.logger.Error("tool execution failed", "tool", name, "error", err)
			return t.fail(KindToolExecution, wrapped), false
		}

		content, err := coerceContent(raw)
		if err != nil {
			wrapped := fmt.Errorf("encoding result of %q: %w", name, err)
			return t.fail(KindToolExecution, wrapped), false
		}

		t.events = append(t.events, ToolEvent{
			CallID:   call.ID,
			Name:     name,
			Args:     call.Function.Arguments,
			Output:   content,
			Duration: time.Since(started),
		})

		c.append(t, openai.Message{
			Role:       openai.RoleTool,
			ToolCallID: call.ID,
			Name:       name,
			Content:    content,
		})
	}
	return Result{}, true
}

// invoke runs a tool callable, converting a panic into an error so one
// misbehaving tool cannot take down the conversation loop.
func invoke(ctx context.Context, fn tools.Func, args map[string]any) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx, args)
}

// coerceContent turns a tool's return value into message content: strings
// pass through, everything else is serialized to JSON.
func coerceContent(v any) (string, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case nil:
		return "", nil
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
}

func callNames(calls []openai.ToolCall) []string {
	names := make([]string, len(calls))
	for i, call := range calls {
		names[i] = call.Function.Name
	}
	return names
}
