// Package tools defines the registry contract between the conversation
// controller and whatever tool provider is currently active.
//
// The registry is a read-only pass-through view: it holds no state of its
// own and performs no validation beyond what the provider exposes. Existence
// of a named function is checked by the controller at dispatch time.
package tools

import (
	"context"
	"sort"

	"github.com/spatiality/spatiality/internal/openai"
)

// Func is a tool callable. It receives the arguments the model supplied,
// already parsed by the controller, and returns the tool result. Results
// that are not strings are serialized to JSON before entering the
// conversation.
//
// Callables run synchronously from the controller's point of view and must
// honor ctx cancellation for long operations.
type Func func(ctx context.Context, args map[string]any) (any, error)

// Registry exposes the active provider's tool surface. Both accessors are
// consulted fresh on every conversation turn: the active provider can change
// between turns (switching projects swaps the simulation), so the controller
// must not cache the results.
type Registry interface {
	// Schemas returns the tool declarations to advertise to the model.
	Schemas() []openai.ToolSchema

	// Functions returns the name → callable mapping for dispatch.
	Functions() map[string]Func
}

// Snapshot is an immutable (schemas, functions) pair taken at the start of a
// request cycle, so one turn sees a consistent tool set even if the provider
// changes mid-flight.
type Snapshot struct {
	Schemas   []openai.ToolSchema
	Functions map[string]Func
}

// Take captures the registry's current state. A nil registry yields an empty
// snapshot, which disables tool calling for the turn.
func Take(r Registry) Snapshot {
	if r == nil {
		return Snapshot{}
	}
	return Snapshot{
		Schemas:   r.Schemas(),
		Functions: r.Functions(),
	}
}

// Names returns the schema names in sorted order, for logging.
func (s Snapshot) Names() []string {
	names := make([]string, 0, len(s.Schemas))
	for _, schema := range s.Schemas {
		names = append(names, schema.Function.Name)
	}
	sort.Strings(names)
	return names
}

// Static is a fixed Registry, convenient for providers whose tool set does
// not change after construction, and for tests.
type Static struct {
	ToolSchemas   []openai.ToolSchema
	ToolFunctions map[string]Func
}

// Schemas implements Registry.
func (s *Static) Schemas() []openai.ToolSchema { return s.ToolSchemas }

// Functions implements Registry.
func (s *Static) Functions() map[string]Func { return s.ToolFunctions }
