package chat

import (
	"fmt"
	"time"

	"github.com/spatiality/spatiality/internal/openai"
)

// ErrorKind tags the failure category of a submit call. Callers branch on
// the kind rather than matching error strings.
type ErrorKind int

// Submit failure categories.
const (
	// KindNone means the submit call succeeded.
	KindNone ErrorKind = iota

	// KindMissingCredential: no usable credential, no request was attempted.
	KindMissingCredential

	// KindTransport: the completion service call failed (network, non-2xx,
	// malformed reply).
	KindTransport

	// KindToolArgumentParse: the service supplied tool arguments that do not
	// parse as structured data.
	KindToolArgumentParse

	// KindUnknownTool: the service named a tool absent from the current
	// registry.
	KindUnknownTool

	// KindToolExecution: the tool callable itself failed.
	KindToolExecution
)

// String returns the kind's stable name, used in user-visible error text.
func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "None"
	case KindMissingCredential:
		return "MissingCredential"
	case KindTransport:
		return "TransportError"
	case KindToolArgumentParse:
		return "ToolArgumentParseError"
	case KindUnknownTool:
		return "UnknownToolError"
	case KindToolExecution:
		return "ToolExecutionError"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// ToolEvent records one tool invocation performed during a submit call.
type ToolEvent struct {
	CallID   string
	Name     string
	Args     string // raw arguments payload from the service
	Output   string // coerced result content
	Duration time.Duration
}

// Result is the structured outcome of one submit call.
//
// Text is always safe to display: the final assistant content on success, a
// synthesized error line on failure. Errors never propagate out of Submit as
// Go errors; a failed exchange becomes a visible message instead of a crash,
// and the conversation remains usable.
type Result struct {
	// Text is the displayable outcome of the turn.
	Text string

	// Kind is KindNone on success, otherwise the failure category.
	Kind ErrorKind

	// Err is the underlying error for Kind != KindNone.
	Err error

	// Appended lists the messages added to the conversation during this
	// turn, in order, for persistence and display layers.
	Appended []openai.Message

	// ToolEvents lists the tool invocations performed during this turn.
	ToolEvents []ToolEvent
}

// OK reports whether the turn completed without error.
func (r Result) OK() bool { return r.Kind == KindNone }

// errorText synthesizes the user-visible line for a failed turn.
func errorText(kind ErrorKind, err error) string {
	return fmt.Sprintf("An error occurred. %s | %s", kind, err.Error())
}
