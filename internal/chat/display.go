package chat

// Display receives human-readable notifications as a turn progresses. It is
// informational fan-out for UI layers: implementations must not block for
// long, and their absence never affects control flow.
type Display interface {
	// UserPrompt reports the raw prompt the user submitted. Emitted before
	// the credential check, so an attempt is visible even when it fails.
	UserPrompt(text string)

	// ToolCallsRequested reports that the model deferred to tools. note is
	// the assistant's own commentary, possibly empty.
	ToolCallsRequested(names []string, note string)

	// ToolInvoking reports that the named function is about to run.
	ToolInvoking(name string)

	// FinalResponse reports the turn's final textual response.
	FinalResponse(text string)
}

// nopDisplay is used when no display collaborator is wired.
type nopDisplay struct{}

func (nopDisplay) UserPrompt(string)                   {}
func (nopDisplay) ToolCallsRequested([]string, string) {}
func (nopDisplay) ToolInvoking(string)                 {}
func (nopDisplay) FinalResponse(string)                {}
