package chat

import (
	"sync"

	"github.com/google/uuid"

	"github.com/spatiality/spatiality/internal/openai"
)

// Conversation is one ongoing exchange: a message history, a model
// identifier, and a one-way readiness flag.
//
// Readiness flips to true exactly once, when the default context message is
// injected at the first successful submit, and never reverts. A Conversation
// is created when a chat session starts and replaced when the active project
// changes; it is never shared between two concurrent sessions.
type Conversation struct {
	id      uuid.UUID
	model   string
	history *History

	mu    sync.Mutex
	ready bool
}

// NewConversation creates an empty, unready Conversation for the given model.
func NewConversation(model string) *Conversation {
	return &Conversation{
		id:      uuid.New(),
		model:   model,
		history: NewHistory(),
	}
}

// Resume rebuilds a Conversation from persisted messages. The conversation
// is ready iff the record starts with a system message, meaning the default
// context was already injected in a previous session.
func Resume(model string, messages []openai.Message) *Conversation {
	c := &Conversation{
		id:      uuid.New(),
		model:   model,
		history: NewHistoryFrom(messages),
	}
	if len(messages) > 0 && messages[0].Role == openai.RoleSystem {
		c.ready = true
	}
	return c
}

// ID returns the conversation's identifier.
func (c *Conversation) ID() uuid.UUID { return c.id }

// Model returns the model identifier used for completion requests.
func (c *Conversation) Model() string { return c.model }

// History returns the conversation's message record.
func (c *Conversation) History() *History { return c.history }

// Ready reports whether the default context has been injected.
func (c *Conversation) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

// injectContext records the default context as the conversation's first
// message and marks the conversation ready. It is a no-op after the first
// call. An empty context string is allowed and still counts as injection.
// Returns the injected message and whether injection happened.
func (c *Conversation) injectContext(defaultContext string) (openai.Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ready {
		return openai.Message{}, false
	}
	msg := openai.Message{
		Role:    openai.RoleSystem,
		Content: defaultContext,
	}
	c.history.Append(msg)
	c.ready = true
	return msg, true
}
