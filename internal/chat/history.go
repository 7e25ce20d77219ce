// Package chat implements the conversation core: the append-only message
// history, the conversation state, and the controller that drives the
// request / tool-dispatch / follow-up protocol against the completion
// service.
package chat

import (
	"sync"

	"github.com/spatiality/spatiality/internal/openai"
)

// History is the ordered, append-only record of a conversation's turns.
//
// Messages are immutable once appended; there is no delete or mutate
// operation, so any prefix observed at one point in time is stable for the
// life of the conversation. Safe for concurrent use.
type History struct {
	mu       sync.RWMutex
	messages []openai.Message
}

// NewHistory creates an empty History.
func NewHistory() *History {
	return &History{}
}

// NewHistoryFrom creates a History seeded with existing messages, used when
// resuming a persisted conversation. The slice is copied.
func NewHistoryFrom(messages []openai.Message) *History {
	h := &History{messages: make([]openai.Message, len(messages))}
	copy(h.messages, messages)
	return h
}

// Append adds one message to the end of the record.
func (h *History) Append(msg openai.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, msg)
}

// All returns a copy of the full ordered sequence, ready for transport.
func (h *History) All() []openai.Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]openai.Message, len(h.messages))
	copy(out, h.messages)
	return out
}

// Len returns the number of recorded messages.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.messages)
}

// IsEmpty reports whether no message has been recorded yet.
func (h *History) IsEmpty() bool {
	return h.Len() == 0
}
