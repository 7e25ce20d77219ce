package tui

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	tea "charm.land/bubbletea/v2"

	"github.com/spatiality/spatiality/internal/chat"
)

// eventBufferSize absorbs bursts of tool progress events while the UI is
// mid-render without blocking the controller.
const eventBufferSize = 32

// turnEvent is a discriminated union for turn progress.
// Exactly one of the fields is set per event.
type turnEvent struct {
	toolStatus string       // Tool progress line (when non-empty)
	result     *chat.Result // Final outcome (when non-nil)
}

// Turn message types for Bubble Tea
type turnStartedMsg struct {
	eventCh <-chan turnEvent
	cancel  context.CancelFunc
}

type turnToolMsg struct {
	status string
}

type turnDoneMsg struct {
	result chat.Result
}

type turnAbortedMsg struct {
	err error
}

// Relay implements chat.Display over a per-turn event channel. The
// controller calls it from the submit goroutine; the relay forwards tool
// progress into the channel attached for the current turn.
//
// Sends are best-effort: a full channel drops the progress event rather than
// stalling the turn.
type Relay struct {
	mu sync.Mutex
	ch chan<- turnEvent
}

// NewRelay creates the display relay to wire into the chat session.
func NewRelay() *Relay { return &Relay{} }

func (r *Relay) attach(ch chan<- turnEvent) {
	r.mu.Lock()
	r.ch = ch
	r.mu.Unlock()
}

func (r *Relay) detach() {
	r.mu.Lock()
	r.ch = nil
	r.mu.Unlock()
}

func (r *Relay) emit(ev turnEvent) {
	r.mu.Lock()
	ch := r.ch
	r.mu.Unlock()
	if ch == nil {
		return
	}
	select {
	case ch <- ev:
	default:
	}
}

// UserPrompt implements chat.Display. The UI already echoes the prompt on
// submit, so nothing to forward.
func (r *Relay) UserPrompt(string) {}

// ToolCallsRequested implements chat.Display.
func (r *Relay) ToolCallsRequested(names []string, _ string) {
	r.emit(turnEvent{toolStatus: "Calling " + strings.Join(names, ", ") + "..."})
}

// ToolInvoking implements chat.Display.
func (r *Relay) ToolInvoking(name string) {
	r.emit(turnEvent{toolStatus: "Running " + name + "..."})
}

// FinalResponse implements chat.Display. The result carries the final text.
func (r *Relay) FinalResponse(string) {}

// Compile-time interface verification.
var _ chat.Display = (*Relay)(nil)

// startTurn creates a command that runs one conversational turn in a
// goroutine.
//
// Goroutine lifecycle: the goroutine exits when Submit returns, which is
// bounded by the turn timeout carried in ctx. Channel closure signals
// completion - no WaitGroup needed.
func (m *Model) startTurn(prompt string) tea.Cmd {
	return func() tea.Msg {
		eventCh := make(chan turnEvent, eventBufferSize)
		ctx, cancel := context.WithTimeout(m.ctx, turnTimeout)

		m.relay.attach(eventCh)

		go func() {
			defer cancel()
			defer close(eventCh)
			defer m.relay.detach()

			// Panic recovery to prevent TUI lockup
			defer func() {
				if r := recover(); r != nil {
					slog.Error("turn panic recovered", "panic", r)
					select {
					case eventCh <- turnEvent{result: &chat.Result{
						Text: fmt.Sprintf("turn panic: %v", r),
						Kind: chat.KindTransport,
						Err:  fmt.Errorf("panic: %v", r),
					}}:
					default:
					}
				}
			}()

			result := m.session.Submit(ctx, prompt)
			select {
			case eventCh <- turnEvent{result: &result}:
			case <-ctx.Done():
			}
		}()

		return turnStartedMsg{eventCh: eventCh, cancel: cancel}
	}
}

// listenForTurn creates a command waiting for the next turn event.
// Empty events are skipped via loop instead of recursion.
func listenForTurn(eventCh <-chan turnEvent) tea.Cmd {
	return func() tea.Msg {
		if eventCh == nil {
			return nil
		}

		for {
			event, ok := <-eventCh
			if !ok {
				return turnAbortedMsg{err: fmt.Errorf("turn ended without a result")}
			}

			switch {
			case event.result != nil:
				return turnDoneMsg{result: *event.result}
			case event.toolStatus != "":
				return turnToolMsg{status: event.toolStatus}
			default:
				continue
			}
		}
	}
}
