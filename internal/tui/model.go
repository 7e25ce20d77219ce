// Package tui provides the Bubble Tea terminal interface for Spatiality.
package tui

import (
	"context"
	"errors"
	"strings"
	"time"

	"charm.land/bubbles/v2/help"
	"charm.land/bubbles/v2/spinner"
	"charm.land/bubbles/v2/textarea"
	"charm.land/bubbles/v2/viewport"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/spatiality/spatiality/internal/chat"
)

// State represents TUI state machine.
type State int

// TUI state machine states.
const (
	StateInput    State = iota // Awaiting user input
	StateThinking              // A turn is in flight
)

// Memory bounds to prevent unbounded growth.
const (
	maxMessages = 200 // Maximum messages stored for display
	maxHistory  = 100 // Maximum prompt history entries
)

// turnTimeout caps a single conversational turn, tool execution included.
const turnTimeout = 5 * time.Minute

// Message role constants for consistent display.
const (
	roleUser      = "user"
	roleAssistant = "assistant"
	roleSystem    = "system"
	roleError     = "error"
)

// Layout constants for viewport height calculation.
const (
	separatorLines = 2 // Two separator lines (above and below input)
	helpLines      = 1 // Help bar height
	promptLines    = 1 // Prompt prefix line
	minViewport    = 3 // Minimum viewport height
)

// Message represents a conversation message for display.
type Message struct {
	Role string // "user", "assistant", "system", "error"
	Text string
}

// Submitter runs one conversational turn. *app.Session implements it.
type Submitter interface {
	Submit(ctx context.Context, text string) chat.Result
}

// Model is the Bubble Tea model for the chat interface.
type Model struct {
	// Input (textarea for multi-line support, Shift+Enter for newline)
	input      textarea.Model
	history    []string
	historyIdx int

	// State
	state     State
	lastCtrlC time.Time

	// Output
	spinner  spinner.Model
	viewBuf  strings.Builder // Reusable buffer for View() to reduce allocations
	messages []Message

	// Scrollable message viewport
	viewport viewport.Model

	// Help bar for keyboard shortcuts
	help help.Model
	keys keyMap

	// Turn management. The relay carries tool progress from the controller's
	// display callbacks into the Bubble Tea event loop.
	relay       *Relay
	turnCancel  context.CancelFunc
	turnEventCh <-chan turnEvent
	toolStatus  string // Current tool status line, empty when idle

	// Dependencies
	session     Submitter
	projectName string
	ctx         context.Context
	ctxCancel   context.CancelFunc

	// Dimensions
	width  int
	height int

	// Styles
	styles Styles

	// Markdown rendering (nil = graceful degradation to plain text)
	markdown *markdownRenderer
}

// addMessage appends a message and enforces the maxMessages bound.
func (m *Model) addMessage(msg Message) {
	m.messages = append(m.messages, msg)
	if len(m.messages) > maxMessages {
		m.messages = m.messages[len(m.messages)-maxMessages:]
	}
}

// New creates a Model bound to one chat session.
//
// IMPORTANT: ctx MUST be the same context passed to tea.WithContext()
// to ensure consistent cancellation behavior.
func New(ctx context.Context, session Submitter, relay *Relay, projectName string) (*Model, error) {
	if session == nil {
		return nil, errors.New("tui.New: session is required")
	}
	if relay == nil {
		return nil, errors.New("tui.New: relay is required")
	}
	if ctx == nil {
		return nil, errors.New("tui.New: ctx is required")
	}

	ctx, cancel := context.WithCancel(ctx)

	// Enter submits, Shift+Enter adds newline (default textarea behavior)
	ta := textarea.New()
	ta.Placeholder = "Describe the scene..."
	ta.SetHeight(1)
	ta.SetWidth(120) // Updated on WindowSizeMsg
	ta.MaxWidth = 0
	ta.ShowLineNumbers = false

	// Minimal styling: plain text, gray placeholder
	cleanStyle := textarea.StyleState{
		Base:        lipgloss.NewStyle(),
		Text:        lipgloss.NewStyle(),
		Placeholder: lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		Prompt:      lipgloss.NewStyle(),
	}
	ta.SetStyles(textarea.Styles{
		Focused: cleanStyle,
		Blurred: cleanStyle,
	})
	ta.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	// Viewport keys are routed explicitly in handleKey; disable the builtin
	// bindings so they cannot conflict with textarea and history navigation.
	vp := viewport.New(viewport.WithWidth(80), viewport.WithHeight(20))
	vp.MouseWheelEnabled = true
	vp.SoftWrap = true
	vp.KeyMap = viewport.KeyMap{}

	h := help.New()

	return &Model{
		session:     session,
		relay:       relay,
		projectName: projectName,
		ctx:         ctx,
		ctxCancel:   cancel,
		input:       ta,
		spinner:     sp,
		viewport:    vp,
		help:        h,
		keys:        newKeyMap(),
		styles:      DefaultStyles(),
		history:     make([]string, 0, maxHistory),
		markdown:    newMarkdownRenderer(80),
		width:       80, // Default width until WindowSizeMsg arrives
	}, nil
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		textarea.Blink,
		m.spinner.Tick,
		m.input.Focus(),
	)
}
