package tui

import (
	"context"
	"errors"
	"time"

	"charm.land/bubbles/v2/spinner"
	tea "charm.land/bubbletea/v2"

	"github.com/spatiality/spatiality/internal/chat"
)

// timeRounding keeps tool durations readable in the transcript.
const timeRounding = time.Millisecond

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		// Viewport height: total - input - separators - help
		inputHeight := m.input.Height() + promptLines
		fixedHeight := separatorLines + inputHeight + helpLines
		vpHeight := max(msg.Height-fixedHeight, minViewport)

		m.viewport.SetWidth(msg.Width)
		m.viewport.SetHeight(vpHeight)
		m.input.SetWidth(msg.Width - 4) // Room for "> " prompt
		m.help.SetWidth(msg.Width)
		m.markdown.UpdateWidth(msg.Width)

		m.rebuildViewportContent()
		return m, nil

	case tea.MouseWheelMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		if m.state == StateThinking {
			m.rebuildViewportContent()
		}
		return m, cmd

	case turnStartedMsg:
		m.turnCancel = msg.cancel
		m.turnEventCh = msg.eventCh
		m.rebuildViewportContent()
		m.viewport.GotoBottom()
		return m, listenForTurn(msg.eventCh)

	case turnToolMsg:
		m.toolStatus = msg.status
		m.rebuildViewportContent()
		m.viewport.GotoBottom()
		return m, listenForTurn(m.turnEventCh)

	case turnDoneMsg:
		m.finishTurn()
		m.applyResult(msg.result)
		m.rebuildViewportContent()
		m.viewport.GotoBottom()
		return m, m.input.Focus()

	case turnAbortedMsg:
		m.finishTurn()
		switch {
		case errors.Is(msg.err, context.Canceled):
			m.addMessage(Message{Role: roleSystem, Text: "(Canceled)"})
		case errors.Is(msg.err, context.DeadlineExceeded):
			m.addMessage(Message{Role: roleError, Text: "Turn timed out (>5 min). Try a simpler request."})
		default:
			m.addMessage(Message{Role: roleError, Text: msg.err.Error()})
		}
		m.rebuildViewportContent()
		m.viewport.GotoBottom()
		return m, m.input.Focus()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// finishTurn returns the model to the input state and releases turn
// resources.
func (m *Model) finishTurn() {
	m.state = StateInput
	m.toolStatus = ""
	if m.turnCancel != nil {
		m.turnCancel()
		m.turnCancel = nil
	}
	m.turnEventCh = nil
}

// applyResult converts a turn outcome into display messages. Failed turns
// surface their synthesized error line; the conversation itself stays
// usable.
func (m *Model) applyResult(res chat.Result) {
	for _, ev := range res.ToolEvents {
		m.addMessage(Message{Role: roleSystem, Text: "ran " + ev.Name + " (" + ev.Duration.Round(timeRounding).String() + ")"})
	}
	if res.OK() {
		m.addMessage(Message{Role: roleAssistant, Text: res.Text})
		return
	}
	m.addMessage(Message{Role: roleError, Text: res.Text})
}
