// Package testutil provides shared test doubles.
package testutil

import (
	"context"
	"sync"

	"github.com/spatiality/spatiality/internal/chat"
)

// ScriptedSubmitter replays canned turn results in order and records the
// prompts it receives. Safe for concurrent use: UI tests drive it from the
// submit goroutine while assertions run on the test goroutine.
type ScriptedSubmitter struct {
	mu      sync.Mutex
	results []chat.Result
	prompts []string
}

// NewScriptedSubmitter creates a submitter that replays the given results.
func NewScriptedSubmitter(results ...chat.Result) *ScriptedSubmitter {
	return &ScriptedSubmitter{results: results}
}

// Submit implements the session interface consumed by the UI.
func (s *ScriptedSubmitter) Submit(_ context.Context, text string) chat.Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.prompts = append(s.prompts, text)
	if len(s.results) == 0 {
		return chat.Result{Text: "(scripted submitter exhausted)"}
	}
	res := s.results[0]
	s.results = s.results[1:]
	return res
}

// Prompts returns the prompts submitted so far.
func (s *ScriptedSubmitter) Prompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.prompts))
	copy(out, s.prompts)
	return out
}
