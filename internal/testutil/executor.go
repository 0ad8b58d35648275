// Package testutil provides deterministic test doubles: a scripted
// executor that replays canned candidate payloads and a fixed clock
// for stable timestamps.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"verdict/internal/plan"
)

// ScriptedExecutor replays canned payloads per step, in order. Safe
// for concurrent use; the driver fans out parallel generations.
//
// When a step's script runs dry the executor keeps returning the last
// payload, so a test can script a few disagreeing votes followed by a
// converging majority without counting exact calls.
type ScriptedExecutor struct {
	mu      sync.Mutex
	scripts map[string][]string
	cursor  map[string]int
	calls   map[string]int
}

// NewScriptedExecutor creates an empty scripted executor.
func NewScriptedExecutor() *ScriptedExecutor {
	return &ScriptedExecutor{
		scripts: make(map[string][]string),
		cursor:  make(map[string]int),
		calls:   make(map[string]int),
	}
}

// Script appends payloads to a step's script.
func (e *ScriptedExecutor) Script(stepID string, payloads ...string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.scripts[stepID] = append(e.scripts[stepID], payloads...)
}

// Calls returns how many times Generate ran for a step.
func (e *ScriptedExecutor) Calls(stepID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[stepID]
}

// Generate implements driver.Executor.
func (e *ScriptedExecutor) Generate(_ context.Context, step plan.Step) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.calls[step.ID]++

	script := e.scripts[step.ID]
	if len(script) == 0 {
		return nil, fmt.Errorf("no script for step %s", step.ID)
	}

	i := e.cursor[step.ID]
	if i >= len(script) {
		i = len(script) - 1 // repeat the final payload
	} else {
		e.cursor[step.ID]++
	}
	return []byte(script[i]), nil
}

// Vote renders a well-formed candidate payload for scripting.
func Vote(stepID, action, result string) string {
	return fmt.Sprintf(`{"step_id":%q,"action":%q,"result":%q}`, stepID, action, result)
}

// ErrorVote renders a well-formed error outcome payload.
func ErrorVote(stepID, message string) string {
	return fmt.Sprintf(`{"step_id":%q,"error":%q}`, stepID, message)
}

// FixedClock returns a clock function frozen at the given instant.
func FixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}
