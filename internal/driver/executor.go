package driver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"

	"verdict/internal/plan"
)

// maxExecutorOutput bounds how much generator output is read per call.
// The filter rejects anything past its own threshold; this cap only
// keeps a runaway process from exhausting memory first.
const maxExecutorOutput = 1 << 20

// CommandExecutor shells out to an external generator process for each
// candidate. The step is written to the child's stdin as JSON
// ({"step_id", "description", "voting"}) and the candidate payload is
// read from its stdout.
//
// Sampling settings (temperature and the like) belong to the command's
// own configuration; the executor sends an identical input for every
// attempt at a step.
type CommandExecutor struct {
	// Name is the program to run; Args its fixed arguments.
	Name string
	Args []string
}

// Generate implements Executor.
func (e *CommandExecutor) Generate(ctx context.Context, step plan.Step) ([]byte, error) {
	input, err := json.Marshal(map[string]any{
		"step_id":     step.ID,
		"description": step.Description,
		"voting":      step.Voting,
	})
	if err != nil {
		return nil, fmt.Errorf("encode step: %w", err)
	}

	cmd := exec.CommandContext(ctx, e.Name, e.Args...)
	cmd.Stdin = bytes.NewReader(input)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &limitedWriter{w: &stdout, n: maxExecutorOutput}
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("executor %s: %w (stderr: %s)", e.Name, err, truncate(stderr.String(), 200))
	}

	return bytes.TrimSpace(stdout.Bytes()), nil
}

// limitedWriter drops bytes past n instead of failing: the filter will
// reject the truncated payload as oversized or malformed anyway.
type limitedWriter struct {
	w *bytes.Buffer
	n int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	if remaining := lw.n - lw.w.Len(); remaining > 0 {
		if len(p) > remaining {
			lw.w.Write(p[:remaining])
		} else {
			lw.w.Write(p)
		}
	}
	return len(p), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
