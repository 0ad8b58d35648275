package driver

import (
	"context"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"verdict/internal/plan"
)

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("test requires a POSIX shell")
	}
}

func TestCommandExecutorEchoesPayload(t *testing.T) {
	requireShell(t)

	// The child reads the step JSON from stdin and echoes it back, so
	// the output carries the step_id we sent.
	e := &CommandExecutor{Name: "sh", Args: []string{"-c", "cat"}}
	out, err := e.Generate(context.Background(), plan.Step{ID: "s1", Description: "d", Voting: true})
	require.NoError(t, err)
	assert.JSONEq(t, `{"step_id":"s1","description":"d","voting":true}`, string(out))
}

func TestCommandExecutorTrimsOutput(t *testing.T) {
	requireShell(t)

	e := &CommandExecutor{Name: "sh", Args: []string{"-c", `printf '  {"step_id":"s1"}\n\n'`}}
	out, err := e.Generate(context.Background(), plan.Step{ID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, `{"step_id":"s1"}`, string(out))
}

func TestCommandExecutorReportsStderr(t *testing.T) {
	requireShell(t)

	e := &CommandExecutor{Name: "sh", Args: []string{"-c", "echo boom >&2; exit 3"}}
	_, err := e.Generate(context.Background(), plan.Step{ID: "s1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestCommandExecutorMissingProgram(t *testing.T) {
	e := &CommandExecutor{Name: "definitely-not-a-real-program-xyz"}
	_, err := e.Generate(context.Background(), plan.Step{ID: "s1"})
	require.Error(t, err)
}

func TestLimitedWriterCapsOutput(t *testing.T) {
	requireShell(t)

	e := &CommandExecutor{Name: "sh", Args: []string{"-c", "yes x | head -n 2000000"}}
	out, err := e.Generate(context.Background(), plan.Step{ID: "s1"})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(out), maxExecutorOutput)
}
