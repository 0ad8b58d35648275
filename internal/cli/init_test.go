package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runInitCmd(t *testing.T, buf *bytes.Buffer, format string, args ...string) error {
	t.Helper()
	cmd := NewInitCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetArgs(args)
	return cmd.Execute()
}

func TestInitCreatesSession(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "state.db")

	buf := &bytes.Buffer{}
	err := runInitCmd(t, buf, "text", "sess", "--db", dbPath, "--task", "demo", "--steps", "5", "--k", "2")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Session sess initialized (k=2")
}

func TestInitDuplicateSessionConflicts(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "state.db")

	buf := &bytes.Buffer{}
	require.NoError(t, runInitCmd(t, buf, "text", "sess", "--db", dbPath, "--task", "demo", "--steps", "5"))

	buf.Reset()
	err := runInitCmd(t, buf, "text", "sess", "--db", dbPath, "--task", "demo", "--steps", "5")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, buf.String(), ErrCodeConflict)
}

func TestInitForceReplacesSession(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "state.db")

	buf := &bytes.Buffer{}
	require.NoError(t, runInitCmd(t, buf, "text", "sess", "--db", dbPath, "--task", "demo", "--steps", "5"))

	buf.Reset()
	err := runInitCmd(t, buf, "text", "sess", "--db", dbPath, "--task", "redo", "--steps", "8", "--force")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Session sess initialized")
}

func TestInitGeneratesSessionID(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "state.db")

	buf := &bytes.Buffer{}
	err := runInitCmd(t, buf, "json", "--db", dbPath, "--task", "demo", "--steps", "5")
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	require.Equal(t, "ok", resp.Status)

	data, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var res InitResult
	require.NoError(t, json.Unmarshal(data, &res))
	assert.Len(t, res.SessionID, 36) // canonical UUID form
	assert.Equal(t, 3, res.K)
}

func TestInitRejectsBadAccuracy(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "state.db")

	buf := &bytes.Buffer{}
	err := runInitCmd(t, buf, "text", "sess", "--db", dbPath, "--task", "demo", "--steps", "5", "--p", "1.5")
	require.Error(t, err)
}
