package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSessionDB(t *testing.T, k int) string {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "state.db")
	buf := &bytes.Buffer{}
	err := runInitCmd(t, buf, "text", "sess", "--db", dbPath,
		"--task", "demo", "--steps", "3", "--k", strconv.Itoa(k))
	require.NoError(t, err)
	return dbPath
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func castVote(t *testing.T, buf *bytes.Buffer, dbPath, stepID, payload string) error {
	t.Helper()
	cmd := NewVoteCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetIn(strings.NewReader(payload))
	cmd.SetArgs([]string{"sess", stepID, "--db", dbPath})
	return cmd.Execute()
}

func TestVoteAccumulatesToDecision(t *testing.T) {
	dbPath := newSessionDB(t, 2)
	payload := `{"step_id":"s1","action":"copy","result":"done"}`

	buf := &bytes.Buffer{}
	require.NoError(t, castVote(t, buf, dbPath, "s1", payload))
	assert.Contains(t, buf.String(), "no decision yet")

	buf.Reset()
	require.NoError(t, castVote(t, buf, dbPath, "s1", payload))
	assert.Contains(t, buf.String(), "Step s1 decided after 2 votes (margin 2)")
}

func TestVoteDisagreementDelaysDecision(t *testing.T) {
	dbPath := newSessionDB(t, 2)

	buf := &bytes.Buffer{}
	require.NoError(t, castVote(t, buf, dbPath, "s1", `{"step_id":"s1","action":"a","result":"1"}`))
	require.NoError(t, castVote(t, buf, dbPath, "s1", `{"step_id":"s1","action":"b","result":"2"}`))

	// Two votes split 1-1: the third only brings the leader to +1.
	buf.Reset()
	require.NoError(t, castVote(t, buf, dbPath, "s1", `{"step_id":"s1","action":"a","result":"1"}`))
	assert.Contains(t, buf.String(), "no decision yet")

	buf.Reset()
	require.NoError(t, castVote(t, buf, dbPath, "s1", `{"step_id":"s1","action":"a","result":"1"}`))
	assert.Contains(t, buf.String(), "decided after 4 votes")
}

func TestVotePayloadFromFile(t *testing.T) {
	dbPath := newSessionDB(t, 1)
	payloadPath := filepath.Join(t.TempDir(), "candidate.json")
	writeFile(t, payloadPath, `{"step_id":"s1","action":"copy","result":"done"}`)

	buf := &bytes.Buffer{}
	cmd := NewVoteCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"sess", "s1", "--db", dbPath, "--payload-file", payloadPath})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "decided after 1 votes")
}

func TestVoteRejectsMalformedPayload(t *testing.T) {
	dbPath := newSessionDB(t, 2)

	buf := &bytes.Buffer{}
	err := castVote(t, buf, dbPath, "s1", `{"step_id": "s1", "action":`)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, buf.String(), ErrCodeRejected)
	assert.Contains(t, err.Error(), "MALFORMED")
}

func TestVoteRejectsErrorOutcome(t *testing.T) {
	dbPath := newSessionDB(t, 2)

	buf := &bytes.Buffer{}
	err := castVote(t, buf, dbPath, "s1", `{"step_id":"s1","error":"tool crashed"}`)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "ERROR_OUTCOME")
}

func TestVoteRejectsMismatchedStep(t *testing.T) {
	dbPath := newSessionDB(t, 2)

	buf := &bytes.Buffer{}
	err := castVote(t, buf, dbPath, "s1", `{"step_id":"s2","action":"a","result":"1"}`)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestVoteUnknownSession(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "state.db")
	// Open the database without a session in it.
	buf := &bytes.Buffer{}
	cmd := NewVoteCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetIn(strings.NewReader(`{"step_id":"s1","action":"a","result":"1"}`))
	cmd.SetArgs([]string{"ghost", "s1", "--db", dbPath})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, buf.String(), ErrCodeNotFound)
}
