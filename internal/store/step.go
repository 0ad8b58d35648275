package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"verdict/internal/vote"
)

// StepStatus is the lifecycle state of one step record.
type StepStatus string

const (
	StepPending StepStatus = "pending"
	StepVoting  StepStatus = "voting"
	StepDecided StepStatus = "decided"
	StepFailed  StepStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (st StepStatus) Terminal() bool {
	return st == StepDecided || st == StepFailed
}

// rank orders statuses along the forward-only lifecycle.
func (st StepStatus) rank() int {
	switch st {
	case StepPending:
		return 0
	case StepVoting:
		return 1
	case StepDecided, StepFailed:
		return 2
	default:
		return -1
	}
}

// valid reports whether the status is one of the four known states.
func (st StepStatus) valid() bool {
	return st.rank() >= 0
}

// StepRecord is one step's persisted progress within a session.
type StepRecord struct {
	StepID    string     `json:"step_id"`
	Seq       int        `json:"seq"`
	Status    StepStatus `json:"status"`
	Voting    bool       `json:"voting"`
	Winner    []byte     `json:"winner,omitempty"`
	Votes     int        `json:"votes"`
	Margin    int        `json:"margin"`
	RedFlags  int        `json:"red_flags"`
	UpdatedAt string     `json:"updated_at,omitempty"`
}

// StepInfo declares a step at registration time.
type StepInfo struct {
	ID     string
	Voting bool
}

// StepUpdate carries one merge into a step record.
//
// Winner, Votes, and Margin overwrite the stored values; RedFlagDelta
// is added to the accumulated red flag count.
type StepUpdate struct {
	StepID       string
	Status       StepStatus
	Voting       bool
	Winner       []byte
	Votes        int
	Margin       int
	RedFlagDelta int
}

// RegisterSteps creates pending step records in plan order. Safe to
// call again with the same steps on resume: existing records are left
// untouched.
func (s *Store) RegisterSteps(ctx context.Context, sessionID string, steps []StepInfo) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("register steps: begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := s.requireActiveSession(ctx, tx, sessionID); err != nil {
		return err
	}

	for i, step := range steps {
		voting := 0
		if step.Voting {
			voting = 1
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO steps (session_id, step_id, seq, status, voting)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(session_id, step_id) DO NOTHING
		`, sessionID, step.ID, i+1, StepPending, voting)
		if err != nil {
			return fmt.Errorf("register step %s: %w", step.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("register steps: commit: %w", err)
	}
	return nil
}

// UpdateStep merges one update into a step record, creating the record
// if it does not exist yet. The write, its audit row, and the status
// transition check happen in one transaction, so readers never observe
// a partially written record.
//
// Rejected with ErrSessionComplete once the session is terminal, and
// with StatusRegressionError when the transition would move backwards
// or touch a terminal step.
func (s *Store) UpdateStep(ctx context.Context, sessionID string, upd StepUpdate) error {
	if upd.StepID == "" {
		return fmt.Errorf("update step: step id must not be empty")
	}
	if !upd.Status.valid() {
		return fmt.Errorf("update step %s: unknown status %q", upd.StepID, upd.Status)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("update step: begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := s.requireActiveSession(ctx, tx, sessionID); err != nil {
		return err
	}
	if err := s.upsertStepTx(ctx, tx, sessionID, upd); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("update step: commit: %w", err)
	}
	return nil
}

// ApplyDecision writes a decided step record and clears its ledger in
// one transaction. The decision must actually be decided; applying a
// pending decision is a programming error.
func (s *Store) ApplyDecision(ctx context.Context, sessionID string, d vote.Decision, redFlagDelta int) error {
	if !d.Decided || d.Winner == nil {
		return fmt.Errorf("apply decision: step %s is not decided", d.StepID)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("apply decision: begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := s.requireActiveSession(ctx, tx, sessionID); err != nil {
		return err
	}

	upd := StepUpdate{
		StepID:       d.StepID,
		Status:       StepDecided,
		Voting:       true,
		Winner:       d.Winner.Payload,
		Votes:        d.TotalVotes,
		Margin:       d.Margin,
		RedFlagDelta: redFlagDelta,
	}
	if err := s.upsertStepTx(ctx, tx, sessionID, upd); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM votes WHERE session_id = ? AND step_id = ?
	`, sessionID, d.StepID); err != nil {
		return fmt.Errorf("apply decision: clear ledger: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("apply decision: commit: %w", err)
	}
	return nil
}

// FailStep marks a step failed (terminal) and clears its ledger in one
// transaction. Used when the attempt budget is exhausted without a
// decision.
func (s *Store) FailStep(ctx context.Context, sessionID, stepID string, votes, redFlagDelta int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("fail step: begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := s.requireActiveSession(ctx, tx, sessionID); err != nil {
		return err
	}

	upd := StepUpdate{
		StepID:       stepID,
		Status:       StepFailed,
		Voting:       true,
		Votes:        votes,
		RedFlagDelta: redFlagDelta,
	}
	if err := s.upsertStepTx(ctx, tx, sessionID, upd); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM votes WHERE session_id = ? AND step_id = ?
	`, sessionID, stepID); err != nil {
		return fmt.Errorf("fail step: clear ledger: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("fail step: commit: %w", err)
	}
	return nil
}

// GetStep returns one step record, or ErrSessionNotFound when neither
// the session nor the step is known.
func (s *Store) GetStep(ctx context.Context, sessionID, stepID string) (*StepRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT step_id, seq, status, voting, winner, votes, margin, red_flags, updated_at
		FROM steps
		WHERE session_id = ? AND step_id = ?
	`, sessionID, stepID)

	rec, err := scanStepRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		// Distinguish unknown step from unknown session.
		if _, serr := s.GetSession(ctx, sessionID); serr != nil {
			return nil, serr
		}
		return nil, fmt.Errorf("step %s/%s: %w", sessionID, stepID, ErrSessionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get step: %w", err)
	}
	return rec, nil
}

// requireActiveSession verifies the session exists and is not terminal.
func (s *Store) requireActiveSession(ctx context.Context, tx *sql.Tx, sessionID string) error {
	var status string
	err := tx.QueryRowContext(ctx, `SELECT status FROM sessions WHERE id = ?`, sessionID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("session %s: %w", sessionID, ErrSessionNotFound)
	}
	if err != nil {
		return fmt.Errorf("check session: %w", err)
	}
	if status != SessionInProgress {
		return fmt.Errorf("session %s: %w", sessionID, ErrSessionComplete)
	}
	return nil
}

// upsertStepTx merges one update inside an open transaction and appends
// the audit row. Callers have already verified the session is active.
func (s *Store) upsertStepTx(ctx context.Context, tx *sql.Tx, sessionID string, upd StepUpdate) error {
	var current StepStatus
	var redFlags int
	var voting int
	err := tx.QueryRowContext(ctx, `
		SELECT status, red_flags, voting FROM steps
		WHERE session_id = ? AND step_id = ?
	`, sessionID, upd.StepID).Scan(&current, &redFlags, &voting)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		// Lazily created step: appended after the registered plan.
		var nextSeq int
		if err := tx.QueryRowContext(ctx, `
			SELECT COALESCE(MAX(seq), 0) + 1 FROM steps WHERE session_id = ?
		`, sessionID).Scan(&nextSeq); err != nil {
			return fmt.Errorf("next step seq: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO steps (session_id, step_id, seq, status)
			VALUES (?, ?, ?, ?)
		`, sessionID, upd.StepID, nextSeq, StepPending); err != nil {
			return fmt.Errorf("create step %s: %w", upd.StepID, err)
		}
		current, redFlags, voting = StepPending, 0, 0
	case err != nil:
		return fmt.Errorf("read step %s: %w", upd.StepID, err)
	}

	if current.Terminal() || upd.Status.rank() < current.rank() {
		return &StatusRegressionError{StepID: upd.StepID, From: current, To: upd.Status}
	}

	if upd.Voting {
		voting = 1
	}

	newFlags := redFlags + upd.RedFlagDelta
	_, err = tx.ExecContext(ctx, `
		UPDATE steps
		SET status = ?, voting = ?, winner = ?, votes = ?, margin = ?, red_flags = ?, updated_at = ?
		WHERE session_id = ? AND step_id = ?
	`, upd.Status, voting, nullableBytes(upd.Winner), upd.Votes, upd.Margin, newFlags,
		s.timestamp(), sessionID, upd.StepID)
	if err != nil {
		return fmt.Errorf("update step %s: %w", upd.StepID, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO audit (session_id, step_id, status, votes, margin, red_flags, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, sessionID, upd.StepID, upd.Status, upd.Votes, upd.Margin, newFlags, s.timestamp())
	if err != nil {
		return fmt.Errorf("audit step %s: %w", upd.StepID, err)
	}

	return nil
}

func nullableBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

// rowScanner abstracts *sql.Row and *sql.Rows for shared scanning.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanStepRecord(row rowScanner) (*StepRecord, error) {
	var rec StepRecord
	var voting int
	var winner sql.NullString
	var updatedAt sql.NullString
	err := row.Scan(&rec.StepID, &rec.Seq, &rec.Status, &voting, &winner,
		&rec.Votes, &rec.Margin, &rec.RedFlags, &updatedAt)
	if err != nil {
		return nil, err
	}
	rec.Voting = voting != 0
	if winner.Valid {
		rec.Winner = []byte(winner.String)
	}
	rec.UpdatedAt = updatedAt.String
	return &rec, nil
}
