package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Session status values.
const (
	SessionInProgress = "in_progress"
	SessionSuccess    = "success"
	SessionFailed     = "failed"
)

// Session is one execution session's persisted record.
type Session struct {
	ID             string
	Task           string
	EstimatedSteps int
	K              int
	AssumedP       float64
	Status         string
	CreatedAt      string
	CompletedAt    string
}

// Terminal reports whether the session has been marked complete.
func (s *Session) Terminal() bool {
	return s.Status != SessionInProgress
}

// Initialize creates a new session with the given fixed margin k.
//
// Fails with ErrSessionExists if the id is taken, unless force is set,
// in which case the prior session and everything hanging off it (step
// records, ledgers, audit rows) is wiped first.
//
// assumedP is the per-attempt accuracy used for fallback report
// estimates; pass 0 for DefaultAssumedAccuracy.
func (s *Store) Initialize(ctx context.Context, sessionID, task string, estimatedSteps, k int, assumedP float64, force bool) error {
	if sessionID == "" {
		return fmt.Errorf("initialize: session id must not be empty")
	}
	if k < 1 {
		return fmt.Errorf("initialize: k must be >= 1, got %d", k)
	}
	if estimatedSteps < 1 {
		return fmt.Errorf("initialize: estimated steps must be >= 1, got %d", estimatedSteps)
	}
	if assumedP == 0 {
		assumedP = DefaultAssumedAccuracy
	}
	if assumedP <= 0 || assumedP >= 1 {
		return fmt.Errorf("initialize: assumed accuracy must be in (0, 1), got %v", assumedP)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("initialize: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	var existing string
	err = tx.QueryRowContext(ctx, `SELECT id FROM sessions WHERE id = ?`, sessionID).Scan(&existing)
	switch {
	case err == nil:
		if !force {
			return fmt.Errorf("initialize %s: %w", sessionID, ErrSessionExists)
		}
		// ON DELETE CASCADE drops steps, votes, and audit rows.
		if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, sessionID); err != nil {
			return fmt.Errorf("initialize: wipe prior session: %w", err)
		}
	case errors.Is(err, sql.ErrNoRows):
		// New session.
	default:
		return fmt.Errorf("initialize: check existing: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (id, task, estimated_steps, k, assumed_p, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, sessionID, task, estimatedSteps, k, assumedP, SessionInProgress, s.timestamp())
	if err != nil {
		return fmt.Errorf("initialize: insert session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("initialize: commit: %w", err)
	}
	return nil
}

// GetSession returns the session record, or ErrSessionNotFound.
func (s *Store) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	var sess Session
	var completedAt sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, task, estimated_steps, k, assumed_p, status, created_at, completed_at
		FROM sessions
		WHERE id = ?
	`, sessionID).Scan(&sess.ID, &sess.Task, &sess.EstimatedSteps, &sess.K,
		&sess.AssumedP, &sess.Status, &sess.CreatedAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrSessionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	sess.CompletedAt = completedAt.String
	return &sess, nil
}

// GetMargin returns the session's fixed margin k.
//
// Fails with ErrSessionNotFound for unknown sessions: there is no
// default k, and callers must never invent one.
func (s *Store) GetMargin(ctx context.Context, sessionID string) (int, error) {
	var k int
	err := s.db.QueryRowContext(ctx, `SELECT k FROM sessions WHERE id = ?`, sessionID).Scan(&k)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("session %s: %w", sessionID, ErrSessionNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("get margin: %w", err)
	}
	return k, nil
}

// MarkComplete marks the session terminal. Subsequent step updates and
// vote appends are rejected with ErrSessionComplete, as is a second
// MarkComplete.
func (s *Store) MarkComplete(ctx context.Context, sessionID string, success bool) error {
	status := SessionSuccess
	if !success {
		status = SessionFailed
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions
		SET status = ?, completed_at = ?
		WHERE id = ? AND status = ?
	`, status, s.timestamp(), sessionID, SessionInProgress)
	if err != nil {
		return fmt.Errorf("mark complete: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark complete: rows affected: %w", err)
	}
	if n == 0 {
		// Distinguish unknown from already-terminal.
		if _, err := s.GetSession(ctx, sessionID); err != nil {
			return err
		}
		return fmt.Errorf("session %s: %w", sessionID, ErrSessionComplete)
	}
	return nil
}

// ResumeInfo describes whether and where a session can pick up.
type ResumeInfo struct {
	CanResume      bool        `json:"can_resume"`
	NextStep       *StepRecord `json:"next_step,omitempty"`
	CompletedSteps int         `json:"completed_steps"`
	FailedSteps    int         `json:"failed_steps"`
	TotalSteps     int         `json:"total_steps"`
}

// ResumePoint reports whether the session is resumable (not complete)
// and, if so, the first step record that is still pending or voting,
// in plan order.
func (s *Store) ResumePoint(ctx context.Context, sessionID string) (*ResumeInfo, error) {
	sess, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	info := &ResumeInfo{TotalSteps: sess.EstimatedSteps}
	err = s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(CASE WHEN status = 'decided' THEN 1 END),
			COUNT(CASE WHEN status = 'failed' THEN 1 END)
		FROM steps
		WHERE session_id = ?
	`, sessionID).Scan(&info.CompletedSteps, &info.FailedSteps)
	if err != nil {
		return nil, fmt.Errorf("resume point: count steps: %w", err)
	}

	if sess.Terminal() {
		return info, nil
	}

	next, err := s.firstOpenStep(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	info.NextStep = next
	info.CanResume = next != nil || info.CompletedSteps+info.FailedSteps < sess.EstimatedSteps

	return info, nil
}

// firstOpenStep returns the first non-terminal step record in plan
// order, or nil when every recorded step is terminal.
func (s *Store) firstOpenStep(ctx context.Context, sessionID string) (*StepRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT step_id, seq, status, voting, winner, votes, margin, red_flags, updated_at
		FROM steps
		WHERE session_id = ? AND status IN ('pending', 'voting')
		ORDER BY seq ASC, step_id ASC
		LIMIT 1
	`, sessionID)

	rec, err := scanStepRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("first open step: %w", err)
	}
	return rec, nil
}
