package store

import (
	"context"
	"fmt"

	"verdict/internal/vote"
)

// AppendVote appends one accepted attempt to the (session, step) ledger
// and returns its position (1-based) in the ledger.
//
// The sequence number is assigned inside the transaction, and the
// store's single connection serializes concurrent appends, so two
// parallel candidate generations can never claim the same slot or
// double-count a vote.
func (s *Store) AppendVote(ctx context.Context, sessionID string, a *vote.Attempt) (int, error) {
	if a == nil {
		return 0, fmt.Errorf("append vote: nil attempt")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("append vote: begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := s.requireActiveSession(ctx, tx, sessionID); err != nil {
		return 0, err
	}

	var seq int
	if err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) + 1 FROM votes
		WHERE session_id = ? AND step_id = ?
	`, sessionID, a.StepID).Scan(&seq); err != nil {
		return 0, fmt.Errorf("append vote: next seq: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO votes (session_id, step_id, seq, payload, signature, raw_len)
		VALUES (?, ?, ?, ?, ?, ?)
	`, sessionID, a.StepID, seq, string(a.Payload), a.Signature, a.RawLen)
	if err != nil {
		return 0, fmt.Errorf("append vote: insert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("append vote: commit: %w", err)
	}
	return seq, nil
}

// ReadLedger returns the ordered accepted attempts for one step.
// Returns an empty slice (not nil) when the ledger is empty.
//
// Each row is re-screened on the way out; a row that no longer passes
// the filter, or whose stored signature disagrees with its payload, is
// an IntegrityError: ledgers only ever receive accepted attempts, so
// either means the database was modified outside this store.
func (s *Store) ReadLedger(ctx context.Context, sessionID, stepID string) ([]vote.Attempt, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT payload, signature FROM votes
		WHERE session_id = ? AND step_id = ?
		ORDER BY seq ASC
	`, sessionID, stepID)
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	defer rows.Close()

	ledger := []vote.Attempt{}
	for rows.Next() {
		var payload, signature string
		if err := rows.Scan(&payload, &signature); err != nil {
			return nil, fmt.Errorf("read ledger: scan: %w", err)
		}

		a, flag := vote.Screen([]byte(payload))
		if flag != nil {
			return nil, &IntegrityError{
				SessionID: sessionID,
				StepID:    stepID,
				Message:   fmt.Sprintf("stored vote no longer screens clean: %s", flag.Reason()),
			}
		}
		if a.Signature != signature {
			return nil, &IntegrityError{
				SessionID: sessionID,
				StepID:    stepID,
				Message:   "stored signature does not match payload",
			}
		}
		ledger = append(ledger, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read ledger: iterate: %w", err)
	}

	return ledger, nil
}

// ClearLedger empties a step's ledger. Clearing an already-empty ledger
// is a no-op. Prefer ApplyDecision or FailStep, which clear the ledger
// in the same transaction as the step update.
func (s *Store) ClearLedger(ctx context.Context, sessionID, stepID string) error {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		DELETE FROM votes WHERE session_id = ? AND step_id = ?
	`, sessionID, stepID)
	if err != nil {
		return fmt.Errorf("clear ledger: %w", err)
	}
	return nil
}
