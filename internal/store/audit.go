package store

import (
	"context"
	"fmt"
)

// AuditEvent is one recorded step transition. Audit rows are appended
// by UpdateStep/ApplyDecision/FailStep and never deleted while their
// session lives, so they survive ledger clearing.
type AuditEvent struct {
	StepID     string     `json:"step_id"`
	Status     StepStatus `json:"status"`
	Votes      int        `json:"votes"`
	Margin     int        `json:"margin"`
	RedFlags   int        `json:"red_flags"`
	RecordedAt string     `json:"recorded_at"`
}

// AuditTrail returns a session's step transitions in the order they
// were recorded.
func (s *Store) AuditTrail(ctx context.Context, sessionID string) ([]AuditEvent, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT step_id, status, votes, margin, red_flags, recorded_at
		FROM audit
		WHERE session_id = ?
		ORDER BY id ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("audit trail: %w", err)
	}
	defer rows.Close()

	events := []AuditEvent{}
	for rows.Next() {
		var ev AuditEvent
		if err := rows.Scan(&ev.StepID, &ev.Status, &ev.Votes, &ev.Margin,
			&ev.RedFlags, &ev.RecordedAt); err != nil {
			return nil, fmt.Errorf("audit trail: scan: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit trail: iterate: %w", err)
	}

	return events, nil
}
