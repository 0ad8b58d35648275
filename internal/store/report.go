package store

import (
	"context"
	"fmt"
	"strings"

	"verdict/internal/reliability"
)

// Report aggregates a session's progress and outcome.
type Report struct {
	SessionID      string       `json:"session_id"`
	Task           string       `json:"task"`
	Status         string       `json:"status"`
	K              int          `json:"k"`
	EstimatedSteps int          `json:"estimated_steps"`
	RecordedSteps  int          `json:"recorded_steps"`
	Completed      int          `json:"completed"`
	Failed         int          `json:"failed"`
	VotingSteps    int          `json:"voting_steps"`
	NonVotingSteps int          `json:"non_voting_steps"`
	TotalVotes     int          `json:"total_votes"`
	TotalRedFlags  int          `json:"total_red_flags"`
	ObservedP      float64      `json:"observed_p"`
	EstimatedP     float64      `json:"estimated_success_probability"`
	CreatedAt      string       `json:"created_at"`
	CompletedAt    string       `json:"completed_at,omitempty"`
	Steps          []StepRecord `json:"steps"`
}

// Report builds the session's reliability report: totals, per-step
// lines in plan order, and an estimated end-to-end success probability.
//
// The estimate uses the observed per-attempt accuracy when the session
// has decided voting steps (the winner is assumed to have taken
// (votes+margin)/2 of each decided tally), and falls back to the
// session's assumed accuracy otherwise.
func (s *Store) Report(ctx context.Context, sessionID string) (*Report, error) {
	sess, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT step_id, seq, status, voting, winner, votes, margin, red_flags, updated_at
		FROM steps
		WHERE session_id = ?
		ORDER BY seq ASC, step_id ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("report: query steps: %w", err)
	}
	defer rows.Close()

	rep := &Report{
		SessionID:      sess.ID,
		Task:           sess.Task,
		Status:         sess.Status,
		K:              sess.K,
		EstimatedSteps: sess.EstimatedSteps,
		CreatedAt:      sess.CreatedAt,
		CompletedAt:    sess.CompletedAt,
		Steps:          []StepRecord{},
	}

	// Winner-share tallies for the observed accuracy estimate.
	var leaderVotes, decidedVotes float64

	for rows.Next() {
		rec, err := scanStepRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("report: scan step: %w", err)
		}
		rep.Steps = append(rep.Steps, *rec)
		rep.RecordedSteps++
		rep.TotalVotes += rec.Votes
		rep.TotalRedFlags += rec.RedFlags

		if rec.Voting {
			rep.VotingSteps++
		} else {
			rep.NonVotingSteps++
		}

		switch rec.Status {
		case StepDecided:
			rep.Completed++
			if rec.Voting && rec.Votes > 0 {
				leaderVotes += float64(rec.Votes+rec.Margin) / 2
				decidedVotes += float64(rec.Votes)
			}
		case StepFailed:
			rep.Failed++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("report: iterate steps: %w", err)
	}

	rep.ObservedP = sess.AssumedP
	if decidedVotes > 0 {
		rep.ObservedP = leaderVotes / decidedVotes
	}
	rep.EstimatedP = s.estimateSuccess(rep.ObservedP, sess, rep)

	return rep, nil
}

// estimateSuccess computes the end-to-end estimate at the session's k.
// Degenerate observed accuracies (a unanimous history reads as p=1)
// short-circuit instead of leaving the formula's domain.
func (s *Store) estimateSuccess(p float64, sess *Session, rep *Report) float64 {
	if p >= 1 {
		return 1
	}
	if p <= 0 {
		return 0
	}

	steps := rep.VotingSteps
	if steps == 0 {
		steps = sess.EstimatedSteps
	}

	est, err := reliability.FullTaskSuccessProbability(p, sess.K, steps, 1)
	if err != nil {
		// Unreachable: inputs are validated above and k/steps come
		// from checked session fields.
		return 0
	}
	return est
}

// Text renders the report as the human-readable summary printed at the
// end of a run.
func (r *Report) Text() string {
	var b strings.Builder

	line := strings.Repeat("=", 50)
	thin := strings.Repeat("-", 50)

	fmt.Fprintf(&b, "Execution Report\n%s\n", line)
	fmt.Fprintf(&b, "Session: %s\n", r.SessionID)
	fmt.Fprintf(&b, "Task: %s\n", r.Task)
	fmt.Fprintf(&b, "Status: %s\n", r.Status)
	fmt.Fprintf(&b, "Margin (k): %d\n", r.K)
	fmt.Fprintf(&b, "\n")
	fmt.Fprintf(&b, "Total steps: %d (estimated %d)\n", r.RecordedSteps, r.EstimatedSteps)
	fmt.Fprintf(&b, "Completed: %d\n", r.Completed)
	fmt.Fprintf(&b, "Failed: %d\n", r.Failed)
	fmt.Fprintf(&b, "Voting steps: %d (non-voting %d)\n", r.VotingSteps, r.NonVotingSteps)
	fmt.Fprintf(&b, "Total votes cast: %d\n", r.TotalVotes)
	fmt.Fprintf(&b, "Red-flagged attempts: %d\n", r.TotalRedFlags)
	fmt.Fprintf(&b, "Estimated success probability: %.1f%%\n", r.EstimatedP*100)
	fmt.Fprintf(&b, "\nStep Details:\n%s\n", thin)

	for _, step := range r.Steps {
		icon := "-"
		switch step.Status {
		case StepDecided:
			icon = "+"
		case StepFailed:
			icon = "x"
		}
		fmt.Fprintf(&b, "%s %s [%s]: votes=%d, margin=%d, red_flags=%d\n",
			icon, step.StepID, step.Status, step.Votes, step.Margin, step.RedFlags)
	}

	fmt.Fprintf(&b, "\nStarted: %s\n", r.CreatedAt)
	if r.CompletedAt != "" {
		fmt.Fprintf(&b, "Completed: %s\n", r.CompletedAt)
	}

	return b.String()
}
