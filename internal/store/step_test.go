package store

import (
	"context"
	"errors"
	"testing"

	"verdict/internal/vote"
)

func TestUpdateStep_LazyCreation(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	initSession(t, s, "sess", 2, 3)

	err := s.UpdateStep(ctx, "sess", StepUpdate{StepID: "s1", Status: StepVoting, Voting: true})
	if err != nil {
		t.Fatalf("UpdateStep() failed: %v", err)
	}

	rec, err := s.GetStep(ctx, "sess", "s1")
	if err != nil {
		t.Fatalf("GetStep() failed: %v", err)
	}
	if rec.Status != StepVoting {
		t.Errorf("Status = %s, want voting", rec.Status)
	}
	if !rec.Voting {
		t.Error("Voting = false, want true")
	}
	if rec.Seq != 1 {
		t.Errorf("Seq = %d, want 1", rec.Seq)
	}
}

func TestUpdateStep_RedFlagsAccumulate(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	initSession(t, s, "sess", 2, 3)

	for i := 0; i < 3; i++ {
		err := s.UpdateStep(ctx, "sess", StepUpdate{
			StepID: "s1", Status: StepVoting, Voting: true, RedFlagDelta: 2,
		})
		if err != nil {
			t.Fatalf("UpdateStep() #%d failed: %v", i, err)
		}
	}

	rec, err := s.GetStep(ctx, "sess", "s1")
	if err != nil {
		t.Fatalf("GetStep() failed: %v", err)
	}
	if rec.RedFlags != 6 {
		t.Errorf("RedFlags = %d, want 6 (accumulated)", rec.RedFlags)
	}
}

func TestUpdateStep_StatusNeverRegresses(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	initSession(t, s, "sess", 2, 3)

	err := s.UpdateStep(ctx, "sess", StepUpdate{StepID: "s1", Status: StepVoting})
	if err != nil {
		t.Fatalf("UpdateStep(voting) failed: %v", err)
	}

	var regress *StatusRegressionError
	err = s.UpdateStep(ctx, "sess", StepUpdate{StepID: "s1", Status: StepPending})
	if !errors.As(err, &regress) {
		t.Fatalf("voting->pending error = %v, want StatusRegressionError", err)
	}
}

func TestUpdateStep_TerminalStepRejectsUpdates(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	initSession(t, s, "sess", 2, 3)

	err := s.UpdateStep(ctx, "sess", StepUpdate{
		StepID: "s1", Status: StepDecided, Votes: 3, Margin: 3,
	})
	if err != nil {
		t.Fatalf("UpdateStep(decided) failed: %v", err)
	}

	var regress *StatusRegressionError
	err = s.UpdateStep(ctx, "sess", StepUpdate{StepID: "s1", Status: StepDecided})
	if !errors.As(err, &regress) {
		t.Errorf("decided->decided error = %v, want StatusRegressionError", err)
	}
	err = s.UpdateStep(ctx, "sess", StepUpdate{StepID: "s1", Status: StepFailed})
	if !errors.As(err, &regress) {
		t.Errorf("decided->failed error = %v, want StatusRegressionError", err)
	}
}

func TestUpdateStep_UnknownSession(t *testing.T) {
	s := openStore(t)

	err := s.UpdateStep(context.Background(), "ghost", StepUpdate{StepID: "s1", Status: StepVoting})
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("error = %v, want ErrSessionNotFound", err)
	}
}

func TestApplyDecision_WritesRecordAndClearsLedger(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	initSession(t, s, "sess", 1, 2)

	for i := 0; i < 2; i++ {
		if _, err := s.AppendVote(ctx, "sess", screened(t, "s1", "a", "r")); err != nil {
			t.Fatalf("AppendVote() failed: %v", err)
		}
	}

	ledger, err := s.ReadLedger(ctx, "sess", "s1")
	if err != nil {
		t.Fatalf("ReadLedger() failed: %v", err)
	}
	d, err := vote.Decide("s1", ledger, 2)
	if err != nil {
		t.Fatalf("Decide() failed: %v", err)
	}
	if !d.Decided {
		t.Fatal("Decided = false, want true")
	}

	if err := s.ApplyDecision(ctx, "sess", d, 1); err != nil {
		t.Fatalf("ApplyDecision() failed: %v", err)
	}

	rec, err := s.GetStep(ctx, "sess", "s1")
	if err != nil {
		t.Fatalf("GetStep() failed: %v", err)
	}
	if rec.Status != StepDecided {
		t.Errorf("Status = %s, want decided", rec.Status)
	}
	if rec.Votes != 2 || rec.Margin != 2 {
		t.Errorf("Votes = %d, Margin = %d, want 2, 2", rec.Votes, rec.Margin)
	}
	if rec.RedFlags != 1 {
		t.Errorf("RedFlags = %d, want 1", rec.RedFlags)
	}
	if len(rec.Winner) == 0 {
		t.Error("Winner payload is empty")
	}

	// Ledger cleared in the same transaction.
	ledger, err = s.ReadLedger(ctx, "sess", "s1")
	if err != nil {
		t.Fatalf("ReadLedger() after decision failed: %v", err)
	}
	if len(ledger) != 0 {
		t.Errorf("ledger has %d votes after decision, want 0", len(ledger))
	}
}

func TestApplyDecision_RejectsPendingDecision(t *testing.T) {
	s := openStore(t)

	initSession(t, s, "sess", 1, 3)
	d := vote.Decision{StepID: "s1", Decided: false}
	if err := s.ApplyDecision(context.Background(), "sess", d, 0); err == nil {
		t.Fatal("ApplyDecision() accepted an undecided decision")
	}
}

func TestFailStep_TerminalAndCleared(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	initSession(t, s, "sess", 1, 3)

	if _, err := s.AppendVote(ctx, "sess", screened(t, "s1", "a", "r")); err != nil {
		t.Fatalf("AppendVote() failed: %v", err)
	}
	if err := s.FailStep(ctx, "sess", "s1", 1, 2); err != nil {
		t.Fatalf("FailStep() failed: %v", err)
	}

	rec, err := s.GetStep(ctx, "sess", "s1")
	if err != nil {
		t.Fatalf("GetStep() failed: %v", err)
	}
	if rec.Status != StepFailed {
		t.Errorf("Status = %s, want failed", rec.Status)
	}
	if rec.RedFlags != 2 {
		t.Errorf("RedFlags = %d, want 2", rec.RedFlags)
	}

	ledger, err := s.ReadLedger(ctx, "sess", "s1")
	if err != nil {
		t.Fatalf("ReadLedger() failed: %v", err)
	}
	if len(ledger) != 0 {
		t.Errorf("ledger has %d votes after failure, want 0", len(ledger))
	}
}

func TestAuditTrail_RecordsTransitions(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	initSession(t, s, "sess", 1, 3)

	updates := []StepUpdate{
		{StepID: "s1", Status: StepVoting, Voting: true},
		{StepID: "s1", Status: StepVoting, Voting: true, Votes: 1, RedFlagDelta: 1},
		{StepID: "s1", Status: StepDecided, Voting: true, Votes: 3, Margin: 3},
	}
	for _, upd := range updates {
		if err := s.UpdateStep(ctx, "sess", upd); err != nil {
			t.Fatalf("UpdateStep(%+v) failed: %v", upd, err)
		}
	}

	trail, err := s.AuditTrail(ctx, "sess")
	if err != nil {
		t.Fatalf("AuditTrail() failed: %v", err)
	}
	if len(trail) != 3 {
		t.Fatalf("len(trail) = %d, want 3", len(trail))
	}
	if trail[0].Status != StepVoting || trail[2].Status != StepDecided {
		t.Errorf("trail statuses = %s..%s, want voting..decided", trail[0].Status, trail[2].Status)
	}
	if trail[2].RedFlags != 1 {
		t.Errorf("final audit red flags = %d, want accumulated 1", trail[2].RedFlags)
	}
}
