package store

import (
	"context"
	"math"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// buildGoldenSession drives a small session to completion: two voting
// steps decided, one non-voting step accepted from a single attempt.
func buildGoldenSession(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()

	err := s.Initialize(ctx, "golden-session", "Copy a 3-step plan", 3, 3, 0, false)
	if err != nil {
		t.Fatalf("Initialize() failed: %v", err)
	}
	steps := []StepInfo{{ID: "s1", Voting: true}, {ID: "s2", Voting: true}, {ID: "s3"}}
	if err := s.RegisterSteps(ctx, "golden-session", steps); err != nil {
		t.Fatalf("RegisterSteps() failed: %v", err)
	}

	updates := []StepUpdate{
		{StepID: "s1", Status: StepDecided, Voting: true, Votes: 3, Margin: 3},
		{StepID: "s2", Status: StepDecided, Voting: true, Votes: 5, Margin: 3, RedFlagDelta: 1},
		{StepID: "s3", Status: StepDecided, Votes: 1, Margin: 1},
	}
	for _, upd := range updates {
		if err := s.UpdateStep(ctx, "golden-session", upd); err != nil {
			t.Fatalf("UpdateStep(%s) failed: %v", upd.StepID, err)
		}
	}

	if err := s.MarkComplete(ctx, "golden-session", true); err != nil {
		t.Fatalf("MarkComplete() failed: %v", err)
	}
}

func TestReport_Totals(t *testing.T) {
	s := openStore(t)
	buildGoldenSession(t, s)

	rep, err := s.Report(context.Background(), "golden-session")
	if err != nil {
		t.Fatalf("Report() failed: %v", err)
	}

	if rep.Completed != 3 {
		t.Errorf("Completed = %d, want 3", rep.Completed)
	}
	if rep.Completed != rep.EstimatedSteps {
		t.Errorf("Completed = %d, want estimated %d", rep.Completed, rep.EstimatedSteps)
	}
	if rep.Failed != 0 {
		t.Errorf("Failed = %d, want 0", rep.Failed)
	}
	if rep.VotingSteps != 2 || rep.NonVotingSteps != 1 {
		t.Errorf("VotingSteps = %d, NonVotingSteps = %d, want 2, 1", rep.VotingSteps, rep.NonVotingSteps)
	}
	if rep.TotalVotes != 9 {
		t.Errorf("TotalVotes = %d, want 9", rep.TotalVotes)
	}
	if rep.TotalRedFlags != 1 {
		t.Errorf("TotalRedFlags = %d, want 1", rep.TotalRedFlags)
	}

	// Winner share: s1 contributes 3/3, s2 contributes 4/5.
	if math.Abs(rep.ObservedP-0.875) > 1e-12 {
		t.Errorf("ObservedP = %v, want 0.875", rep.ObservedP)
	}
	if rep.EstimatedP <= 0.99 || rep.EstimatedP >= 1 {
		t.Errorf("EstimatedP = %v, want in (0.99, 1)", rep.EstimatedP)
	}

	info, err := s.ResumePoint(context.Background(), "golden-session")
	if err != nil {
		t.Fatalf("ResumePoint() failed: %v", err)
	}
	if info.CanResume {
		t.Error("CanResume = true after completion, want false")
	}
}

func TestReport_TextGolden(t *testing.T) {
	s := openStore(t)
	buildGoldenSession(t, s)

	rep, err := s.Report(context.Background(), "golden-session")
	if err != nil {
		t.Fatalf("Report() failed: %v", err)
	}

	g := goldie.New(t)
	g.Assert(t, "report", []byte(rep.Text()))
}

func TestReport_FallbackEstimateWithoutVotes(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	initSession(t, s, "fresh", 10, 3)

	rep, err := s.Report(ctx, "fresh")
	if err != nil {
		t.Fatalf("Report() failed: %v", err)
	}
	if rep.ObservedP != DefaultAssumedAccuracy {
		t.Errorf("ObservedP = %v, want assumed %v", rep.ObservedP, DefaultAssumedAccuracy)
	}
	if rep.EstimatedP <= 0 || rep.EstimatedP >= 1 {
		t.Errorf("EstimatedP = %v, want in (0, 1)", rep.EstimatedP)
	}
}

func TestReport_UnanimousHistoryEstimatesOne(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	initSession(t, s, "sess", 1, 3)
	err := s.UpdateStep(ctx, "sess", StepUpdate{
		StepID: "s1", Status: StepDecided, Voting: true, Votes: 3, Margin: 3,
	})
	if err != nil {
		t.Fatalf("UpdateStep() failed: %v", err)
	}

	rep, err := s.Report(ctx, "sess")
	if err != nil {
		t.Fatalf("Report() failed: %v", err)
	}
	if rep.ObservedP != 1 {
		t.Errorf("ObservedP = %v, want 1 for a unanimous history", rep.ObservedP)
	}
	if rep.EstimatedP != 1 {
		t.Errorf("EstimatedP = %v, want 1", rep.EstimatedP)
	}
}
