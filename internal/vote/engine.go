package vote

import (
	"fmt"
)

// Decision is the outcome of evaluating a step's ledger.
//
// When Decided is true, Winner is the first attempt bearing the leading
// signature, Margin is the leader's lead over the runner-up (>= the k
// that produced the decision, by construction), and TotalVotes is the
// ledger length at decision time.
//
// When Decided is false, TotalVotes and Candidates describe the current
// tally so the caller can decide whether to request more attempts.
type Decision struct {
	StepID     string
	Winner     *Attempt
	TotalVotes int
	Margin     int
	Candidates int
	Decided    bool
}

// Decide applies first-to-ahead-by-k voting to a step's ledger.
//
// The ledger must contain only accepted attempts for stepID, in append
// order. k is the required margin and must be >= 1.
//
// A winner is declared iff the leading signature's count exceeds the
// runner-up's count by at least k. A tie at the top therefore never
// decides: a tied leader has margin 0. The evaluation is stateless and
// scans the ledger fresh each call, so it can be re-run after every
// append.
func Decide(stepID string, ledger []Attempt, k int) (Decision, error) {
	if k < 1 {
		return Decision{}, fmt.Errorf("margin threshold k must be >= 1, got %d", k)
	}

	counts := make(map[string]int)
	first := make(map[string]*Attempt)

	for i := range ledger {
		a := &ledger[i]
		if a.StepID != stepID {
			return Decision{}, fmt.Errorf(
				"ledger integrity: attempt for step %q in ledger for step %q", a.StepID, stepID)
		}
		counts[a.Signature]++
		if _, seen := first[a.Signature]; !seen {
			first[a.Signature] = a
		}
	}

	// Leader is the highest count; ties broken by first appearance so
	// the pending leader report is deterministic. Runner-up is the best
	// count among all other signatures (0 when the leader stands alone).
	var leaderSig string
	leaderCount := 0
	for i := range ledger {
		sig := ledger[i].Signature
		if counts[sig] > leaderCount {
			leaderSig = sig
			leaderCount = counts[sig]
		}
	}

	runnerUp := 0
	tied := false
	for sig, c := range counts {
		if sig == leaderSig {
			continue
		}
		if c == leaderCount {
			tied = true
		}
		if c > runnerUp {
			runnerUp = c
		}
	}

	margin := leaderCount - runnerUp

	if leaderCount > 0 && !tied && margin >= k {
		return Decision{
			StepID:     stepID,
			Winner:     first[leaderSig],
			TotalVotes: len(ledger),
			Margin:     margin,
			Candidates: len(counts),
			Decided:    true,
		}, nil
	}

	return Decision{
		StepID:     stepID,
		TotalVotes: len(ledger),
		Candidates: len(counts),
		Decided:    false,
	}, nil
}
