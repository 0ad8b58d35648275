// Package reliability provides the probability and cost formulas behind
// margin voting: how reliable one voted step is, how reliable a whole
// chain of steps is, and the smallest margin k that hits a target
// end-to-end success probability.
//
// All functions are pure and deterministic. Out-of-domain inputs return
// a *DomainError (invalid input) or ErrInfeasible (the generator's
// per-attempt accuracy is at or below a coin flip, so no margin can
// rescue it) rather than silently wrong numbers.
package reliability

import (
	"errors"
	"fmt"
	"math"
)

// ErrInfeasible is returned when no margin k can reach the requested
// reliability because the per-attempt accuracy is <= 0.5. Voting
// amplifies a better-than-chance generator; it cannot rescue a
// worse-than-chance one.
var ErrInfeasible = errors.New("infeasible: per-attempt accuracy must exceed 0.5")

// DomainError reports an argument outside a function's domain.
type DomainError struct {
	Param   string
	Message string
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Param, e.Message)
}

func checkP(p float64) error {
	if p <= 0 || p >= 1 {
		return &DomainError{Param: "p", Message: fmt.Sprintf("must be in (0, 1), got %v", p)}
	}
	return nil
}

func checkTarget(t float64) error {
	if t <= 0 || t >= 1 {
		return &DomainError{Param: "target", Message: fmt.Sprintf("must be in (0, 1), got %v", t)}
	}
	return nil
}

// PerStepSuccessProbability returns the probability that first-to-ahead-
// by-k voting selects the correct outcome for one step, given per-attempt
// accuracy p:
//
//	1 / (1 + ((1-p)/p)^k)
//
// Increasing in k when p > 0.5; equals p at k = 1.
func PerStepSuccessProbability(p float64, k int) (float64, error) {
	if err := checkP(p); err != nil {
		return 0, err
	}
	if k < 1 {
		return 0, &DomainError{Param: "k", Message: fmt.Sprintf("must be >= 1, got %d", k)}
	}

	ratio := (1 - p) / p
	return 1 / (1 + math.Pow(ratio, float64(k))), nil
}

// FullTaskSuccessProbability returns the probability of completing all
// s steps with zero errors, decomposed into units of m steps each:
//
//	PerStepSuccessProbability(p, k) ^ (s/m)
//
// m = 1 corresponds to maximal decomposition (every step voted
// independently).
func FullTaskSuccessProbability(p float64, k, s, m int) (float64, error) {
	if err := checkP(p); err != nil {
		return 0, err
	}
	if k < 1 || s < 1 || m < 1 {
		return 0, &DomainError{Param: "k/s/m", Message: fmt.Sprintf("must all be >= 1, got k=%d s=%d m=%d", k, s, m)}
	}

	ratio := (1 - p) / p
	return math.Pow(1+math.Pow(ratio, float64(k)), -float64(s)/float64(m)), nil
}

// MinimumK returns the smallest margin k >= 1 such that
// FullTaskSuccessProbability(p, k, s, m) >= target:
//
//	k >= ln(target^(-m/s) - 1) / ln((1-p)/p), ceiling-rounded
//
// Returns ErrInfeasible when p <= 0.5: the closed form's denominator is
// non-negative there and no finite margin reaches the target.
func MinimumK(p float64, s int, target float64, m int) (int, error) {
	if err := checkP(p); err != nil {
		return 0, err
	}
	if err := checkTarget(target); err != nil {
		return 0, err
	}
	if s < 1 || m < 1 {
		return 0, &DomainError{Param: "s/m", Message: fmt.Sprintf("must be >= 1, got s=%d m=%d", s, m)}
	}
	if p <= 0.5 {
		return 0, ErrInfeasible
	}

	inner := math.Pow(target, -float64(m)/float64(s)) - 1
	if inner <= 0 {
		// Numeric underflow for targets extremely close to 0; any
		// margin suffices.
		return 1, nil
	}

	ratio := (1 - p) / p // < 1, so ln(ratio) < 0
	kMin := math.Log(inner) / math.Log(ratio)
	k := int(math.Ceil(kMin))
	if k < 1 {
		k = 1
	}
	return k, nil
}

// ExpectedVotesPerStep returns the expected number of accepted attempts
// consumed before one signature is k ahead, modeled as a biased random
// walk (+1 with probability p, -1 otherwise) absorbing at +k:
//
//	k / (2p - 1)
//
// Valid only for p > 0.5; at or below that the walk has no positive
// drift and the expectation diverges (ErrInfeasible).
func ExpectedVotesPerStep(p float64, k int) (float64, error) {
	if err := checkP(p); err != nil {
		return 0, err
	}
	if k < 1 {
		return 0, &DomainError{Param: "k", Message: fmt.Sprintf("must be >= 1, got %d", k)}
	}
	if p <= 0.5 {
		return 0, ErrInfeasible
	}

	return float64(k) / (2*p - 1), nil
}

// ExpectedCost returns the expected total cost of voting a full chain:
// expected votes per step, times s steps, times the per-attempt cost.
func ExpectedCost(p float64, k, s int, costPerAttempt float64) (float64, error) {
	if s < 1 {
		return 0, &DomainError{Param: "s", Message: fmt.Sprintf("must be >= 1, got %d", s)}
	}
	if costPerAttempt < 0 {
		return 0, &DomainError{Param: "cost", Message: fmt.Sprintf("must be >= 0, got %v", costPerAttempt)}
	}

	votes, err := ExpectedVotesPerStep(p, k)
	if err != nil {
		return 0, err
	}
	return votes * float64(s) * costPerAttempt, nil
}
