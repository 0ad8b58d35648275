package reliability

import (
	"fmt"
)

// Profile names a reliability target for a whole chain.
type Profile string

const (
	// ProfileFast targets 90% end-to-end success; no safety margin is
	// added on top of the computed minimum k.
	ProfileFast Profile = "fast"

	// ProfileStandard targets 99% end-to-end success.
	ProfileStandard Profile = "standard"

	// ProfileHighStakes targets 99.9% end-to-end success.
	ProfileHighStakes Profile = "high_stakes"
)

// profileTargets maps each profile to its end-to-end success target.
var profileTargets = map[Profile]float64{
	ProfileFast:       0.90,
	ProfileStandard:   0.99,
	ProfileHighStakes: 0.999,
}

// Target returns the end-to-end success probability the profile aims at.
func (pr Profile) Target() (float64, error) {
	t, ok := profileTargets[pr]
	if !ok {
		return 0, &DomainError{Param: "profile", Message: fmt.Sprintf("unknown profile %q", pr)}
	}
	return t, nil
}

// Recommendation bundles a recommended margin with the metrics that
// justify it.
type Recommendation struct {
	Profile                Profile `json:"profile"`
	Target                 float64 `json:"target"`
	MinimumK               int     `json:"minimum_k"`
	RecommendedK           int     `json:"recommended_k"`
	TaskSuccessProbability float64 `json:"task_success_probability"`
	ExpectedVotesPerStep   float64 `json:"expected_votes_per_step"`
	ExpectedTotalVotes     float64 `json:"expected_total_votes"`
	ExpectedCost           float64 `json:"expected_cost,omitempty"`
	Reasoning              string  `json:"reasoning"`
}

// RecommendK maps a reliability profile to a target, computes the
// minimum margin that reaches it for a chain of s steps at per-attempt
// accuracy p, and reports the achieved probability and expected vote
// volume at the recommended margin.
//
// Outside the fast profile the recommendation floors at k=3, a safety
// margin over the raw minimum for chains whose measured p turns out
// optimistic. costPerAttempt = 0 omits the cost estimate.
func RecommendK(p float64, s int, profile Profile, costPerAttempt float64) (Recommendation, error) {
	target, err := profile.Target()
	if err != nil {
		return Recommendation{}, err
	}
	if costPerAttempt < 0 {
		return Recommendation{}, &DomainError{Param: "cost", Message: fmt.Sprintf("must be >= 0, got %v", costPerAttempt)}
	}

	kMin, err := MinimumK(p, s, target, 1)
	if err != nil {
		return Recommendation{}, err
	}

	k := kMin
	if profile != ProfileFast && k < 3 {
		k = 3
	}

	achieved, err := FullTaskSuccessProbability(p, k, s, 1)
	if err != nil {
		return Recommendation{}, err
	}

	votesPerStep, err := ExpectedVotesPerStep(p, k)
	if err != nil {
		return Recommendation{}, err
	}

	rec := Recommendation{
		Profile:                profile,
		Target:                 target,
		MinimumK:               kMin,
		RecommendedK:           k,
		TaskSuccessProbability: achieved,
		ExpectedVotesPerStep:   votesPerStep,
		ExpectedTotalVotes:     votesPerStep * float64(s),
		Reasoning: fmt.Sprintf(
			"for p=%.2f and s=%d steps, k=%d achieves %.1f%% end-to-end reliability (target %.1f%%)",
			p, s, k, achieved*100, target*100),
	}

	if costPerAttempt > 0 {
		cost, err := ExpectedCost(p, k, s, costPerAttempt)
		if err != nil {
			return Recommendation{}, err
		}
		rec.ExpectedCost = cost
	}

	return rec, nil
}
