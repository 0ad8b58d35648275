package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"verdict/internal/reliability"
)

// RecommendOptions holds flags for the recommend command.
type RecommendOptions struct {
	*RootOptions
	P       float64
	Steps   int
	Profile string
	Cost    float64
}

// recommendText renders a recommendation for human reading.
type recommendText reliability.Recommendation

func (r recommendText) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Profile: %s (target %.1f%%)\n", r.Profile, r.Target*100)
	fmt.Fprintf(&b, "Recommended margin (k): %d\n", r.RecommendedK)
	fmt.Fprintf(&b, "Task success probability: %.2f%%\n", r.TaskSuccessProbability*100)
	fmt.Fprintf(&b, "Expected votes per step: %.1f\n", r.ExpectedVotesPerStep)
	fmt.Fprintf(&b, "Expected total votes: %.0f\n", r.ExpectedTotalVotes)
	if r.ExpectedCost > 0 {
		fmt.Fprintf(&b, "Expected cost: %.2f\n", r.ExpectedCost)
	}
	fmt.Fprintf(&b, "%s", r.Reasoning)
	return b.String()
}

// NewRecommendCommand creates the recommend command.
func NewRecommendCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RecommendOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "recommend",
		Short: "Recommend a vote margin for a task",
		Long: `Recommend the vote margin k that reaches a reliability profile's
end-to-end success target, given the assumed per-attempt accuracy and
the expected number of steps.

Profiles: fast (90%), standard (99%), high_stakes (99.9%).

Examples:
  verdict recommend --p 0.85 --steps 20
  verdict recommend --p 0.75 --steps 50 --profile high_stakes --cost 0.002`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecommend(opts, cmd)
		},
	}

	cmd.Flags().Float64Var(&opts.P, "p", 0, "assumed per-attempt accuracy (required)")
	_ = cmd.MarkFlagRequired("p")
	cmd.Flags().IntVar(&opts.Steps, "steps", 0, "expected number of voting steps (required)")
	_ = cmd.MarkFlagRequired("steps")
	cmd.Flags().StringVar(&opts.Profile, "profile", string(reliability.ProfileStandard), "reliability profile (fast|standard|high_stakes)")
	cmd.Flags().Float64Var(&opts.Cost, "cost", 0, "cost per attempt, for the expected-cost estimate")

	return cmd
}

func runRecommend(opts *RecommendOptions, cmd *cobra.Command) error {
	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}

	rec, err := reliability.RecommendK(opts.P, opts.Steps, reliability.Profile(opts.Profile), opts.Cost)
	if err != nil {
		return fail(f, err)
	}

	if opts.Format == "json" {
		return f.Success(rec)
	}
	return f.Success(recommendText(rec))
}
