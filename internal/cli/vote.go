package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"verdict/internal/store"
	"verdict/internal/vote"
)

// VoteOptions holds flags for the vote command.
type VoteOptions struct {
	*RootOptions
	Database    string
	PayloadFile string
}

// VoteResult is the vote command's output payload.
type VoteResult struct {
	SessionID string          `json:"session_id"`
	StepID    string          `json:"step_id"`
	Accepted  bool            `json:"accepted"`
	Rejection string          `json:"rejection,omitempty"`
	Votes     int             `json:"votes"`
	Decided   bool            `json:"decided"`
	Margin    int             `json:"margin,omitempty"`
	Winner    json.RawMessage `json:"winner,omitempty"`
}

func (r VoteResult) String() string {
	if !r.Accepted {
		return fmt.Sprintf("Vote rejected for step %s: %s", r.StepID, r.Rejection)
	}
	if r.Decided {
		return fmt.Sprintf("Step %s decided after %d votes (margin %d)", r.StepID, r.Votes, r.Margin)
	}
	return fmt.Sprintf("Vote accepted for step %s (%d votes, no decision yet)", r.StepID, r.Votes)
}

// NewVoteCommand creates the vote command.
func NewVoteCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &VoteOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "vote <session-id> <step-id>",
		Short: "Submit a candidate outcome for a step",
		Long: `Submit one candidate outcome for a step and check for a decision.

The payload is read from --payload-file, or from stdin when the flag is
omitted. Payloads that fail screening are recorded as red flags and do
not enter the ledger; the command then exits non-zero. When an accepted
vote gives one outcome a lead of k over every rival, the step is
decided and its ledger cleared.

Examples:
  echo '{"step_id":"s1","action":"copy","result":"ok"}' | verdict vote sess s1 --db ./state.db
  verdict vote sess s1 --db ./state.db --payload-file candidate.json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVote(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.PayloadFile, "payload-file", "", "file holding the candidate payload (default: stdin)")

	return cmd
}

func runVote(opts *VoteOptions, sessionID, stepID string, cmd *cobra.Command) error {
	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}

	raw, err := readPayload(opts.PayloadFile, cmd.InOrStdin())
	if err != nil {
		return WrapExitError(ExitCommandError, "read payload", err)
	}

	st, err := openStore(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := cmd.Context()
	k, err := st.GetMargin(ctx, sessionID)
	if err != nil {
		return fail(f, err)
	}

	a, flag := vote.Screen(raw)
	if flag == nil && a.StepID != stepID {
		flag = &vote.RedFlag{Code: vote.FlagMissingStepID,
			Detail: fmt.Sprintf("payload names step %q, expected %q", a.StepID, stepID)}
	}
	if flag != nil {
		err := st.UpdateStep(ctx, sessionID, store.StepUpdate{
			StepID:       stepID,
			Status:       store.StepVoting,
			Voting:       true,
			RedFlagDelta: 1,
		})
		if err != nil {
			return fail(f, err)
		}
		res := VoteResult{SessionID: sessionID, StepID: stepID, Rejection: flag.Reason()}
		if err := f.Error(ErrCodeRejected, "vote rejected", res); err != nil {
			return err
		}
		return NewExitError(ExitFailure, "vote rejected: "+flag.Reason())
	}

	if _, err := st.AppendVote(ctx, sessionID, a); err != nil {
		return fail(f, err)
	}
	ledger, err := st.ReadLedger(ctx, sessionID, stepID)
	if err != nil {
		return fail(f, err)
	}
	decision, err := vote.Decide(stepID, ledger, k)
	if err != nil {
		return fail(f, err)
	}

	res := VoteResult{
		SessionID: sessionID,
		StepID:    stepID,
		Accepted:  true,
		Votes:     decision.TotalVotes,
		Decided:   decision.Decided,
	}

	if decision.Decided {
		if err := st.ApplyDecision(ctx, sessionID, decision, 0); err != nil {
			return fail(f, err)
		}
		res.Margin = decision.Margin
		res.Winner = json.RawMessage(decision.Winner.Payload)
	} else {
		err := st.UpdateStep(ctx, sessionID, store.StepUpdate{
			StepID: stepID,
			Status: store.StepVoting,
			Voting: true,
			Votes:  decision.TotalVotes,
		})
		if err != nil {
			return fail(f, err)
		}
	}

	return f.Success(res)
}

func readPayload(path string, stdin io.Reader) ([]byte, error) {
	if path == "" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}
