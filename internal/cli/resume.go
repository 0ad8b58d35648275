package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"verdict/internal/store"
)

// ResumeOptions holds flags for the resume command.
type ResumeOptions struct {
	*RootOptions
	Database string
}

// resumeText renders resume info for human reading.
type resumeText struct {
	SessionID string
	Info      *store.ResumeInfo
}

func (r resumeText) String() string {
	var b strings.Builder
	if !r.Info.CanResume {
		fmt.Fprintf(&b, "Session %s is finished; nothing to resume.", r.SessionID)
		return b.String()
	}
	fmt.Fprintf(&b, "Session %s: %d/%d steps done, %d failed\n",
		r.SessionID, r.Info.CompletedSteps, r.Info.TotalSteps, r.Info.FailedSteps)
	if r.Info.NextStep != nil {
		fmt.Fprintf(&b, "Next step: %s (status %s, %d votes so far, %d red flags)",
			r.Info.NextStep.StepID, r.Info.NextStep.Status, r.Info.NextStep.Votes, r.Info.NextStep.RedFlags)
	} else {
		fmt.Fprintf(&b, "No step is mid-vote; the next plan step starts fresh.")
	}
	return b.String()
}

// NewResumeCommand creates the resume command.
func NewResumeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ResumeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "resume <session-id>",
		Short: "Show where an interrupted session picks up",
		Long: `Show whether a session can resume and which step runs next.

Decided and failed steps keep their recorded outcomes; the next step is
the first one still pending or mid-vote, in plan order. Partial ballots
survive interruption, so a step interrupted mid-vote resumes counting
from its stored ledger.

Example:
  verdict resume my-session --db ./state.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResume(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runResume(opts *ResumeOptions, sessionID string, cmd *cobra.Command) error {
	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}

	st, err := openStore(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	info, err := st.ResumePoint(cmd.Context(), sessionID)
	if err != nil {
		return fail(f, err)
	}

	if opts.Format == "json" {
		return f.Success(info)
	}
	return f.Success(resumeText{SessionID: sessionID, Info: info})
}
