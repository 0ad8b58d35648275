package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// CompleteOptions holds flags for the complete command.
type CompleteOptions struct {
	*RootOptions
	Database string
	Failed   bool
}

// CompleteResult is the complete command's output payload.
type CompleteResult struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
}

func (r CompleteResult) String() string {
	return fmt.Sprintf("Session %s marked %s", r.SessionID, r.Status)
}

// NewCompleteCommand creates the complete command.
func NewCompleteCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompleteOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "complete <session-id>",
		Short: "Mark a session finished",
		Long: `Mark a session finished. Further votes and step updates for the
session are rejected. Pass --failed to record an unsuccessful run.

Examples:
  verdict complete my-session --db ./state.db
  verdict complete my-session --db ./state.db --failed`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runComplete(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().BoolVar(&opts.Failed, "failed", false, "record the session as failed")

	return cmd
}

func runComplete(opts *CompleteOptions, sessionID string, cmd *cobra.Command) error {
	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}

	st, err := openStore(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := cmd.Context()
	if err := st.MarkComplete(ctx, sessionID, !opts.Failed); err != nil {
		return fail(f, err)
	}

	sess, err := st.GetSession(ctx, sessionID)
	if err != nil {
		return fail(f, err)
	}
	return f.Success(CompleteResult{SessionID: sessionID, Status: sess.Status})
}
