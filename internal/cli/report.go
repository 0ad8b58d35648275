package cli

import (
	"github.com/spf13/cobra"
)

// ReportOptions holds flags for the report command.
type ReportOptions struct {
	*RootOptions
	Database string
}

// NewReportCommand creates the report command.
func NewReportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "report <session-id>",
		Short: "Print a session's reliability report",
		Long: `Print the session report: per-step outcomes, vote and red-flag
totals, the observed per-attempt accuracy, and the estimated
probability that the whole chain succeeded.

Examples:
  verdict report my-session --db ./state.db
  verdict report my-session --db ./state.db --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runReport(opts *ReportOptions, sessionID string, cmd *cobra.Command) error {
	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}

	st, err := openStore(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	rep, err := st.Report(cmd.Context(), sessionID)
	if err != nil {
		return fail(f, err)
	}

	if opts.Format == "json" {
		return f.Success(rep)
	}
	return f.Success(rep.Text())
}
