package cli

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"verdict/internal/store"
)

// InitOptions holds flags for the init command.
type InitOptions struct {
	*RootOptions
	Database string
	Task     string
	Steps    int
	K        int
	P        float64
	Force    bool
}

// InitResult is the init command's output payload.
type InitResult struct {
	SessionID      string  `json:"session_id"`
	Task           string  `json:"task"`
	EstimatedSteps int     `json:"estimated_steps"`
	K              int     `json:"k"`
	AssumedP       float64 `json:"assumed_p"`
}

func (r InitResult) String() string {
	return fmt.Sprintf("Session %s initialized (k=%d, steps=%d, p=%.2f)",
		r.SessionID, r.K, r.EstimatedSteps, r.AssumedP)
}

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "init [session-id]",
		Short: "Create a session",
		Long: `Create a voting session in the state database.

The session fixes the margin k for all of its steps. When no session id
is given a random one is generated.

Examples:
  verdict init --db ./state.db --task "deploy pipeline" --steps 12 --k 3
  verdict init my-session --db ./state.db --task "migration" --steps 5 --k 2 --force`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID := uuid.Must(uuid.NewV7()).String()
			if len(args) == 1 {
				sessionID = args[0]
			}
			return runInit(opts, sessionID, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Task, "task", "", "task description (required)")
	_ = cmd.MarkFlagRequired("task")
	cmd.Flags().IntVar(&opts.Steps, "steps", 0, "estimated number of steps (required)")
	_ = cmd.MarkFlagRequired("steps")
	cmd.Flags().IntVar(&opts.K, "k", 3, "vote margin required to decide a step")
	cmd.Flags().Float64Var(&opts.P, "p", store.DefaultAssumedAccuracy, "assumed per-attempt accuracy")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "discard any existing session state under this id")

	return cmd
}

func runInit(opts *InitOptions, sessionID string, cmd *cobra.Command) error {
	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}

	st, err := openStore(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := cmd.Context()
	if err := st.Initialize(ctx, sessionID, opts.Task, opts.Steps, opts.K, opts.P, opts.Force); err != nil {
		return fail(f, err)
	}

	return f.Success(InitResult{
		SessionID:      sessionID,
		Task:           opts.Task,
		EstimatedSteps: opts.Steps,
		K:              opts.K,
		AssumedP:       opts.P,
	})
}
