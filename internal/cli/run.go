package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"verdict/internal/driver"
	"verdict/internal/plan"
	"verdict/internal/reliability"
	"verdict/internal/store"
)

// RunCmdOptions holds flags for the run command.
type RunCmdOptions struct {
	*RootOptions
	Database string
	Session  string
	K        int
	P        float64
	Profile  string
	Budget   int
	Parallel int

	// Executor allows overriding the candidate generator (for testing).
	// If nil, the command after -- is run as a subprocess per attempt.
	Executor driver.Executor
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunCmdOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <plan-file> -- <command> [args...]",
		Short: "Execute a plan end to end",
		Long: `Execute every step of a plan against a session and print the final
report.

Each attempt pipes the step as JSON into the given command and reads
the candidate payload from its stdout. Voting steps are sampled until
one outcome leads by the margin k; non-voting steps accept the first
clean attempt. When --k is omitted the margin is derived from the
reliability profile and the assumed accuracy.

Rerunning with the same --session resumes after the last decided step.

Examples:
  verdict run plan.yaml --db ./state.db -- ./generate.sh
  verdict run plan.yaml --db ./state.db --session deploy-7 --k 3 -- python gen.py`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(opts, args[0], args[1:], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Session, "session", "", "session id (default: generated)")
	cmd.Flags().IntVar(&opts.K, "k", 0, "vote margin (default: derived from --profile)")
	cmd.Flags().Float64Var(&opts.P, "p", store.DefaultAssumedAccuracy, "assumed per-attempt accuracy")
	cmd.Flags().StringVar(&opts.Profile, "profile", string(reliability.ProfileStandard), "reliability profile (fast|standard|high_stakes)")
	cmd.Flags().IntVar(&opts.Budget, "budget", driver.DefaultAttemptBudget, "raw attempt budget per step")
	cmd.Flags().IntVar(&opts.Parallel, "parallel", driver.DefaultParallelism, "concurrent attempts per round")

	return cmd
}

func runPlan(opts *RunCmdOptions, planFile string, execArgs []string, cmd *cobra.Command) error {
	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}

	exec := opts.Executor
	if exec == nil {
		if len(execArgs) == 0 {
			return NewExitError(ExitCommandError, "no executor command given (append one after --)")
		}
		exec = &driver.CommandExecutor{Name: execArgs[0], Args: execArgs[1:]}
	}

	p, err := plan.Load(planFile)
	if err != nil {
		return WrapExitError(ExitCommandError, "load plan", err)
	}

	k := opts.K
	if k == 0 {
		k, err = deriveMargin(opts, p)
		if err != nil {
			return fail(f, err)
		}
		slog.Info("derived margin from profile", "profile", opts.Profile, "k", k)
	}

	sessionID := opts.Session
	if sessionID == "" {
		sessionID = uuid.Must(uuid.NewV7()).String()
	}

	st, err := openStore(opts.Database)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	err = st.Initialize(ctx, sessionID, p.Task, len(p.Steps), k, opts.P, false)
	switch {
	case errors.Is(err, store.ErrSessionExists):
		slog.Info("resuming existing session", "session", sessionID)
		if k, err = st.GetMargin(ctx, sessionID); err != nil {
			return fail(f, err)
		}
	case err != nil:
		return fail(f, err)
	}

	d := driver.New(st, exec,
		driver.WithAttemptBudget(opts.Budget),
		driver.WithParallelism(opts.Parallel),
		driver.WithLogger(slog.Default()),
	)

	slog.Info("running plan", "session", sessionID, "steps", len(p.Steps), "k", k)
	rep, err := d.RunSession(ctx, sessionID, p)
	if err != nil {
		return fail(f, err)
	}

	if opts.Format == "json" {
		if err := f.Success(rep); err != nil {
			return err
		}
	} else if err := f.Success(rep.Text()); err != nil {
		return err
	}

	if rep.Status == store.SessionFailed {
		return NewExitError(ExitFailure, fmt.Sprintf("session %s failed", sessionID))
	}
	return nil
}

// deriveMargin picks k for the plan's voting steps from the profile.
// A plan with no voting steps needs no margin.
func deriveMargin(opts *RunCmdOptions, p *plan.Plan) (int, error) {
	voting := p.VotingSteps()
	if voting == 0 {
		return 1, nil
	}
	rec, err := reliability.RecommendK(opts.P, voting, reliability.Profile(opts.Profile), 0)
	if err != nil {
		return 0, err
	}
	return rec.RecommendedK, nil
}

// signalContext derives a context cancelled by SIGINT or SIGTERM so an
// interrupted run stops between attempts with its ledger intact.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
