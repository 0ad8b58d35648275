package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"verdict/internal/reliability"
	"verdict/internal/store"
)

// RootOptions holds global flags shared by all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the verdict CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "verdict",
		Short: "Margin voting for unreliable step chains",
		Long: `verdict drives chains of generated steps to reliable outcomes by
sampling each critical step repeatedly and accepting the first answer
that leads all rivals by a configured margin.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			configureLogging(opts.Verbose)
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewInitCommand(opts))
	cmd.AddCommand(NewRecommendCommand(opts))
	cmd.AddCommand(NewVoteCommand(opts))
	cmd.AddCommand(NewResumeCommand(opts))
	cmd.AddCommand(NewReportCommand(opts))
	cmd.AddCommand(NewCompleteCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

func configureLogging(verbose bool) {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

// openStore opens the state database, mapping failures to a command
// error exit code.
func openStore(path string) (*store.Store, error) {
	if path == "" {
		return nil, NewExitError(ExitCommandError, "--db is required")
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

// classify maps domain errors onto response codes and exit codes.
func classify(err error) (code string, exit int) {
	var domainErr *reliability.DomainError
	switch {
	case errors.Is(err, store.ErrSessionNotFound):
		return ErrCodeNotFound, ExitCommandError
	case errors.Is(err, store.ErrSessionExists), errors.Is(err, store.ErrSessionComplete):
		return ErrCodeConflict, ExitCommandError
	case errors.Is(err, reliability.ErrInfeasible):
		return ErrCodeInfeasible, ExitFailure
	case errors.As(err, &domainErr):
		return ErrCodeInvalidInput, ExitCommandError
	default:
		return ErrCodeStore, ExitFailure
	}
}

// fail renders err in the configured format and converts it into an
// ExitError so main exits with the right code.
func fail(f *OutputFormatter, err error) error {
	code, exit := classify(err)
	_ = f.Error(code, err.Error(), nil)
	return &ExitError{Code: exit, Message: err.Error(), Err: err}
}
