// Package driver owns the retry loop around the voting core: it asks
// the executor for candidate outcomes, screens them, appends accepted
// votes, and applies decisions, one step at a time.
//
// The core itself never retries and never blocks. Everything
// budget-shaped lives here: how many candidates to generate in
// parallel, how many raw attempts a step may consume, and what happens
// when a step runs out.
package driver

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"verdict/internal/plan"
	"verdict/internal/store"
	"verdict/internal/vote"
)

// DefaultAttemptBudget is the maximum raw executor attempts per step,
// accepted or not, before the step is failed.
const DefaultAttemptBudget = 9

// DefaultParallelism is how many executor calls run concurrently per
// round. Parallel generation shortens wall-clock time to a decision;
// appends are still serialized by the store.
const DefaultParallelism = 3

// Executor produces one candidate outcome for a step. Implementations
// must keep their sampling settings fixed across calls so repeated
// attempts for the same step stay decorrelated only by sampling noise,
// not by changing inputs.
type Executor interface {
	Generate(ctx context.Context, step plan.Step) ([]byte, error)
}

// Driver executes a plan against a session, delegating persistence to
// the store and decisions to the vote engine.
type Driver struct {
	store  *store.Store
	exec   Executor
	log    *slog.Logger
	budget int
	fanout int
}

// Option configures a Driver.
type Option func(*Driver)

// WithAttemptBudget sets the per-step raw attempt budget.
func WithAttemptBudget(n int) Option {
	return func(d *Driver) {
		d.budget = n
	}
}

// WithParallelism sets how many executor calls run concurrently.
func WithParallelism(n int) Option {
	return func(d *Driver) {
		d.fanout = n
	}
}

// WithLogger sets the structured logger.
func WithLogger(log *slog.Logger) Option {
	return func(d *Driver) {
		d.log = log
	}
}

// New creates a Driver. The store and executor are required.
func New(st *store.Store, exec Executor, opts ...Option) *Driver {
	d := &Driver{
		store:  st,
		exec:   exec,
		log:    slog.Default(),
		budget: DefaultAttemptBudget,
		fanout: DefaultParallelism,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.budget < 1 {
		d.budget = DefaultAttemptBudget
	}
	if d.fanout < 1 {
		d.fanout = 1
	}
	return d
}

// RunSession executes every non-terminal step of the plan in order and
// finishes the session: steps already decided or failed (a resumed
// session) are skipped, the session is marked complete, and the final
// report is returned.
//
// The chain is sequential: a failed step fails the session and the
// remaining steps stay pending in the store.
func (d *Driver) RunSession(ctx context.Context, sessionID string, p *plan.Plan) (*store.Report, error) {
	k, err := d.store.GetMargin(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	sess, err := d.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Terminal() {
		return nil, fmt.Errorf("session %s: %w", sessionID, store.ErrSessionComplete)
	}

	steps := make([]store.StepInfo, len(p.Steps))
	for i, step := range p.Steps {
		steps[i] = store.StepInfo{ID: step.ID, Voting: step.Voting}
	}
	if err := d.store.RegisterSteps(ctx, sessionID, steps); err != nil {
		return nil, err
	}

	success := true
	for _, step := range p.Steps {
		rec, err := d.store.GetStep(ctx, sessionID, step.ID)
		if err != nil {
			return nil, err
		}
		if rec.Status.Terminal() {
			d.log.Debug("skipping terminal step", "session", sessionID, "step", step.ID, "status", rec.Status)
			continue
		}

		rec, err = d.RunStep(ctx, sessionID, step, k)
		if err != nil {
			return nil, err
		}
		if rec.Status == store.StepFailed {
			d.log.Warn("step failed, aborting chain", "session", sessionID, "step", step.ID)
			success = false
			break
		}
	}

	if err := d.store.MarkComplete(ctx, sessionID, success); err != nil {
		return nil, err
	}
	return d.store.Report(ctx, sessionID)
}

// RunStep drives one step to a terminal status and returns its final
// record. Voting steps accumulate a ledger until the margin is reached;
// non-voting steps accept the first attempt that screens clean. Budget
// exhaustion fails the step terminally and is reported through the
// record's status, not as an error.
func (d *Driver) RunStep(ctx context.Context, sessionID string, step plan.Step, k int) (*store.StepRecord, error) {
	err := d.store.UpdateStep(ctx, sessionID, store.StepUpdate{
		StepID: step.ID,
		Status: store.StepVoting,
		Voting: step.Voting,
	})
	if err != nil {
		return nil, err
	}

	if step.Voting {
		return d.runVotingStep(ctx, sessionID, step, k)
	}
	return d.runSingleStep(ctx, sessionID, step)
}

// runVotingStep generates candidates in parallel rounds until one
// signature is k ahead or the budget runs out.
func (d *Driver) runVotingStep(ctx context.Context, sessionID string, step plan.Step, k int) (*store.StepRecord, error) {
	attempts := 0
	redFlags := 0 // delta not yet flushed to the store

	for attempts < d.budget {
		batch := d.fanout
		if remaining := d.budget - attempts; batch > remaining {
			batch = remaining
		}

		raws, genErrs := d.generateBatch(ctx, step, batch)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		attempts += batch

		for _, err := range genErrs {
			// Executor failures consume budget but produce no vote and
			// no red flag: nothing reached the filter.
			d.log.Warn("executor failed", "session", sessionID, "step", step.ID, "error", err)
		}

		for _, raw := range raws {
			a, flag := vote.Screen(raw)
			if flag != nil {
				redFlags++
				d.log.Info("red flag", "session", sessionID, "step", step.ID, "reason", flag.Reason())
				continue
			}
			if a.StepID != step.ID {
				// Attributed to the wrong step; counting it would mix
				// ledgers. Same treatment as a missing identifier.
				redFlags++
				d.log.Info("red flag", "session", sessionID, "step", step.ID,
					"reason", fmt.Sprintf("vote names step %q", a.StepID))
				continue
			}

			if _, err := d.store.AppendVote(ctx, sessionID, a); err != nil {
				return nil, err
			}
			ledger, err := d.store.ReadLedger(ctx, sessionID, step.ID)
			if err != nil {
				return nil, err
			}
			decision, err := vote.Decide(step.ID, ledger, k)
			if err != nil {
				return nil, err
			}

			if decision.Decided {
				if err := d.store.ApplyDecision(ctx, sessionID, decision, redFlags); err != nil {
					return nil, err
				}
				d.log.Info("step decided", "session", sessionID, "step", step.ID,
					"votes", decision.TotalVotes, "margin", decision.Margin)
				return d.store.GetStep(ctx, sessionID, step.ID)
			}
		}

		// Flush progress so an interrupted run resumes with accurate
		// counters.
		ledger, err := d.store.ReadLedger(ctx, sessionID, step.ID)
		if err != nil {
			return nil, err
		}
		err = d.store.UpdateStep(ctx, sessionID, store.StepUpdate{
			StepID:       step.ID,
			Status:       store.StepVoting,
			Voting:       true,
			Votes:        len(ledger),
			RedFlagDelta: redFlags,
		})
		if err != nil {
			return nil, err
		}
		redFlags = 0
	}

	ledger, err := d.store.ReadLedger(ctx, sessionID, step.ID)
	if err != nil {
		return nil, err
	}

	budgetErr := &BudgetExceededError{StepID: step.ID, Attempts: attempts, Limit: d.budget}
	d.log.Warn("attempt budget exhausted", "session", sessionID, "step", step.ID, "error", budgetErr)

	if err := d.store.FailStep(ctx, sessionID, step.ID, len(ledger), redFlags); err != nil {
		return nil, err
	}
	return d.store.GetStep(ctx, sessionID, step.ID)
}

// runSingleStep accepts the first attempt that screens clean. Rejected
// attempts still count red flags and consume budget.
func (d *Driver) runSingleStep(ctx context.Context, sessionID string, step plan.Step) (*store.StepRecord, error) {
	redFlags := 0

	for attempts := 0; attempts < d.budget; attempts++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		raw, err := d.exec.Generate(ctx, step)
		if err != nil {
			d.log.Warn("executor failed", "session", sessionID, "step", step.ID, "error", err)
			continue
		}

		a, flag := vote.Screen(raw)
		if flag != nil {
			redFlags++
			d.log.Info("red flag", "session", sessionID, "step", step.ID, "reason", flag.Reason())
			continue
		}
		if a.StepID != step.ID {
			redFlags++
			continue
		}

		err = d.store.UpdateStep(ctx, sessionID, store.StepUpdate{
			StepID:       step.ID,
			Status:       store.StepDecided,
			Winner:       a.Payload,
			Votes:        1,
			Margin:       1,
			RedFlagDelta: redFlags,
		})
		if err != nil {
			return nil, err
		}
		return d.store.GetStep(ctx, sessionID, step.ID)
	}

	budgetErr := &BudgetExceededError{StepID: step.ID, Attempts: d.budget, Limit: d.budget}
	d.log.Warn("attempt budget exhausted", "session", sessionID, "step", step.ID, "error", budgetErr)

	if err := d.store.FailStep(ctx, sessionID, step.ID, 0, redFlags); err != nil {
		return nil, err
	}
	return d.store.GetStep(ctx, sessionID, step.ID)
}

// generateBatch runs n executor calls concurrently and returns the raw
// payloads in slot order plus any per-call errors. The executor input
// is identical for every call in the batch; only sampling varies.
func (d *Driver) generateBatch(ctx context.Context, step plan.Step, n int) ([][]byte, []error) {
	raws := make([][]byte, 0, n)
	errs := make([]error, 0)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			raw, err := d.exec.Generate(gctx, step)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return nil // one failed candidate never cancels the batch
			}
			raws = append(raws, raw)
			return nil
		})
	}
	_ = g.Wait() // workers never return errors; failures land in errs

	return raws, errs
}
