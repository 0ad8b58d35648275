package driver

import (
	"errors"
	"fmt"
)

// BudgetExceededError is recorded when a step exhausts its attempt
// budget without reaching a decision. The step is failed terminally;
// this core never retries past the budget.
type BudgetExceededError struct {
	StepID   string // The step that ran out of attempts
	Attempts int    // Attempts consumed
	Limit    int    // The configured budget
}

// Error implements the error interface.
func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("step %s exhausted attempt budget: %d attempts >= %d limit without a decision",
		e.StepID, e.Attempts, e.Limit)
}

// IsBudgetExceededError returns true if the error is a
// BudgetExceededError. Uses errors.As to handle wrapped errors.
func IsBudgetExceededError(err error) bool {
	var be *BudgetExceededError
	return errors.As(err, &be)
}
