package store

import (
	"errors"
	"fmt"
)

// Sentinel errors for session lifecycle violations. Callers match with
// errors.Is.
var (
	// ErrSessionExists is returned by Initialize when the session id is
	// already taken and reinitialization was not requested.
	ErrSessionExists = errors.New("session already exists")

	// ErrSessionNotFound is returned by operations against an unknown
	// session id. Callers must never silently default around it.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionComplete is returned by writes against a session that
	// has been marked complete. Terminal sessions reject all mutation.
	ErrSessionComplete = errors.New("session is complete")
)

// StatusRegressionError is returned when an update would move a step
// status backwards, or touch a step that is already terminal. Step
// status only moves forward: pending -> voting -> decided | failed.
type StatusRegressionError struct {
	StepID string
	From   StepStatus
	To     StepStatus
}

func (e *StatusRegressionError) Error() string {
	return fmt.Sprintf("step %s: status cannot move %s -> %s", e.StepID, e.From, e.To)
}

// IntegrityError indicates persisted state that violates a structural
// invariant (e.g. a ledger row whose stored signature no longer matches
// its payload). These are fatal: the storage layer is supposed to make
// them impossible, so observing one means the database was modified
// outside this store.
type IntegrityError struct {
	SessionID string
	StepID    string
	Message   string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity error: session=%s step=%s: %s", e.SessionID, e.StepID, e.Message)
}
