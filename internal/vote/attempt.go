package vote

import "fmt"

// Attempt is one accepted candidate outcome for a step.
//
// Attempts are immutable once produced by the Filter. The Payload is the
// raw bytes as submitted; the Signature is the canonical JSON of the
// {action, result} pair and is the identity used for tallying.
type Attempt struct {
	// StepID identifies the step this attempt votes on.
	StepID string

	// Action and Result are the decoded descriptive fields. At least
	// one is non-nil for an accepted attempt.
	Action any
	Result any

	// Payload is the raw candidate payload as submitted.
	Payload []byte

	// Signature is the canonical JSON of {action, result}.
	Signature string

	// RawLen is the length of the payload as measured at the
	// generator boundary, before any decoding.
	RawLen int
}

// signatureFor computes the canonical signature for an action/result pair.
// Canonicalization failures indicate a payload that survived JSON parsing
// but contains values outside the canonical subset; callers treat this
// as malformed.
func signatureFor(action, result any) (string, error) {
	sig, err := marshalCanonical(map[string]any{
		"action": action,
		"result": result,
	})
	if err != nil {
		return "", fmt.Errorf("compute signature: %w", err)
	}
	return string(sig), nil
}
