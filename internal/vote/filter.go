package vote

import (
	"fmt"
)

// MaxAttemptBytes is the raw payload size limit for one attempt.
// Roughly 700 tokens at 4 bytes per token; anything longer signals
// runaway generator output and is rejected regardless of content.
const MaxAttemptBytes = 2800

// RedFlagCode categorizes why a candidate was rejected.
type RedFlagCode string

const (
	// FlagOversized indicates the raw payload exceeded MaxAttemptBytes.
	FlagOversized RedFlagCode = "OVERSIZED"

	// FlagMalformed indicates the payload is not valid JSON.
	FlagMalformed RedFlagCode = "MALFORMED"

	// FlagErrorOutcome indicates a well-formed payload carrying an
	// error marker instead of an outcome.
	FlagErrorOutcome RedFlagCode = "ERROR_OUTCOME"

	// FlagMissingStepID indicates the payload has no step identifier.
	// A vote that cannot name its step cannot be attributed; guessing
	// an identifier risks counting it against the wrong step.
	FlagMissingStepID RedFlagCode = "MISSING_STEP_ID"

	// FlagMissingFields indicates the payload has neither an action
	// nor a result field.
	FlagMissingFields RedFlagCode = "MISSING_FIELDS"
)

// RedFlag records a rejected candidate. Red flags are values, not
// errors: the filter never fails, it only refuses to count a vote.
// The caller is expected to request another attempt with an unchanged
// input so successive attempts stay decorrelated.
type RedFlag struct {
	Code   RedFlagCode
	Detail string
}

// Reason returns a human-readable rejection reason.
func (f *RedFlag) Reason() string {
	if f.Detail == "" {
		return string(f.Code)
	}
	return fmt.Sprintf("%s: %s", f.Code, f.Detail)
}

// Payload field names expected from the generator.
const (
	fieldStepID = "step_id"
	fieldAction = "action"
	fieldResult = "result"
	fieldError  = "error"
)

// Screen validates one raw candidate payload. It returns either an
// accepted Attempt (with its signature precomputed) or a RedFlag
// describing the rejection, never both.
//
// Checks are applied in priority order: size, JSON validity, error
// outcome, step identifier, descriptive fields. The first failing
// check wins, so an oversized payload is OVERSIZED even when it would
// also fail later checks.
func Screen(raw []byte) (*Attempt, *RedFlag) {
	if len(raw) > MaxAttemptBytes {
		return nil, &RedFlag{
			Code:   FlagOversized,
			Detail: fmt.Sprintf("%d bytes > %d limit", len(raw), MaxAttemptBytes),
		}
	}

	decoded, err := decodeJSON(raw)
	if err != nil {
		return nil, &RedFlag{Code: FlagMalformed, Detail: err.Error()}
	}

	obj, ok := decoded.(map[string]any)
	if !ok {
		return nil, &RedFlag{Code: FlagMalformed, Detail: "payload is not a JSON object"}
	}

	if marker, present := obj[fieldError]; present && marker != nil {
		return nil, &RedFlag{
			Code:   FlagErrorOutcome,
			Detail: fmt.Sprintf("generator reported: %v", marker),
		}
	}

	stepID, _ := obj[fieldStepID].(string)
	if stepID == "" {
		return nil, &RedFlag{Code: FlagMissingStepID, Detail: "no step_id field"}
	}

	action, hasAction := obj[fieldAction]
	result, hasResult := obj[fieldResult]
	if (!hasAction || action == nil) && (!hasResult || result == nil) {
		return nil, &RedFlag{Code: FlagMissingFields, Detail: "neither action nor result present"}
	}

	sig, err := signatureFor(action, result)
	if err != nil {
		return nil, &RedFlag{Code: FlagMalformed, Detail: err.Error()}
	}

	payload := make([]byte, len(raw))
	copy(payload, raw)

	return &Attempt{
		StepID:    stepID,
		Action:    action,
		Result:    result,
		Payload:   payload,
		Signature: sig,
		RawLen:    len(raw),
	}, nil
}
