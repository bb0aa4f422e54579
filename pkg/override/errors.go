package override

import (
	"errors"
	"fmt"
)

// Transition error codes.
const (
	CodeInvalidTransition = "OVERRIDE_INVALID_TRANSITION"
	CodeStaleState        = "OVERRIDE_STALE_STATE"
	CodeDeleteDenied      = "OVERRIDE_DELETE_DENIED"
)

// ErrNotFound is returned when no override has the requested id.
var ErrNotFound = errors.New("override not found")

// ValidationError reports input that fails a stateless rule.
type ValidationError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// TransitionError reports an action that is illegal for the override's
// current status, including losing a race to a concurrent transition.
type TransitionError struct {
	Code    string `json:"code"`
	From    Status `json:"from"`
	Action  Action `json:"action"`
	Message string `json:"message"`
}

func (e *TransitionError) Error() string {
	return e.Message
}

// PermissionError reports an actor without authority for the action.
type PermissionError struct {
	Actor  string `json:"actor"`
	Action Action `json:"action"`
	Reason string `json:"reason"`
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("%s may not %s: %s", e.Actor, e.Action, e.Reason)
}

// PersistenceError reports that the mutate-and-audit unit could not commit.
// Nothing was written, so the whole operation may be retried.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// classify passes typed override errors through and wraps anything else
// as a PersistenceError.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var (
		ve *ValidationError
		te *TransitionError
		pe *PermissionError
		se *PersistenceError
	)
	switch {
	case errors.Is(err, ErrNotFound),
		errors.As(err, &ve),
		errors.As(err, &te),
		errors.As(err, &pe),
		errors.As(err, &se):
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}
