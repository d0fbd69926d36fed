package orchestrator

import (
	"errors"
	"fmt"
)

type (
	// ValidationError reports a malformed or incomplete event. The event is
	// rejected before any session mutation occurs.
	ValidationError struct {
		Field  string
		Reason string
	}

	// ReasoningError reports a failed or structurally invalid reasoning call.
	// No partial decision is committed; the event is safe to retry.
	ReasoningError struct {
		Key Key
		Err error
	}

	// PersistenceError reports a session store failure. The whole handle call
	// fails atomically; the caller may retry.
	PersistenceError struct {
		Key Key
		Op  string
		Err error
	}

	// RoutingError reports a missing delivery identifier. Delivery is
	// skipped, but the conversational state is valid and has been persisted.
	RoutingError struct {
		Key  Key
		Role string
	}
)

// Error implements error.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid event: %s %s", e.Field, e.Reason)
}

// Error implements error.
func (e *ReasoningError) Error() string {
	return fmt.Sprintf("reasoning failed for %s: %v", e.Key, e.Err)
}

// Unwrap returns the underlying reasoning failure.
func (e *ReasoningError) Unwrap() error { return e.Err }

// Error implements error.
func (e *PersistenceError) Error() string {
	return fmt.Sprintf("session %s failed for %s: %v", e.Op, e.Key, e.Err)
}

// Unwrap returns the underlying store failure.
func (e *PersistenceError) Unwrap() error { return e.Err }

// Error implements error.
func (e *RoutingError) Error() string {
	return fmt.Sprintf("no contact identifier for role %q on %s", e.Role, e.Key)
}

// IsRetryable reports whether the error is safe to retry: reasoning and
// persistence failures leave no partial commit behind.
func IsRetryable(err error) bool {
	var re *ReasoningError
	var pe *PersistenceError
	return errors.As(err, &re) || errors.As(err, &pe)
}
