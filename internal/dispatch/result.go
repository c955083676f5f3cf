package dispatch

import (
	"fmt"
	"time"
)

// Kind classifies a dispatch failure.
type Kind string

const (
	// PolicyViolation means the guard rejected the instruction. No handler ran.
	PolicyViolation Kind = "policy_violation"
	// UnknownTask means no catalogue phrase matched. No handler ran.
	UnknownTask Kind = "unknown_task"
	// HandlerError means the matched handler failed, panicked or timed out.
	HandlerError Kind = "handler_error"
)

// OutcomeSuccess is the audit and metrics label for a successful dispatch.
const OutcomeSuccess = "success"

// UnknownTaskDetail is the detail reported when nothing matched.
const UnknownTaskDetail = "Unknown task description."

// Outcome is the result of a successful dispatch.
type Outcome struct {
	RequestID   string        `json:"request_id"`
	OperationID string        `json:"operation"`
	Message     string        `json:"message"`
	Duration    time.Duration `json:"-"`
}

// Failure is returned by Dispatch and Check for every unsuccessful outcome.
type Failure struct {
	Kind        Kind
	Detail      string
	OperationID string
	RequestID   string
	Err         error
}

func (f *Failure) Error() string {
	if f.OperationID != "" {
		return fmt.Sprintf("%s (%s): %s", f.Kind, f.OperationID, f.Detail)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Detail)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Plan is the dry-run result of Check.
type Plan struct {
	OperationID string `json:"operation"`
	Phrase      string `json:"phrase"`
}
