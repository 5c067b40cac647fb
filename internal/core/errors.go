package core

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMessageNotFound is returned by a MailClient when the message no longer exists
var ErrMessageNotFound = errors.New("message not found")

// FetchError is returned when the recent messages could not be listed
type FetchError struct {
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch recent messages: %v", e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ClassifyError is returned when the classifier call itself failed
type ClassifyError struct {
	EmailID string
	Err     error
}

func (e *ClassifyError) Error() string {
	return fmt.Sprintf("classify email %s: %v", e.EmailID, e.Err)
}

func (e *ClassifyError) Unwrap() error { return e.Err }

// LabelError is returned when a label set could not be applied after all attempts
type LabelError struct {
	EmailID  string
	Labels   []string
	Attempts int
	Err      error
}

func (e *LabelError) Error() string {
	return fmt.Sprintf("apply labels [%s] to email %s after %d attempt(s): %v",
		strings.Join(e.Labels, ","), e.EmailID, e.Attempts, e.Err)
}

func (e *LabelError) Unwrap() error { return e.Err }

// DeleteError records a single failed spam deletion
type DeleteError struct {
	EmailID string
	Err     error
}

func (e *DeleteError) Error() string {
	return fmt.Sprintf("delete email %s: %v", e.EmailID, e.Err)
}

func (e *DeleteError) Unwrap() error { return e.Err }

// RunError is returned when a run stops before cleanup.
// Labeled is the number of emails whose label was already applied.
type RunError struct {
	State   State
	Labeled int
	Err     error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("triage failed in %s after labeling %d email(s): %v", e.State, e.Labeled, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }
