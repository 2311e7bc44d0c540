// Package provider holds the structured error contract shared by the
// external speech and summarization clients. The pipeline classifies
// retryability from StatusCode and Code, never from message text.
package provider

import "fmt"

// Error is a typed failure from a provider HTTP call.
type Error struct {
	StatusCode int    // HTTP status, 0 for transport-level failures
	Code       string // machine-readable provider code, may be empty
	Message    string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("provider error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("provider error %d: %s", e.StatusCode, e.Message)
}

// Transport reports whether the failure happened before any HTTP status was
// received (timeout, connection reset).
func (e *Error) Transport() bool {
	return e.StatusCode == 0
}

// ClientRejected reports a 4xx status other than 408 and 429, which the
// pipeline treats as terminal.
func (e *Error) ClientRejected() bool {
	if e.StatusCode == 408 || e.StatusCode == 429 {
		return false
	}
	return e.StatusCode >= 400 && e.StatusCode < 500
}
