package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net"

	"audioscribe-go/internal/provider"
)

// Kind buckets a failure for the retry decision.
type Kind int

const (
	KindUnknown          Kind = iota // unclassified, fail open toward retry
	KindTransient                    // timeout, connection reset
	KindRateLimited                  // provider 429 / 5xx
	KindProviderRejected             // provider 400/401/403, terminal
	KindBusiness                     // insufficient credits, empty result, terminal
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindRateLimited:
		return "rate_limited"
	case KindProviderRejected:
		return "provider_rejected"
	case KindBusiness:
		return "business"
	default:
		return "unknown"
	}
}

// Failure wraps an attempt error with its retry classification. The queue
// runner checks Retryable to decide whether another attempt is scheduled.
type Failure struct {
	Kind Kind
	Err  error
}

func (f *Failure) Error() string { return f.Err.Error() }
func (f *Failure) Unwrap() error { return f.Err }

// Retryable reports whether another attempt may succeed.
func (f *Failure) Retryable() bool {
	return f.Kind != KindProviderRejected && f.Kind != KindBusiness
}

// Business wraps a terminal business-rule violation.
func Business(err error) *Failure {
	return &Failure{Kind: KindBusiness, Err: err}
}

// Classify maps an error onto the retry taxonomy. Provider errors are
// classified by status class from their typed contract; everything
// unrecognized stays retryable.
func Classify(err error) *Failure {
	var f *Failure
	if errors.As(err, &f) {
		return &Failure{Kind: f.Kind, Err: err}
	}

	var perr *provider.Error
	if errors.As(err, &perr) {
		switch {
		case perr.Transport():
			return &Failure{Kind: KindTransient, Err: err}
		case perr.StatusCode == 429 || perr.StatusCode >= 500:
			return &Failure{Kind: KindRateLimited, Err: err}
		case perr.ClientRejected():
			return &Failure{Kind: KindProviderRejected, Err: err}
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &Failure{Kind: KindTransient, Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Failure{Kind: KindTransient, Err: err}
	}

	return &Failure{Kind: KindUnknown, Err: err}
}

// IsTerminal reports whether err must not be rescheduled.
func IsTerminal(err error) bool {
	var f *Failure
	return errors.As(err, &f) && !f.Retryable()
}

// ErrEmptyTranscription is the terminal failure for a provider that
// returned no text at all.
var ErrEmptyTranscription = errors.New("transcription returned empty result")

// InsufficientCreditsError carries the shortfall so callers can render a
// localized message.
type InsufficientCreditsError struct {
	Needed    int
	Available int
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: %d needed, %d available", e.Needed, e.Available)
}
