package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"audioscribe-go/internal/provider"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		kind      Kind
		retryable bool
	}{
		{
			name:      "transport error",
			err:       &provider.Error{Message: "connection refused"},
			kind:      KindTransient,
			retryable: true,
		},
		{
			name:      "rate limited",
			err:       &provider.Error{StatusCode: 429, Message: "slow down"},
			kind:      KindRateLimited,
			retryable: true,
		},
		{
			name:      "provider 5xx",
			err:       &provider.Error{StatusCode: 503, Message: "unavailable"},
			kind:      KindRateLimited,
			retryable: true,
		},
		{
			name:      "provider rejected request",
			err:       &provider.Error{StatusCode: 400, Code: "invalid_file", Message: "bad audio"},
			kind:      KindProviderRejected,
			retryable: false,
		},
		{
			name:      "provider auth failure",
			err:       &provider.Error{StatusCode: 401, Message: "bad key"},
			kind:      KindProviderRejected,
			retryable: false,
		},
		{
			name:      "request timeout status stays retryable",
			err:       &provider.Error{StatusCode: 408, Message: "timeout"},
			kind:      KindUnknown,
			retryable: true,
		},
		{
			name:      "wrapped provider error",
			err:       fmt.Errorf("transcribe chunk 2: %w", &provider.Error{StatusCode: 403, Message: "forbidden"}),
			kind:      KindProviderRejected,
			retryable: false,
		},
		{
			name:      "context deadline",
			err:       fmt.Errorf("call: %w", context.DeadlineExceeded),
			kind:      KindTransient,
			retryable: true,
		},
		{
			name:      "net timeout",
			err:       timeoutErr{},
			kind:      KindTransient,
			retryable: true,
		},
		{
			name:      "business error",
			err:       Business(ErrEmptyTranscription),
			kind:      KindBusiness,
			retryable: false,
		},
		{
			name:      "unknown fails open toward retry",
			err:       errors.New("something odd"),
			kind:      KindUnknown,
			retryable: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := Classify(tt.err)
			if f.Kind != tt.kind {
				t.Errorf("kind = %s, want %s", f.Kind, tt.kind)
			}
			if f.Retryable() != tt.retryable {
				t.Errorf("retryable = %v, want %v", f.Retryable(), tt.retryable)
			}
		})
	}
}

func TestClassifyPreservesWrappedFailureKind(t *testing.T) {
	inner := Business(&InsufficientCreditsError{Needed: 8, Available: 2})
	wrapped := fmt.Errorf("credit gate: %w", inner)

	f := Classify(wrapped)
	if f.Kind != KindBusiness {
		t.Errorf("kind = %s, want business", f.Kind)
	}

	var ice *InsufficientCreditsError
	if !errors.As(f, &ice) {
		t.Error("wrapped cause lost")
	}
}

func TestIsTerminal(t *testing.T) {
	if IsTerminal(errors.New("plain")) {
		t.Error("unclassified error treated as terminal")
	}
	if !IsTerminal(Business(ErrEmptyTranscription)) {
		t.Error("business failure not terminal")
	}
	if IsTerminal(Classify(&provider.Error{StatusCode: 500})) {
		t.Error("5xx treated as terminal")
	}
}
