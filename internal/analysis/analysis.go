// Package analysis is the client for the summarization provider: a
// prompt-driven analysis pass over the merged transcript, plus a lighter
// speaker-name inference used when no prompt is supplied.
package analysis

import (
	"context"

	"audioscribe-go/internal/domain"
)

// Result is one analysis call's output. Speakers maps the provider's
// diarization labels to inferred human names.
type Result struct {
	Analysis string
	Speakers map[string]string
}

type Provider interface {
	Analyze(ctx context.Context, transcript, prompt string, segments []domain.Segment) (Result, error)
	IdentifySpeakers(ctx context.Context, segments []domain.Segment) (map[string]string, error)
}
