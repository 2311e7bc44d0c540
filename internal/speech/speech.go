// Package speech is the client for the external speech-to-text provider.
package speech

import (
	"context"

	"audioscribe-go/internal/domain"
)

// Result is one transcription call's output.
type Result struct {
	Text     string
	Segments []domain.Segment
	Language string
}

// Provider transcribes a single local audio file. Implementations return
// *provider.Error for HTTP-level failures so the pipeline can classify
// retryability without inspecting message text.
type Provider interface {
	Transcribe(ctx context.Context, path, label string, durationHint float64, mimeType string) (Result, error)
}
