// Package merge stitches ordered per-chunk transcription results into one
// transcript: timestamps are shifted to the recording's timeline, segments
// reproduced inside the overlap window are dropped, and provider speaker
// labels are disambiguated per chunk before a final normalization pass.
package merge

import (
	"fmt"
	"regexp"

	"audioscribe-go/internal/domain"
)

// ChunkResult is what the speech provider returns for one chunk.
type ChunkResult struct {
	Text     string
	Segments []domain.Segment
	Language string
}

// State is the accumulator folded left-to-right over chunk results. It only
// lives for the duration of a merge; it is never persisted.
type State struct {
	LastEndTime float64
	Segments    []domain.Segment
	Text        string
	Language    string
}

var chunkSuffixRe = regexp.MustCompile(`_c\d+$`)

// Fold merges one chunk result into the running state.
//
// For chunk 0 the result is adopted as-is. For later chunks every segment is
// offset by the chunk's start time, non-empty speaker labels get a _c{index}
// suffix (provider diarization labels are scoped per call, so two chunks may
// both say "speaker_0" about different people), and segments starting before
// the previous chunk's last accepted end are dropped as overlap duplicates.
func Fold(state State, res ChunkResult, chunkIndex int, chunkStart float64) State {
	if chunkIndex == 0 {
		state.Segments = append([]domain.Segment(nil), res.Segments...)
		state.Text = res.Text
		state.Language = res.Language
		state.LastEndTime = 0
		if n := len(res.Segments); n > 0 {
			state.LastEndTime = res.Segments[n-1].End
		}
		return state
	}

	threshold := state.LastEndTime

	for _, seg := range res.Segments {
		seg.Start += chunkStart
		seg.End += chunkStart
		if seg.Speaker != "" {
			seg.Speaker = fmt.Sprintf("%s_c%d", seg.Speaker, chunkIndex)
		}

		// Overlap dedup: the previous chunk already covered this span.
		if seg.Start < threshold {
			continue
		}

		state.Segments = append(state.Segments, seg)
		state.LastEndTime = seg.End
	}

	if res.Text != "" {
		if state.Text != "" {
			state.Text += " "
		}
		state.Text += res.Text
	}

	if state.Language == "" {
		state.Language = res.Language
	}

	return state
}

// FoldAll folds every chunk result in index order.
func FoldAll(results []ChunkResult, chunks []domain.ChunkDescriptor) State {
	var state State
	for i, res := range results {
		state = Fold(state, res, i, chunks[i].StartTime)
	}
	return state
}

// ApplySpeedFactor restores original-recording timestamps after the audio
// was time-stretched before transcription. Applied once, after merging.
func ApplySpeedFactor(segments []domain.Segment, factor float64) {
	if factor == 1 {
		return
	}
	for i := range segments {
		segments[i].Start *= factor
		segments[i].End *= factor
	}
}

// ApplySpeakerNames replaces provider speaker IDs with human names. Labels
// with no mapping are left untouched. Runs before StripChunkSuffixes so the
// map may be keyed on the disambiguated labels.
func ApplySpeakerNames(segments []domain.Segment, names map[string]string) {
	if len(names) == 0 {
		return
	}
	for i := range segments {
		if segments[i].Speaker == "" {
			continue
		}
		if name, ok := names[segments[i].Speaker]; ok {
			segments[i].Speaker = name
		}
	}
}

// StripChunkSuffixes removes the _c{n} disambiguation suffix so the
// persisted transcript never exposes chunk-internal bookkeeping.
func StripChunkSuffixes(segments []domain.Segment) {
	for i := range segments {
		if segments[i].Speaker == "" {
			continue
		}
		segments[i].Speaker = chunkSuffixRe.ReplaceAllString(segments[i].Speaker, "")
	}
}

// HasSpeakers reports whether any segment carries a diarization label.
func HasSpeakers(segments []domain.Segment) bool {
	for _, s := range segments {
		if s.Speaker != "" {
			return true
		}
	}
	return false
}
