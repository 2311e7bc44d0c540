package merge

import (
	"strings"
	"testing"

	"audioscribe-go/internal/domain"
)

func seg(start, end float64, text, speaker string) domain.Segment {
	return domain.Segment{Start: start, End: end, Text: text, Speaker: speaker}
}

func TestFoldFirstChunkAdoptedAsIs(t *testing.T) {
	res := ChunkResult{
		Text:     "hello world",
		Language: "en",
		Segments: []domain.Segment{
			seg(0, 2, "hello", "speaker_0"),
			seg(2, 4, "world", "speaker_1"),
		},
	}

	state := Fold(State{}, res, 0, 0)

	if state.Text != "hello world" {
		t.Errorf("text = %q", state.Text)
	}
	if state.Language != "en" {
		t.Errorf("language = %q", state.Language)
	}
	if state.LastEndTime != 4 {
		t.Errorf("lastEndTime = %v, want 4", state.LastEndTime)
	}
	if state.Segments[0].Speaker != "speaker_0" {
		t.Errorf("chunk 0 speakers must not be suffixed, got %q", state.Segments[0].Speaker)
	}
}

func TestFoldOffsetsAndSuffixesLaterChunks(t *testing.T) {
	first := ChunkResult{
		Text:     "part one",
		Segments: []domain.Segment{seg(0, 3590, "part one", "speaker_0")},
	}
	second := ChunkResult{
		Text:     "part two",
		Segments: []domain.Segment{seg(0, 100, "part two", "speaker_0")},
	}

	state := Fold(State{}, first, 0, 0)
	state = Fold(state, second, 1, 3600)

	if len(state.Segments) != 2 {
		t.Fatalf("got %d segments, want 2", len(state.Segments))
	}
	got := state.Segments[1]
	if got.Start != 3600 || got.End != 3700 {
		t.Errorf("offset segment = [%v, %v), want [3600, 3700)", got.Start, got.End)
	}
	if got.Speaker != "speaker_0_c1" {
		t.Errorf("speaker = %q, want speaker_0_c1", got.Speaker)
	}
	if state.Text != "part one part two" {
		t.Errorf("text = %q", state.Text)
	}
}

func TestFoldDropsOverlapDuplicates(t *testing.T) {
	// First chunk's last segment ends at 3603 (inside the overlap window).
	first := ChunkResult{
		Text:     "tail of chunk one",
		Segments: []domain.Segment{seg(3590, 3603, "tail of chunk one", "")},
	}
	// Second chunk starts at 3600; its first segment re-transcribes the
	// overlap span and must be dropped, the next one survives.
	second := ChunkResult{
		Text: "tail of chunk one and more",
		Segments: []domain.Segment{
			seg(0, 3, "tail of chunk one", ""),
			seg(3.5, 10, "and more", ""),
		},
	}

	state := Fold(State{}, first, 0, 0)
	state = Fold(state, second, 1, 3600)

	if len(state.Segments) != 2 {
		t.Fatalf("got %d segments, want 2 (overlap duplicate dropped): %+v", len(state.Segments), state.Segments)
	}
	if state.Segments[1].Start != 3603.5 {
		t.Errorf("survivor starts at %v, want 3603.5", state.Segments[1].Start)
	}
	if state.LastEndTime != 3610 {
		t.Errorf("lastEndTime = %v, want 3610", state.LastEndTime)
	}
}

func TestFoldAllOrderingAndSuffixes(t *testing.T) {
	chunks := []domain.ChunkDescriptor{
		{Index: 0, StartTime: 0, Duration: 3605},
		{Index: 1, StartTime: 3600, Duration: 3605},
		{Index: 2, StartTime: 7200, Duration: 600},
	}
	results := []ChunkResult{
		{Text: "a", Segments: []domain.Segment{seg(0, 3599, "a", "speaker_0")}},
		{Text: "b", Segments: []domain.Segment{seg(10, 3599, "b", "speaker_0")}},
		{Text: "c", Segments: []domain.Segment{seg(401, 590, "c", "speaker_1")}},
	}

	state := FoldAll(results, chunks)

	if len(state.Segments) != 3 {
		t.Fatalf("got %d segments, want 3", len(state.Segments))
	}

	for i := 1; i < len(state.Segments); i++ {
		if state.Segments[i].Start < state.Segments[i-1].Start {
			t.Errorf("segments out of order at %d: %v < %v", i, state.Segments[i].Start, state.Segments[i-1].Start)
		}
	}

	// Same provider label from different chunks must not be conflated.
	if state.Segments[0].Speaker == state.Segments[1].Speaker {
		t.Errorf("cross-chunk speaker collision: %q", state.Segments[0].Speaker)
	}

	StripChunkSuffixes(state.Segments)
	for _, s := range state.Segments {
		if strings.Contains(s.Speaker, "_c") {
			t.Errorf("speaker %q still carries a chunk suffix", s.Speaker)
		}
	}
}

func TestStripChunkSuffixes(t *testing.T) {
	segments := []domain.Segment{
		seg(0, 1, "", "speaker_0_c1"),
		seg(1, 2, "", "speaker_12_c34"),
		seg(2, 3, "", "Marie_curie"), // no digit suffix, untouched
		seg(3, 4, "", ""),
	}

	StripChunkSuffixes(segments)

	want := []string{"speaker_0", "speaker_12", "Marie_curie", ""}
	for i, w := range want {
		if segments[i].Speaker != w {
			t.Errorf("segment %d speaker = %q, want %q", i, segments[i].Speaker, w)
		}
	}
}

func TestApplySpeedFactor(t *testing.T) {
	segments := []domain.Segment{seg(10, 20, "", ""), seg(20, 30.5, "", "")}

	ApplySpeedFactor(segments, 2)

	if segments[0].Start != 20 || segments[0].End != 40 {
		t.Errorf("segment 0 = [%v, %v), want [20, 40)", segments[0].Start, segments[0].End)
	}
	if segments[1].End != 61 {
		t.Errorf("segment 1 end = %v, want 61", segments[1].End)
	}

	// Factor 1 is a no-op.
	before := segments[0]
	ApplySpeedFactor(segments, 1)
	if segments[0] != before {
		t.Error("factor 1 must not change timestamps")
	}
}

func TestApplySpeakerNames(t *testing.T) {
	segments := []domain.Segment{
		seg(0, 1, "", "speaker_0"),
		seg(1, 2, "", "speaker_1_c2"),
		seg(2, 3, "", "speaker_9"),
	}

	ApplySpeakerNames(segments, map[string]string{
		"speaker_0":    "Alice",
		"speaker_1_c2": "Bob",
	})

	if segments[0].Speaker != "Alice" || segments[1].Speaker != "Bob" {
		t.Errorf("names not applied: %+v", segments)
	}
	if segments[2].Speaker != "speaker_9" {
		t.Errorf("unmapped label changed: %q", segments[2].Speaker)
	}
}

func TestHasSpeakers(t *testing.T) {
	if HasSpeakers([]domain.Segment{seg(0, 1, "x", "")}) {
		t.Error("no labels present")
	}
	if !HasSpeakers([]domain.Segment{seg(0, 1, "x", ""), seg(1, 2, "y", "speaker_0")}) {
		t.Error("label present but not detected")
	}
}
