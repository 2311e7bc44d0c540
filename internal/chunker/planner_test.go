package chunker

import (
	"math"
	"testing"

	"audioscribe-go/internal/config"
)

var testChunking = config.Chunking{
	ChunkSeconds:           3600,
	OverlapSeconds:         5,
	MinDurationForChunking: 3600,
}

func TestPlanShortRecordingSingleWindow(t *testing.T) {
	durations := []float64{1, 60, 480, 3599.9}

	for _, d := range durations {
		windows := Plan(d, testChunking)
		if len(windows) != 1 {
			t.Fatalf("Plan(%v) returned %d windows, want 1", d, len(windows))
		}
		w := windows[0]
		if w.StartTime != 0 || w.Duration != d || w.Index != 0 {
			t.Errorf("Plan(%v) = %+v, want single window over [0, %v)", d, w, d)
		}
	}
}

func TestPlanLongRecording(t *testing.T) {
	// 130 minutes at one-hour chunks with 5s overlap.
	windows := Plan(7800, testChunking)

	want := []Window{
		{Index: 0, StartTime: 0, Duration: 3605},
		{Index: 1, StartTime: 3600, Duration: 3605},
		{Index: 2, StartTime: 7200, Duration: 600},
	}

	if len(windows) != len(want) {
		t.Fatalf("got %d windows, want %d: %+v", len(windows), len(want), windows)
	}
	for i, w := range windows {
		if w != want[i] {
			t.Errorf("window %d = %+v, want %+v", i, w, want[i])
		}
	}
}

func TestPlanProperties(t *testing.T) {
	durations := []float64{3600, 3601, 7200, 7800, 10000, 3600 * 5.5}

	for _, total := range durations {
		windows := Plan(total, testChunking)
		if len(windows) == 0 {
			t.Fatalf("Plan(%v) returned no windows", total)
		}

		for i, w := range windows {
			// Start times advance by exactly chunkSeconds.
			wantStart := float64(i) * testChunking.ChunkSeconds
			if w.StartTime != wantStart {
				t.Errorf("Plan(%v) window %d starts at %v, want %v", total, i, w.StartTime, wantStart)
			}

			last := i == len(windows)-1
			if !last && w.Duration != testChunking.ChunkSeconds+testChunking.OverlapSeconds {
				t.Errorf("Plan(%v) window %d duration %v, want %v",
					total, i, w.Duration, testChunking.ChunkSeconds+testChunking.OverlapSeconds)
			}
			if last {
				end := w.StartTime + w.Duration
				if math.Abs(end-total) > 1e-9 {
					t.Errorf("Plan(%v) last window ends at %v, want %v", total, end, total)
				}
			}
		}

		// Coverage: ignoring overlap, consecutive windows leave no gap.
		for i := 1; i < len(windows); i++ {
			prevEnd := windows[i-1].StartTime + windows[i-1].Duration
			if windows[i].StartTime > prevEnd {
				t.Errorf("Plan(%v) gap between window %d and %d", total, i-1, i)
			}
		}
	}
}

func TestPlanZeroDuration(t *testing.T) {
	if windows := Plan(0, testChunking); windows != nil {
		t.Errorf("Plan(0) = %+v, want nil", windows)
	}
}
