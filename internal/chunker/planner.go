// Package chunker decides whether a recording needs splitting and produces
// the ordered, overlapping chunk plan the transcription executor walks.
package chunker

import "audioscribe-go/internal/config"

// Window is one planned time slice. Windows below the chunking threshold
// collapse to a single window covering the whole recording.
type Window struct {
	Index     int
	StartTime float64
	Duration  float64
}

// Plan slices total seconds of audio into overlapping windows.
//
// Each window is chunkSeconds+overlapSeconds long (or the remainder for the
// last one) and consecutive start times advance by chunkSeconds, so adjacent
// windows overlap by exactly overlapSeconds. Recordings shorter than the
// threshold get one window over [0, total).
func Plan(total float64, cfg config.Chunking) []Window {
	if total <= 0 {
		return nil
	}

	if total < cfg.MinDurationForChunking {
		return []Window{{Index: 0, StartTime: 0, Duration: total}}
	}

	var windows []Window
	start := 0.0
	index := 0

	for start < total {
		last := start+cfg.ChunkSeconds >= total
		duration := cfg.ChunkSeconds + cfg.OverlapSeconds
		if last {
			duration = total - start
		}

		windows = append(windows, Window{
			Index:     index,
			StartTime: start,
			Duration:  duration,
		})

		start += cfg.ChunkSeconds
		index++
	}

	return windows
}
