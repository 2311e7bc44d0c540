package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.QueueStream != "jobs:transcription" {
		t.Errorf("stream = %q", cfg.QueueStream)
	}
	if cfg.MaxAttempts != 3 {
		t.Errorf("max attempts = %d", cfg.MaxAttempts)
	}
	if cfg.Chunking.ChunkSeconds != 3600 || cfg.Chunking.OverlapSeconds != 5 {
		t.Errorf("chunking = %+v", cfg.Chunking)
	}
	if cfg.SpeedFactor != 2.0 {
		t.Errorf("speed factor = %v", cfg.SpeedFactor)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("CHUNK_SECONDS", "1800")
	t.Setenv("JOB_MAX_ATTEMPTS", "5")
	t.Setenv("AUDIO_SPEED_FACTOR", "1.5")

	cfg := Load()

	if cfg.Chunking.ChunkSeconds != 1800 {
		t.Errorf("chunk seconds = %v", cfg.Chunking.ChunkSeconds)
	}
	if cfg.MaxAttempts != 5 {
		t.Errorf("max attempts = %d", cfg.MaxAttempts)
	}
	if cfg.SpeedFactor != 1.5 {
		t.Errorf("speed factor = %v", cfg.SpeedFactor)
	}
}

func TestClampFactor(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{2.0, 2.0},
		{1.0, 1.0},
		{0.5, 1.0},
		{3.0, 2.0},
		{1.5, 1.5},
	}
	for _, tt := range tests {
		if got := clampFactor(tt.in); got != tt.want {
			t.Errorf("clampFactor(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
