package config

import (
	"os"
	"strconv"
	"time"
)

// Chunking controls how long recordings are split before transcription.
// Defaults match provider request limits: 60 minute chunks with a 5 second
// overlap window, and nothing shorter than 60 minutes is split at all.
type Chunking struct {
	ChunkSeconds           float64
	OverlapSeconds         float64
	MinDurationForChunking float64
}

type Config struct {
	RedisURL      string
	QueueStream   string
	ConsumerGroup string
	WorkerID      string
	MaxAttempts   int

	StorageRoot string

	SpeechURL    string
	SpeechAPIKey string
	SpeechModel  string

	LLMGatewayURL string
	LLMAPIKey     string
	LLMModel      string

	HTTPTimeout time.Duration

	Chunking Chunking

	// SpeedFactor time-stretches audio before transcription to shrink billed
	// provider time. 1.0 disables the step. Clamped to ffmpeg's single-stage
	// atempo range.
	SpeedFactor float64

	ConversionProfile string
}

func Load() *Config {
	return &Config{
		RedisURL:      envOr("REDIS_URL", "redis://localhost:6379"),
		QueueStream:   envOr("QUEUE_STREAM", "jobs:transcription"),
		ConsumerGroup: envOr("QUEUE_GROUP", "transcription-workers"),
		WorkerID:      envOr("WORKER_ID", hostnameOr("worker-1")),
		MaxAttempts:   envInt("JOB_MAX_ATTEMPTS", 3),

		StorageRoot: envOr("STORAGE_ROOT", "./storage"),

		SpeechURL:    envOr("SPEECH_URL", ""),
		SpeechAPIKey: envOr("SPEECH_API_KEY", ""),
		SpeechModel:  envOr("SPEECH_MODEL", "voxtral-mini-latest"),

		LLMGatewayURL: envOr("LLM_GATEWAY_URL", ""),
		LLMAPIKey:     envOr("LLM_API_KEY", ""),
		LLMModel:      envOr("LLM_MODEL", "mistral-large-latest"),

		HTTPTimeout: time.Duration(envInt("HTTP_TIMEOUT_SEC", 300)) * time.Second,

		Chunking: Chunking{
			ChunkSeconds:           envFloat("CHUNK_SECONDS", 3600),
			OverlapSeconds:         envFloat("CHUNK_OVERLAP_SECONDS", 5),
			MinDurationForChunking: envFloat("MIN_DURATION_FOR_CHUNKING", 3600),
		},

		SpeedFactor: clampFactor(envFloat("AUDIO_SPEED_FACTOR", 2.0)),

		ConversionProfile: envOr("CONVERSION_PROFILE", "voice"),
	}
}

// clampFactor bounds the speed factor to what a single ffmpeg atempo stage
// accepts.
func clampFactor(f float64) float64 {
	if f < 1.0 {
		return 1.0
	}
	if f > 2.0 {
		return 2.0
	}
	return f
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloat(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func hostnameOr(def string) string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return def
}
