package domain

// RecordingStatus tracks where a recording is in its processing lifecycle.
type RecordingStatus string

const (
	RecordingPending    RecordingStatus = "pending"
	RecordingProcessing RecordingStatus = "processing"
	RecordingCompleted  RecordingStatus = "completed"
	RecordingFailed     RecordingStatus = "failed"
)

// Terminal reports whether the status is a final one.
func (s RecordingStatus) Terminal() bool {
	return s == RecordingCompleted || s == RecordingFailed
}

// Job is one transcription attempt's input. Immutable per attempt except
// AttemptNumber, which the queue runner bumps between attempts.
type Job struct {
	JobID          string `json:"job_id"`
	RecordingID    string `json:"recording_id"`
	UserID         string `json:"user_id"`
	OrganizationID string `json:"organization_id"`
	SourcePath     string `json:"source_path"`
	FileName       string `json:"file_name"`
	Prompt         string `json:"prompt,omitempty"`
	Locale         string `json:"locale,omitempty"`
	AttemptNumber  int    `json:"attempt_number"`
	MaxAttempts    int    `json:"max_attempts"`
}

// JobResult is the output of a successful attempt.
type JobResult struct {
	Transcript string `json:"transcript"`
	Analysis   string `json:"analysis,omitempty"`
}

// Recording is the persistent row owned by the surrounding system. The
// pipeline is its only writer while a job is in flight. CurrentJobID stays
// set exactly while an attempt that may still retry is pending, so observers
// can tell "will retry" from "stopped".
type Recording struct {
	ID           string          `json:"id"`
	Status       RecordingStatus `json:"status"`
	FilePath     string          `json:"file_path"`
	FileSize     int64           `json:"file_size,omitempty"`
	MimeType     string          `json:"mime_type,omitempty"`
	Duration     int             `json:"duration"` // seconds, rounded
	CurrentJobID string          `json:"current_job_id,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
}

// Segment is one timestamped slice of transcript text. Speaker is the
// provider's diarization label and may be empty.
type Segment struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Text    string  `json:"text"`
	Speaker string  `json:"speaker,omitempty"`
}

// ChunkDescriptor points at one bounded slice of a long recording.
// StartTime values strictly increase across an ordered plan and the chunk
// intervals cover the whole recording with no gap.
type ChunkDescriptor struct {
	Index     int     `json:"index"`
	Path      string  `json:"path"`
	StartTime float64 `json:"start_time"`
	Duration  float64 `json:"duration"`
}

// TranscriptRecord is persisted once, on first successful completion.
type TranscriptRecord struct {
	RecordingID string    `json:"recording_id"`
	Text        string    `json:"text"`
	Segments    []Segment `json:"segments"`
	Language    string    `json:"language,omitempty"`
	Analysis    string    `json:"analysis,omitempty"`
}
