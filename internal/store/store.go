// Package store persists Recording rows and finished transcripts in Redis,
// the same place the job queue lives.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"audioscribe-go/internal/domain"
)

// ErrNotFound is returned when a recording or transcript does not exist.
var ErrNotFound = errors.New("not found")

// RecordingStore reads and writes the Recording row the pipeline owns
// during processing.
type RecordingStore interface {
	Get(ctx context.Context, id string) (domain.Recording, error)
	Save(ctx context.Context, rec domain.Recording) error
}

// TranscriptStore persists the final transcript. Create writes at most
// once per recording; a second call reports created=false.
type TranscriptStore interface {
	Create(ctx context.Context, t domain.TranscriptRecord) (created bool, err error)
	Get(ctx context.Context, recordingID string) (domain.TranscriptRecord, error)
}

func recordingKey(id string) string           { return "recording:" + id }
func transcriptKey(recordingID string) string { return "transcript:" + recordingID }

// RedisRecordings stores each recording as a hash.
type RedisRecordings struct {
	rdb *redis.Client
}

func NewRedisRecordings(rdb *redis.Client) *RedisRecordings {
	return &RedisRecordings{rdb: rdb}
}

func (s *RedisRecordings) Get(ctx context.Context, id string) (domain.Recording, error) {
	fields, err := s.rdb.HGetAll(ctx, recordingKey(id)).Result()
	if err != nil {
		return domain.Recording{}, fmt.Errorf("load recording %s: %w", id, err)
	}
	if len(fields) == 0 {
		return domain.Recording{}, fmt.Errorf("recording %s: %w", id, ErrNotFound)
	}

	duration, _ := strconv.Atoi(fields["duration"])
	size, _ := strconv.ParseInt(fields["file_size"], 10, 64)

	return domain.Recording{
		ID:           id,
		Status:       domain.RecordingStatus(fields["status"]),
		FilePath:     fields["file_path"],
		FileSize:     size,
		MimeType:     fields["mime_type"],
		Duration:     duration,
		CurrentJobID: fields["current_job_id"],
		ErrorMessage: fields["error_message"],
	}, nil
}

func (s *RedisRecordings) Save(ctx context.Context, rec domain.Recording) error {
	err := s.rdb.HSet(ctx, recordingKey(rec.ID), map[string]interface{}{
		"status":         string(rec.Status),
		"file_path":      rec.FilePath,
		"file_size":      rec.FileSize,
		"mime_type":      rec.MimeType,
		"duration":       rec.Duration,
		"current_job_id": rec.CurrentJobID,
		"error_message":  rec.ErrorMessage,
	}).Err()
	if err != nil {
		return fmt.Errorf("save recording %s: %w", rec.ID, err)
	}
	return nil
}

// RedisTranscripts stores each transcript as a JSON value written NX, so a
// transcript is created exactly once per recording.
type RedisTranscripts struct {
	rdb *redis.Client
}

func NewRedisTranscripts(rdb *redis.Client) *RedisTranscripts {
	return &RedisTranscripts{rdb: rdb}
}

func (s *RedisTranscripts) Create(ctx context.Context, t domain.TranscriptRecord) (bool, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return false, err
	}

	created, err := s.rdb.SetNX(ctx, transcriptKey(t.RecordingID), data, 0).Result()
	if err != nil {
		return false, fmt.Errorf("persist transcript for %s: %w", t.RecordingID, err)
	}
	return created, nil
}

func (s *RedisTranscripts) Get(ctx context.Context, recordingID string) (domain.TranscriptRecord, error) {
	data, err := s.rdb.Get(ctx, transcriptKey(recordingID)).Bytes()
	if err == redis.Nil {
		return domain.TranscriptRecord{}, fmt.Errorf("transcript for %s: %w", recordingID, ErrNotFound)
	}
	if err != nil {
		return domain.TranscriptRecord{}, fmt.Errorf("load transcript for %s: %w", recordingID, err)
	}

	var t domain.TranscriptRecord
	if err := json.Unmarshal(data, &t); err != nil {
		return domain.TranscriptRecord{}, fmt.Errorf("decode transcript for %s: %w", recordingID, err)
	}
	return t, nil
}
