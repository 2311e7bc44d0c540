// Package queue is the Redis Streams job runner that drives pipeline
// attempts: at most one execution per job at a time, bounded sequential
// retries, terminal failures never rescheduled.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"audioscribe-go/internal/domain"
)

// Message is one claimed queue entry.
type Message struct {
	ID  string
	Job domain.Job
}

// RedisSource consumes transcription jobs from a Redis Stream through a
// consumer group.
type RedisSource struct {
	rdb      *redis.Client
	stream   string
	group    string
	consumer string
	block    time.Duration
}

func NewRedisSource(rdb *redis.Client, stream, group, consumer string) *RedisSource {
	return &RedisSource{
		rdb:      rdb,
		stream:   stream,
		group:    group,
		consumer: consumer,
		block:    5 * time.Second,
	}
}

// EnsureGroup creates the consumer group (and stream) if missing.
func (s *RedisSource) EnsureGroup(ctx context.Context) error {
	err := s.rdb.XGroupCreateMkStream(ctx, s.stream, s.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group: %w", err)
	}
	return nil
}

// Enqueue appends a job to the stream. A missing JobID gets a generated one.
func (s *RedisSource) Enqueue(ctx context.Context, job domain.Job) (string, error) {
	if job.JobID == "" {
		job.JobID = uuid.NewString()
	}
	data, err := json.Marshal(job)
	if err != nil {
		return "", err
	}

	id, err := s.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]interface{}{"job": string(data)},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("enqueue job %s: %w", job.JobID, err)
	}
	return id, nil
}

// Next blocks for up to the block timeout and returns the next claimed
// message, or nil when none arrived.
func (s *RedisSource) Next(ctx context.Context) (*Message, error) {
	streams, err := s.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    s.group,
		Consumer: s.consumer,
		Streams:  []string{s.stream, ">"},
		Count:    1,
		Block:    s.block,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read job stream: %w", err)
	}

	for _, stream := range streams {
		for _, msg := range stream.Messages {
			raw, _ := msg.Values["job"].(string)

			var job domain.Job
			if err := json.Unmarshal([]byte(raw), &job); err != nil {
				// Poison entry: ack it away so it cannot wedge the stream.
				_ = s.Ack(ctx, msg.ID)
				return nil, fmt.Errorf("decode job %s: %w", msg.ID, err)
			}
			return &Message{ID: msg.ID, Job: job}, nil
		}
	}
	return nil, nil
}

// Ack removes a claimed message from the pending list.
func (s *RedisSource) Ack(ctx context.Context, id string) error {
	return s.rdb.XAck(ctx, s.stream, s.group, id).Err()
}
