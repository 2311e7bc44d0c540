package queue

import (
	"context"
	"time"

	"audioscribe-go/internal/domain"
	"audioscribe-go/internal/logger"
	"audioscribe-go/internal/pipeline"
)

// Handler processes one claimed job attempt.
type Handler interface {
	Process(ctx context.Context, job domain.Job) (domain.JobResult, error)
}

// Runner is the worker loop: fetch, process, ack, and reschedule retryable
// failures as new sequential attempts.
type Runner struct {
	source      *RedisSource
	handler     Handler
	maxAttempts int
	log         *logger.Logger
}

func NewRunner(source *RedisSource, handler Handler, maxAttempts int, log *logger.Logger) *Runner {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Runner{
		source:      source,
		handler:     handler,
		maxAttempts: maxAttempts,
		log:         log,
	}
}

// Run blocks until ctx is cancelled. Source errors back off exponentially
// up to 30s instead of hot-looping.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.source.EnsureGroup(ctx); err != nil {
		return err
	}

	r.log.Info("worker started, listening for jobs")

	retryDelay := time.Second
	const maxDelay = 30 * time.Second

	for {
		if ctx.Err() != nil {
			r.log.Info("worker shutdown complete")
			return nil
		}

		msg, err := r.source.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				r.log.Info("worker shutdown complete")
				return nil
			}
			r.log.WithError(err).Warn("fetching job failed, backing off")
			select {
			case <-time.After(retryDelay):
			case <-ctx.Done():
			}
			retryDelay *= 2
			if retryDelay > maxDelay {
				retryDelay = maxDelay
			}
			continue
		}
		retryDelay = time.Second

		if msg == nil {
			continue
		}
		r.handle(ctx, msg)
	}
}

func (r *Runner) handle(ctx context.Context, msg *Message) {
	job := msg.Job
	if job.AttemptNumber == 0 {
		job.AttemptNumber = 1
	}
	if job.MaxAttempts == 0 {
		job.MaxAttempts = r.maxAttempts
	}

	log := r.log.WithJob(job.JobID, job.RecordingID, job.AttemptNumber)
	start := time.Now()

	result, err := r.handler.Process(ctx, job)

	switch {
	case err == nil:
		log.WithField("duration_ms", time.Since(start).Milliseconds()).
			WithField("transcript_len", len(result.Transcript)).
			Info("job completed")

	case pipeline.IsTerminal(err):
		log.WithError(err).Error("job failed terminally, not rescheduling")

	case job.AttemptNumber >= job.MaxAttempts:
		log.WithError(err).Error("attempt budget exhausted, dropping job")

	default:
		retry := job
		retry.AttemptNumber++
		if _, qerr := r.source.Enqueue(ctx, retry); qerr != nil {
			log.WithError(qerr).Error("failed to reschedule job")
		} else {
			log.WithError(err).WithField("next_attempt", retry.AttemptNumber).
				Warn("attempt failed, rescheduled")
		}
	}

	if err := r.source.Ack(ctx, msg.ID); err != nil {
		log.WithError(err).Warn("ack failed")
	}
}
