// Package progress maps pipeline stage boundaries onto a monotonic 0-100
// scale visible to external observers. Stages with unknown duration (an
// in-flight provider call) are advanced by an asymptotic ticker that
// approaches, but never reaches, the stage's cap.
package progress

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Sink receives progress reports. Reporting is fire-and-forget: the
// pipeline ignores sink failures.
type Sink interface {
	Report(ctx context.Context, jobID string, percent int) error
}

// RedisSink publishes progress to a per-job key and a pubsub channel.
type RedisSink struct {
	rdb *redis.Client
}

func NewRedisSink(rdb *redis.Client) *RedisSink {
	return &RedisSink{rdb: rdb}
}

func (s *RedisSink) Report(ctx context.Context, jobID string, percent int) error {
	if err := s.rdb.Set(ctx, "progress:"+jobID, percent, 24*time.Hour).Err(); err != nil {
		return err
	}
	return s.rdb.Publish(ctx, "progress:events", fmt.Sprintf("%s:%d", jobID, percent)).Err()
}

// Tracker owns one attempt's progress value. Values only ever move up;
// writes below the current value are dropped, and sink errors are swallowed.
type Tracker struct {
	mu      sync.Mutex
	sink    Sink
	jobID   string
	current int
	log     *logrus.Entry
}

func NewTracker(sink Sink, jobID string, log *logrus.Entry) *Tracker {
	return &Tracker{sink: sink, jobID: jobID, log: log}
}

// Set advances progress to percent. Regressions and out-of-range values
// are clamped; a failed sink write is logged and ignored.
func (t *Tracker) Set(ctx context.Context, percent int) {
	t.mu.Lock()
	if percent > 100 {
		percent = 100
	}
	if percent <= t.current {
		t.mu.Unlock()
		return
	}
	t.current = percent
	t.mu.Unlock()

	if err := t.sink.Report(ctx, t.jobID, percent); err != nil {
		t.log.WithField("error", err.Error()).Debug("progress report dropped")
	}
}

// Current returns the last reported value.
func (t *Tracker) Current() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// StartAsymptotic advances progress toward cap while an operation of
// unknown duration is in flight. Each tick adds a quarter of the remaining
// distance, so the value approaches but never reaches cap. The returned
// stop function must be called the instant the awaited call resolves or
// fails; it is safe to call once from a defer.
func (t *Tracker) StartAsymptotic(ctx context.Context, cap int, tick time.Duration) (stop func()) {
	done := make(chan struct{})
	finished := make(chan struct{})

	go func() {
		defer close(finished)
		ticker := time.NewTicker(tick)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.mu.Lock()
				step := (cap - t.current) / 4
				next := t.current + step
				t.mu.Unlock()
				if step < 1 {
					continue
				}
				t.Set(ctx, next)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			<-finished
		})
	}
}
