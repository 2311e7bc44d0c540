// Package credits implements the idempotent check-then-charge gate against
// the organization credit ledger. The existence of a usage charge tagged
// with the recording ID is the sole idempotency signal; it is queried on
// every attempt, never cached, so it stays correct even if a previous
// attempt crashed after charging.
package credits

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Ledger is the credit-accounting contract the pipeline consumes.
type Ledger interface {
	HasEnoughCredits(ctx context.Context, userID, orgID string, amount int) (bool, error)
	EffectiveBalance(ctx context.Context, userID, orgID string) (int, error)
	ChargeUsage(ctx context.Context, userID, orgID string, amount int, description, recordingID string) error
	FindUsageCharge(ctx context.Context, recordingID string) (bool, error)
}

// UsageCharge is the ledger entry written by ChargeUsage.
type UsageCharge struct {
	RecordingID string    `json:"recording_id"`
	UserID      string    `json:"user_id"`
	OrgID       string    `json:"org_id"`
	Amount      int       `json:"amount"`
	Description string    `json:"description"`
	Kind        string    `json:"kind"`
	ChargedAt   time.Time `json:"charged_at"`
}

// RedisLedger stores balances and usage charges in Redis.
type RedisLedger struct {
	rdb *redis.Client
}

func NewRedisLedger(rdb *redis.Client) *RedisLedger {
	return &RedisLedger{rdb: rdb}
}

func balanceKey(orgID string) string     { return "credits:org:" + orgID }
func usageKey(recordingID string) string { return "credits:usage:" + recordingID }

// Grant adds credits to an organization's balance.
func (l *RedisLedger) Grant(ctx context.Context, orgID string, amount int) error {
	return l.rdb.IncrBy(ctx, balanceKey(orgID), int64(amount)).Err()
}

func (l *RedisLedger) HasEnoughCredits(ctx context.Context, userID, orgID string, amount int) (bool, error) {
	balance, err := l.EffectiveBalance(ctx, userID, orgID)
	if err != nil {
		return false, err
	}
	return balance >= amount, nil
}

func (l *RedisLedger) EffectiveBalance(ctx context.Context, userID, orgID string) (int, error) {
	balance, err := l.rdb.Get(ctx, balanceKey(orgID)).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read balance for org %s: %w", orgID, err)
	}
	return balance, nil
}

// ChargeUsage deducts amount and records the usage entry keyed by the
// recording ID. Per-job single-flight is guaranteed by the queue, so
// sequential retries are the only concurrent access pattern to guard.
func (l *RedisLedger) ChargeUsage(ctx context.Context, userID, orgID string, amount int, description, recordingID string) error {
	charge := UsageCharge{
		RecordingID: recordingID,
		UserID:      userID,
		OrgID:       orgID,
		Amount:      amount,
		Description: description,
		Kind:        "usage",
		ChargedAt:   time.Now().UTC(),
	}
	data, err := json.Marshal(charge)
	if err != nil {
		return err
	}

	// The usage marker is written NX so a crash between DECRBY and SET on a
	// previous attempt can at worst leave the marker missing, never doubled.
	ok, err := l.rdb.SetNX(ctx, usageKey(recordingID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("record usage charge for %s: %w", recordingID, err)
	}
	if !ok {
		return nil
	}

	if err := l.rdb.DecrBy(ctx, balanceKey(orgID), int64(amount)).Err(); err != nil {
		return fmt.Errorf("deduct %d credits from org %s: %w", amount, orgID, err)
	}
	return nil
}

func (l *RedisLedger) FindUsageCharge(ctx context.Context, recordingID string) (bool, error) {
	n, err := l.rdb.Exists(ctx, usageKey(recordingID)).Result()
	if err != nil {
		return false, fmt.Errorf("look up usage charge for %s: %w", recordingID, err)
	}
	return n > 0, nil
}
