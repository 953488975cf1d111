package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const dedupTTL = time.Hour

// DedupChecker makes report ingestion idempotent. A report is claimed with
// SET NX before it is stored, so two workers racing on a redelivered report
// cannot both store it.
//
// Key format: dedup:<entity_id>:<observed_at_unix_nano>
type DedupChecker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewDedupChecker creates a DedupChecker wrapping the given Redis client.
func NewDedupChecker(client *redis.Client) *DedupChecker {
	return &DedupChecker{client: client, ttl: dedupTTL}
}

// Claim reports whether the caller is the first to see this report.
func (d *DedupChecker) Claim(ctx context.Context, entityID string, observedAt time.Time) (bool, error) {
	ok, err := d.client.SetNX(ctx, d.key(entityID, observedAt), 1, d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup claim %s: %w", entityID, err)
	}
	return ok, nil
}

// Release drops a claim whose report could not be stored, so a retry is processed.
func (d *DedupChecker) Release(ctx context.Context, entityID string, observedAt time.Time) error {
	if err := d.client.Del(ctx, d.key(entityID, observedAt)).Err(); err != nil {
		return fmt.Errorf("dedup release %s: %w", entityID, err)
	}
	return nil
}

func (d *DedupChecker) key(entityID string, observedAt time.Time) string {
	return fmt.Sprintf("dedup:%s:%d", entityID, observedAt.UnixNano())
}
