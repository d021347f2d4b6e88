package redis

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// DedupTTL is how long generator reservations are retained. Two days covers
// the daily-digest window with slack for clock drift across timezones; match
// alert keys expire well after the event has kicked off.
const DedupTTL = 48 * time.Hour

// DedupGuard suppresses duplicate generator enqueues. A generator reserves a
// logical key (user+day for digests, user+event for match alerts) before
// enqueuing; a second reservation of the same key within the TTL is refused,
// so a tick firing twice near the trigger boundary cannot double-enqueue.
type DedupGuard struct {
	client *Client
	logger *zap.Logger
	ttl    time.Duration
}

// NewDedupGuard creates a dedup guard with the default TTL.
func NewDedupGuard(client *Client, logger *zap.Logger) *DedupGuard {
	return &DedupGuard{
		client: client,
		logger: logger,
		ttl:    DedupTTL,
	}
}

// Reserve attempts to claim a dedup key. Returns true if the key was free
// (caller should proceed), false if it was already reserved.
func (g *DedupGuard) Reserve(ctx context.Context, key string) (bool, error) {
	redisKey := fmt.Sprintf("dedup:%s", key)

	ok, err := g.client.rdb.SetNX(ctx, redisKey, 1, g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx failed: %w", err)
	}

	if !ok {
		g.logger.Debug("duplicate generator enqueue suppressed",
			zap.String("key", key),
		)
	}

	return ok, nil
}

// Release drops a reservation, letting the key be claimed again. Used when
// the enqueue that followed a successful Reserve failed.
func (g *DedupGuard) Release(ctx context.Context, key string) error {
	redisKey := fmt.Sprintf("dedup:%s", key)
	if err := g.client.rdb.Del(ctx, redisKey).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}
