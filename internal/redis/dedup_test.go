package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func setupTestRedis(t *testing.T) (*Client, *miniredis.Miniredis, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	client := &Client{rdb: rdb, logger: zap.NewNop()}

	return client, mr, func() {
		rdb.Close()
		mr.Close()
	}
}

func TestDedupGuard_FirstReservationSucceeds(t *testing.T) {
	client, _, cleanup := setupTestRedis(t)
	defer cleanup()

	guard := NewDedupGuard(client, zap.NewNop())
	ctx := context.Background()

	ok, err := guard.Reserve(ctx, "digest:user-1:2026-08-30")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("first reservation should succeed")
	}
}

func TestDedupGuard_SecondReservationRefused(t *testing.T) {
	client, _, cleanup := setupTestRedis(t)
	defer cleanup()

	guard := NewDedupGuard(client, zap.NewNop())
	ctx := context.Background()

	if _, err := guard.Reserve(ctx, "digest:user-1:2026-08-30"); err != nil {
		t.Fatalf("first reservation failed: %v", err)
	}

	ok, err := guard.Reserve(ctx, "digest:user-1:2026-08-30")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("second reservation of the same key should be refused")
	}
}

func TestDedupGuard_DistinctKeysIndependent(t *testing.T) {
	client, _, cleanup := setupTestRedis(t)
	defer cleanup()

	guard := NewDedupGuard(client, zap.NewNop())
	ctx := context.Background()

	_, _ = guard.Reserve(ctx, "digest:user-1:2026-08-30")

	ok, _ := guard.Reserve(ctx, "digest:user-2:2026-08-30")
	if !ok {
		t.Error("different user should reserve independently")
	}
	ok, _ = guard.Reserve(ctx, "digest:user-1:2026-08-31")
	if !ok {
		t.Error("different day should reserve independently")
	}
}

func TestDedupGuard_ReservationExpires(t *testing.T) {
	client, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	guard := NewDedupGuard(client, zap.NewNop())
	ctx := context.Background()

	_, _ = guard.Reserve(ctx, "digest:user-1:2026-08-30")

	mr.FastForward(DedupTTL + 1)

	ok, err := guard.Reserve(ctx, "digest:user-1:2026-08-30")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Error("reservation should be claimable after TTL expiry")
	}
}

func TestDedupGuard_Release(t *testing.T) {
	client, _, cleanup := setupTestRedis(t)
	defer cleanup()

	guard := NewDedupGuard(client, zap.NewNop())
	ctx := context.Background()

	_, _ = guard.Reserve(ctx, "alert:user-1:match-42")
	if err := guard.Release(ctx, "alert:user-1:match-42"); err != nil {
		t.Fatalf("release failed: %v", err)
	}

	ok, _ := guard.Reserve(ctx, "alert:user-1:match-42")
	if !ok {
		t.Error("released key should be claimable again")
	}
}
