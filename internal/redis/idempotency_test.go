package redis

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func setupTestRedis(t *testing.T) (*Client, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	client := &Client{rdb: rdb, logger: zap.NewNop()}

	return client, func() {
		rdb.Close()
		mr.Close()
	}
}

func TestIdempotency_FirstRequestReservesKey(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	svc := NewIdempotencyService(client, zap.NewNop())

	result, err := svc.CheckOrReserve(context.Background(), "order-42-confirm")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != nil {
		t.Fatalf("new key should reserve, not replay: %+v", result)
	}
}

func TestIdempotency_InFlightDuplicateRejected(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	svc := NewIdempotencyService(client, zap.NewNop())
	ctx := context.Background()

	if _, err := svc.CheckOrReserve(ctx, "order-42-confirm"); err != nil {
		t.Fatalf("first request: %v", err)
	}

	// The first request has not stored a result yet, so a retry must
	// be rejected rather than replayed or re-sent.
	if _, err := svc.CheckOrReserve(ctx, "order-42-confirm"); !errors.Is(err, ErrDuplicateRequest) {
		t.Fatalf("expected ErrDuplicateRequest, got: %v", err)
	}
}

func TestIdempotency_CompletedRequestReplays(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	svc := NewIdempotencyService(client, zap.NewNop())
	ctx := context.Background()

	if _, err := svc.CheckOrReserve(ctx, "order-42-confirm"); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := svc.Store(ctx, "order-42-confirm", &IdempotencyResult{
		NotificationID: "7d1c2a52-0000-0000-0000-000000000001",
		StatusCode:     201,
	}); err != nil {
		t.Fatalf("store: %v", err)
	}

	replay, err := svc.CheckOrReserve(ctx, "order-42-confirm")
	if err != nil {
		t.Fatalf("retry after completion: %v", err)
	}
	if replay == nil {
		t.Fatal("expected the stored result to replay")
	}
	if replay.NotificationID != "7d1c2a52-0000-0000-0000-000000000001" {
		t.Errorf("notification id = %s", replay.NotificationID)
	}
	if replay.StatusCode != 201 {
		t.Errorf("status code = %d, want 201", replay.StatusCode)
	}
	if replay.CreatedAt == 0 {
		t.Error("CreatedAt should be stamped on store")
	}
}

func TestIdempotency_ReserveIsExclusive(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	svc := NewIdempotencyService(client, zap.NewNop())
	ctx := context.Background()

	if ok, err := svc.Reserve(ctx, "k"); err != nil || !ok {
		t.Fatalf("first reserve: ok=%v err=%v", ok, err)
	}
	if ok, err := svc.Reserve(ctx, "k"); err != nil || ok {
		t.Fatalf("second reserve should lose: ok=%v err=%v", ok, err)
	}
}

func TestIdempotency_KeysDoNotCollide(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	svc := NewIdempotencyService(client, zap.NewNop())
	ctx := context.Background()

	if _, err := svc.CheckOrReserve(ctx, "order-42-confirm"); err != nil {
		t.Fatalf("first key: %v", err)
	}

	result, err := svc.CheckOrReserve(ctx, "order-43-confirm")
	if err != nil {
		t.Fatalf("distinct key should reserve cleanly: %v", err)
	}
	if result != nil {
		t.Fatal("distinct key should not replay anything")
	}
}
