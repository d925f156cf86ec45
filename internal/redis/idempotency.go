package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// IdempotencyTTL is how long a completed request's result is
	// replayable under the same Idempotency-Key.
	IdempotencyTTL = 24 * time.Hour

	// pendingTTL bounds how long a key stays reserved if the request
	// that claimed it dies before storing a result.
	pendingTTL = 5 * time.Minute

	idempotencyPrefix = "courier:idem:"
	pendingMarker     = "pending"
)

// ErrDuplicateRequest means the key is reserved by an in-flight
// request that has not finished yet.
var ErrDuplicateRequest = errors.New("duplicate request: idempotency key already exists")

// IdempotencyResult is the replayable outcome of an accepted send.
type IdempotencyResult struct {
	NotificationID string `json:"notification_id"`
	StatusCode     int    `json:"status_code"`
	CreatedAt      int64  `json:"created_at"`
}

// IdempotencyService lets clients retry a send request without
// producing duplicate notifications. The first request under a key
// reserves it; retries while it runs get ErrDuplicateRequest, and
// retries after it finishes get the original response replayed.
type IdempotencyService struct {
	client *Client
	logger *zap.Logger
}

// NewIdempotencyService builds the service on the shared Redis client.
func NewIdempotencyService(client *Client, logger *zap.Logger) *IdempotencyService {
	return &IdempotencyService{
		client: client,
		logger: logger,
	}
}

// Check looks up a key. It returns the stored result when the request
// already completed, nil when the key is unknown, and
// ErrDuplicateRequest when the key is still reserved.
func (s *IdempotencyService) Check(ctx context.Context, idempotencyKey string) (*IdempotencyResult, error) {
	raw, err := s.client.rdb.Get(ctx, idempotencyPrefix+idempotencyKey).Result()
	switch {
	case err == redis.Nil:
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("idempotency lookup: %w", err)
	case raw == pendingMarker:
		return nil, ErrDuplicateRequest
	}

	var result IdempotencyResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		s.logger.Error("corrupt idempotency entry",
			zap.String("idempotency_key", idempotencyKey),
			zap.Error(err),
		)
		return nil, fmt.Errorf("decode cached result: %w", err)
	}

	s.logger.Debug("replaying idempotent request",
		zap.String("notification_id", result.NotificationID),
	)
	return &result, nil
}

// Reserve claims a key with SET NX. It returns false when another
// request holds the key.
func (s *IdempotencyService) Reserve(ctx context.Context, idempotencyKey string) (bool, error) {
	ok, err := s.client.rdb.SetNX(ctx, idempotencyPrefix+idempotencyKey, pendingMarker, pendingTTL).Result()
	if err != nil {
		return false, fmt.Errorf("idempotency reserve: %w", err)
	}
	return ok, nil
}

// Store overwrites the key's reservation with the finished result,
// extending the TTL to the full replay window.
func (s *IdempotencyService) Store(ctx context.Context, idempotencyKey string, result *IdempotencyResult) error {
	if result.CreatedAt == 0 {
		result.CreatedAt = time.Now().Unix()
	}

	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	if err := s.client.rdb.Set(ctx, idempotencyPrefix+idempotencyKey, data, IdempotencyTTL).Err(); err != nil {
		return fmt.Errorf("idempotency store: %w", err)
	}
	return nil
}

// CheckOrReserve is the handler entrypoint: replay a finished result,
// reject an in-flight duplicate, or reserve the key and return nil so
// the caller proceeds with the send.
func (s *IdempotencyService) CheckOrReserve(ctx context.Context, idempotencyKey string) (*IdempotencyResult, error) {
	result, err := s.Check(ctx, idempotencyKey)
	if err != nil || result != nil {
		return result, err
	}

	reserved, err := s.Reserve(ctx, idempotencyKey)
	if err != nil {
		return nil, err
	}
	if !reserved {
		return nil, ErrDuplicateRequest
	}
	return nil, nil
}
