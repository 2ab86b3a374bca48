// Package dispatch validates, deduplicates, authorizes and applies batches
// of itinerary actions, returning one outcome per action.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Thepalm86/trip-sub001/internal/config"
)

const requestKeyPrefix = "dispatch:req:"

// IdempotencyStore remembers request ids across dispatch calls so that a
// redelivered model output is not applied twice.
type IdempotencyStore interface {
	// FirstUse records the request id and reports whether this is its first
	// use within the retention window. Store errors degrade open: a broken
	// store yields first-use, trading strict dedup for availability.
	FirstUse(ctx context.Context, requestID string) bool

	// Close closes the store connection.
	Close() error
}

// RedisIdempotencyStore implements IdempotencyStore using Redis SETNX.
type RedisIdempotencyStore struct {
	client *redis.Client
	logger *zap.Logger
	ttl    time.Duration
}

// NewRedisIdempotencyStore creates a Redis-backed idempotency store.
func NewRedisIdempotencyStore(cfg *config.Config, logger *zap.Logger) (IdempotencyStore, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Connected to Redis idempotency store")

	return &RedisIdempotencyStore{
		client: client,
		logger: logger,
		ttl:    time.Duration(cfg.DedupTTLSeconds) * time.Second,
	}, nil
}

// FirstUse records the request id and reports whether it was unseen.
func (s *RedisIdempotencyStore) FirstUse(ctx context.Context, requestID string) bool {
	key := requestKeyPrefix + requestID

	first, err := s.client.SetNX(ctx, key, 1, s.ttl).Result()
	if err != nil {
		s.logger.Warn("Idempotency store unavailable, treating request as new",
			zap.String("key", key), zap.Error(err))
		return true
	}
	if !first {
		s.logger.Debug("Duplicate request id", zap.String("key", key))
	}
	return first
}

// Close closes the Redis connection.
func (s *RedisIdempotencyStore) Close() error {
	s.logger.Info("Closing Redis connection")
	return s.client.Close()
}

// NoopIdempotencyStore never remembers anything. Used when no Redis is
// configured; in-batch dedup still applies.
type NoopIdempotencyStore struct{}

// FirstUse always reports first use.
func (NoopIdempotencyStore) FirstUse(context.Context, string) bool { return true }

// Close is a no-op.
func (NoopIdempotencyStore) Close() error { return nil }
