package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a Redis implementation of Store[S].
//
// Each thread is one JSON document under "<prefix>:thread:<id>". Saves run
// inside WATCH/MULTI so that a concurrent writer turns the second Save into
// ErrVersionConflict instead of a lost update. Keys expire after the
// configured TTL of inactivity.
//
// Type parameter S is the state type to persist (must be JSON-serializable).
type RedisStore[S any] struct {
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
}

// RedisOption configures a RedisStore.
type RedisOption func(*redisConfig)

type redisConfig struct {
	ttl    time.Duration
	prefix string
}

// WithTTL sets the time-to-live of idle threads. Zero disables expiry.
// Default is 7 days.
func WithTTL(ttl time.Duration) RedisOption {
	return func(c *redisConfig) {
		c.ttl = ttl
	}
}

// WithPrefix sets the key prefix. Default is "dialoggraph".
func WithPrefix(prefix string) RedisOption {
	return func(c *redisConfig) {
		c.prefix = prefix
	}
}

// NewRedisStore creates a Redis-backed store on top of client.
//
// Example:
//
//	st := store.NewRedisStore[dialogue.State](
//	    redis.NewClient(&redis.Options{Addr: "localhost:6379"}),
//	    store.WithTTL(72*time.Hour),
//	)
func NewRedisStore[S any](client redis.UniversalClient, opts ...RedisOption) *RedisStore[S] {
	cfg := redisConfig{
		ttl:    7 * 24 * time.Hour,
		prefix: "dialoggraph",
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &RedisStore[S]{
		client: client,
		ttl:    cfg.ttl,
		prefix: cfg.prefix,
	}
}

type redisRecord struct {
	Cursor    string          `json:"cursor"`
	State     json.RawMessage `json:"state"`
	Version   int64           `json:"version"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Load returns the checkpoint of threadID or ErrNotFound.
func (s *RedisStore[S]) Load(ctx context.Context, threadID string) (Checkpoint[S], error) {
	if err := ValidateThreadID(threadID); err != nil {
		return Checkpoint[S]{}, err
	}

	data, err := s.client.Get(ctx, s.key(threadID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Checkpoint[S]{}, ErrNotFound
	}
	if err != nil {
		return Checkpoint[S]{}, fmt.Errorf("redis get failed: %w", err)
	}

	var rec redisRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return Checkpoint[S]{}, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	var state S
	if err := json.Unmarshal(rec.State, &state); err != nil {
		return Checkpoint[S]{}, fmt.Errorf("failed to unmarshal state: %w", err)
	}

	return Checkpoint[S]{
		ThreadID:  threadID,
		Cursor:    rec.Cursor,
		State:     state,
		Version:   rec.Version,
		UpdatedAt: rec.UpdatedAt,
	}, nil
}

// Save stores cp if its version matches the stored document.
func (s *RedisStore[S]) Save(ctx context.Context, cp Checkpoint[S]) (Checkpoint[S], error) {
	if err := ValidateThreadID(cp.ThreadID); err != nil {
		return Checkpoint[S]{}, err
	}

	stateJSON, err := json.Marshal(cp.State)
	if err != nil {
		return Checkpoint[S]{}, fmt.Errorf("failed to marshal state: %w", err)
	}

	saved := cp
	saved.Version = cp.Version + 1
	saved.UpdatedAt = time.Now().UTC()

	payload, err := json.Marshal(redisRecord{
		Cursor:    saved.Cursor,
		State:     stateJSON,
		Version:   saved.Version,
		UpdatedAt: saved.UpdatedAt,
	})
	if err != nil {
		return Checkpoint[S]{}, fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	key := s.key(cp.ThreadID)
	txf := func(tx *redis.Tx) error {
		var current int64
		raw, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return fmt.Errorf("redis get failed: %w", err)
		default:
			var rec redisRecord
			if err := json.Unmarshal(raw, &rec); err != nil {
				return fmt.Errorf("failed to unmarshal checkpoint: %w", err)
			}
			current = rec.Version
		}
		if current != cp.Version {
			return ErrVersionConflict
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, s.ttl)
			return nil
		})
		return err
	}

	err = s.client.Watch(ctx, txf, key)
	if errors.Is(err, redis.TxFailedErr) {
		return Checkpoint[S]{}, ErrVersionConflict
	}
	if err != nil {
		return Checkpoint[S]{}, err
	}
	return saved, nil
}

// Ping verifies the Redis connection is alive.
func (s *RedisStore[S]) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore[S]) key(threadID string) string {
	return s.prefix + ":thread:" + threadID
}
