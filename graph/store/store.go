// Package store provides durable checkpoint storage for conversation threads.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no checkpoint exists for a thread.
var ErrNotFound = errors.New("not found")

// ErrVersionConflict is returned by Save when the stored checkpoint changed
// after the caller loaded it. The caller should reload and retry the turn.
var ErrVersionConflict = errors.New("checkpoint version conflict")

// ErrClosed is returned by operations on a store after Close.
var ErrClosed = errors.New("store is closed")

// ErrInvalidThreadID is returned when an empty thread ID is used.
var ErrInvalidThreadID = errors.New("thread id must not be empty")

// Checkpoint is the persisted envelope of one conversation thread.
//
// Type parameter S is the state type to persist (must be JSON-serializable).
type Checkpoint[S any] struct {
	// ThreadID is the key of the conversation.
	ThreadID string `json:"thread_id"`

	// Cursor names the node to resume at, or is empty when no task is in flight.
	Cursor string `json:"cursor"`

	// State is the conversation state after the last completed turn.
	State S `json:"state"`

	// Version increases by one on every successful Save. Zero means the
	// checkpoint has never been stored.
	Version int64 `json:"version"`

	// UpdatedAt is the time of the last successful Save.
	UpdatedAt time.Time `json:"updated_at"`
}

// Store persists conversation checkpoints keyed by thread ID.
//
// Store is the only persistence surface the engine uses; implementations
// exist for memory, SQLite, MySQL and Redis.
//
// Writes use optimistic concurrency: Save succeeds only when cp.Version equals
// the currently stored version (0 when nothing is stored). On success the
// stored checkpoint carries Version+1 and is returned. A stale Save fails
// with ErrVersionConflict and changes nothing.
//
// Implementations must offer read-your-writes per thread: a Load issued after
// a successful Save for the same thread observes that Save.
//
// Type parameter S is the state type to persist.
type Store[S any] interface {
	// Load returns the latest checkpoint of threadID.
	// Returns ErrNotFound if the thread has never been saved.
	Load(ctx context.Context, threadID string) (Checkpoint[S], error)

	// Save writes cp if its Version matches the stored one.
	// Returns the stored checkpoint, or ErrVersionConflict.
	Save(ctx context.Context, cp Checkpoint[S]) (Checkpoint[S], error)
}

// Pinger is implemented by stores with a backing service that can be probed
// for health checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ValidateThreadID reports an error for empty thread IDs.
func ValidateThreadID(threadID string) error {
	if threadID == "" {
		return ErrInvalidThreadID
	}
	return nil
}
