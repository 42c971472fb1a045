package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// MemStore is an in-memory implementation of Store[S].
//
// Checkpoints are kept as JSON so that callers never share memory with the
// stored copy, which mirrors the isolation of the database-backed stores.
// Designed for tests, the interactive CLI and single-process deployments
// that can afford to lose conversations on restart.
//
// Thread-safe for concurrent use.
type MemStore[S any] struct {
	mu      sync.RWMutex
	threads map[string]memRecord
	now     func() time.Time
}

type memRecord struct {
	cursor    string
	state     []byte
	version   int64
	updatedAt time.Time
}

// NewMemStore creates an empty in-memory store.
func NewMemStore[S any]() *MemStore[S] {
	return &MemStore[S]{
		threads: make(map[string]memRecord),
		now:     time.Now,
	}
}

// Load returns the checkpoint of threadID or ErrNotFound.
func (m *MemStore[S]) Load(_ context.Context, threadID string) (Checkpoint[S], error) {
	if err := ValidateThreadID(threadID); err != nil {
		return Checkpoint[S]{}, err
	}

	m.mu.RLock()
	rec, ok := m.threads[threadID]
	m.mu.RUnlock()
	if !ok {
		return Checkpoint[S]{}, ErrNotFound
	}

	var state S
	if err := json.Unmarshal(rec.state, &state); err != nil {
		return Checkpoint[S]{}, fmt.Errorf("failed to unmarshal state: %w", err)
	}

	return Checkpoint[S]{
		ThreadID:  threadID,
		Cursor:    rec.cursor,
		State:     state,
		Version:   rec.version,
		UpdatedAt: rec.updatedAt,
	}, nil
}

// Save stores cp if its version matches.
func (m *MemStore[S]) Save(_ context.Context, cp Checkpoint[S]) (Checkpoint[S], error) {
	if err := ValidateThreadID(cp.ThreadID); err != nil {
		return Checkpoint[S]{}, err
	}

	data, err := json.Marshal(cp.State)
	if err != nil {
		return Checkpoint[S]{}, fmt.Errorf("failed to marshal state: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.threads[cp.ThreadID].version != cp.Version {
		return Checkpoint[S]{}, ErrVersionConflict
	}

	cp.Version++
	cp.UpdatedAt = m.now().UTC()
	m.threads[cp.ThreadID] = memRecord{
		cursor:    cp.Cursor,
		state:     data,
		version:   cp.Version,
		updatedAt: cp.UpdatedAt,
	}
	return cp, nil
}

// Len returns the number of stored threads.
func (m *MemStore[S]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.threads)
}
