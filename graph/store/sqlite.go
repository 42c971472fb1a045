package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a SQLite implementation of Store[S].
//
// It stores one row per conversation thread in a single-file database.
// Designed for:
//   - Development and testing with zero setup
//   - Single-process deployments that must survive restarts
//
// SQLiteStore uses WAL mode for concurrent reads and conditional writes for
// optimistic concurrency.
//
// Schema:
//   - thread_checkpoints: thread_id, node_cursor, state (JSON), version, updated_at
//
// Type parameter S is the state type to persist (must be JSON-serializable).
type SQLiteStore[S any] struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
	path   string
}

// NewSQLiteStore creates a new SQLite-backed store.
//
// The path parameter specifies the database file location:
//   - "./dialoggraph.db" - file in current directory
//   - "/var/lib/dialoggraph/threads.db" - absolute path
//   - ":memory:" - in-memory database (data lost on close)
//
// The store automatically:
//   - Creates the database file if it doesn't exist
//   - Creates required tables
//   - Enables WAL mode for concurrent reads
//   - Configures a busy timeout
//
// Example:
//
//	st, err := store.NewSQLiteStore[dialogue.State]("./dialoggraph.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer st.Close()
func NewSQLiteStore[S any](path string) (*SQLiteStore[S], error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite connection: %w", err)
	}

	db.SetMaxOpenConns(1)    // SQLite supports one writer at a time
	db.SetMaxIdleConns(1)    // Keep connection open
	db.SetConnMaxLifetime(0) // No max lifetime for SQLite

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	store := &SQLiteStore[S]{
		db:   db,
		path: path,
	}

	if err := store.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return store, nil
}

// createTables creates the required database schema if it doesn't exist.
func (s *SQLiteStore[S]) createTables(ctx context.Context) error {
	const checkpoints = `
		CREATE TABLE IF NOT EXISTS thread_checkpoints (
			thread_id TEXT PRIMARY KEY,
			node_cursor TEXT NOT NULL DEFAULT '',
			state TEXT NOT NULL,
			version INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)
	`
	if _, err := s.db.ExecContext(ctx, checkpoints); err != nil {
		return fmt.Errorf("failed to create thread_checkpoints table: %w", err)
	}
	return nil
}

// Load returns the checkpoint of threadID or ErrNotFound.
func (s *SQLiteStore[S]) Load(ctx context.Context, threadID string) (Checkpoint[S], error) {
	if err := s.checkOpen(); err != nil {
		return Checkpoint[S]{}, err
	}
	if err := ValidateThreadID(threadID); err != nil {
		return Checkpoint[S]{}, err
	}

	const query = `
		SELECT node_cursor, state, version, updated_at
		FROM thread_checkpoints
		WHERE thread_id = ?
	`

	var (
		cursor    string
		stateJSON string
		version   int64
		updatedAt int64
	)
	err := s.db.QueryRowContext(ctx, query, threadID).Scan(&cursor, &stateJSON, &version, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Checkpoint[S]{}, ErrNotFound
	}
	if err != nil {
		return Checkpoint[S]{}, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	var state S
	if err := json.Unmarshal([]byte(stateJSON), &state); err != nil {
		return Checkpoint[S]{}, fmt.Errorf("failed to unmarshal state: %w", err)
	}

	return Checkpoint[S]{
		ThreadID:  threadID,
		Cursor:    cursor,
		State:     state,
		Version:   version,
		UpdatedAt: time.Unix(0, updatedAt).UTC(),
	}, nil
}

// Save stores cp if its version matches the stored row.
//
// Version 0 inserts a new row and conflicts if one already exists; any other
// version updates the row only where the stored version is unchanged.
func (s *SQLiteStore[S]) Save(ctx context.Context, cp Checkpoint[S]) (Checkpoint[S], error) {
	if err := s.checkOpen(); err != nil {
		return Checkpoint[S]{}, err
	}
	if err := ValidateThreadID(cp.ThreadID); err != nil {
		return Checkpoint[S]{}, err
	}

	stateJSON, err := json.Marshal(cp.State)
	if err != nil {
		return Checkpoint[S]{}, fmt.Errorf("failed to marshal state: %w", err)
	}

	now := time.Now().UTC()
	var res sql.Result
	if cp.Version == 0 {
		res, err = s.db.ExecContext(ctx, `
			INSERT INTO thread_checkpoints (thread_id, node_cursor, state, version, updated_at)
			VALUES (?, ?, ?, 1, ?)
			ON CONFLICT(thread_id) DO NOTHING
		`, cp.ThreadID, cp.Cursor, string(stateJSON), now.UnixNano())
	} else {
		res, err = s.db.ExecContext(ctx, `
			UPDATE thread_checkpoints
			SET node_cursor = ?, state = ?, version = version + 1, updated_at = ?
			WHERE thread_id = ? AND version = ?
		`, cp.Cursor, string(stateJSON), now.UnixNano(), cp.ThreadID, cp.Version)
	}
	if err != nil {
		return Checkpoint[S]{}, fmt.Errorf("failed to save checkpoint: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return Checkpoint[S]{}, fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return Checkpoint[S]{}, ErrVersionConflict
	}

	cp.Version++
	cp.UpdatedAt = now
	return cp, nil
}

// Close closes the database connection.
//
// After Close, all operations will return ErrClosed.
// Calling Close multiple times is safe (subsequent calls are no-ops).
func (s *SQLiteStore[S]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	return s.db.Close()
}

// Ping verifies the database connection is alive.
func (s *SQLiteStore[S]) Ping(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.db.PingContext(ctx)
}

// Path returns the database file path.
func (s *SQLiteStore[S]) Path() string {
	return s.path
}

func (s *SQLiteStore[S]) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}
