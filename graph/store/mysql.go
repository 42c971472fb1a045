package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
)

// mysqlDuplicateEntry is the server error number for a unique key violation.
const mysqlDuplicateEntry = 1062

// MySQLStore is a MySQL/MariaDB implementation of Store[S].
//
// It stores one row per conversation thread in a relational database.
// Designed for:
//   - Production deployments with several server replicas
//   - Conversations that must survive process restarts
//
// MySQLStore uses connection pooling and conditional updates for optimistic
// concurrency.
//
// Schema:
//   - thread_checkpoints: thread_id, node_cursor, state (JSON), version, updated_at
//
// Type parameter S is the state type to persist (must be JSON-serializable).
type MySQLStore[S any] struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewMySQLStore creates a new MySQL-backed store.
//
// The DSN (Data Source Name) format is:
//
//	[username[:password]@][protocol[(address)]]/dbname[?param1=value1&...&paramN=valueN]
//
// Example DSNs:
//
//	user:password@tcp(localhost:3306)/dialoggraph
//	user:password@tcp(127.0.0.1:3306)/dialoggraph?parseTime=true
//
// Security Warning:
//
//	NEVER hardcode credentials in your source code. Use configuration or
//	the DIALOGGRAPH_STORE_DSN environment variable.
//
// The store automatically:
//   - Creates required tables if they don't exist
//   - Configures connection pooling
//
// Example:
//
//	st, err := store.NewMySQLStore[dialogue.State]("user:pass@tcp(localhost:3306)/dialoggraph")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer st.Close()
func NewMySQLStore[S any](dsn string) (*MySQLStore[S], error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	db.SetMaxOpenConns(25)                  // Maximum open connections
	db.SetMaxIdleConns(5)                   // Keep idle connections for reuse
	db.SetConnMaxLifetime(5 * time.Minute)  // Max connection lifetime (prevent stale connections)
	db.SetConnMaxIdleTime(10 * time.Minute) // Max idle time before closing

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	store := &MySQLStore[S]{db: db}

	if err := store.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return store, nil
}

// createTables creates the required database schema if it doesn't exist.
func (m *MySQLStore[S]) createTables(ctx context.Context) error {
	const checkpoints = `
		CREATE TABLE IF NOT EXISTS thread_checkpoints (
			thread_id VARCHAR(255) NOT NULL PRIMARY KEY,
			node_cursor VARCHAR(255) NOT NULL DEFAULT '',
			state JSON NOT NULL,
			version BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci
	`
	if _, err := m.db.ExecContext(ctx, checkpoints); err != nil {
		return fmt.Errorf("failed to create thread_checkpoints table: %w", err)
	}
	return nil
}

// Load returns the checkpoint of threadID or ErrNotFound.
func (m *MySQLStore[S]) Load(ctx context.Context, threadID string) (Checkpoint[S], error) {
	if err := m.checkOpen(); err != nil {
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
		stateJSON []byte
		version   int64
		updatedAt int64
	)
	err := m.db.QueryRowContext(ctx, query, threadID).Scan(&cursor, &stateJSON, &version, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Checkpoint[S]{}, ErrNotFound
	}
	if err != nil {
		return Checkpoint[S]{}, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	var state S
	if err := json.Unmarshal(stateJSON, &state); err != nil {
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
// Version 0 inserts a new row; a duplicate key means another writer created
// the thread first and is reported as ErrVersionConflict.
func (m *MySQLStore[S]) Save(ctx context.Context, cp Checkpoint[S]) (Checkpoint[S], error) {
	if err := m.checkOpen(); err != nil {
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
	if cp.Version == 0 {
		_, err = m.db.ExecContext(ctx, `
			INSERT INTO thread_checkpoints (thread_id, node_cursor, state, version, updated_at)
			VALUES (?, ?, ?, 1, ?)
		`, cp.ThreadID, cp.Cursor, stateJSON, now.UnixNano())
		if err != nil {
			var myErr *mysql.MySQLError
			if errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry {
				return Checkpoint[S]{}, ErrVersionConflict
			}
			return Checkpoint[S]{}, fmt.Errorf("failed to insert checkpoint: %w", err)
		}
	} else {
		res, err := m.db.ExecContext(ctx, `
			UPDATE thread_checkpoints
			SET node_cursor = ?, state = ?, version = version + 1, updated_at = ?
			WHERE thread_id = ? AND version = ?
		`, cp.Cursor, stateJSON, now.UnixNano(), cp.ThreadID, cp.Version)
		if err != nil {
			return Checkpoint[S]{}, fmt.Errorf("failed to update checkpoint: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return Checkpoint[S]{}, fmt.Errorf("failed to read affected rows: %w", err)
		}
		if n == 0 {
			return Checkpoint[S]{}, ErrVersionConflict
		}
	}

	cp.Version++
	cp.UpdatedAt = now
	return cp, nil
}

// Close closes the database connection pool.
//
// After Close, all operations will return ErrClosed.
// Calling Close multiple times is safe (subsequent calls are no-ops).
func (m *MySQLStore[S]) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}

	m.closed = true
	return m.db.Close()
}

// Ping verifies the database connection is alive.
func (m *MySQLStore[S]) Ping(ctx context.Context) error {
	if err := m.checkOpen(); err != nil {
		return err
	}
	return m.db.PingContext(ctx)
}

// Stats returns database connection pool statistics.
func (m *MySQLStore[S]) Stats() sql.DBStats {
	return m.db.Stats()
}

func (m *MySQLStore[S]) checkOpen() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	return nil
}
