package local

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/labstack/gommon/log"
	_ "github.com/mattn/go-sqlite3"
	storagetypes "github.com/nckslvrmn/drop/internal/storage/types"
)

// SQLiteStore keeps records as JSON text next to their deadline in epoch
// milliseconds. Expired rows are hidden from reads and removed by Purge.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteStore(dataDir string) (*SQLiteStore, error) {
	dbPath := filepath.Join(dataDir, "records.db")

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &SQLiteStore{db: db, now: time.Now}

	if err := store.createTable(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	log.Infof("SQLite store initialized at %s", dbPath)
	return store, nil
}

func (s *SQLiteStore) createTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS records (
		record_id TEXT PRIMARY KEY,
		data TEXT NOT NULL,
		deadline_ms INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_deadline_ms ON records(deadline_ms);
	`

	_, err := s.db.Exec(query)
	return err
}

func (s *SQLiteStore) Set(ctx context.Context, key string, rec *storagetypes.Record, ttl time.Duration) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	query := `
		INSERT INTO records (record_id, data, deadline_ms)
		VALUES (?, ?, ?)
		ON CONFLICT(record_id) DO UPDATE SET data = excluded.data, deadline_ms = excluded.deadline_ms
	`

	_, err = s.db.ExecContext(ctx, query, key, string(data), storagetypes.DeadlineMillis(s.now(), ttl))
	if err != nil {
		return fmt.Errorf("failed to store record: %w", err)
	}

	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (*storagetypes.Record, error) {
	query := `SELECT data FROM records WHERE record_id = ? AND deadline_ms > ?`

	var encoded string
	err := s.db.QueryRowContext(ctx, query, key, s.now().UnixMilli()).Scan(&encoded)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, storagetypes.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}

	var rec storagetypes.Record
	if err := json.Unmarshal([]byte(encoded), &rec); err != nil {
		return nil, fmt.Errorf("invalid record encoding: %w", err)
	}

	return &rec, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, key string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE record_id = ?`, key)
	if err != nil {
		return false, fmt.Errorf("failed to delete record: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

func (s *SQLiteStore) Count(ctx context.Context) (int64, bool, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records WHERE deadline_ms > ?`, s.now().UnixMilli()).Scan(&n)
	if err != nil {
		return 0, false, fmt.Errorf("failed to count records: %w", err)
	}
	return n, true, nil
}

func (s *SQLiteStore) Keys(ctx context.Context, fn func(key string) error) error {
	rows, err := s.db.QueryContext(ctx, `SELECT record_id FROM records WHERE deadline_ms > ? ORDER BY record_id`, s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to list records: %w", err)
	}

	// Collected first so fn may write to this store without holding a cursor.
	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan record id: %w", err)
		}
		keys = append(keys, key)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to list records: %w", err)
	}

	for _, key := range keys {
		if err := fn(key); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) Purge(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE deadline_ms <= ?`, s.now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to purge records: %w", err)
	}
	return result.RowsAffected()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
