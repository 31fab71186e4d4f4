package feed

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteFeed stores items as JSON rows in a SQLite database
type SQLiteFeed struct {
	db    *sql.DB
	path  string
	mu    sync.Mutex
	count int
}

// OpenSQLite opens or creates the database at path. With overwrite set the
// items table is emptied first.
func OpenSQLite(path string, overwrite bool) (*SQLiteFeed, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		item_key TEXT UNIQUE,
		scraped_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		payload TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_items_scraped_at ON items(scraped_at);
	`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	if overwrite {
		if _, err := db.ExecContext(ctx, "DELETE FROM items"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to clear items: %w", err)
		}
	}

	return &SQLiteFeed{db: db, path: path}, nil
}

// Export inserts item, replacing a previous row with the same key
func (s *SQLiteFeed) Export(item interface{}) error {
	payload, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to encode item: %w", err)
	}

	var key sql.NullString
	if k, ok := item.(Keyed); ok && k.ItemKey() != "" {
		key = sql.NullString{String: k.ItemKey(), Valid: true}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(context.Background(), `
		INSERT INTO items (item_key, scraped_at, payload) VALUES (?, ?, ?)
		ON CONFLICT(item_key) DO UPDATE SET
			scraped_at = excluded.scraped_at,
			payload = excluded.payload
	`, key, time.Now().UTC(), string(payload))
	if err != nil {
		return fmt.Errorf("failed to store item: %w", err)
	}
	s.count++
	return nil
}

// Count returns the number of items exported through this feed
func (s *SQLiteFeed) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Rows returns the stored payloads ordered by insertion
func (s *SQLiteFeed) Rows(ctx context.Context) ([]json.RawMessage, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT payload FROM items ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}
	defer rows.Close()

	var out []json.RawMessage
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		out = append(out, json.RawMessage(payload))
	}
	return out, rows.Err()
}

func (s *SQLiteFeed) Close() error {
	return s.db.Close()
}
