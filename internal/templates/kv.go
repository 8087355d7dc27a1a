package templates

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const schema = `CREATE TABLE IF NOT EXISTS kv (
	namespace  TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
)`

// KV is namespaced key-value persistence in a SQLite file.
type KV struct {
	db *sql.DB
}

// OpenKV opens (or creates) the database at path. ":memory:" gives a private
// in-memory database.
func OpenKV(path string) (*KV, error) {
	dsn := ":memory:"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("cannot create templates directory: %w", err)
		}
		dsn = "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open templates db: %w", err)
	}
	// One connection: writes are serialized and :memory: stays a single database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init templates db: %w", err)
	}
	return &KV{db: db}, nil
}

// Get returns the value stored under namespace.
func (k *KV) Get(ctx context.Context, namespace string) ([]byte, bool, error) {
	var value []byte
	err := k.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE namespace = ?`, namespace).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", namespace, err)
	}
	return value, true, nil
}

// Put replaces the value stored under namespace.
func (k *KV) Put(ctx context.Context, namespace string, value []byte) error {
	_, err := k.db.ExecContext(ctx, `INSERT INTO kv (namespace, value) VALUES (?, ?)
		ON CONFLICT(namespace) DO UPDATE SET value = excluded.value,
			updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')`, namespace, value)
	if err != nil {
		return fmt.Errorf("write %s: %w", namespace, err)
	}
	return nil
}

// Close closes the database.
func (k *KV) Close() error {
	return k.db.Close()
}
