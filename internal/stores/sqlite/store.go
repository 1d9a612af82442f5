package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"chatrelay/internal/persist"
)

const schema = `CREATE TABLE IF NOT EXISTS chat_kv (key TEXT PRIMARY KEY, value BLOB NOT NULL);`

// Store keeps history in a SQLite table. Each Commit is one transaction.
type Store struct {
	db     *sql.DB
	staged persist.Batch
}

func Open(ctx context.Context, dataSourceName string) (*Store, error) {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create chat_kv table: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var v []byte
	err := s.db.QueryRowContext(ctx, "SELECT value FROM chat_kv WHERE key = ?", key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persist.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (s *Store) Put(_ context.Context, key string, value []byte) error {
	s.staged.Put(key, value)
	return nil
}

func (s *Store) Commit(ctx context.Context) error {
	kvs := s.staged.Take()
	if len(kvs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO chat_kv (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, kv := range kvs {
		if _, err := stmt.ExecContext(ctx, kv.Key, kv.Value); err != nil {
			return fmt.Errorf("upsert %s: %w", kv.Key, err)
		}
	}
	return tx.Commit()
}

func (s *Store) Discard() { s.staged.Reset() }

func (s *Store) Close() error { return s.db.Close() }
