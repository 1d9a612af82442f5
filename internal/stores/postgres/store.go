package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"chatrelay/internal/persist"
)

const (
	schema = `CREATE TABLE IF NOT EXISTS chat_kv (key TEXT PRIMARY KEY, value BYTEA NOT NULL)`
	upsert = `INSERT INTO chat_kv (key, value) VALUES ($1, $2)
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`
)

// Store keeps history in a Postgres table. Each Commit is one transaction.
type Store struct {
	pool   *pgxpool.Pool
	staged persist.Batch
}

// Open connects, checks a connection can be acquired and creates the table.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	pcfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	conn, err := pool.Acquire(pingCtx)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres unreachable: %w", err)
	}
	conn.Release()

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create chat_kv table: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var v []byte
	err := s.pool.QueryRow(ctx, "SELECT value FROM chat_kv WHERE key = $1", key).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
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
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	b := &pgx.Batch{}
	for _, kv := range kvs {
		b.Queue(upsert, kv.Key, kv.Value)
	}
	if err := tx.SendBatch(ctx, b).Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) Discard() { s.staged.Reset() }

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
