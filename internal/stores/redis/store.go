package redisstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"chatrelay/internal/persist"
)

const DefaultPrefix = "chatrelay:"

// Store keeps history as plain Redis strings under prefix. Each Commit is one
// MULTI/EXEC pipeline.
type Store struct {
	client *redis.Client
	prefix string
	staged persist.Batch
}

func Open(ctx context.Context, addr, prefix string) (*Store, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return New(client, prefix), nil
}

// New wraps an existing client.
func New(client *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{client: client, prefix: prefix}
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, persist.ErrNotFound
	}
	return v, err
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
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, kv := range kvs {
			pipe.Set(ctx, s.prefix+kv.Key, kv.Value, 0)
		}
		return nil
	})
	return err
}

func (s *Store) Discard() { s.staged.Reset() }

func (s *Store) Close() error { return s.client.Close() }
