package memory

import (
	"context"
	"sync"

	"chatrelay/internal/persist"
)

// Store keeps committed values in a map. History does not survive a restart.
type Store struct {
	mu     sync.RWMutex
	data   map[string][]byte
	staged persist.Batch
}

func New() *Store {
	return &Store{data: make(map[string][]byte)}
}

func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	v, ok := s.data[key]
	s.mu.RUnlock()
	if !ok {
		return nil, persist.ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (s *Store) Put(_ context.Context, key string, value []byte) error {
	s.staged.Put(key, value)
	return nil
}

func (s *Store) Commit(context.Context) error {
	kvs := s.staged.Take()
	s.mu.Lock()
	for _, kv := range kvs {
		s.data[kv.Key] = kv.Value
	}
	s.mu.Unlock()
	return nil
}

func (s *Store) Discard() { s.staged.Reset() }

func (s *Store) Close() error { return nil }
