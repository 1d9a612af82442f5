package filesystem

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"chatrelay/internal/persist"
)

const DefaultMaxBytes int64 = 64 << 20

// entry is one committed batch, stored as a single JSON line.
type entry struct {
	TS  time.Time         `json:"ts"`
	Set map[string][]byte `json:"set"`
}

// Store is an append-only JSON-lines journal. The whole key space is replayed
// into memory on open; the journal is rewritten as a single entry once it
// grows past maxBytes.
type Store struct {
	path     string
	maxBytes int64

	mu     sync.RWMutex
	data   map[string][]byte
	size   int64
	staged persist.Batch
}

func Open(path string, maxBytes int64) (*Store, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	_ = f.Close()

	s := &Store{path: path, maxBytes: maxBytes, data: make(map[string][]byte)}
	if err := s.replay(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) replay() error {
	f, err := os.Open(s.path)
	if err != nil {
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64<<10), int(s.maxBytes)+1)
	bad := 0
	for sc.Scan() {
		s.size += int64(len(sc.Bytes())) + 1
		var e entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			bad++
			continue
		}
		for k, v := range e.Set {
			s.data[k] = v
		}
	}
	if bad > 0 {
		log.Warn().Str("path", s.path).Int("lines", bad).Msg("skipped torn journal lines")
	}
	return sc.Err()
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
	if len(kvs) == 0 {
		return nil
	}
	e := entry{TS: time.Now().UTC(), Set: make(map[string][]byte, len(kvs))}
	for _, kv := range kvs {
		e.Set[kv.Key] = kv.Value
	}
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(append(b, '\n')); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	for k, v := range e.Set {
		s.data[k] = v
	}
	s.size += int64(len(b)) + 1
	if s.size > s.maxBytes {
		if err := s.compact(); err != nil {
			log.Warn().Err(err).Str("path", s.path).Msg("journal compaction failed")
		}
	}
	return nil
}

// compact must be called with mu held.
func (s *Store) compact() error {
	b, err := json.Marshal(entry{TS: time.Now().UTC(), Set: s.data})
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, append(b, '\n'), 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return err
	}
	s.size = int64(len(b)) + 1
	log.Info().Str("path", s.path).Int64("bytes", s.size).Msg("journal compacted")
	return nil
}

func (s *Store) Discard() { s.staged.Reset() }

func (s *Store) Close() error { return nil }
