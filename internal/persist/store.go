package persist

import (
	"context"
	"errors"
	"fmt"
)

// Keys of the persisted history layout.
const (
	CountKey     = "msg_count"
	recordPrefix = "msg_"
)

func RecordKey(i int) string { return fmt.Sprintf("%s%d", recordPrefix, i) }

var ErrNotFound = errors.New("key not found")

// Store is a key/value blob store with staged writes. Put stages a value;
// Commit makes every staged value durable at once; Discard drops them.
// Get sees only committed values.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Commit(ctx context.Context) error
	Discard()
	Close() error
}

// PersistenceError reports a failed store operation. The in-memory history is
// never affected by one.
type PersistenceError struct {
	Op  string
	Key string
	Err error
}

func (e *PersistenceError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("persist %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("persist %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
