package chat

import (
	"fmt"
	"sync"
	"time"

	"chatrelay/internal/models"
)

const DefaultCapacity = 100

// Log is a fixed-capacity ring of messages. When full, Append overwrites the
// oldest slot at cursor; otherwise cursor == count and slots [0, count) hold
// messages in insertion order.
type Log struct {
	mu     sync.Mutex
	slots  []models.Message
	count  int
	cursor int
	now    func() time.Time
}

// NewLog builds an empty log. A nil clock means time.Now.
func NewLog(capacity int, now func() time.Time) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if now == nil {
		now = time.Now
	}
	return &Log{slots: make([]models.Message, capacity), now: now}
}

func validate(uuid, username, body string) error {
	switch {
	case len(uuid) > models.MaxUUIDLen:
		return &ValidationError{Field: "uuid", Reason: fmt.Sprintf("longer than %d bytes", models.MaxUUIDLen)}
	case len(username) > models.MaxUsernameLen:
		return &ValidationError{Field: "username", Reason: fmt.Sprintf("longer than %d bytes", models.MaxUsernameLen)}
	case len(body) == 0:
		return &ValidationError{Field: "message", Reason: "empty"}
	case len(body) > models.MaxMessageLen:
		return &ValidationError{Field: "message", Reason: fmt.Sprintf("longer than %d bytes", models.MaxMessageLen)}
	}
	return nil
}

// Append validates and stores a message, stamping it with the server clock.
func (l *Log) Append(uuid, username, body string) (models.Message, error) {
	if err := validate(uuid, username, body); err != nil {
		return models.Message{}, err
	}
	m := models.Message{
		UUID:      uuid,
		Username:  username,
		Message:   body,
		Timestamp: uint32(l.now().Unix()),
	}

	l.mu.Lock()
	l.slots[l.cursor] = m
	l.cursor = (l.cursor + 1) % len(l.slots)
	if l.count < len(l.slots) {
		l.count++
	}
	l.mu.Unlock()

	return m, nil
}

// copyOrdered must be called with mu held.
func (l *Log) copyOrdered() []models.Message {
	out := make([]models.Message, l.count)
	start := 0
	if l.count == len(l.slots) {
		start = l.cursor
	}
	for i := 0; i < l.count; i++ {
		out[i] = l.slots[(start+i)%len(l.slots)]
	}
	return out
}

// SnapshotAll returns every retained message, oldest first.
func (l *Log) SnapshotAll() []models.Message {
	l.mu.Lock()
	out := l.copyOrdered()
	l.mu.Unlock()
	return out
}

// SnapshotSince returns messages with Timestamp > ts, oldest first.
func (l *Log) SnapshotSince(ts uint32) []models.Message {
	all := l.SnapshotAll()
	if ts == 0 {
		return all
	}
	out := all[:0]
	for _, m := range all {
		if m.Timestamp > ts {
			out = append(out, m)
		}
	}
	return out
}

// Restore replaces the contents with msgs (oldest first). Only the newest
// Cap() messages are kept.
func (l *Log) Restore(msgs []models.Message) {
	if len(msgs) > len(l.slots) {
		msgs = msgs[len(msgs)-len(l.slots):]
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.slots {
		l.slots[i] = models.Message{}
	}
	copy(l.slots, msgs)
	l.count = len(msgs)
	l.cursor = l.count % len(l.slots)
}

func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

func (l *Log) Cap() int { return len(l.slots) }

// Now is the log's clock in wire resolution.
func (l *Log) Now() uint32 { return uint32(l.now().Unix()) }
