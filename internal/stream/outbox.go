package stream

import (
	"errors"
	"sync"
)

var (
	ErrSlowConsumer = errors.New("subscriber queue full")
	ErrClosed       = errors.New("subscriber closed")
)

// Conn is the registry's non-owning view of a subscriber connection.
// Send must not block on network I/O; Close is idempotent and best-effort.
type Conn interface {
	Send(frame []byte) error
	Close(reason string)
}

// Outbox is a bounded frame queue drained by the connection's session.
// Frames is never closed so concurrent senders cannot panic; Done reports
// shutdown instead.
type Outbox struct {
	frames chan []byte

	done      chan struct{}
	closeOnce sync.Once
	mu        sync.Mutex
	reason    string
}

func NewOutbox(size int) *Outbox {
	if size <= 0 {
		size = 32
	}
	return &Outbox{
		frames: make(chan []byte, size),
		done:   make(chan struct{}),
	}
}

func (o *Outbox) Send(frame []byte) error {
	select {
	case <-o.done:
		return ErrClosed
	default:
	}
	select {
	case o.frames <- frame:
		return nil
	default:
		return ErrSlowConsumer
	}
}

func (o *Outbox) Close(reason string) {
	o.closeOnce.Do(func() {
		o.mu.Lock()
		o.reason = reason
		o.mu.Unlock()
		close(o.done)
	})
}

func (o *Outbox) Frames() <-chan []byte { return o.frames }

func (o *Outbox) Done() <-chan struct{} { return o.done }

// Reason is the argument of the first Close call.
func (o *Outbox) Reason() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.reason
}
