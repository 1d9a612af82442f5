package stream

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	DefaultPingInterval = 10 * time.Second
	DefaultMaxLifetime  = 600 * time.Second
)

// Close reasons reported by a session.
const (
	ReasonMaxLifetime  = "max lifetime"
	ReasonDisconnected = "disconnected"
	ReasonWriteFailed  = "write failed"
)

type State int32

const (
	StateConnecting State = iota
	StateRegistered
	StateStreaming
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateRegistered:
		return "registered"
	case StateStreaming:
		return "streaming"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Sink writes one framed event to the client. Only the session goroutine calls it.
type Sink interface {
	WriteFrame(frame []byte) error
}

// Tracker is the part of Registry a session reports to.
type Tracker interface {
	Touch(id string)
	Unregister(id string)
}

type SessionOptions struct {
	PingInterval time.Duration
	MaxLifetime  time.Duration
	Retry        time.Duration
}

// Session drains a subscriber's Outbox into its Sink and owns the keepalive
// and lifetime timers.
type Session struct {
	id      string
	out     *Outbox
	sink    Sink
	tracker Tracker
	opts    SessionOptions
	state   atomic.Int32
}

func NewSession(out *Outbox, sink Sink, tracker Tracker, opts SessionOptions) *Session {
	if opts.PingInterval <= 0 {
		opts.PingInterval = DefaultPingInterval
	}
	if opts.MaxLifetime <= 0 {
		opts.MaxLifetime = DefaultMaxLifetime
	}
	if opts.Retry <= 0 {
		opts.Retry = DefaultRetry
	}
	return &Session{out: out, sink: sink, tracker: tracker, opts: opts}
}

func (s *Session) State() State { return State(s.state.Load()) }

// Registered binds the session to its registry handle.
func (s *Session) Registered(id string) {
	s.id = id
	s.state.Store(int32(StateRegistered))
}

// Run streams until the client goes away, the registry evicts the subscriber,
// a write fails or MaxLifetime elapses. It returns the close reason. The
// session reports StateStreaming once the first queued frame, the initial
// snapshot, has reached the client.
func (s *Session) Run(ctx context.Context) string {
	reason := s.loop(ctx)

	s.out.Close(reason)
	if s.id != "" {
		s.tracker.Unregister(s.id)
	}
	s.state.Store(int32(StateClosed))
	sessionsCtr.WithLabelValues(reason).Inc()
	log.Debug().Str("subscriber", s.id).Str("reason", reason).Msg("session closed")
	return reason
}

func (s *Session) loop(ctx context.Context) string {
	ping := time.NewTicker(s.opts.PingInterval)
	defer ping.Stop()
	life := time.NewTimer(s.opts.MaxLifetime)
	defer life.Stop()

	for {
		select {
		case <-ctx.Done():
			return ReasonDisconnected
		case <-s.out.Done():
			reason := s.out.Reason()
			_ = s.sink.WriteFrame(Frame(EventClose, closePayload(reason), s.opts.Retry))
			return reason
		case f := <-s.out.Frames():
			if err := s.sink.WriteFrame(f); err != nil {
				return ReasonWriteFailed
			}
			s.state.CompareAndSwap(int32(StateRegistered), int32(StateStreaming))
		case <-ping.C:
			if err := s.sink.WriteFrame(Frame(EventPing, pingPayload, s.opts.Retry)); err != nil {
				return ReasonWriteFailed
			}
			if s.id != "" {
				s.tracker.Touch(s.id)
			}
		case <-life.C:
			_ = s.sink.WriteFrame(Frame(EventClose, closePayload(ReasonMaxLifetime), s.opts.Retry))
			return ReasonMaxLifetime
		}
	}
}
