package stream

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"
)

const (
	DefaultMaxSubscribers = 10
	DefaultStaleTimeout   = 300 * time.Second
)

// Eviction reasons, also sent as the close event's reason.
const (
	ReasonStale          = "stale"
	ReasonDeliveryFailed = "delivery failed"
)

var (
	ErrCapacityExceeded = errors.New("subscriber capacity exceeded")
	ErrNotRegistered    = errors.New("subscriber not registered")
)

type Options struct {
	MaxSubscribers int
	StaleTimeout   time.Duration
	Retry          time.Duration
	Now            func() time.Time
}

type subscriber struct {
	id           string
	conn         Conn
	registeredAt time.Time
	lastActivity atomic.Int64
}

func (s *subscriber) touch(t time.Time) { s.lastActivity.Store(t.UnixNano()) }

// Registry tracks live push subscribers. Its lock guards the map only; all
// per-subscriber delivery happens outside it.
type Registry struct {
	max   int
	stale time.Duration
	retry time.Duration
	now   func() time.Time

	mu   sync.Mutex
	subs map[string]*subscriber
}

func NewRegistry(opts Options) *Registry {
	if opts.MaxSubscribers <= 0 {
		opts.MaxSubscribers = DefaultMaxSubscribers
	}
	if opts.StaleTimeout <= 0 {
		opts.StaleTimeout = DefaultStaleTimeout
	}
	if opts.Retry <= 0 {
		opts.Retry = DefaultRetry
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Registry{
		max:   opts.MaxSubscribers,
		stale: opts.StaleTimeout,
		retry: opts.Retry,
		now:   opts.Now,
		subs:  make(map[string]*subscriber),
	}
}

// Register admits conn unless MaxSubscribers are already live. Stale entries
// are swept first so they do not hold slots.
func (r *Registry) Register(conn Conn) (string, error) {
	r.Sweep(r.stale)

	now := r.now()
	s := &subscriber{id: ulid.Make().String(), conn: conn, registeredAt: now}
	s.touch(now)

	r.mu.Lock()
	if len(r.subs) >= r.max {
		r.mu.Unlock()
		rejectedCtr.Inc()
		return "", ErrCapacityExceeded
	}
	r.subs[s.id] = s
	n := len(r.subs)
	r.mu.Unlock()

	subsGauge.Set(float64(n))
	log.Debug().Str("subscriber", s.id).Int("subscribers", n).Msg("subscriber registered")
	return s.id, nil
}

// Unregister is idempotent.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	_, ok := r.subs[id]
	delete(r.subs, id)
	n := len(r.subs)
	r.mu.Unlock()

	if ok {
		subsGauge.Set(float64(n))
		log.Debug().Str("subscriber", id).Int("subscribers", n).Msg("subscriber unregistered")
	}
}

// Sweep evicts subscribers idle for longer than staleTimeout and returns how
// many were removed.
func (r *Registry) Sweep(staleTimeout time.Duration) int {
	cut := r.now().Add(-staleTimeout).UnixNano()

	var stale []*subscriber
	r.mu.Lock()
	for id, s := range r.subs {
		if s.lastActivity.Load() < cut {
			stale = append(stale, s)
			delete(r.subs, id)
		}
	}
	n := len(r.subs)
	r.mu.Unlock()

	if len(stale) == 0 {
		return 0
	}
	subsGauge.Set(float64(n))
	for _, s := range stale {
		s.conn.Close(ReasonStale)
		evictionsCtr.WithLabelValues(ReasonStale).Inc()
		log.Info().Str("subscriber", s.id).Msg("stale subscriber evicted")
	}
	return len(stale)
}

// Broadcast frames payload once and delivers it to every subscriber. A failed
// delivery evicts only that subscriber. Returns the number of deliveries.
func (r *Registry) Broadcast(event string, payload []byte) int {
	frame := Frame(event, payload, r.retry)

	r.mu.Lock()
	list := make([]*subscriber, 0, len(r.subs))
	for _, s := range r.subs {
		list = append(list, s)
	}
	r.mu.Unlock()

	delivered := 0
	for _, s := range list {
		if err := s.conn.Send(frame); err != nil {
			r.evict(s, ReasonDeliveryFailed, err)
			continue
		}
		s.touch(r.now())
		delivered++
	}
	deliveredCtr.Add(float64(delivered))
	return delivered
}

// Send delivers one event to a single subscriber.
func (r *Registry) Send(id, event string, payload []byte) error {
	r.mu.Lock()
	s := r.subs[id]
	r.mu.Unlock()
	if s == nil {
		return ErrNotRegistered
	}
	if err := s.conn.Send(Frame(event, payload, r.retry)); err != nil {
		r.evict(s, ReasonDeliveryFailed, err)
		return err
	}
	s.touch(r.now())
	deliveredCtr.Inc()
	return nil
}

// Touch records a successful liveness check.
func (r *Registry) Touch(id string) {
	r.mu.Lock()
	s := r.subs[id]
	r.mu.Unlock()
	if s != nil {
		s.touch(r.now())
	}
}

func (r *Registry) evict(s *subscriber, reason string, cause error) {
	r.mu.Lock()
	cur, ok := r.subs[s.id]
	if ok && cur == s {
		delete(r.subs, s.id)
	}
	n := len(r.subs)
	r.mu.Unlock()

	if !ok || cur != s {
		return
	}
	subsGauge.Set(float64(n))
	s.conn.Close(reason)
	evictionsCtr.WithLabelValues(reason).Inc()
	log.Info().Err(cause).Str("subscriber", s.id).Str("reason", reason).Msg("subscriber evicted")
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

func (r *Registry) Retry() time.Duration { return r.retry }

// RunSweeper sweeps stale subscribers every interval until ctx is done.
func (r *Registry) RunSweeper(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = r.stale / 2
	}
	t := time.NewTicker(every)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.Sweep(r.stale)
		}
	}
}
