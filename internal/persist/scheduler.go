package persist

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"chatrelay/internal/models"
)

const (
	DefaultMinBatchSize = 5
	DefaultFlushTimeout = 10 * time.Second
)

type Policy int

const (
	// PolicyBatched flushes from a background worker every MinBatchSize appends.
	PolicyBatched Policy = iota
	// PolicyImmediate flushes on the appending goroutine after every append.
	PolicyImmediate
)

func (p Policy) String() string {
	if p == PolicyImmediate {
		return "immediate"
	}
	return "batched"
}

func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "batched":
		return PolicyBatched, nil
	case "immediate":
		return PolicyImmediate, nil
	}
	return PolicyBatched, fmt.Errorf("unknown persist policy %q", s)
}

// Snapshotter supplies the history to persist, oldest first.
type Snapshotter interface {
	SnapshotAll() []models.Message
}

type Options struct {
	Policy       Policy
	MinBatchSize int
	FlushTimeout time.Duration
}

// Scheduler turns appends into store writes off the request path.
type Scheduler struct {
	store Store
	src   Snapshotter
	opts  Options

	mu      sync.Mutex
	pending int

	kick    chan struct{}
	flushMu sync.Mutex
}

func NewScheduler(store Store, src Snapshotter, opts Options) *Scheduler {
	if opts.MinBatchSize <= 0 {
		opts.MinBatchSize = DefaultMinBatchSize
	}
	if opts.FlushTimeout <= 0 {
		opts.FlushTimeout = DefaultFlushTimeout
	}
	return &Scheduler{
		store: store,
		src:   src,
		opts:  opts,
		kick:  make(chan struct{}, 1),
	}
}

// RecordAppend accounts for one append. Under the batched policy the counter
// resets as soon as it reaches MinBatchSize and the worker is signalled;
// signals coalesce while a flush is running.
func (s *Scheduler) RecordAppend() {
	if s.opts.Policy == PolicyImmediate {
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.FlushTimeout)
		defer cancel()
		if err := s.Flush(ctx); err != nil {
			log.Error().Err(err).Msg("persist flush failed")
		}
		return
	}

	s.mu.Lock()
	s.pending++
	due := s.pending >= s.opts.MinBatchSize
	if due {
		s.pending = 0
	}
	n := s.pending
	s.mu.Unlock()

	pendingGauge.Set(float64(n))
	if due {
		select {
		case s.kick <- struct{}{}:
		default:
		}
	}
}

func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// Run is the background flush worker. It returns when ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.kick:
			fctx, cancel := context.WithTimeout(ctx, s.opts.FlushTimeout)
			if err := s.Flush(fctx); err != nil {
				log.Error().Err(err).Msg("persist flush failed")
			}
			cancel()
		}
	}
}

// Flush writes the whole current history and commits it as one batch.
// Only one flush runs at a time.
func (s *Scheduler) Flush(ctx context.Context) error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	start := time.Now()
	err := s.flush(ctx)
	flushDur.Observe(time.Since(start).Seconds())
	if err != nil {
		flushCtr.WithLabelValues("error").Inc()
		return err
	}
	flushCtr.WithLabelValues("ok").Inc()
	return nil
}

func (s *Scheduler) flush(ctx context.Context) error {
	msgs := s.src.SnapshotAll()

	if err := s.store.Put(ctx, CountKey, []byte(strconv.Itoa(len(msgs)))); err != nil {
		s.store.Discard()
		return &PersistenceError{Op: "put", Key: CountKey, Err: err}
	}
	for i, m := range msgs {
		key := RecordKey(i)
		rec, err := models.EncodeRecord(m)
		if err != nil {
			s.store.Discard()
			return &PersistenceError{Op: "encode", Key: key, Err: err}
		}
		if err := s.store.Put(ctx, key, rec); err != nil {
			s.store.Discard()
			return &PersistenceError{Op: "put", Key: key, Err: err}
		}
	}
	if err := s.store.Commit(ctx); err != nil {
		s.store.Discard()
		return &PersistenceError{Op: "commit", Err: err}
	}
	log.Debug().Int("records", len(msgs)).Msg("history persisted")
	return nil
}

// FlushOnShutdown persists whatever is in memory, including a partial batch.
func (s *Scheduler) FlushOnShutdown(ctx context.Context) error {
	s.mu.Lock()
	s.pending = 0
	s.mu.Unlock()
	pendingGauge.Set(0)
	return s.Flush(ctx)
}
