// Package app owns the process lifetime: it builds every component from
// config at startup and tears them down in order at shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"chatrelay/internal/chat"
	"chatrelay/internal/config"
	httpx "chatrelay/internal/http"
	"chatrelay/internal/input"
	"chatrelay/internal/input/kafka"
	"chatrelay/internal/input/mock"
	"chatrelay/internal/input/rabbitmq"
	"chatrelay/internal/persist"
	"chatrelay/internal/stores"
	"chatrelay/internal/stream"
)

const shutdownTimeout = 10 * time.Second

// SetupLogging configures the global zerolog logger.
func SetupLogging(cfg *config.Config) {
	zerolog.TimeFieldFormat = time.RFC3339
	lvl, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

type App struct {
	cfg *config.Config

	store    persist.Store
	registry *stream.Registry
	sched    *persist.Scheduler
	svc      *chat.Service
	handler  http.Handler
}

// New opens the store, restores persisted history and wires the service.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	policy, err := persist.ParsePolicy(cfg.PersistPolicy)
	if err != nil {
		return nil, err
	}

	store, err := stores.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	history := chat.NewLog(cfg.HistoryCapacity, nil)
	msgs, err := persist.Load(ctx, store, history.Cap())
	if err != nil {
		log.Warn().Err(err).Msg("history load failed, starting empty")
	}
	history.Restore(msgs)

	registry := stream.NewRegistry(stream.Options{
		MaxSubscribers: cfg.MaxSubscribers,
		StaleTimeout:   cfg.StaleTimeout,
		Retry:          cfg.SSERetry,
	})
	sched := persist.NewScheduler(store, history, persist.Options{
		Policy:       policy,
		MinBatchSize: cfg.MinBatchSize,
		FlushTimeout: cfg.FlushTimeout,
	})
	svc := chat.NewService(history, chat.NewSnapshotCache(cfg.CacheTTL, nil), registry, sched)

	log.Info().
		Int("restored", history.Len()).
		Int("capacity", history.Cap()).
		Str("policy", policy.String()).
		Msg("chat service ready")

	return &App{
		cfg:      cfg,
		store:    store,
		registry: registry,
		sched:    sched,
		svc:      svc,
		handler:  httpx.Router(cfg, svc),
	}, nil
}

func (a *App) Handler() http.Handler { return a.handler }

func (a *App) Service() *chat.Service { return a.svc }

// Run serves HTTP and the background workers until ctx is done, then shuts
// down: sessions end with ctx, the server drains, pending history is flushed
// and the store is closed.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	srv := &http.Server{
		Addr:              ":" + a.cfg.Port,
		Handler:           a.handler,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); a.registry.RunSweeper(ctx, a.cfg.SweepInterval) }()
	go func() { defer wg.Done(); a.sched.Run(ctx) }()

	for name, r := range a.producers() {
		wg.Add(1)
		go func() { defer wg.Done(); runWithBackoff(ctx, name, r, a.cfg.BackoffMax) }()
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("storage", a.cfg.StorageType).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case runErr = <-errCh:
		log.Error().Err(runErr).Msg("server failed")
	}

	// A failed listener leaves ctx live; the workers stop only on cancel.
	cancel()

	shutdown, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if err := srv.Shutdown(shutdown); err != nil {
		log.Error().Err(err).Msg("server shutdown")
	}
	wg.Wait()

	if err := a.Close(shutdown); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// Close flushes whatever the scheduler has not persisted and closes the store.
func (a *App) Close(ctx context.Context) error {
	flushErr := a.sched.FlushOnShutdown(ctx)
	if flushErr != nil {
		log.Error().Err(flushErr).Msg("final flush")
	}
	if err := a.store.Close(); err != nil {
		log.Error().Err(err).Msg("store close")
		return err
	}
	return flushErr
}

func (a *App) producers() map[string]input.Runner {
	out := map[string]input.Runner{}
	if a.cfg.MockEnabled {
		out["mock"] = &mock.Generator{Poster: a.svc, Interval: a.cfg.MockInterval}
	}
	if a.cfg.KafkaEnabled {
		out["kafka"] = kafka.New(a.cfg.KafkaBrokers, a.cfg.KafkaTopic, a.cfg.KafkaGroup, a.svc)
	}
	if a.cfg.AmqpEnabled {
		out["amqp"] = rabbitmq.New(a.cfg.AmqpURL, a.cfg.AmqpQueue, a.svc)
	}
	return out
}
