package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"chatrelay/internal/models"
	"chatrelay/internal/stream"
)

// Subscribers is the fanout side of the service.
type Subscribers interface {
	Register(conn stream.Conn) (string, error)
	Unregister(id string)
	Touch(id string)
	Send(id, event string, payload []byte) error
	Broadcast(event string, payload []byte) int
}

// Recorder is told about every successful append.
type Recorder interface {
	RecordAppend()
}

type noopRecorder struct{}

func (noopRecorder) RecordAppend() {}

// Service composes the log, cache, subscribers and persistence accounting.
// order spans Append through the broadcast enqueue so every subscriber sees
// messages in log order, and OpenSubscription's snapshot precedes any
// message event.
type Service struct {
	log   *Log
	cache *SnapshotCache
	subs  Subscribers
	rec   Recorder

	order sync.Mutex
}

func NewService(l *Log, cache *SnapshotCache, subs Subscribers, rec Recorder) *Service {
	if rec == nil {
		rec = noopRecorder{}
	}
	return &Service{log: l, cache: cache, subs: subs, rec: rec}
}

// Post appends a message and notifies subscribers. On validation failure
// nothing changes.
func (s *Service) Post(uuid, username, body string) (models.Message, error) {
	s.order.Lock()
	m, err := s.log.Append(uuid, username, body)
	if err != nil {
		s.order.Unlock()
		postsCtr.WithLabelValues("invalid").Inc()
		return models.Message{}, err
	}
	s.cache.Invalidate()

	payload, err := json.Marshal(m)
	if err != nil {
		s.order.Unlock()
		postsCtr.WithLabelValues("error").Inc()
		return models.Message{}, fmt.Errorf("marshal message: %w", err)
	}
	n := s.subs.Broadcast(stream.EventMessage, payload)
	s.order.Unlock()

	s.rec.RecordAppend()
	postsCtr.WithLabelValues("ok").Inc()
	log.Debug().Str("username", m.Username).Uint32("ts", m.Timestamp).Int("delivered", n).Msg("message posted")
	return m, nil
}

// GetAll returns the full history as a JSON array.
func (s *Service) GetAll() ([]byte, error) {
	return s.cache.Get(s.log)
}

// GetSince returns messages newer than ts as a JSON array and whether any
// exist. It is never cached.
func (s *Service) GetSince(ts uint32) ([]byte, bool, error) {
	msgs := s.log.SnapshotSince(ts)
	b, err := models.MarshalList(msgs)
	if err != nil {
		return nil, false, err
	}
	return b, len(msgs) > 0, nil
}

// OpenSubscription registers conn and queues the full history as its first
// event.
func (s *Service) OpenSubscription(conn stream.Conn) (string, error) {
	s.order.Lock()
	defer s.order.Unlock()

	id, err := s.subs.Register(conn)
	if err != nil {
		return "", err
	}
	payload, err := s.GetAll()
	if err != nil {
		s.subs.Unregister(id)
		return "", fmt.Errorf("snapshot history: %w", err)
	}
	if err := s.subs.Send(id, stream.EventMessages, payload); err != nil {
		s.subs.Unregister(id)
		return "", fmt.Errorf("send history: %w", err)
	}
	return id, nil
}

func (s *Service) CloseSubscription(id string) {
	s.subs.Unregister(id)
}

// Touch records a successful liveness check for a subscriber.
func (s *Service) Touch(id string) {
	s.subs.Touch(id)
}

// ServerTime is the current server clock in wire resolution.
func (s *Service) ServerTime() uint32 { return s.log.Now() }

// IsValidation reports whether err came from message validation.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }
