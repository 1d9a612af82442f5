// Package input feeds chat messages from producers other than the HTTP API.
package input

import (
	"bytes"
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"chatrelay/internal/models"
)

// Poster accepts a message the same way POST /api/chat/message does.
type Poster interface {
	Post(uuid, username, body string) (models.Message, error)
}

// Runner is a long-lived producer. Run returns when ctx is done or the
// underlying connection fails.
type Runner interface {
	Run(ctx context.Context) error
}

var ingestCtr = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "input_messages_total",
	Help: "messages received from producers, by source and result",
}, []string{"source", "result"})

func init() { prometheus.MustRegister(ingestCtr) }

// Ingest decodes one JSON post from source and hands it to p. Bad payloads
// are logged and dropped; they never stop the producer.
func Ingest(p Poster, source string, raw []byte) bool {
	req, err := models.DecodePost(bytes.NewReader(raw))
	if err != nil {
		ingestCtr.WithLabelValues(source, "bad_payload").Inc()
		log.Warn().Err(err).Str("source", source).Msg("ingest decode")
		return false
	}
	if _, err := p.Post(req.UUID, req.Username, req.Message); err != nil {
		ingestCtr.WithLabelValues(source, "rejected").Inc()
		log.Warn().Err(err).Str("source", source).Msg("ingest post")
		return false
	}
	ingestCtr.WithLabelValues(source, "ok").Inc()
	return true
}
