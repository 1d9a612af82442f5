package kafka

import (
	"context"

	"github.com/segmentio/kafka-go"

	"chatrelay/internal/input"
)

type Consumer struct {
	cfg       kafka.ReaderConfig
	poster    input.Poster
	newReader func(kafka.ReaderConfig) reader
}

func New(brokers []string, topic, group string, p input.Poster) *Consumer {
	return &Consumer{
		cfg: kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  group,
			MaxBytes: 1e6,
		},
		poster:    p,
		newReader: func(cfg kafka.ReaderConfig) reader { return kafka.NewReader(cfg) },
	}
}

// Run posts every record value as a chat message until ctx is done or the
// reader fails. Each call opens its own reader so a failed run can be retried.
func (c *Consumer) Run(ctx context.Context) error {
	return c.consume(ctx, c.newReader(c.cfg))
}

type reader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

func (c *Consumer) consume(ctx context.Context, r reader) error {
	defer r.Close()
	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			return err
		}
		input.Ingest(c.poster, "kafka", m.Value)
	}
}
