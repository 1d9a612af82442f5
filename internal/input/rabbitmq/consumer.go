package rabbitmq

import (
	"context"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"

	"chatrelay/internal/input"
)

const prefetch = 32

var ErrDeliveryClosed = errors.New("amqp delivery channel closed")

type Consumer struct {
	url    string
	queue  string
	poster input.Poster
}

func New(url, queue string, p input.Poster) *Consumer {
	return &Consumer{url: url, queue: queue, poster: p}
}

func (c *Consumer) Run(ctx context.Context) error {
	conn, err := amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("amqp dial: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("amqp channel: %w", err)
	}
	defer ch.Close()

	if _, err := ch.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare %s: %w", c.queue, err)
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		return fmt.Errorf("amqp qos: %w", err)
	}
	msgs, err := ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.queue, err)
	}
	log.Info().Str("queue", c.queue).Msg("amqp consuming")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-msgs:
			if !ok {
				return ErrDeliveryClosed
			}
			input.Ingest(c.poster, "amqp", m.Body)
			// Dropped payloads are acked as well.
			if err := m.Ack(false); err != nil {
				return err
			}
		}
	}
}
