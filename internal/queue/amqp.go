package queue

import (
	"context"
	"fmt"
	"sync"

	"github.com/streadway/amqp"

	"github.com/onurcolak/broadcast-dispatch-service/internal/domain"
	"github.com/onurcolak/broadcast-dispatch-service/pkg/logger"
)

// AMQP publishes to a durable queue and consumes with manual acks.
type AMQP struct {
	conn *amqp.Connection
	ch   *amqp.Channel
	name string

	mu sync.Mutex // amqp.Channel is not safe for concurrent publishing
}

func NewAMQP(url, name string, prefetch int) (*AMQP, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	if _, err := ch.QueueDeclare(
		name,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	if prefetch > 0 {
		if err := ch.Qos(prefetch, 0, false); err != nil {
			ch.Close()
			conn.Close()
			return nil, fmt.Errorf("failed to set prefetch: %w", err)
		}
	}

	logger.Infof("Connected to RabbitMQ queue %s", name)

	return &AMQP{conn: conn, ch: ch, name: name}, nil
}

func (a *AMQP) Publish(_ context.Context, req domain.DispatchRequest) error {
	body, err := encode(req)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.ch.Publish("", a.name, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	}); err != nil {
		return fmt.Errorf("failed to publish dispatch request: %w", err)
	}

	return nil
}

func (a *AMQP) Consume(ctx context.Context) (<-chan Delivery, error) {
	msgs, err := a.ch.Consume(
		a.name,
		"",
		false, // autoAck = false, acked once the job run returns
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register consumer: %w", err)
	}

	out := make(chan Delivery)

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-msgs:
				if !ok {
					return
				}

				req, err := decode(d.Body)
				if err != nil {
					logger.Warnf("Dropping malformed dispatch request: %v", err)
					_ = d.Ack(false)
					continue
				}

				delivery := d
				select {
				case out <- Delivery{Request: req, ack: func() error { return delivery.Ack(false) }}:
				case <-ctx.Done():
					_ = d.Nack(false, true)
					return
				}
			}
		}
	}()

	return out, nil
}

func (a *AMQP) Close() error {
	if err := a.ch.Close(); err != nil {
		a.conn.Close()
		return fmt.Errorf("failed to close channel: %w", err)
	}
	return a.conn.Close()
}
