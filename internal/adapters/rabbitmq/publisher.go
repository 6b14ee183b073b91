// Package rabbitmq publishes payment outcome events to a RabbitMQ queue.
package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/imenem/paynet-payments/internal/core/domain"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher implements ports.EventPublisher over an AMQP channel.
type Publisher struct {
	connection *amqp.Connection
	channel    *amqp.Channel
	queue      string
}

// NewPublisher connects to the broker and declares the durable queue.
func NewPublisher(url, queue string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}

	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("rabbitmq queue declare: %w", err)
	}

	return &Publisher{connection: conn, channel: ch, queue: queue}, nil
}

// Close releases the channel and the connection.
func (p *Publisher) Close() {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.connection != nil {
		p.connection.Close()
	}
}

// PublishOutcome sends one terminal payment outcome as a persistent JSON
// message.
func (p *Publisher) PublishOutcome(ctx context.Context, event domain.OutcomeEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding outcome event: %w", err)
	}

	return p.channel.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		Type:         event.Event,
		Body:         body,
	})
}
