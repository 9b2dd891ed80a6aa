package notify

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitMQPublisher publishes each notification once per route, using the
// route itself as the routing key against a single topic exchange.
type RabbitMQPublisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
}

// NewRabbitMQPublisher dials amqpURL and declares exchange as a durable
// topic exchange, so publishing a notification to a route that has no
// bound queue yet is a no-op rather than an error.
func NewRabbitMQPublisher(amqpURL, exchange string) (*RabbitMQPublisher, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq publisher: dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("rabbitmq publisher: channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("rabbitmq publisher: declare exchange: %w", err)
	}

	return &RabbitMQPublisher{conn: conn, channel: ch, exchange: exchange}, nil
}

func (p *RabbitMQPublisher) TaskPending(ctx context.Context, taskID string, payload TaskPendingPayload, routes []string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("publish taskPending for %s: %w", taskID, err)
	}
	return p.publishToRoutes(ctx, body, routes)
}

func (p *RabbitMQPublisher) TaskException(ctx context.Context, taskID string, payload TaskExceptionPayload, routes []string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("publish taskException for %s: %w", taskID, err)
	}
	return p.publishToRoutes(ctx, body, routes)
}

func (p *RabbitMQPublisher) publishToRoutes(ctx context.Context, body []byte, routes []string) error {
	for _, route := range routes {
		err := p.channel.PublishWithContext(ctx, p.exchange, route, false, false, amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		})
		if err != nil {
			return fmt.Errorf("publish to route %s: %w", route, err)
		}
	}
	return nil
}

func (p *RabbitMQPublisher) Close() error {
	if err := p.channel.Close(); err != nil {
		_ = p.conn.Close()
		return err
	}
	return p.conn.Close()
}
