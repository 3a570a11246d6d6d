// Package event publishes analytics lifecycle events to an AMQP topic
// exchange so downstream services (notifications, dashboards) can react to
// freshly calculated metrics.
package event

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/streadway/amqp"
)

// MetricsCalculated is the routing key for completed metric calculations.
const MetricsCalculated = "analytics.metrics.calculated"

// Publisher emits analytics events. A nil-safe no-op implementation is
// used when no broker is configured.
type Publisher interface {
	Publish(eventType string, payload any) error
	Close()
}

// AMQPPublisher publishes events to a durable topic exchange.
type AMQPPublisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
}

// NewAMQPPublisher dials the broker and declares the exchange.
func NewAMQPPublisher(url, exchange string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return &AMQPPublisher{conn: conn, channel: ch, exchange: exchange}, nil
}

// Publish sends one event, using the event type as the routing key.
func (p *AMQPPublisher) Publish(eventType string, payload any) error {
	body, err := json.Marshal(map[string]any{
		"type":       eventType,
		"payload":    payload,
		"emitted_at": time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	slog.Debug("publishing event", "type", eventType, "exchange", p.exchange)
	return p.channel.Publish(p.exchange, eventType, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
}

func (p *AMQPPublisher) Close() {
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}

// NopPublisher discards all events. Used when --amqp-url is not set.
type NopPublisher struct{}

func (NopPublisher) Publish(string, any) error { return nil }
func (NopPublisher) Close()                    {}
