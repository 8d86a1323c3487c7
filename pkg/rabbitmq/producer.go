/**
 * @description
 * This package provides the messaging boundary towards the wallet issuance
 * and push-notification collaborators. The pass-service publishes pass
 * lifecycle events to a durable topic exchange; the Apple/Google wallet
 * services consume them to regenerate pass artifacts and deliver pushes.
 *
 * @dependencies
 * - github.com/rabbitmq/amqp091-go: The RabbitMQ client library.
 */
package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/campuspass/pass-service/internal/domain"
)

// PassEventKind names the published pass lifecycle events.
type PassEventKind string

const (
	PassEventCreated PassEventKind = "pass.created"
	PassEventUpdated PassEventKind = "pass.updated"
	PassEventDueSoon PassEventKind = "pass.due_soon"
)

// PassEvent is the payload published for one pass lifecycle transition. The
// routing key equals the event kind.
type PassEvent struct {
	Kind       PassEventKind  `json:"kind"`
	Key        domain.PassKey `json:"key"`
	TotalToPay int64          `json:"total_to_pay"`
	EndDueDate time.Time      `json:"end_due_date"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// NewPassEvent builds an event stamped with the current time.
func NewPassEvent(kind PassEventKind, key domain.PassKey, totalToPay int64, endDueDate time.Time) PassEvent {
	return PassEvent{
		Kind:       kind,
		Key:        key,
		TotalToPay: totalToPay,
		EndDueDate: endDueDate,
		OccurredAt: time.Now().UTC(),
	}
}

// Publisher is the interface implemented by types that can publish pass events.
type Publisher interface {
	PublishPassEvent(ctx context.Context, event PassEvent) error
	Close()
}

// EventProducer holds the RabbitMQ connection and channel for publishing.
type EventProducer struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	logger   *slog.Logger
}

// NopPublisher is a no-op publisher used when the broker is unavailable at
// startup; the service keeps working, wallet collaborators just see no events.
type NopPublisher struct {
	Logger *slog.Logger
}

func (p NopPublisher) PublishPassEvent(_ context.Context, event PassEvent) error {
	if p.Logger != nil {
		p.Logger.Warn("pass event publish skipped; broker unavailable", "kind", event.Kind, "key", event.Key.String())
	}
	return nil
}

func (p NopPublisher) Close() {}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.TrimSpace(raw)
	clean = strings.Trim(clean, "\"'")
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}

// NewEventProducer connects to the broker and declares the durable topic
// exchange the pass events flow through.
func NewEventProducer(amqpURL, exchange string, logger *slog.Logger) (*EventProducer, error) {
	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}

	// Bounded dial timeout so startup does not hang indefinitely.
	conn, err := amqp.DialConfig(cleanURL, amqp.Config{Dial: amqp.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	return &EventProducer{conn: conn, channel: ch, exchange: exchange, logger: logger.With("component", "rabbitmq_producer")}, nil
}

// PublishPassEvent sends one event to the exchange using the event kind as
// the routing key.
func (p *EventProducer) PublishPassEvent(ctx context.Context, event PassEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	publishCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = p.channel.PublishWithContext(publishCtx,
		p.exchange,
		string(event.Kind),
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    event.OccurredAt,
			Body:         body,
		},
	)
	if err != nil {
		p.logger.Error("pass event publish failed", "kind", event.Kind, "key", event.Key.String(), "err", err)
		return err
	}
	return nil
}

// Close tears down the channel and connection.
func (p *EventProducer) Close() {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}
