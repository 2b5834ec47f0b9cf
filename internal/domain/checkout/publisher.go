// internal/domain/checkout/publisher.go
package checkout

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// OrderPlaced is published after a successful checkout
type OrderPlaced struct {
	OrderID       string    `json:"order_id"`
	UserID        string    `json:"user_id"`
	PaymentMethod string    `json:"payment_method"`
	Total         int64     `json:"total_amount"`
	PlacedAt      time.Time `json:"placed_at"`
}

// EventPublisher announces placed orders to downstream consumers
type EventPublisher interface {
	PublishOrderPlaced(ctx context.Context, e OrderPlaced) error
}

// NoopPublisher drops every event. Used when no brokers are configured.
type NoopPublisher struct{}

func (NoopPublisher) PublishOrderPlaced(context.Context, OrderPlaced) error { return nil }

// KafkaPublisher writes order events to a Kafka topic keyed by order id
type KafkaPublisher struct {
	writer *kafka.Writer
	log    logrus.FieldLogger
}

// NewKafkaPublisher creates a publisher for topic on brokers
func NewKafkaPublisher(brokers []string, topic string, log logrus.FieldLogger) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		WriteTimeout:           5 * time.Second,
	}
	return &KafkaPublisher{
		writer: w,
		log:    log.WithFields(logrus.Fields{"component": "order_events", "topic": topic}),
	}
}

// PublishOrderPlaced implements EventPublisher
func (p *KafkaPublisher) PublishOrderPlaced(ctx context.Context, e OrderPlaced) error {
	msg, err := orderPlacedMessage(e)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write order placed event: %w", err)
	}
	p.log.WithField("order_id", e.OrderID).Debug("order placed event published")
	return nil
}

// Close flushes pending writes
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func orderPlacedMessage(e OrderPlaced) (kafka.Message, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to marshal order placed event: %w", err)
	}
	return kafka.Message{
		Key:   []byte(e.OrderID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte("order.placed")},
		},
	}, nil
}
