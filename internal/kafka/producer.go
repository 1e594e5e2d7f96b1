package kafka

import (
	"context"

	"github.com/segmentio/kafka-go"
)

// Producer is a thin wrapper around segmentio/kafka-go Writer. Writes are
// synchronous: WriteMessages returns only after the broker confirms, which
// is what the outbox publisher's success/failure accounting relies on.
type Producer struct {
	w *kafka.Writer
}

func NewProducer(brokers []string) *Producer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{}, // same key -> same partition (per-aggregate affinity)
		RequiredAcks: kafka.RequireAll,
	}
	return &Producer{w: w}
}

// Publish sends one event keyed by aggregate id. The event type travels as
// a header so consumers can dispatch without sniffing the payload.
func (p *Producer) Publish(ctx context.Context, topic, key string, value []byte, eventType, eventID string) error {
	return p.w.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(eventType)},
			{Key: "event_id", Value: []byte(eventID)},
		},
	})
}

func (p *Producer) Close() error { return p.w.Close() }
