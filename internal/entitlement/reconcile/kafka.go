package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"verigate/internal/entitlement/ports"
	"verigate/pkg/platform/audit"
)

// Producer is the slice of *kgo.Client the publisher needs.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// Message is the wire form of an uncompensated consumption.
type Message struct {
	Event            string    `json:"event"`
	UserID           string    `json:"user_id"`
	OrderID          string    `json:"order_id"`
	VerificationType string    `json:"verification_type"`
	RequestID        string    `json:"request_id,omitempty"`
	Reason           string    `json:"reason"`
	OccurredAt       time.Time `json:"occurred_at"`
}

// KafkaPublisher writes each uncompensated consumption to the reconciliation
// topic, keyed by user id so one user's records stay ordered.
type KafkaPublisher struct {
	producer Producer
	topic    string
}

func NewKafkaPublisher(producer Producer, topic string) (*KafkaPublisher, error) {
	if producer == nil {
		return nil, fmt.Errorf("kafka producer is required")
	}
	if topic == "" {
		return nil, fmt.Errorf("reconcile topic is required")
	}
	return &KafkaPublisher{producer: producer, topic: topic}, nil
}

func (p *KafkaPublisher) RecordUncompensated(ctx context.Context, c ports.UncompensatedConsumption) error {
	value, err := json.Marshal(Message{
		Event:            string(audit.EventUncompensatedConsumption),
		UserID:           c.UserID.String(),
		OrderID:          c.OrderID.String(),
		VerificationType: c.VerificationType.String(),
		RequestID:        c.RequestID,
		Reason:           c.Reason,
		OccurredAt:       c.OccurredAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal uncompensated consumption: %w", err)
	}

	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(c.UserID.String()),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "event", Value: []byte(audit.EventUncompensatedConsumption)},
		},
	}
	if err := p.producer.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce uncompensated consumption: %w", err)
	}
	return nil
}
