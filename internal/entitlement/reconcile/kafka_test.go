package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"verigate/internal/entitlement/ports"
	id "verigate/pkg/domain"
)

type captureProducer struct {
	records []*kgo.Record
	err     error
}

func (p *captureProducer) ProduceSync(_ context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	p.records = append(p.records, rs...)
	results := make(kgo.ProduceResults, len(rs))
	for i, r := range rs {
		results[i] = kgo.ProduceResult{Record: r, Err: p.err}
	}
	return results
}

func sampleConsumption() ports.UncompensatedConsumption {
	return ports.UncompensatedConsumption{
		UserID:           id.UserID(uuid.New()),
		OrderID:          id.NewOrderID(),
		VerificationType: "pan",
		RequestID:        "req-1",
		Reason:           "order no longer debitable",
		OccurredAt:       time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestNewKafkaPublisher(t *testing.T) {
	_, err := NewKafkaPublisher(nil, "topic")
	assert.ErrorContains(t, err, "producer is required")

	_, err = NewKafkaPublisher(&captureProducer{}, "")
	assert.ErrorContains(t, err, "topic is required")
}

func TestKafkaPublisher_RecordUncompensated(t *testing.T) {
	producer := &captureProducer{}
	pub, err := NewKafkaPublisher(producer, "reconcile")
	require.NoError(t, err)

	c := sampleConsumption()
	require.NoError(t, pub.RecordUncompensated(context.Background(), c))

	require.Len(t, producer.records, 1)
	rec := producer.records[0]
	assert.Equal(t, "reconcile", rec.Topic)
	assert.Equal(t, c.UserID.String(), string(rec.Key))

	var msg Message
	require.NoError(t, json.Unmarshal(rec.Value, &msg))
	assert.Equal(t, "uncompensated_consumption", msg.Event)
	assert.Equal(t, c.OrderID.String(), msg.OrderID)
	assert.Equal(t, "pan", msg.VerificationType)
	assert.Equal(t, "req-1", msg.RequestID)
	assert.True(t, c.OccurredAt.Equal(msg.OccurredAt))
}

func TestKafkaPublisher_ProduceFailure(t *testing.T) {
	pub, err := NewKafkaPublisher(&captureProducer{err: errors.New("broker down")}, "reconcile")
	require.NoError(t, err)

	err = pub.RecordUncompensated(context.Background(), sampleConsumption())
	assert.ErrorContains(t, err, "broker down")
}

func TestMemoryRecorder(t *testing.T) {
	r := NewMemoryRecorder()
	c := sampleConsumption()
	require.NoError(t, r.RecordUncompensated(context.Background(), c))

	got := r.List()
	require.Len(t, got, 1)
	assert.Equal(t, c, got[0])

	got[0].Reason = "mutated"
	assert.NotEqual(t, "mutated", r.List()[0].Reason)
}
