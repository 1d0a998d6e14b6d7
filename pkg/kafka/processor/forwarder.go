package processor

import (
	"context"
	"errors"
	"fmt"

	cKafka "github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"github.com/ava-labs/watermarkset/pkg/kafka"
	"github.com/ava-labs/watermarkset/pkg/kafka/messages"
	"github.com/ava-labs/watermarkset/pkg/metrics"
)

// Forwarder delivers a unique event downstream.
type Forwarder interface {
	Forward(ctx context.Context, seq uint64, msg *cKafka.Message) error
}

// KafkaForwarder republishes unique events to an output topic, keeping key, value and
// headers and stamping the sequence header.
type KafkaForwarder struct {
	publisher kafka.Publisher
	topic     string
	metrics   *metrics.Metrics
}

func NewKafkaForwarder(publisher kafka.Publisher, topic string, m *metrics.Metrics) (*KafkaForwarder, error) {
	if publisher == nil {
		return nil, errors.New("invalid publisher: must not be nil")
	}
	if topic == "" {
		return nil, errors.New("invalid output topic: must not be empty")
	}
	return &KafkaForwarder{publisher: publisher, topic: topic, metrics: m}, nil
}

func (f *KafkaForwarder) Forward(ctx context.Context, seq uint64, msg *cKafka.Message) error {
	headers := make(map[string]string, len(msg.Headers)+1)
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	headers[messages.SequenceHeader] = messages.EncodeSequence(seq)

	err := f.publisher.Produce(ctx, kafka.Msg{
		Topic:   f.topic,
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: headers,
	})
	f.metrics.RecordForward(err)
	if err != nil {
		return fmt.Errorf("forward sequence %d: %w", seq, err)
	}
	return nil
}
