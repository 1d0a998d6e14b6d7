// Package testutils holds fixtures shared by the kafka package tests.
package testutils

import (
	"testing"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"

	"github.com/ava-labs/watermarkset/pkg/kafka/messages"
)

// NewTestLogger returns a debug-level logger bound to t, so log lines show up only for
// failing or verbose tests.
func NewTestLogger(t testing.TB) *zap.SugaredLogger {
	return zaptest.NewLogger(t, zaptest.Level(zapcore.DebugLevel)).Sugar()
}

// SequenceMessage builds a fetched record at topic/partition/offset whose SequenceHeader
// carries seq. The value is an empty JSON object.
func SequenceMessage(topic string, partition int32, offset int64, seq uint64) *kafka.Message {
	return &kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &topic,
			Partition: partition,
			Offset:    kafka.Offset(offset),
		},
		Key:   []byte(messages.EncodeSequence(seq)),
		Value: []byte(`{}`),
		Headers: []kafka.Header{
			{Key: messages.SequenceHeader, Value: []byte(messages.EncodeSequence(seq))},
		},
	}
}
