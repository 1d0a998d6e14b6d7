package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	cKafka "github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ava-labs/watermarkset/pkg/kafka/testutils"
)

// newUnreachableProducer returns a producer pointed at a broker that is never started.
// librdkafka accepts the configuration and queues messages without connecting.
func newUnreachableProducer(t *testing.T, ctx context.Context) *Producer {
	t.Helper()
	producer, err := NewProducer(ctx, &cKafka.ConfigMap{
		"bootstrap.servers": "localhost:9092",
	}, testutils.NewTestLogger(t))
	require.NoError(t, err)
	return producer
}

// ============================================================================
// NewProducer Tests
// ============================================================================

func TestNewProducer_ValidConfig(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	producer := newUnreachableProducer(t, ctx)
	require.NotNil(t, producer)
	producer.Close(5 * time.Second)
}

func TestNewProducer_InvalidConfig(t *testing.T) {
	_, err := NewProducer(t.Context(), &cKafka.ConfigMap{
		"not.a.real.property": "x",
	}, testutils.NewTestLogger(t))
	require.ErrorContains(t, err, "failed to create kafka producer")
}

// ============================================================================
// Producer Close Tests
// ============================================================================

func TestProducer_Close_Idempotent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	producer := newUnreachableProducer(t, ctx)
	producer.Close(5 * time.Second)
	// Second close should not panic or cause issues
	producer.Close(5 * time.Second)
}

func TestProducer_Close_WaitsForGoroutines(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	producer := newUnreachableProducer(t, ctx)
	time.Sleep(100 * time.Millisecond)

	start := time.Now()
	producer.Close(10 * time.Second)
	assert.Less(t, time.Since(start), 10*time.Second)
}

// ============================================================================
// Producer Errors Channel Tests
// ============================================================================

func TestProducer_Errors_ChannelClosed(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	producer := newUnreachableProducer(t, ctx)
	errCh := producer.Errors()
	require.NotNil(t, errCh)
	assert.Greater(t, cap(errCh), 0)

	producer.Close(5 * time.Second)
	_, ok := <-errCh
	assert.False(t, ok, "error channel should be closed after Close()")
}

// ============================================================================
// Produce Tests
// ============================================================================

func TestProducer_Produce_CanceledContext(t *testing.T) {
	producer := newUnreachableProducer(t, t.Context())
	defer producer.Close(time.Second)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	err := producer.Produce(ctx, Msg{Topic: "events", Value: []byte("v")})
	require.ErrorIs(t, err, context.Canceled)
}

func TestProducer_Produce_WaitsForDelivery(t *testing.T) {
	producer := newUnreachableProducer(t, t.Context())
	defer producer.Close(time.Second)

	// No broker: the message stays queued until the deadline.
	ctx, cancel := context.WithTimeout(t.Context(), 100*time.Millisecond)
	defer cancel()
	err := producer.Produce(ctx, Msg{
		Topic:   "events",
		Value:   []byte("v"),
		Headers: map[string]string{"x-sequence": "1"},
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestProducer_ContextCancellation_StopsGoroutines(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	producer := newUnreachableProducer(t, ctx)

	cancel()
	time.Sleep(200 * time.Millisecond)
	producer.Close(5 * time.Second)
}

// ============================================================================
// Helper Tests
// ============================================================================

func TestToKafkaHeaders(t *testing.T) {
	require.Nil(t, toKafkaHeaders(nil))
	require.Nil(t, toKafkaHeaders(map[string]string{}))

	got := toKafkaHeaders(map[string]string{
		"x-sequence": "9",
		"a":          "1",
		"m":          "",
	})
	require.Equal(t, []cKafka.Header{
		{Key: "a", Value: []byte("1")},
		{Key: "m", Value: []byte("")},
		{Key: "x-sequence", Value: []byte("9")},
	}, got)
}

func TestHandleDeliveryEvent(t *testing.T) {
	log := testutils.NewTestLogger(t)
	topic := "events"
	msg := &cKafka.Message{TopicPartition: cKafka.TopicPartition{Topic: &topic}}

	delivered := &cKafka.Message{TopicPartition: cKafka.TopicPartition{Topic: &topic, Partition: 1, Offset: 12}}
	require.NoError(t, handleDeliveryEvent(log, msg, delivered))

	failed := &cKafka.Message{TopicPartition: cKafka.TopicPartition{
		Topic: &topic,
		Error: errors.New("message timed out"),
	}}
	require.ErrorContains(t, handleDeliveryEvent(log, msg, failed), "delivery failed")

	err := handleDeliveryEvent(log, msg, cKafka.NewError(cKafka.ErrAllBrokersDown, "down", false))
	require.ErrorContains(t, err, "unexpected delivery event")
}

func TestQueueFullErrorRetryDelay(t *testing.T) {
	assert.Greater(t, queueFullErrorRetryDelay, time.Duration(0))
	assert.LessOrEqual(t, queueFullErrorRetryDelay, 1*time.Second)
}
