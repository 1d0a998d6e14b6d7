package kafka

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"
)

// Msg is a message to produce. Headers are sent sorted by key.
type Msg struct {
	Topic   string
	Value   []byte
	Key     []byte
	Headers map[string]string
}

func (m Msg) toKafka() *kafka.Message {
	topic := m.Topic
	return &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Value:          m.Value,
		Key:            m.Key,
		Headers:        toKafkaHeaders(m.Headers),
	}
}

// Publisher is the produce side of Producer, accepted by components that only emit messages.
type Publisher interface {
	Produce(ctx context.Context, msg Msg) error
}

var _ Publisher = (*Producer)(nil)

const queueFullErrorRetryDelay = 500 * time.Millisecond

// permanentProduceErrors are enqueue failures a retry cannot fix.
var permanentProduceErrors = map[kafka.ErrorCode]string{
	kafka.ErrBrokerNotAvailable: "broker not available",
	kafka.ErrInvalidMsgSize:     "invalid message size",
	kafka.ErrInvalidMsg:         "invalid message",
	kafka.ErrUnknownTopicOrPart: "unknown topic or partition",
	kafka.ErrAuthentication:     "authentication error",
}

// Producer produces messages synchronously: Produce returns once the broker acknowledged
// the message. A single background goroutine drains client events and, when
// go.logs.channel.enable is set, librdkafka logs. A fatal client error is reported once
// on Errors, after which the producer must be closed and replaced.
type Producer struct {
	producer *kafka.Producer
	log      *zap.SugaredLogger

	errCh     chan error
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewProducer creates a Producer. The background goroutine stops when ctx is done or
// Close is called; Close must be called to flush and release the client.
func NewProducer(ctx context.Context, conf *kafka.ConfigMap, log *zap.SugaredLogger) (*Producer, error) {
	logsEnabled, err := conf.Get("go.logs.channel.enable", false)
	if err != nil {
		return nil, fmt.Errorf("failed to read go.logs.channel.enable: %w", err)
	}
	p, err := kafka.NewProducer(conf)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	q := &Producer{
		producer: p,
		log:      log,
		errCh:    make(chan error, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	var logs chan kafka.LogEvent
	if enabled, _ := logsEnabled.(bool); enabled {
		logs = p.Logs()
	}
	go q.run(ctx, logs)
	return q, nil
}

// Produce enqueues msg and waits for its delivery report. A full local queue is retried
// every queueFullErrorRetryDelay; other enqueue errors and failed deliveries are
// returned.
//
// When ctx is done first, Produce returns ctx.Err() but the message may still be
// delivered, so callers that retry must tolerate duplicates.
func (q *Producer) Produce(ctx context.Context, msg Msg) error {
	kMsg := msg.toKafka()
	// Left open: a receipt may arrive after ctx is done.
	receipt := make(chan kafka.Event, 1)

	if err := q.enqueue(ctx, kMsg, receipt); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case ev := <-receipt:
		return handleDeliveryEvent(q.log, kMsg, ev)
	}
}

// Close stops the background goroutine, flushes queued messages for up to timeout and
// closes the client. Messages still queued at the timeout are lost. Later calls are
// no-ops.
func (q *Producer) Close(timeout time.Duration) {
	q.closeOnce.Do(func() {
		q.log.Info("closing kafka producer")
		close(q.stop)
		<-q.done

		if pending := q.producer.Flush(int(timeout.Milliseconds())); pending > 0 {
			q.log.Warnw("flush timed out, dropping queued messages", "pending", pending)
		}
		q.producer.Close()
		close(q.errCh)
		q.log.Info("kafka producer closed")
	})
}

// Errors returns a channel that receives at most one fatal error and is closed by Close.
// Non-fatal client errors are only logged.
func (q *Producer) Errors() <-chan error {
	return q.errCh
}

func (q *Producer) enqueue(ctx context.Context, msg *kafka.Message, receipt chan kafka.Event) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := q.producer.Produce(msg, receipt)
		if err == nil {
			return nil
		}

		var kErr kafka.Error
		if !errors.As(err, &kErr) {
			return fmt.Errorf("failed to produce: %w", err)
		}
		if kErr.Code() != kafka.ErrQueueFull {
			if reason, ok := permanentProduceErrors[kErr.Code()]; ok {
				return fmt.Errorf("%s: %w", reason, err)
			}
			return fmt.Errorf("failed to produce: %w", err)
		}

		q.log.Warnw("producer queue full, retrying", "delay", queueFullErrorRetryDelay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(queueFullErrorRetryDelay):
		}
	}
}

// run drains client events and logs until ctx is done, Close is called or the event
// channel closes. logs is nil when log forwarding is off.
func (q *Producer) run(ctx context.Context, logs chan kafka.LogEvent) {
	defer close(q.done)
	events := q.producer.Events()
	for {
		select {
		case <-ctx.Done():
			q.log.Debug("kafka producer event loop stopped: context done")
			return
		case <-q.stop:
			q.log.Debug("kafka producer event loop stopped: closing")
			return
		case entry, ok := <-logs:
			if !ok {
				logs = nil
				continue
			}
			q.log.Debugw("librdkafka", "level", entry.Level, "tag", entry.Tag, "message", entry.Message)
		case ev, ok := <-events:
			if !ok {
				q.reportFatal(errors.New("kafka producer event channel closed"))
				return
			}
			if q.handleEvent(ev) {
				return
			}
		}
	}
}

// handleEvent logs a client event and reports whether it was fatal.
func (q *Producer) handleEvent(ev kafka.Event) bool {
	switch e := ev.(type) {
	case kafka.Error:
		if e.IsFatal() || e.Code() == kafka.ErrAllBrokersDown {
			q.reportFatal(fmt.Errorf("fatal kafka producer error %#x: %w", e.Code(), e))
			return true
		}
		q.log.Warnw("kafka producer error", "code", e.Code(), "error", e)
	case *kafka.Message:
		// Every Produce call passes its own receipt channel.
		q.log.Errorw("delivery report on the shared event channel",
			"topicPartition", e.TopicPartition,
			"error", e.TopicPartition.Error,
		)
	case kafka.Stats:
		q.log.Debugw("kafka producer stats", "stats", e.String())
	default:
		q.log.Warnw("unknown kafka producer event", "event", e)
	}
	return false
}

func (q *Producer) reportFatal(err error) {
	select {
	case q.errCh <- err:
	default:
		q.log.Warnw("dropping fatal error, one is already pending", "error", err)
	}
}

func toKafkaHeaders(headers map[string]string) []kafka.Header {
	if len(headers) == 0 {
		return nil
	}
	out := make([]kafka.Header, 0, len(headers))
	for _, k := range slices.Sorted(maps.Keys(headers)) {
		out = append(out, kafka.Header{Key: k, Value: []byte(headers[k])})
	}
	return out
}

// handleDeliveryEvent turns the delivery report of msg into an error.
func handleDeliveryEvent(log *zap.SugaredLogger, msg *kafka.Message, ev kafka.Event) error {
	report, ok := ev.(*kafka.Message)
	if !ok {
		return fmt.Errorf("unexpected delivery event: %T", ev)
	}
	if err := report.TopicPartition.Error; err != nil {
		return fmt.Errorf("delivery failed: %w", err)
	}
	log.Debugw("delivered",
		"topic", *msg.TopicPartition.Topic,
		"partition", report.TopicPartition.Partition,
		"offset", report.TopicPartition.Offset,
	)
	return nil
}
