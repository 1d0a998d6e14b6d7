package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ava-labs/watermarkset/pkg/kafka"
	"github.com/ava-labs/watermarkset/pkg/kafka/messages"
	"github.com/ava-labs/watermarkset/pkg/metrics"
)

// Emitter produces one messages.Event per sequence number, keyed by the sequence and
// carrying it in the sequence header.
type Emitter struct {
	publisher kafka.Publisher
	topic     string
	payload   json.RawMessage
	// duplicateEvery re-emits every n-th sequence a second time; 0 disables it.
	duplicateEvery uint64
	now            func() time.Time
	log            *zap.SugaredLogger
	metrics        *metrics.Metrics
}

type EmitterOption func(*Emitter)

// WithPayload attaches payload to every event.
func WithPayload(payload json.RawMessage) EmitterOption {
	return func(e *Emitter) {
		e.payload = payload
	}
}

// WithDuplicateEvery emits every n-th sequence twice, to feed a downstream dedup stage.
func WithDuplicateEvery(n uint64) EmitterOption {
	return func(e *Emitter) {
		e.duplicateEvery = n
	}
}

func NewEmitter(
	publisher kafka.Publisher,
	topic string,
	log *zap.SugaredLogger,
	m *metrics.Metrics,
	opts ...EmitterOption,
) (*Emitter, error) {
	if publisher == nil {
		return nil, errors.New("invalid publisher: must not be nil")
	}
	if topic == "" {
		return nil, errors.New("invalid topic: must not be empty")
	}
	if log == nil {
		return nil, errors.New("invalid logger: must not be nil")
	}
	e := &Emitter{
		publisher: publisher,
		topic:     topic,
		now:       time.Now,
		log:       log,
		metrics:   m,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func (e *Emitter) Process(ctx context.Context, seq uint64) error {
	value, err := messages.NewEvent(seq, e.now(), e.payload).Marshal()
	if err != nil {
		return fmt.Errorf("serialize sequence %d: %w", seq, err)
	}
	msg := kafka.Msg{
		Topic:   e.topic,
		Key:     []byte(messages.EncodeSequence(seq)),
		Value:   value,
		Headers: map[string]string{messages.SequenceHeader: messages.EncodeSequence(seq)},
	}

	copies := 1
	if e.duplicateEvery > 0 && seq%e.duplicateEvery == 0 {
		copies = 2
	}
	for range copies {
		if err := e.produce(ctx, msg); err != nil {
			return fmt.Errorf("failed to produce sequence %d: %w", seq, err)
		}
	}

	e.log.Debugw("emitted sequence", "sequence", seq, "copies", copies)
	return nil
}

func (e *Emitter) produce(ctx context.Context, msg kafka.Msg) error {
	e.metrics.IncProducesInFlight()
	defer e.metrics.DecProducesInFlight()

	start := time.Now()
	err := e.publisher.Produce(ctx, msg)
	e.metrics.RecordEventProduced(err, time.Since(start).Seconds())
	return err
}
