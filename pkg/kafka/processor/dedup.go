package processor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	cKafka "github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"

	"github.com/ava-labs/watermarkset/pkg/kafka/messages"
	"github.com/ava-labs/watermarkset/pkg/metrics"
	"github.com/ava-labs/watermarkset/pkg/watermark"
)

// Dedup forwards each sequence number at most once per seen set. Sequence numbers are
// recorded only after a successful forward, so a failed forward is retried on
// redelivery and two concurrent copies of the same event may both be forwarded. The
// stage is at-least-once, with duplicates limited to that race.
//
// Safe for concurrent use.
type Dedup struct {
	log       *zap.SugaredLogger
	forwarder Forwarder
	metrics   *metrics.Metrics

	mu   sync.Mutex
	seen *watermark.Set[uint64]
}

// NewDedup returns a Dedup that treats every sequence below start as already seen,
// typically the checkpointed value of GetLowest. opts bound the seen set.
func NewDedup(
	log *zap.SugaredLogger,
	start uint64,
	forwarder Forwarder,
	m *metrics.Metrics,
	opts ...watermark.Option,
) (*Dedup, error) {
	if log == nil {
		return nil, errors.New("invalid logger: must not be nil")
	}
	if forwarder == nil {
		return nil, errors.New("invalid forwarder: must not be nil")
	}
	return &Dedup{
		log:       log,
		forwarder: forwarder,
		metrics:   m,
		seen:      watermark.NewFrom(start, opts...),
	}, nil
}

// Process forwards msg unless its sequence number has been seen. It returns an error if
// the sequence cannot be read or the forward fails.
func (d *Dedup) Process(ctx context.Context, msg *cKafka.Message) error {
	if msg == nil || msg.Value == nil {
		d.metrics.IncError(metrics.ErrTypeInvalidSequence)
		return errors.New("received nil message or empty value")
	}

	seq, err := messages.SequenceOf(msg)
	if err != nil {
		d.metrics.IncError(metrics.ErrTypeInvalidSequence)
		return fmt.Errorf("read sequence: %w", err)
	}

	if d.Seen(seq) {
		lowest, buckets := d.stats()
		d.metrics.RecordDedup(true, lowest, buckets)
		d.log.Debugw("dropping duplicate", "sequence", seq, "lowest", lowest)
		return nil
	}

	if err := d.forwarder.Forward(ctx, seq, msg); err != nil {
		return err
	}

	d.mu.Lock()
	err = d.seen.Insert(seq)
	d.mu.Unlock()
	lowest, buckets := d.stats()
	if err != nil {
		// Forwarded but not recorded: a later copy will be forwarded again.
		d.metrics.IncError(metrics.ErrTypeWindowOverflow)
		d.log.Warnw("sequence too far ahead of the seen window",
			"sequence", seq,
			"lowest", lowest,
			"buckets", buckets,
			"error", err,
		)
		return nil
	}
	d.metrics.RecordDedup(false, lowest, buckets)
	return nil
}

// Seen reports whether seq has already been forwarded.
func (d *Dedup) Seen(seq uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.seen.Contains(seq)
}

// GetLowest returns the lowest sequence number not yet seen. Every sequence below it has
// been forwarded, so it is the value to checkpoint.
func (d *Dedup) GetLowest() uint64 {
	lowest, _ := d.stats()
	return lowest
}

func (d *Dedup) stats() (uint64, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	lowest, ok := d.seen.LowestMissing()
	if !ok {
		lowest = math.MaxUint64
	}
	return lowest, d.seen.WindowLen()
}
