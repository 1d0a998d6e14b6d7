package kafka

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"

	"github.com/ava-labs/watermarkset/pkg/metrics"
	"github.com/ava-labs/watermarkset/pkg/watermark"
)

const (
	// Default suggested Offset Manager parameters
	OffsetManagerCommitInterval  = 5 * time.Second
	OffsetManagerAutoOffsetReset = "latest"

	// WindowBucketWarningThreshold is the number of 64-offset buckets a partition may track
	// above its committed offset before warnings are logged.
	WindowBucketWarningThreshold = 1024

	insertRetryDelay = 200 * time.Millisecond
)

// ErrPartitionNotAssigned is returned by IsProcessed for partitions this consumer does not own.
var ErrPartitionNotAssigned = errors.New("partition not assigned")

type offsetState struct {
	topic *string
	// processed holds the offsets of processed messages; nil until the committed offset
	// or the first fetched offset is known.
	processed *watermark.Set[kafka.Offset]
	// lastCommitted is the next offset to consume as stored by the group, or
	// kafka.OffsetInvalid when no usable offset exists.
	lastCommitted kafka.Offset
	// latest is the highest processed offset seen, for lag reporting.
	latest kafka.Offset
}

/*
OffsetManager is a thread-safe, in-memory offset manager for Kafka consumers that
manages offsets for each assigned partition and ensures "at least once" message
processing. A single OffsetManager supports only one topic subscription at a
time.

Processed message offsets are recorded per partition in a watermark.Set: offsets
below the committed offset are implied, and only the disorder above it is kept as
a bitmap, so a slow message pins 8 bytes per 64 later offsets rather than one
entry per offset. At every commit interval the lowest offset not yet processed is
committed, which is exactly the "next offset to consume" Kafka expects.

The poll loop calls MarkFetched() for every message it receives; a partition
with no usable committed offset starts its window at the first offset fetched.
When threads are done processing consumed messages, they should call
InsertOffset() (or InsertOffsetWithRetry()) with the message's own offset.

With WithOffsetWindowCap the per-partition window is bounded and InsertOffset
fails for offsets too far ahead of the committed offset; InsertOffsetWithRetry
then waits until earlier messages complete. Without a cap, a window wider than
WindowBucketWarningThreshold buckets is logged to help diagnose stuck messages.
*/
type OffsetManager struct {
	consumer        *kafka.Consumer
	autoOffsetReset string                 // auto.offset.reset config: "earliest" or "latest"
	partitionStates map[int32]*offsetState // map of offset states for each assigned partition
	mutex           sync.Mutex
	dryRun          bool // skip interactions with Brokers for testing
	log             *zap.SugaredLogger
	metrics         *metrics.Metrics
	maxBuckets      int
}

// OffsetManagerOption configures optional OffsetManager behavior.
type OffsetManagerOption func(*OffsetManager)

// WithOffsetMetrics reports commits, inserts and window sizes to m.
func WithOffsetMetrics(m *metrics.Metrics) OffsetManagerOption {
	return func(om *OffsetManager) {
		om.metrics = m
	}
}

// WithOffsetWindowCap bounds each partition window to n buckets of 64 offsets.
func WithOffsetWindowCap(n int) OffsetManagerOption {
	return func(om *OffsetManager) {
		om.maxBuckets = n
	}
}

// NewOffsetManager creates a new OffsetManager and starts its commit loop, which
// runs until ctx is done.
func NewOffsetManager(
	ctx context.Context,
	consumer *kafka.Consumer,
	interval time.Duration,
	autoOffsetReset string,
	dryRun bool,
	log *zap.SugaredLogger,
	opts ...OffsetManagerOption,
) *OffsetManager {
	om := &OffsetManager{
		consumer:        consumer,
		autoOffsetReset: autoOffsetReset,
		partitionStates: make(map[int32]*offsetState),
		dryRun:          dryRun,
		log:             log,
	}
	for _, opt := range opts {
		opt(om)
	}
	go om.managerLoop(ctx, interval)
	return om
}

func (om *OffsetManager) managerLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			om.commitLatestValidOffsets()
		case <-ctx.Done():
			return
		}
	}
}

// Commit commits the latest contiguous processed offset of every assigned partition
// immediately. The consumer calls it once more on shutdown.
func (om *OffsetManager) Commit() {
	om.commitLatestValidOffsets()
}

// For each assigned partition, commit the lowest offset that has not been processed
// if it moved past lastCommitted.
func (om *OffsetManager) commitLatestValidOffsets() {
	om.mutex.Lock()
	defer om.mutex.Unlock()

	for partition, state := range om.partitionStates {
		if state.processed == nil {
			om.log.Debugw("no offsets to commit", "partition", partition)
			continue
		}

		next, ok := state.processed.LowestMissing()
		if ok && next > state.lastCommitted {
			start := time.Now()
			var err error
			if !om.dryRun {
				_, err = om.consumer.CommitOffsets([]kafka.TopicPartition{{
					Topic:     state.topic,
					Partition: partition,
					Offset:    next,
				}})
			}
			om.metrics.RecordOffsetCommit(partition, err, time.Since(start).Seconds())
			if err != nil {
				om.log.Errorf("failed to commit offsets: %v", err)
				return
			}

			om.log.Infof("committed offset %d for partition %d", next, partition)
			state.lastCommitted = next
		}

		buckets := state.processed.WindowLen()
		om.metrics.UpdateOffsetMetrics(partition, int64(state.lastCommitted), int64(state.latest), buckets)
		if om.maxBuckets == 0 && buckets > WindowBucketWarningThreshold {
			om.log.Warnf(
				"partition %d window is wide: %d buckets above offset %d",
				partition,
				buckets,
				state.lastCommitted,
			)
		}
	}
}

// InsertOffset records the message at offset.Offset on partition offset.Partition as
// processed. Unlike kafka.Consumer.CommitOffsets, the argument is the offset of the
// message itself, not the offset after it.
//
// Partition and Offset fields are required. Offsets below the committed offset are
// ignored; they can occur when a new group starts from "latest" while the producer
// is still writing. Offsets on a partition whose window was never started by
// MarkFetched are ignored too. Re-inserting an offset is a no-op.
func (om *OffsetManager) InsertOffset(ctx context.Context, offset kafka.TopicPartition) error {
	om.mutex.Lock()
	defer om.mutex.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	state := om.partitionStates[offset.Partition]
	if state == nil {
		om.log.Warnf("partition %d not found in partition states, ignoring", offset.Partition)
		return nil
	}
	if offset.Offset < 0 {
		om.log.Warnf("logical offset %d for partition %d is not a message offset, ignoring", offset.Offset, offset.Partition)
		return nil
	}

	if state.processed == nil {
		// MarkFetched was never called for this partition, so lower offsets may still be
		// in flight. Leaving it out keeps the commit from passing them.
		om.log.Warnf("offset %d for partition %d was never fetched, ignoring", offset.Offset, offset.Partition)
		return nil
	}
	if state.topic == nil {
		state.topic = offset.Topic
	}

	err := state.processed.Insert(offset.Offset)
	om.metrics.RecordOffsetInsert(offset.Partition, err)
	if err != nil {
		return fmt.Errorf("insert offset %d for partition %d: %w", offset.Offset, offset.Partition, err)
	}
	if offset.Offset > state.latest {
		state.latest = offset.Offset
	}
	return nil
}

// MarkFetched records that the message at offset.Offset was fetched from offset.Partition.
// The poll loop calls it for every message before dispatching it. A partition without a
// usable committed offset starts its window at the first offset fetched, so messages
// fetched earlier but processed later are never skipped by a commit. Later calls are
// no-ops once the window exists.
func (om *OffsetManager) MarkFetched(offset kafka.TopicPartition) {
	om.mutex.Lock()
	defer om.mutex.Unlock()

	state := om.partitionStates[offset.Partition]
	if state == nil || state.processed != nil || offset.Offset < 0 {
		return
	}
	if state.lastCommitted < 0 {
		state.lastCommitted = offset.Offset
		om.log.Infof("init partition %d lastCommitted to first fetched offset %d", offset.Partition, offset.Offset)
	}
	if state.topic == nil {
		state.topic = offset.Topic
	}
	state.processed = om.newWindow(state.lastCommitted)
}

// IsProcessed reports whether the message at offset on partition has been processed in
// this assignment, including everything below the committed offset. It returns
// ErrPartitionNotAssigned if the partition is not assigned.
func (om *OffsetManager) IsProcessed(partition int32, offset kafka.Offset) (bool, error) {
	om.mutex.Lock()
	defer om.mutex.Unlock()
	state := om.partitionStates[partition]
	if state == nil {
		return false, ErrPartitionNotAssigned
	}
	if state.processed == nil {
		return false, nil
	}
	return state.processed.Contains(offset), nil
}

// Resets or initializes the OffsetManager's partitionStates. This rebalance
// callback function must be passed to kafka.Consumer.Subscribe(). When the
// consumer joins a group, this will then be called as a way to initialize the
// OffsetManager
func (om *OffsetManager) RebalanceCb(consumer *kafka.Consumer, event kafka.Event) error {
	om.mutex.Lock()
	defer om.mutex.Unlock()
	switch ev := event.(type) {
	case kafka.AssignedPartitions:
		// Rebalance events may provide offsets, but offsets seem to be
		// kafka.InvalidOffset (-1001) when a consumer is joining an idle, but
		// already existing, group. So we explicitly get the committed offsets
		// from the broker.
		var err error
		var committedOffsets []kafka.TopicPartition
		if om.dryRun {
			committedOffsets = ev.Partitions
		} else {
			committedOffsets, err = consumer.Committed(ev.Partitions, 5000)
		}

		if err != nil {
			return fmt.Errorf("failed to get committed offsets: %w", err)
		}

		logStr := make([]string, len(committedOffsets))
		for i, co := range committedOffsets {
			state := &offsetState{
				topic:         co.Topic,
				lastCommitted: co.Offset,
				latest:        kafka.OffsetInvalid,
			}
			om.partitionStates[co.Partition] = state

			// If the group's stored offset is lower than the earliest offset of
			// the topic due to its retention policy, librdkafka will
			// immediately start fetching based off auto.offset.reset. We
			// invalidate any stored offset here and let the first processed
			// offset initialize the window.
			if !om.dryRun {
				low, high, err := om.consumer.QueryWatermarkOffsets(*(co.Topic), co.Partition, 5000)
				if err != nil {
					om.log.Errorf("GetWatermarkOffsets failed: %v", err)
					return fmt.Errorf("GetWatermarkOffsets failed: %w", err)
				}

				om.log.Infof(
					"QueryWatermarkOffsets for partition %d: (low: %d, high: %d), auto.offset.reset: %s",
					co.Partition,
					low,
					high,
					om.autoOffsetReset,
				)

				if co.Offset < kafka.Offset(low) {
					state.lastCommitted = kafka.OffsetInvalid
				}
			}
			if state.lastCommitted < 0 {
				state.lastCommitted = kafka.OffsetInvalid
			} else {
				state.processed = om.newWindow(state.lastCommitted)
			}

			logStr[i] = fmt.Sprintf("(partition: %d, lastCommitted: %d)", co.Partition, state.lastCommitted)
		}

		om.log.Infof("rebalance event, adding partition states: %s", strings.Join(logStr, ","))
	case kafka.RevokedPartitions:
		logStr := make([]string, len(ev.Partitions))
		for i, partition := range ev.Partitions {
			logStr[i] = strconv.Itoa(int(partition.Partition))
			delete(om.partitionStates, partition.Partition)
		}
		om.log.Infof("rebalance event, removing state for partitions: %s", strings.Join(logStr, ","))
	default:
		om.log.Warnf("unknown rebalance event: %v", event)
	}
	return nil
}

// InsertOffsetWithRetry inserts the offset of msg, retrying until it succeeds or ctx
// is done. With a window cap, this blocks while msg is too far ahead of the committed
// offset.
func (om *OffsetManager) InsertOffsetWithRetry(
	ctx context.Context,
	msg *kafka.Message,
) {
	for {
		err := om.InsertOffset(ctx, msg.TopicPartition)
		if err == nil || ctx.Err() != nil {
			return
		}

		om.log.Warnw("retrying InsertOffset", "error", err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(insertRetryDelay):
		}
	}
}

func (om *OffsetManager) newWindow(start kafka.Offset) *watermark.Set[kafka.Offset] {
	return watermark.NewFrom(start, watermark.WithMaxBuckets(om.maxBuckets))
}
