package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ava-labs/watermarkset/pkg/metrics"
	"github.com/ava-labs/watermarkset/pkg/watermark"
)

const (
	testCommitInterval = 10 * time.Millisecond
	eventually         = time.Second
	tick               = 5 * time.Millisecond
)

func createLogger(t *testing.T) *zap.SugaredLogger {
	logger, err := zap.NewDevelopment()
	require.NoError(t, err)
	return logger.Sugar()
}

func lastCommitted(om *OffsetManager, partition int32) kafka.Offset {
	om.mutex.Lock()
	defer om.mutex.Unlock()
	state := om.partitionStates[partition]
	if state == nil {
		return kafka.OffsetInvalid
	}
	return state.lastCommitted
}

func windowBuckets(om *OffsetManager, partition int32) int {
	om.mutex.Lock()
	defer om.mutex.Unlock()
	state := om.partitionStates[partition]
	if state == nil || state.processed == nil {
		return 0
	}
	return state.processed.WindowLen()
}

func requireCommitted(t *testing.T, om *OffsetManager, partition int32, want kafka.Offset) {
	t.Helper()
	require.Eventually(t, func() bool {
		return lastCommitted(om, partition) == want
	}, eventually, tick, "partition %d lastCommitted=%d, want %d", partition, lastCommitted(om, partition), want)
}

func insert(t *testing.T, om *OffsetManager, partition int32, offsets ...kafka.Offset) {
	t.Helper()
	for _, o := range offsets {
		require.NoError(t, om.InsertOffset(t.Context(), kafka.TopicPartition{Partition: partition, Offset: o}))
	}
}

// Out of order InsertOffset() calls commit every contiguous offset from the
// committed one, including offset 0, and keep later offsets in the window.
func TestUnorderedOffsetsFromZero(t *testing.T) {
	t.Parallel()
	partition := int32(0)
	assignment := []kafka.TopicPartition{{Partition: partition, Offset: 0}}

	om := NewOffsetManager(t.Context(), nil, testCommitInterval, "latest", true, createLogger(t))
	require.NoError(t, om.RebalanceCb(nil, kafka.AssignedPartitions{Partitions: assignment}))

	insert(t, om, partition, 20, 3, 1, 0, 2)

	requireCommitted(t, om, partition, 4)
	require.Equal(t, 1, windowBuckets(om, partition))

	processed, err := om.IsProcessed(partition, 20)
	require.NoError(t, err)
	require.True(t, processed)
	processed, err = om.IsProcessed(partition, 4)
	require.NoError(t, err)
	require.False(t, processed)
}

// Offsets below the committed offset are no-ops.
func TestOrderedOffsets(t *testing.T) {
	t.Parallel()
	partition := int32(1)
	assignment := []kafka.TopicPartition{{Partition: partition, Offset: 3}}

	om := NewOffsetManager(t.Context(), nil, testCommitInterval, "latest", true, createLogger(t))
	require.NoError(t, om.RebalanceCb(nil, kafka.AssignedPartitions{Partitions: assignment}))

	// if used correctly, offsets 0 and 2 are never delivered
	insert(t, om, partition, 0, 2, 3, 4)
	requireCommitted(t, om, partition, 5)

	insert(t, om, partition, 5, 6)
	requireCommitted(t, om, partition, 7)
}

func TestGapBetweenLastCommittedAndWindow(t *testing.T) {
	t.Parallel()
	partition := int32(2)
	assignment := []kafka.TopicPartition{{Partition: partition, Offset: 0}}

	om := NewOffsetManager(t.Context(), nil, testCommitInterval, "latest", true, createLogger(t))
	require.NoError(t, om.RebalanceCb(nil, kafka.AssignedPartitions{Partitions: assignment}))

	insert(t, om, partition, 2, 3, 4)
	time.Sleep(3 * testCommitInterval)
	require.Equal(t, kafka.Offset(0), lastCommitted(om, partition))

	insert(t, om, partition, 1)
	time.Sleep(3 * testCommitInterval)
	require.Equal(t, kafka.Offset(0), lastCommitted(om, partition))

	insert(t, om, partition, 0)
	requireCommitted(t, om, partition, 5)
}

func TestMultiplePartitions(t *testing.T) {
	t.Parallel()
	p1 := int32(0)
	p2 := int32(3)
	assignment := []kafka.TopicPartition{
		{Partition: p1, Offset: 0},
		{Partition: p2, Offset: 5},
	}

	om := NewOffsetManager(t.Context(), nil, testCommitInterval, "latest", true, createLogger(t))
	require.NoError(t, om.RebalanceCb(nil, kafka.AssignedPartitions{Partitions: assignment}))

	insert(t, om, p1, 0, 1, 2, 3)
	insert(t, om, p2, 3, 4, 5, 6)

	requireCommitted(t, om, p1, 4)
	requireCommitted(t, om, p2, 7)
}

// A second partition assignment is added, then all partitions are revoked.
func TestRebalanceEvent(t *testing.T) {
	t.Parallel()
	ctx := t.Context()
	p1 := int32(0)
	assignment := []kafka.TopicPartition{{Partition: p1, Offset: 0}}

	om := NewOffsetManager(ctx, nil, testCommitInterval, "latest", true, createLogger(t))
	require.NoError(t, om.RebalanceCb(nil, kafka.AssignedPartitions{Partitions: assignment}))

	insert(t, om, p1, 0, 1, 2)
	requireCommitted(t, om, p1, 3)

	// simulate rebalance adding partition assignment
	p2 := int32(3)
	require.NoError(t, om.RebalanceCb(nil, kafka.AssignedPartitions{
		Partitions: []kafka.TopicPartition{{Partition: p2, Offset: 5}},
	}))

	// p1 state should not be affected
	require.Equal(t, kafka.Offset(3), lastCommitted(om, p1))
	require.Equal(t, kafka.Offset(5), lastCommitted(om, p2))

	insert(t, om, p2, 5, 6)

	require.NoError(t, om.RebalanceCb(nil, kafka.RevokedPartitions{
		Partitions: []kafka.TopicPartition{{Partition: p1}},
	}))

	requireCommitted(t, om, p2, 7)

	// ignored with a warning
	require.NoError(t, om.InsertOffset(ctx, kafka.TopicPartition{Partition: p1, Offset: 8}))
	_, err := om.IsProcessed(p1, 0)
	require.ErrorIs(t, err, ErrPartitionNotAssigned)

	om.mutex.Lock()
	require.Nil(t, om.partitionStates[p1])
	require.Len(t, om.partitionStates, 1)
	om.mutex.Unlock()

	// revoke the last partition, consumer would be completely unassigned
	require.NoError(t, om.RebalanceCb(nil, kafka.RevokedPartitions{
		Partitions: []kafka.TopicPartition{{Partition: p2}},
	}))
	om.mutex.Lock()
	require.Empty(t, om.partitionStates)
	om.mutex.Unlock()
	time.Sleep(3 * testCommitInterval) // managerLoop should do nothing
}

// Without a stored offset the window starts at the first processed message.
func TestWindowStartsAtFirstFetchedOffset(t *testing.T) {
	t.Parallel()
	partition := int32(0)
	assignment := []kafka.TopicPartition{{Partition: partition, Offset: kafka.OffsetInvalid}}

	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)

	om := NewOffsetManager(t.Context(), nil, testCommitInterval, "latest", true, createLogger(t), WithOffsetMetrics(m))
	require.NoError(t, om.RebalanceCb(nil, kafka.AssignedPartitions{Partitions: assignment}))
	require.Equal(t, kafka.OffsetInvalid, lastCommitted(om, partition))

	for _, o := range []kafka.Offset{100, 101, 105, 106} {
		om.MarkFetched(kafka.TopicPartition{Partition: partition, Offset: o})
	}
	require.Equal(t, kafka.Offset(100), lastCommitted(om, partition))

	// 105 and 106 finish while 100 is still in flight.
	insert(t, om, partition, 105, 106)
	time.Sleep(5 * testCommitInterval)
	require.Equal(t, kafka.Offset(100), lastCommitted(om, partition))

	processed, err := om.IsProcessed(partition, 100)
	require.NoError(t, err)
	require.False(t, processed)

	insert(t, om, partition, 100)
	requireCommitted(t, om, partition, 101)

	insert(t, om, partition, 101, 102, 103, 104)
	requireCommitted(t, om, partition, 107)

	require.Eventually(t, func() bool {
		n, err := testutil.GatherAndCount(reg, "watermarkset_kafka_offset_commits_total")
		return err == nil && n > 0
	}, eventually, tick)
}

func TestMarkFetched_KeepsCommittedStart(t *testing.T) {
	t.Parallel()
	partition := int32(0)
	om := NewOffsetManager(t.Context(), nil, time.Hour, "latest", true, createLogger(t))
	require.NoError(t, om.RebalanceCb(nil, kafka.AssignedPartitions{
		Partitions: []kafka.TopicPartition{{Partition: partition, Offset: 40}},
	}))

	om.MarkFetched(kafka.TopicPartition{Partition: partition, Offset: 45})
	require.Equal(t, kafka.Offset(40), lastCommitted(om, partition))

	// Unassigned partitions and logical offsets are ignored.
	om.MarkFetched(kafka.TopicPartition{Partition: 9, Offset: 1})
	om.MarkFetched(kafka.TopicPartition{Partition: partition, Offset: kafka.OffsetEnd})
	require.Equal(t, kafka.Offset(40), lastCommitted(om, partition))
}

func TestInsertOffset_IgnoredBeforeFirstFetch(t *testing.T) {
	t.Parallel()
	partition := int32(0)
	om := NewOffsetManager(t.Context(), nil, testCommitInterval, "latest", true, createLogger(t))
	require.NoError(t, om.RebalanceCb(nil, kafka.AssignedPartitions{
		Partitions: []kafka.TopicPartition{{Partition: partition, Offset: kafka.OffsetInvalid}},
	}))

	insert(t, om, partition, 105)
	time.Sleep(5 * testCommitInterval)
	require.Equal(t, kafka.OffsetInvalid, lastCommitted(om, partition))
	require.Zero(t, windowBuckets(om, partition))
}

func TestInsertOffset_IgnoresLogicalOffsets(t *testing.T) {
	t.Parallel()
	partition := int32(0)
	om := NewOffsetManager(t.Context(), nil, time.Hour, "latest", true, createLogger(t))
	require.NoError(t, om.RebalanceCb(nil, kafka.AssignedPartitions{
		Partitions: []kafka.TopicPartition{{Partition: partition, Offset: kafka.OffsetInvalid}},
	}))

	insert(t, om, partition, kafka.OffsetEnd)
	require.Equal(t, kafka.OffsetInvalid, lastCommitted(om, partition))
}

func TestInsertOffset_WindowCap(t *testing.T) {
	t.Parallel()
	partition := int32(0)
	om := NewOffsetManager(t.Context(), nil, time.Hour, "latest", true, createLogger(t), WithOffsetWindowCap(1))
	require.NoError(t, om.RebalanceCb(nil, kafka.AssignedPartitions{
		Partitions: []kafka.TopicPartition{{Partition: partition, Offset: 0}},
	}))

	err := om.InsertOffset(t.Context(), kafka.TopicPartition{Partition: partition, Offset: 64})
	require.ErrorIs(t, err, watermark.ErrAddressingOverflow)

	for o := kafka.Offset(0); o < 64; o++ {
		insert(t, om, partition, o)
	}
	// The first bucket is full, so the window slid and 64 is addressable.
	insert(t, om, partition, 64)

	om.Commit()
	require.Equal(t, kafka.Offset(65), lastCommitted(om, partition))
}

func TestInsertOffsetWithRetry_WaitsForWindow(t *testing.T) {
	t.Parallel()
	partition := int32(0)
	om := NewOffsetManager(t.Context(), nil, time.Hour, "latest", true, createLogger(t), WithOffsetWindowCap(1))
	require.NoError(t, om.RebalanceCb(nil, kafka.AssignedPartitions{
		Partitions: []kafka.TopicPartition{{Partition: partition, Offset: 0}},
	}))

	topic := "t"
	done := make(chan struct{})
	go func() {
		defer close(done)
		om.InsertOffsetWithRetry(t.Context(), &kafka.Message{
			TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: partition, Offset: 70},
		})
	}()

	select {
	case <-done:
		require.Fail(t, "insert beyond the window cap should block")
	case <-time.After(50 * time.Millisecond):
	}

	for o := kafka.Offset(0); o < 64; o++ {
		insert(t, om, partition, o)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		require.Fail(t, "timeout waiting for retried insert")
	}
	processed, err := om.IsProcessed(partition, 70)
	require.NoError(t, err)
	require.True(t, processed)
}

func TestInsertOffsetWithRetry_StopsOnCancel(t *testing.T) {
	t.Parallel()
	partition := int32(0)
	om := NewOffsetManager(t.Context(), nil, time.Hour, "latest", true, createLogger(t), WithOffsetWindowCap(1))
	require.NoError(t, om.RebalanceCb(nil, kafka.AssignedPartitions{
		Partitions: []kafka.TopicPartition{{Partition: partition, Offset: 0}},
	}))

	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	om.InsertOffsetWithRetry(ctx, &kafka.Message{
		TopicPartition: kafka.TopicPartition{Partition: partition, Offset: 1000},
	})
	require.Less(t, time.Since(start), time.Second)
}
