package metrics

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	Namespace = "watermarkset"

	// Status label values for success/error metrics
	StatusSuccess = "success"
	StatusError   = "error"

	Window        = "window"
	Emitter       = "emitter"
	KafkaOffset   = "kafka_offset"
	KafkaConsumer = "kafka_consumer"
	Consumer      = "consumer"
	Dedup         = "dedup"
	Checkpoint    = "checkpoint"
)

// Labels holds constant labels applied to all metrics.
// These are useful for distinguishing metrics from multiple pipeline instances.
type Labels struct {
	Stream        string // Logical stream name (e.g., "orders")
	Environment   string // Deployment environment (e.g., "production", "staging", "development")
	Region        string // Cloud region (e.g., "us-east-1", "eu-west-1")
	CloudProvider string // Cloud provider (e.g., "aws", "oci", "gcp")
}

// toPrometheusLabels converts Labels to prometheus.Labels map.
// Only non-empty labels are included to avoid empty label values.
func (l Labels) toPrometheusLabels() prometheus.Labels {
	labels := prometheus.Labels{}
	if l.Stream != "" {
		labels["stream"] = l.Stream
	}
	if l.Environment != "" {
		labels["environment"] = l.Environment
	}
	if l.Region != "" {
		labels["region"] = l.Region
	}
	if l.CloudProvider != "" {
		labels["cloud_provider"] = l.CloudProvider
	}
	return labels
}

type Metrics struct {
	// Sliding window state
	lowest        prometheus.Gauge
	highest       prometheus.Gauge
	windowBuckets prometheus.Gauge

	// Processing counters
	sequencesProcessed prometheus.Counter
	lowestAdvances     prometheus.Counter
	sequenceFailures   prometheus.Counter
	errors             *prometheus.CounterVec

	// Processing latency
	sequenceProcessingDuration prometheus.Histogram

	// Emitter
	eventsProduced   *prometheus.CounterVec
	produceDuration  prometheus.Histogram
	producesInFlight prometheus.Gauge

	// Kafka offset manager metrics
	lastCommittedOffset   *prometheus.GaugeVec
	latestProcessedOffset *prometheus.GaugeVec
	offsetLag             *prometheus.GaugeVec
	offsetWindowBuckets   *prometheus.GaugeVec
	offsetCommits         *prometheus.CounterVec
	commitDuration        *prometheus.HistogramVec
	offsetInserts         *prometheus.CounterVec
	offsetInsertErrors    *prometheus.CounterVec
	redeliveriesSkipped   *prometheus.CounterVec

	// Kafka consumer rebalance metrics
	rebalanceEvents      *prometheus.CounterVec
	partitionAssignments *prometheus.CounterVec
	partitionRevocations *prometheus.CounterVec
	assignedPartitions   prometheus.Gauge

	// Consumer message processing metrics
	messagesReceived          *prometheus.CounterVec   // by partition
	messagesProcessed         *prometheus.CounterVec   // by partition, status
	messageProcessingDuration *prometheus.HistogramVec // by partition
	messagesInFlight          prometheus.Gauge

	// DLQ production metrics
	dlqProduced           *prometheus.CounterVec // by status
	dlqProductionDuration prometheus.Histogram

	// Consumer error metrics
	kafkaErrors   *prometheus.CounterVec // by severity (fatal/non_fatal)
	unknownEvents prometheus.Counter

	// Dedup
	dedupUnique        prometheus.Counter
	dedupDuplicates    prometheus.Counter
	dedupWatermark     prometheus.Gauge
	dedupWindowBuckets prometheus.Gauge
	dedupForwarded     *prometheus.CounterVec

	// Checkpoints
	checkpointWrites *prometheus.CounterVec
	checkpointValue  prometheus.Gauge
}

// New creates a new Metrics instance and registers all metrics with the provided registerer.
// Returns an error if any metric registration fails.
// For metrics with constant labels (e.g., stream), use NewWithLabels instead.
func New(reg prometheus.Registerer) (*Metrics, error) {
	return NewWithLabels(reg, Labels{})
}

// NewWithLabels creates a new Metrics instance with constant labels applied to all metrics.
// This is useful when running one pipeline per stream and needing to filter by stream.
func NewWithLabels(reg prometheus.Registerer, labels Labels) (*Metrics, error) {
	promLabels := labels.toPrometheusLabels()
	if len(promLabels) > 0 {
		reg = prometheus.WrapRegistererWith(promLabels, reg)
	}

	return newMetrics(reg)
}

var latencyBuckets = []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}

func newMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		lowest: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: Window,
			Name:      "lowest",
			Help:      "Lowest unprocessed sequence number (window lower bound)",
		}),
		highest: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: Window,
			Name:      "highest",
			Help:      "Highest submitted sequence number (window upper bound)",
		}),
		windowBuckets: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: Window,
			Name:      "buckets",
			Help:      "Number of 64-bit buckets tracked above the processed watermark",
		}),
		sequencesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Window,
			Name:      "sequences_processed_total",
			Help:      "Total number of sequences processed and committed",
		}),
		lowestAdvances: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Window,
			Name:      "lowest_advances_total",
			Help:      "Total number of times the lowest unprocessed sequence advanced",
		}),
		sequenceFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Window,
			Name:      "sequence_failures_total",
			Help:      "Total number of failed worker attempts",
		}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "errors_total",
			Help:      "Total errors by type",
		}, []string{"type"}),
		sequenceProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: Window,
			Name:      "sequence_processing_duration_seconds",
			Help:      "Time to process a single sequence end-to-end",
			Buckets:   latencyBuckets,
		}),
		eventsProduced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Emitter,
			Name:      "events_produced_total",
			Help:      "Total events produced by status",
		}, []string{"status"}),
		produceDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: Emitter,
			Name:      "produce_duration_seconds",
			Help:      "Time from produce call to delivery confirmation",
			Buckets:   latencyBuckets,
		}),
		producesInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: Emitter,
			Name:      "produces_in_flight",
			Help:      "Number of produce calls awaiting delivery confirmation",
		}),
		lastCommittedOffset: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: KafkaOffset,
			Name:      "last_committed",
			Help:      "Last offset successfully committed to Kafka for each partition",
		}, []string{"partition"}),
		latestProcessedOffset: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: KafkaOffset,
			Name:      "latest_processed",
			Help:      "Latest offset marked processed for each partition",
		}, []string{"partition"}),
		offsetLag: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: KafkaOffset,
			Name:      "lag",
			Help:      "Number of uncommitted offsets (latestProcessed - lastCommitted) for each partition",
		}, []string{"partition"}),
		offsetWindowBuckets: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: KafkaOffset,
			Name:      "window_buckets",
			Help:      "Number of 64-bit buckets tracked above the offset watermark for each partition",
		}, []string{"partition"}),
		offsetCommits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: KafkaOffset,
			Name:      "commits_total",
			Help:      "Total number of offset commit attempts by partition and status",
		}, []string{"partition", "status"}),
		commitDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: KafkaOffset,
			Name:      "commit_duration_seconds",
			Help:      "Time taken to commit offsets to Kafka by partition",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"partition"}),
		offsetInserts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: KafkaOffset,
			Name:      "inserts_total",
			Help:      "Total number of offsets marked processed by partition",
		}, []string{"partition"}),
		offsetInsertErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: KafkaOffset,
			Name:      "insert_errors_total",
			Help:      "Total number of offsets rejected by the offset window by partition",
		}, []string{"partition"}),
		redeliveriesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: KafkaOffset,
			Name:      "redeliveries_skipped_total",
			Help:      "Total number of redelivered messages skipped because their offset was already processed",
		}, []string{"partition"}),
		rebalanceEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: KafkaConsumer,
			Name:      "rebalance_events_total",
			Help:      "Total number of consumer group rebalance events by type",
		}, []string{"type"}),
		partitionAssignments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: KafkaConsumer,
			Name:      "partition_assignments_total",
			Help:      "Total number of times a partition has been assigned to this consumer",
		}, []string{"partition"}),
		partitionRevocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: KafkaConsumer,
			Name:      "partition_revocations_total",
			Help:      "Total number of times a partition has been revoked from this consumer",
		}, []string{"partition"}),
		assignedPartitions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: KafkaConsumer,
			Name:      "assigned_partitions",
			Help:      "Current number of partitions assigned to this consumer",
		}),
		messagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Consumer,
			Name:      "messages_received_total",
			Help:      "Total number of messages polled from Kafka by partition",
		}, []string{"partition"}),
		messagesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Consumer,
			Name:      "messages_processed_total",
			Help:      "Total number of messages processed by partition and status",
		}, []string{"partition", "status"}),
		messageProcessingDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: Consumer,
			Name:      "message_processing_duration_seconds",
			Help:      "End-to-end message dispatch duration including processing, offset marking, and DLQ publish by partition",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"partition"}),
		messagesInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: Consumer,
			Name:      "messages_in_flight",
			Help:      "Number of messages currently being processed",
		}),
		dlqProduced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Consumer,
			Name:      "dlq_produced_total",
			Help:      "Total number of messages published to the dead letter queue by status",
		}, []string{"status"}),
		dlqProductionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: Consumer,
			Name:      "dlq_production_duration_seconds",
			Help:      "Time taken to publish a message to the dead letter queue",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}),
		kafkaErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Consumer,
			Name:      "kafka_errors_total",
			Help:      "Total number of Kafka errors received by severity (fatal/non_fatal)",
		}, []string{"severity"}),
		unknownEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Consumer,
			Name:      "unknown_events_total",
			Help:      "Total number of unknown events received by consumer",
		}),
		dedupUnique: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Dedup,
			Name:      "unique_total",
			Help:      "Total number of events seen for the first time",
		}),
		dedupDuplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Dedup,
			Name:      "duplicates_total",
			Help:      "Total number of events dropped as duplicates",
		}),
		dedupWatermark: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: Dedup,
			Name:      "watermark",
			Help:      "Every sequence below this value has been seen",
		}),
		dedupWindowBuckets: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: Dedup,
			Name:      "window_buckets",
			Help:      "Number of 64-bit buckets tracked above the dedup watermark",
		}),
		dedupForwarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Dedup,
			Name:      "forwarded_total",
			Help:      "Total number of unique events forwarded by status",
		}, []string{"status"}),
		checkpointWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Checkpoint,
			Name:      "writes_total",
			Help:      "Total number of checkpoint write attempts by status",
		}, []string{"status"}),
		checkpointValue: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: Checkpoint,
			Name:      "value",
			Help:      "Last checkpointed lowest unprocessed sequence",
		}),
	}

	err := errors.Join(
		reg.Register(m.lowest),
		reg.Register(m.highest),
		reg.Register(m.windowBuckets),
		reg.Register(m.sequencesProcessed),
		reg.Register(m.lowestAdvances),
		reg.Register(m.sequenceFailures),
		reg.Register(m.errors),
		reg.Register(m.sequenceProcessingDuration),
		reg.Register(m.eventsProduced),
		reg.Register(m.produceDuration),
		reg.Register(m.producesInFlight),
		reg.Register(m.lastCommittedOffset),
		reg.Register(m.latestProcessedOffset),
		reg.Register(m.offsetLag),
		reg.Register(m.offsetWindowBuckets),
		reg.Register(m.offsetCommits),
		reg.Register(m.commitDuration),
		reg.Register(m.offsetInserts),
		reg.Register(m.offsetInsertErrors),
		reg.Register(m.redeliveriesSkipped),
		reg.Register(m.rebalanceEvents),
		reg.Register(m.partitionAssignments),
		reg.Register(m.partitionRevocations),
		reg.Register(m.assignedPartitions),
		reg.Register(m.messagesReceived),
		reg.Register(m.messagesProcessed),
		reg.Register(m.messageProcessingDuration),
		reg.Register(m.messagesInFlight),
		reg.Register(m.dlqProduced),
		reg.Register(m.dlqProductionDuration),
		reg.Register(m.kafkaErrors),
		reg.Register(m.unknownEvents),
		reg.Register(m.dedupUnique),
		reg.Register(m.dedupDuplicates),
		reg.Register(m.dedupWatermark),
		reg.Register(m.dedupWindowBuckets),
		reg.Register(m.dedupForwarded),
		reg.Register(m.checkpointWrites),
		reg.Register(m.checkpointValue),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// Error type constants.
const (
	ErrTypeOutOfWindow      = "out_of_window"
	ErrTypeWindowOverflow   = "window_overflow"
	ErrTypeInvalidSequence  = "invalid_sequence"
	ErrTypeInvalidWatermark = "invalid_watermark"
)

func statusOf(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusSuccess
}

// IncError increments the error counter for the given error type.
func (m *Metrics) IncError(errType string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(errType).Inc()
}

// CommitSequences records sequences being committed when the lowest unprocessed sequence advances.
func (m *Metrics) CommitSequences(count uint64, lowest, highest uint64, windowBuckets int) {
	if m == nil {
		return
	}
	m.lowestAdvances.Inc()
	m.sequencesProcessed.Add(float64(count))
	m.UpdateWindowMetrics(lowest, highest, windowBuckets)
}

// UpdateWindowMetrics updates sliding window state gauges.
func (m *Metrics) UpdateWindowMetrics(lowest, highest uint64, windowBuckets int) {
	if m == nil {
		return
	}
	m.lowest.Set(float64(lowest))
	m.highest.Set(float64(highest))
	m.windowBuckets.Set(float64(windowBuckets))
}

// ObserveSequenceProcessing records one worker attempt.
func (m *Metrics) ObserveSequenceProcessing(err error, seconds float64) {
	if m == nil {
		return
	}
	if err != nil {
		m.sequenceFailures.Inc()
	}
	m.sequenceProcessingDuration.Observe(seconds)
}

// IncProducesInFlight increments the in-flight produce gauge.
func (m *Metrics) IncProducesInFlight() {
	if m == nil {
		return
	}
	m.producesInFlight.Inc()
}

// DecProducesInFlight decrements the in-flight produce gauge.
func (m *Metrics) DecProducesInFlight() {
	if m == nil {
		return
	}
	m.producesInFlight.Dec()
}

// RecordEventProduced records an emitter produce outcome.
func (m *Metrics) RecordEventProduced(err error, durationSeconds float64) {
	if m == nil {
		return
	}
	m.eventsProduced.WithLabelValues(statusOf(err)).Inc()
	m.produceDuration.Observe(durationSeconds)
}

// UpdateOffsetMetrics updates all offset manager metrics for a partition.
func (m *Metrics) UpdateOffsetMetrics(partition int32, lastCommitted, latestProcessed int64, windowBuckets int) {
	if m == nil {
		return
	}
	partitionLabel := strconv.Itoa(int(partition))

	m.lastCommittedOffset.WithLabelValues(partitionLabel).Set(float64(lastCommitted))
	m.latestProcessedOffset.WithLabelValues(partitionLabel).Set(float64(latestProcessed))
	m.offsetWindowBuckets.WithLabelValues(partitionLabel).Set(float64(windowBuckets))

	lag := max(latestProcessed-lastCommitted, 0)
	m.offsetLag.WithLabelValues(partitionLabel).Set(float64(lag))
}

// RecordOffsetCommit records an offset commit attempt for a partition.
// Pass nil error for successful commits, non-nil for failures.
func (m *Metrics) RecordOffsetCommit(partition int32, err error, durationSeconds float64) {
	if m == nil {
		return
	}
	partitionLabel := strconv.Itoa(int(partition))
	m.offsetCommits.WithLabelValues(partitionLabel, statusOf(err)).Inc()
	m.commitDuration.WithLabelValues(partitionLabel).Observe(durationSeconds)
}

// RecordOffsetInsert records an offset being marked processed. A non-nil error means the
// offset window rejected it.
func (m *Metrics) RecordOffsetInsert(partition int32, err error) {
	if m == nil {
		return
	}
	partitionLabel := strconv.Itoa(int(partition))
	if err != nil {
		m.offsetInsertErrors.WithLabelValues(partitionLabel).Inc()
		return
	}
	m.offsetInserts.WithLabelValues(partitionLabel).Inc()
}

// RecordRedeliverySkipped records a redelivered message whose offset was already processed.
func (m *Metrics) RecordRedeliverySkipped(partition int32) {
	if m == nil {
		return
	}
	m.redeliveriesSkipped.WithLabelValues(strconv.Itoa(int(partition))).Inc()
}

// RecordPartitionAssignment records when partitions are assigned during a consumer group rebalance.
func (m *Metrics) RecordPartitionAssignment(partitions []int32) {
	if m == nil {
		return
	}

	m.rebalanceEvents.WithLabelValues("assigned").Inc()
	for _, partition := range partitions {
		m.partitionAssignments.WithLabelValues(strconv.Itoa(int(partition))).Inc()
	}
	m.assignedPartitions.Set(float64(len(partitions)))
}

// RecordPartitionRevocation records when partitions are revoked during a consumer group rebalance.
func (m *Metrics) RecordPartitionRevocation(partitions []int32) {
	if m == nil {
		return
	}

	m.rebalanceEvents.WithLabelValues("revoked").Inc()
	for _, partition := range partitions {
		m.partitionRevocations.WithLabelValues(strconv.Itoa(int(partition))).Inc()
	}
	// Cleared until the next assignment.
	m.assignedPartitions.Set(0)
}

// RecordMessageReceived increments the received counter when a message is polled from Kafka.
func (m *Metrics) RecordMessageReceived(partition int32) {
	if m == nil {
		return
	}
	m.messagesReceived.WithLabelValues(strconv.Itoa(int(partition))).Inc()
}

// RecordMessageProcessed records a message processing outcome with duration.
func (m *Metrics) RecordMessageProcessed(partition int32, err error, durationSeconds float64) {
	if m == nil {
		return
	}
	partitionLabel := strconv.Itoa(int(partition))
	m.messagesProcessed.WithLabelValues(partitionLabel, statusOf(err)).Inc()
	m.messageProcessingDuration.WithLabelValues(partitionLabel).Observe(durationSeconds)
}

// IncMessagesInFlight increments the in-flight message processing gauge.
func (m *Metrics) IncMessagesInFlight() {
	if m == nil {
		return
	}
	m.messagesInFlight.Inc()
}

// DecMessagesInFlight decrements the in-flight message processing gauge.
func (m *Metrics) DecMessagesInFlight() {
	if m == nil {
		return
	}
	m.messagesInFlight.Dec()
}

// RecordDLQProduction records a DLQ publish attempt with duration.
func (m *Metrics) RecordDLQProduction(err error, durationSeconds float64) {
	if m == nil {
		return
	}
	m.dlqProduced.WithLabelValues(statusOf(err)).Inc()
	m.dlqProductionDuration.Observe(durationSeconds)
}

// RecordKafkaError records a Kafka error by severity.
func (m *Metrics) RecordKafkaError(fatal bool) {
	if m == nil {
		return
	}
	severity := "non_fatal"
	if fatal {
		severity = "fatal"
	}
	m.kafkaErrors.WithLabelValues(severity).Inc()
}

// IncreaseUnknownEventCount increases the unknown event counter.
func (m *Metrics) IncreaseUnknownEventCount() {
	if m == nil {
		return
	}
	m.unknownEvents.Inc()
}

// RecordDedup records the outcome of a dedup check and the state of the seen set afterwards.
func (m *Metrics) RecordDedup(duplicate bool, watermark uint64, windowBuckets int) {
	if m == nil {
		return
	}
	if duplicate {
		m.dedupDuplicates.Inc()
	} else {
		m.dedupUnique.Inc()
	}
	m.dedupWatermark.Set(float64(watermark))
	m.dedupWindowBuckets.Set(float64(windowBuckets))
}

// RecordForward records a forward attempt of a unique event.
func (m *Metrics) RecordForward(err error) {
	if m == nil {
		return
	}
	m.dedupForwarded.WithLabelValues(statusOf(err)).Inc()
}

// RecordCheckpointWrite records a checkpoint write attempt.
func (m *Metrics) RecordCheckpointWrite(value uint64, err error) {
	if m == nil {
		return
	}
	m.checkpointWrites.WithLabelValues(statusOf(err)).Inc()
	if err == nil {
		m.checkpointValue.Set(float64(value))
	}
}
