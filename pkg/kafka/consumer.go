package kafka

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	cKafka "github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/ava-labs/watermarkset/pkg/metrics"
)

// DLQ headers describing where a failed message came from.
const (
	HeaderDLQTopic     = "x-dlq-original-topic"
	HeaderDLQPartition = "x-dlq-original-partition"
	HeaderDLQOffset    = "x-dlq-original-offset"
	HeaderDLQError     = "x-dlq-error"
)

// Processor handles a single consumed message. A returned error routes the message to the
// DLQ, or stops the consumer when DLQ publishing is disabled.
type Processor interface {
	Process(ctx context.Context, msg *cKafka.Message) error
}

type dlqProducer interface {
	Publisher
	Errors() <-chan error
	Close(timeout time.Duration)
}

// Consumer consumes Kafka messages, hands them to a Processor, and handles failures via DLQ.
// Offsets are committed through an OffsetManager once messages are processed, and
// redelivered messages already processed in this assignment are skipped.
type Consumer struct {
	processor         Processor
	consumer          *cKafka.Consumer
	dlqProducer       dlqProducer
	log               *zap.SugaredLogger
	metrics           *metrics.Metrics
	rebalanceContexts map[int32]rebalanceCtx
	rebalanceMutex    sync.RWMutex
	sem               *semaphore.Weighted
	offsetManager     *OffsetManager
	logsDone          chan struct{}
	doneCh            chan struct{}
	errCh             chan error
	cfg               ConsumerConfig
}

type rebalanceCtx struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// ConsumerOption configures optional Consumer dependencies.
type ConsumerOption func(*Consumer)

// WithConsumerMetrics reports consumer, DLQ and offset metrics to m.
func WithConsumerMetrics(m *metrics.Metrics) ConsumerOption {
	return func(c *Consumer) {
		c.metrics = m
	}
}

// NewConsumer creates a new Consumer. Unset timeouts in cfg take their defaults.
func NewConsumer(
	ctx context.Context,
	log *zap.SugaredLogger,
	cfg ConsumerConfig,
	processor Processor,
	opts ...ConsumerOption,
) (*Consumer, error) {
	if processor == nil {
		return nil, errors.New("invalid processor: must not be nil")
	}
	cfg = cfg.WithDefaults()
	if cfg.Concurrency <= 0 {
		return nil, errors.New("invalid concurrency: must be greater than 0")
	}

	c := &Consumer{
		log:               log,
		cfg:               cfg,
		sem:               semaphore.NewWeighted(cfg.Concurrency),
		rebalanceContexts: make(map[int32]rebalanceCtx),
		logsDone:          make(chan struct{}),
		errCh:             make(chan error, 1),
		doneCh:            make(chan struct{}),
		processor:         processor,
	}
	for _, opt := range opts {
		opt(c)
	}

	consumerConfig := cKafka.ConfigMap{
		"bootstrap.servers":             cfg.BootstrapServers,
		"group.id":                      cfg.GroupID,
		"auto.offset.reset":             cfg.AutoOffsetReset,
		"enable.auto.commit":            false,
		"session.timeout.ms":            int(cfg.SessionTimeout.Milliseconds()),
		"max.poll.interval.ms":          int(cfg.MaxPollInterval.Milliseconds()),
		"partition.assignment.strategy": "roundrobin",
		"go.logs.channel.enable":        cfg.EnableLogs,
	}
	cfg.SASL.ApplyToConfigMap(&consumerConfig)
	consumer, err := cKafka.NewConsumer(&consumerConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}
	c.consumer = consumer

	dlqProducerConfig := cKafka.ConfigMap{
		"bootstrap.servers":      cfg.BootstrapServers,
		"acks":                   "all",
		"linger.ms":              5,
		"batch.size":             16384,
		"compression.type":       "lz4",
		"enable.idempotence":     true,
		"go.logs.channel.enable": cfg.EnableLogs,
	}
	cfg.SASL.ApplyToConfigMap(&dlqProducerConfig)
	dlq, err := NewProducer(ctx, &dlqProducerConfig, log)
	if err != nil {
		_ = consumer.Close()
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	c.dlqProducer = dlq

	c.offsetManager = NewOffsetManager(
		ctx,
		consumer,
		cfg.OffsetManagerCommitInterval,
		cfg.AutoOffsetReset,
		false,
		log,
		WithOffsetMetrics(c.metrics),
		WithOffsetWindowCap(cfg.OffsetWindowBuckets),
	)

	return c, nil
}

// Start begins consuming messages from the configured topic. It blocks until ctx is
// done or a fatal error occurs, then waits for in-flight messages, commits processed
// offsets and closes the consumer.
func (c *Consumer) Start(ctx context.Context) error {
	ctxWithCancel, cancel := context.WithCancel(ctx)
	defer cancel()

	if !c.cfg.PublishToDLQ {
		c.log.Warnw("DLQ publishing disabled - a processing failure stops the consumer",
			"topic", c.cfg.Topic,
		)
	}

	// start kafka logs printing if enabled
	if c.cfg.EnableLogs {
		go c.printKafkaLogs(ctxWithCancel)
	} else {
		close(c.logsDone)
	}

	if err := c.consumer.SubscribeTopics([]string{c.cfg.Topic}, c.getRebalanceCallback(ctxWithCancel)); err != nil {
		return fmt.Errorf("failed to subscribe to topics: %w", err)
	}

	pollMs := int(c.cfg.PollInterval.Milliseconds())
	var runErr error
	run := true
	for run {
		select {
		case <-ctx.Done():
			c.log.Info("context done, shutting down consumer...")
			run = false
			continue
		case err := <-c.dlqProducer.Errors():
			c.log.Errorw("fatal error from DLQ producer, shutting down consumer", "error", err)
			runErr = err
			run = false
			continue
		case err := <-c.errCh:
			c.log.Errorw("error from consumer, shutting down consumer", "error", err)
			runErr = err
			run = false
			continue
		default:
			ev := c.consumer.Poll(pollMs)
			if ev == nil {
				continue
			}

			switch msg := ev.(type) {
			case *cKafka.Message:
				c.metrics.RecordMessageReceived(msg.TopicPartition.Partition)
				c.rebalanceMutex.RLock()
				rCtx, ok := c.rebalanceContexts[msg.TopicPartition.Partition]
				c.rebalanceMutex.RUnlock()
				if !ok {
					c.log.Errorw("partition not found in rebalance context", "partition", msg.TopicPartition.Partition)
					continue
				}
				c.offsetManager.MarkFetched(msg.TopicPartition)
				// if the context is cancelled during dispatch, the offset is never
				// inserted and the msg will be reprocessed on restart
				c.dispatch(rCtx.ctx, msg)
			case cKafka.Error:
				c.metrics.RecordKafkaError(msg.IsFatal())
				if msg.IsFatal() {
					c.log.Errorw("fatal kafka error", "error", msg)
					runErr = msg
					run = false
					continue
				}
				c.log.Warnw("kafka error (non-fatal)", "error", msg)
			default:
				c.metrics.IncreaseUnknownEventCount()
				c.log.Debugw("ignoring kafka event", "event", msg)
			}
		}
	}

	if err := c.close(); err != nil {
		c.log.Errorw("failed to close consumer", "error", err)
		runErr = errors.Join(runErr, err)
	}

	c.log.Info("consumer shutdown complete")
	return runErr
}

// dispatch acquires a semaphore slot and handles the message in a goroutine.
func (c *Consumer) dispatch(ctx context.Context, msg *cKafka.Message) {
	// Acquire semaphore (blocks if max concurrency reached)
	if err := c.sem.Acquire(ctx, 1); err != nil {
		if ctx.Err() == nil {
			c.fail(fmt.Errorf("failed to acquire semaphore: %w", err))
		}
		return
	}

	go func() {
		defer c.sem.Release(1)
		c.handle(ctx, msg)
	}()
}

// handle processes one message and records its offset once it is either processed or
// parked in the DLQ.
func (c *Consumer) handle(ctx context.Context, msg *cKafka.Message) {
	tp := msg.TopicPartition
	processed, err := c.offsetManager.IsProcessed(tp.Partition, tp.Offset)
	if err == nil && processed {
		c.metrics.RecordRedeliverySkipped(tp.Partition)
		c.log.Debugw("skipping redelivered message", "partition", tp.Partition, "offset", tp.Offset)
		return
	}

	c.metrics.IncMessagesInFlight()
	start := time.Now()
	err = c.processor.Process(ctx, msg)
	c.metrics.RecordMessageProcessed(tp.Partition, err, time.Since(start).Seconds())
	c.metrics.DecMessagesInFlight()

	if err != nil {
		if ctx.Err() != nil {
			// Partition revoked or shutting down; the next owner reprocesses it.
			return
		}
		if !c.cfg.PublishToDLQ {
			c.fail(fmt.Errorf("process message at partition %d offset %d: %w", tp.Partition, tp.Offset, err))
			return
		}
		if publishErr := c.publishToDLQ(ctx, msg, err); publishErr != nil {
			c.log.Errorw("failed to publish to DLQ", "error", publishErr)
			c.fail(publishErr)
			return
		}
	}
	c.offsetManager.InsertOffsetWithRetry(ctx, msg)
}

// fail reports an error that stops the consumer. Only the first error is kept.
func (c *Consumer) fail(err error) {
	select {
	case c.errCh <- err:
	default:
		c.log.Warnw("consumer already stopping, dropping error", "error", err)
	}
}

// publishToDLQ sends a failed message to the dead letter queue with its original
// headers and provenance.
func (c *Consumer) publishToDLQ(ctx context.Context, msg *cKafka.Message, cause error) error {
	if c.cfg.DLQTopic == "" {
		return errors.New("DLQ topic not configured")
	}

	headers := make(map[string]string, len(msg.Headers)+4)
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	var originalTopic string
	if msg.TopicPartition.Topic != nil {
		originalTopic = *msg.TopicPartition.Topic
	}
	headers[HeaderDLQTopic] = originalTopic
	headers[HeaderDLQPartition] = strconv.Itoa(int(msg.TopicPartition.Partition))
	headers[HeaderDLQOffset] = strconv.FormatInt(int64(msg.TopicPartition.Offset), 10)
	if cause != nil {
		headers[HeaderDLQError] = cause.Error()
	}

	dlqMsg := Msg{
		Topic:   c.cfg.DLQTopic,
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: headers,
	}

	start := time.Now()
	err := c.dlqProducer.Produce(ctx, dlqMsg)
	c.metrics.RecordDLQProduction(err, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("failed to produce to DLQ: %w", err)
	}

	c.log.Infow("published message to DLQ",
		"originalTopic", originalTopic,
		"originalPartition", msg.TopicPartition.Partition,
		"originalOffset", msg.TopicPartition.Offset,
		"dlqTopic", c.cfg.DLQTopic,
	)

	return nil
}

// close waits for in-flight handlers, commits what they finished and shuts down the
// consumer and DLQ producer.
func (c *Consumer) close() error {
	close(c.doneCh)
	<-c.logsDone

	waitCtx, cancel := context.WithTimeout(context.Background(), *c.cfg.GoroutineWaitTimeout)
	defer cancel()
	if err := c.sem.Acquire(waitCtx, c.cfg.Concurrency); err != nil {
		c.log.Warnw("timed out waiting for in-flight messages, they will be redelivered", "error", err)
	} else {
		c.sem.Release(c.cfg.Concurrency)
	}

	c.offsetManager.Commit()
	c.dlqProducer.Close(*c.cfg.FlushTimeout)
	return c.consumer.Close()
}

// rebalanceCallback handles partition assignment and revocation.
func (c *Consumer) getRebalanceCallback(ctx context.Context) cKafka.RebalanceCb {
	return func(kc *cKafka.Consumer, event cKafka.Event) error {
		c.rebalanceMutex.Lock()
		defer c.rebalanceMutex.Unlock()

		switch ev := event.(type) {
		case cKafka.AssignedPartitions:
			c.log.Infow("partitions assigned",
				"protocol", kc.GetRebalanceProtocol(),
				"count", len(ev.Partitions),
				"partitions", ev.Partitions,
			)
			for _, partition := range ev.Partitions {
				rCtx := rebalanceCtx{}
				rCtx.ctx, rCtx.cancel = context.WithCancel(ctx)
				c.rebalanceContexts[partition.Partition] = rCtx
			}
			c.metrics.RecordPartitionAssignment(partitionIDs(ev.Partitions))

		case cKafka.RevokedPartitions:
			c.log.Infow("partitions revoked",
				"protocol", kc.GetRebalanceProtocol(),
				"count", len(ev.Partitions),
				"partitions", ev.Partitions,
			)

			if kc.AssignmentLost() {
				c.log.Error("assignment lost involuntarily, commit may fail")
			} else {
				// Commit what finished before the state is dropped.
				c.offsetManager.Commit()
			}

			for _, partition := range ev.Partitions {
				if rCtx, ok := c.rebalanceContexts[partition.Partition]; ok {
					rCtx.cancel()
				}
				c.log.Debugf("revoked partition %d", partition.Partition)
				delete(c.rebalanceContexts, partition.Partition)
			}
			c.metrics.RecordPartitionRevocation(partitionIDs(ev.Partitions))
		default:
			c.log.Warnw("unexpected rebalance event", "event", event)
		}
		return c.offsetManager.RebalanceCb(kc, event)
	}
}

func partitionIDs(tps []cKafka.TopicPartition) []int32 {
	ids := make([]int32, len(tps))
	for i, tp := range tps {
		ids[i] = tp.Partition
	}
	return ids
}

// printKafkaLogs prints kafka logs to the console.
func (c *Consumer) printKafkaLogs(ctx context.Context) {
	defer close(c.logsDone)
	for {
		select {
		case <-ctx.Done():
			c.log.Info("stopping kafka logs printing for consumer")
			return
		case <-c.doneCh:
			c.log.Info("stopping kafka logs printing for consumer, done channel closed")
			return
		case log, ok := <-c.consumer.Logs():
			if !ok {
				c.log.Info("kafka logs printing for consumer, event channel closed")
				return
			}
			c.log.Debugf("consumer level: %d tag: %s message: %s ", log.Level, log.Tag, log.Message)
		}
	}
}
