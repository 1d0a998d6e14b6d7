package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ava-labs/watermarkset/pkg/checkpointer"
	"github.com/ava-labs/watermarkset/pkg/kafka"
	"github.com/ava-labs/watermarkset/pkg/kafka/processor"
	"github.com/ava-labs/watermarkset/pkg/metrics"
	"github.com/ava-labs/watermarkset/pkg/utils"
	"github.com/ava-labs/watermarkset/pkg/watermark"

	confluentKafka "github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

func run(c *cli.Context) error {
	cfg, err := buildConfig(c)
	if err != nil {
		return fmt.Errorf("failed to build config: %w", err)
	}

	sugar, err := utils.NewSugaredLoggerWithLevel(cfg.Verbose, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer sugar.Desugar().Sync() //nolint:errcheck // best-effort flush; ignore sync errors

	checkpointCfg, err := checkpointer.LoadConfig()
	if err != nil {
		return err
	}
	levelDBCfg, err := checkpointer.LoadLevelDBConfig()
	if err != nil {
		return err
	}

	sugar.Infow("config",
		"verbose", cfg.Verbose,
		"stream", cfg.Stream,
		"inputTopic", cfg.Consumer.Topic,
		"dlqTopic", cfg.Consumer.DLQTopic,
		"outputTopic", cfg.OutputTopic,
		"bootstrapServers", cfg.Consumer.BootstrapServers,
		"groupID", cfg.Consumer.GroupID,
		"concurrency", cfg.Consumer.Concurrency,
		"publishToDLQ", cfg.Consumer.PublishToDLQ,
		"seenBuckets", cfg.SeenBuckets,
		"seenMaxMemory", utils.BucketsSize(cfg.SeenBuckets),
		"checkpointInterval", checkpointCfg.Interval,
		"checkpointPath", levelDBCfg.Path,
		"metricsHost", cfg.MetricsHost,
		"metricsPort", cfg.MetricsPort,
		"environment", cfg.Environment,
		"region", cfg.Region,
		"cloudProvider", cfg.CloudProvider,
	)

	registry := prometheus.NewRegistry()
	m, err := metrics.NewWithLabels(registry, metrics.Labels{
		Stream:        cfg.Stream,
		Environment:   cfg.Environment,
		Region:        cfg.Region,
		CloudProvider: cfg.CloudProvider,
	})
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	metricsServer := metrics.NewServer(cfg.MetricsAddr(), registry, nil)
	metricsErrCh := metricsServer.Start()
	sugar.Infof("metrics server listening on http://%s/metrics", metricsServer.Addr())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := checkpointer.NewLevelDB(levelDBCfg)
	if err != nil {
		return fmt.Errorf("failed to open checkpoint store: %w", err)
	}
	defer store.Close()
	if err := store.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize checkpoint store: %w", err)
	}

	start, err := readStart(ctx, sugar, store, cfg.Stream)
	if err != nil {
		return err
	}

	if err := ensureTopics(ctx, sugar, cfg); err != nil {
		return err
	}

	producer, err := kafka.NewProducer(ctx, cfg.OutputProducerConfig(), sugar)
	if err != nil {
		return fmt.Errorf("failed to create kafka producer: %w", err)
	}
	defer producer.Close(*cfg.Consumer.FlushTimeout)

	fwd, err := processor.NewKafkaForwarder(producer, cfg.OutputTopic, m)
	if err != nil {
		return fmt.Errorf("failed to create forwarder: %w", err)
	}
	dedup, err := processor.NewDedup(sugar, start, fwd, m, watermark.WithMaxBuckets(cfg.SeenBuckets))
	if err != nil {
		return fmt.Errorf("failed to create dedup processor: %w", err)
	}

	consumer, err := kafka.NewConsumer(ctx, sugar, cfg.Consumer, dedup, kafka.WithConsumerMetrics(m))
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return consumer.Start(gctx)
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case err := <-metricsErrCh:
			if err != nil {
				return fmt.Errorf("metrics server failed: %w", err)
			}
			return nil
		}
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case err := <-producer.Errors():
			return err
		}
	})
	g.Go(func() error {
		return checkpointer.Start(gctx, sugar, dedup, store, checkpointCfg, cfg.Stream, m)
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	if err != nil {
		sugar.Errorw("dedup failed", "error", err)
	} else {
		sugar.Infow("exiting", "lowest", dedup.GetLowest())
	}

	sugar.Info("shutting down metrics server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if shutdownErr := metricsServer.Shutdown(shutdownCtx); shutdownErr != nil {
		sugar.Warnw("metrics server shutdown error", "error", shutdownErr)
	}

	sugar.Info("shutdown complete")
	return err
}

// readStart returns the checkpointed lowest unseen sequence of stream, or 0 without one.
func readStart(
	ctx context.Context,
	sugar *zap.SugaredLogger,
	store checkpointer.Checkpointer,
	stream string,
) (uint64, error) {
	lowest, exists, err := store.Read(ctx, stream)
	if err != nil {
		return 0, fmt.Errorf("failed to read checkpoint: %w", err)
	}
	if !exists {
		sugar.Infof("checkpoint not found, every sequence is unseen")
		return 0, nil
	}
	sugar.Infof("resuming dedup from checkpoint: %d", lowest)
	return lowest, nil
}

// ensureTopics creates the input, DLQ and output topics when they are missing.
func ensureTopics(ctx context.Context, sugar *zap.SugaredLogger, cfg *Config) error {
	adminConfig := confluentKafka.ConfigMap{"bootstrap.servers": cfg.Consumer.BootstrapServers}
	cfg.Consumer.SASL.ApplyToConfigMap(&adminConfig)
	adminClient, err := confluentKafka.NewAdminClient(&adminConfig)
	if err != nil {
		return fmt.Errorf("failed to create kafka admin client: %w", err)
	}
	defer adminClient.Close()

	return ensureTopicsWith(ctx, sugar, adminClient, cfg)
}

func ensureTopicsWith(ctx context.Context, sugar *zap.SugaredLogger, admin kafka.TopicAdmin, cfg *Config) error {
	topics := []kafka.TopicConfig{
		{
			Name:              cfg.Consumer.Topic,
			NumPartitions:     cfg.InputTopicNumPartitions,
			ReplicationFactor: cfg.TopicReplicationFactor,
		},
		{
			Name:              cfg.OutputTopic,
			NumPartitions:     cfg.OutputTopicNumPartitions,
			ReplicationFactor: cfg.TopicReplicationFactor,
		},
	}
	if cfg.Consumer.PublishToDLQ {
		topics = append(topics, kafka.TopicConfig{
			Name:              cfg.Consumer.DLQTopic,
			NumPartitions:     cfg.DLQTopicNumPartitions,
			ReplicationFactor: cfg.TopicReplicationFactor,
		})
	}
	for _, tc := range topics {
		if err := kafka.EnsureTopic(ctx, admin, tc, sugar); err != nil {
			return fmt.Errorf("failed to ensure topic %s: %w", tc.Name, err)
		}
	}
	return nil
}
