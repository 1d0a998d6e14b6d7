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
	"github.com/ava-labs/watermarkset/pkg/metrics"
	"github.com/ava-labs/watermarkset/pkg/slidingwindow"
	"github.com/ava-labs/watermarkset/pkg/slidingwindow/subscriber"
	"github.com/ava-labs/watermarkset/pkg/slidingwindow/worker"
	"github.com/ava-labs/watermarkset/pkg/utils"
	"github.com/ava-labs/watermarkset/pkg/watermark"

	confluentKafka "github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

const (
	flushTimeoutOnClose = 15 * time.Second
	donePollInterval    = 100 * time.Millisecond
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
		"start", cfg.Start,
		"end", cfg.End,
		"tickInterval", cfg.TickInterval,
		"concurrency", cfg.Concurrency,
		"backfill", cfg.Backfill,
		"seqChCapacity", cfg.SeqChCapacity,
		"maxFailures", cfg.MaxFailures,
		"windowBuckets", cfg.WindowBuckets,
		"windowMaxMemory", utils.BucketsSize(cfg.WindowBuckets),
		"duplicateEvery", cfg.DuplicateEvery,
		"kafkaBrokers", cfg.KafkaBrokers,
		"kafkaTopic", cfg.KafkaTopic,
		"checkpointInterval", checkpointCfg.Interval,
		"checkpointPath", levelDBCfg.Path,
		"checkpointInMemory", levelDBCfg.InMemory,
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

	start, err := resolveStart(ctx, sugar, store, cfg)
	if err != nil {
		return err
	}
	if start > cfg.End {
		sugar.Infow("range already emitted", "checkpoint", start, "end", cfg.End)
		return nil
	}

	adminConfig := confluentKafka.ConfigMap{"bootstrap.servers": cfg.KafkaBrokers}
	cfg.KafkaSASL.ApplyToConfigMap(&adminConfig)
	adminClient, err := confluentKafka.NewAdminClient(&adminConfig)
	if err != nil {
		return fmt.Errorf("failed to create kafka admin client: %w", err)
	}
	defer adminClient.Close()

	err = kafka.EnsureTopic(ctx, adminClient, kafka.TopicConfig{
		Name:              cfg.KafkaTopic,
		NumPartitions:     cfg.KafkaTopicNumPartitions,
		ReplicationFactor: cfg.KafkaTopicReplicationFactor,
	}, sugar)
	if err != nil {
		return fmt.Errorf("failed to ensure kafka topic exists: %w", err)
	}

	producer, err := kafka.NewProducer(ctx, cfg.KafkaProducerConfig(), sugar)
	if err != nil {
		return fmt.Errorf("failed to create kafka producer: %w", err)
	}
	defer producer.Close(flushTimeoutOnClose)

	opts := []worker.EmitterOption{worker.WithDuplicateEvery(cfg.DuplicateEvery)}
	if cfg.Payload != nil {
		opts = append(opts, worker.WithPayload(cfg.Payload))
	}
	w, err := worker.NewEmitter(producer, cfg.KafkaTopic, sugar, m, opts...)
	if err != nil {
		return fmt.Errorf("failed to create worker: %w", err)
	}

	// With a ticker only the first sequence is known up front; the rest arrive as realtime work.
	highest := cfg.End
	if cfg.TickInterval > 0 {
		highest = start
	}
	s, err := slidingwindow.NewState(start, highest, watermark.WithMaxBuckets(cfg.WindowBuckets))
	if err != nil {
		return fmt.Errorf("failed to create state: %w", err)
	}

	mgr, err := slidingwindow.NewManager(
		sugar, s, w,
		cfg.Concurrency, cfg.Backfill,
		cfg.SeqChCapacity, cfg.MaxFailures,
		slidingwindow.WithMetrics(m),
	)
	if err != nil {
		return fmt.Errorf("failed to create manager: %w", err)
	}
	m.UpdateWindowMetrics(start, highest, 0)

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	g, gctx := errgroup.WithContext(runCtx)

	if cfg.TickInterval > 0 {
		ticker, err := subscriber.NewTicker(sugar, start, cfg.End, cfg.TickInterval)
		if err != nil {
			return fmt.Errorf("failed to create ticker: %w", err)
		}
		g.Go(func() error {
			return ticker.Subscribe(gctx, mgr)
		})
	}
	g.Go(func() error {
		return mgr.Run(gctx)
	})
	g.Go(func() error {
		return waitForRange(gctx, sugar, s, mgr, cfg.End, cancelRun)
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
			return gctx.Err()
		case err := <-producer.Errors():
			return err
		}
	})
	g.Go(func() error {
		return checkpointer.Start(gctx, sugar, s, store, checkpointCfg, cfg.Stream, m)
	})

	go slidingwindow.StartGapWatchdog(gctx, sugar, s, m, cfg.GapWatchdogInterval, cfg.GapWatchdogMaxGap, cfg.WindowBuckets)

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		sugar.Infow("exiting", "lowest", s.GetLowest(), "end", cfg.End)
		err = nil
	} else if err != nil {
		sugar.Errorw("run failed", "error", err)
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

// resolveStart returns the configured start, or the checkpoint when no start was given.
func resolveStart(
	ctx context.Context,
	sugar *zap.SugaredLogger,
	store checkpointer.Checkpointer,
	cfg *Config,
) (uint64, error) {
	if cfg.Start != 0 {
		sugar.Infof("start sequence: %d", cfg.Start)
		return cfg.Start, nil
	}
	lowest, exists, err := store.Read(ctx, cfg.Stream)
	if err != nil {
		return 0, fmt.Errorf("failed to read checkpoint: %w", err)
	}
	if !exists {
		sugar.Infof("checkpoint not found, will start from sequence 0")
		return 0, nil
	}
	sugar.Infof("resuming from checkpoint: %d", lowest)
	return lowest, nil
}

// waitForRange cancels the run once every sequence through end has been emitted.
func waitForRange(
	ctx context.Context,
	sugar *zap.SugaredLogger,
	s *slidingwindow.State,
	mgr *slidingwindow.Manager,
	end uint64,
	cancel context.CancelFunc,
) error {
	t := time.NewTicker(donePollInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if s.GetHighest() == end && mgr.Done() {
				sugar.Infow("range emitted", "end", end)
				cancel()
				return nil
			}
		}
	}
}
