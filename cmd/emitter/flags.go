package main

import (
	"time"

	"github.com/urfave/cli/v2"
)

// runFlags returns all CLI flags for the emitter run command
func runFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "Enable verbose logging",
			EnvVars: []string{"VERBOSE"},
			Value:   false,
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Minimum log level (debug, info, warn, error); empty keeps the preset default",
			EnvVars: []string{"LOG_LEVEL"},
		},
		&cli.StringFlag{
			Name:    "stream",
			Aliases: []string{"S"},
			Usage:   "Name of the stream, used as checkpoint key and metrics label",
			EnvVars: []string{"STREAM"},
			Value:   "emitter",
		},
		&cli.Uint64Flag{
			Name:    "start",
			Aliases: []string{"s"},
			Usage:   "First sequence to emit. If not specified, resumes from the checkpoint or 0",
			EnvVars: []string{"START_SEQUENCE"},
		},
		&cli.Uint64Flag{
			Name:     "end",
			Aliases:  []string{"e"},
			Usage:    "Last sequence to emit",
			EnvVars:  []string{"END_SEQUENCE"},
			Required: true,
		},
		&cli.DurationFlag{
			Name:    "tick-interval",
			Usage:   "Submit one new sequence per interval as realtime work; 0 makes the whole range backfill",
			EnvVars: []string{"TICK_INTERVAL"},
			Value:   0,
		},
		&cli.Uint64Flag{
			Name:     "concurrency",
			Aliases:  []string{"c"},
			Usage:    "The number of concurrent workers to use",
			EnvVars:  []string{"CONCURRENCY"},
			Required: true,
		},
		&cli.Uint64Flag{
			Name:     "backfill-priority",
			Aliases:  []string{"b"},
			Usage:    "The priority of the backfill workers (must be less than concurrency)",
			EnvVars:  []string{"BACKFILL_PRIORITY"},
			Required: true,
		},
		&cli.IntFlag{
			Name:    "seq-ch-capacity",
			Aliases: []string{"B"},
			Usage:   "The capacity of the realtime sequence channel",
			EnvVars: []string{"SEQ_CH_CAPACITY"},
			Value:   100,
		},
		&cli.IntFlag{
			Name:    "max-failures",
			Aliases: []string{"f"},
			Usage:   "The maximum number of failures for one sequence before stopping",
			EnvVars: []string{"MAX_FAILURES"},
			Value:   3,
		},
		&cli.StringFlag{
			Name:    "window-max-memory",
			Usage:   "Cap on the processed-window bitmap (e.g. 64KB); empty means unbounded",
			EnvVars: []string{"WINDOW_MAX_MEMORY"},
		},
		&cli.Uint64Flag{
			Name:    "duplicate-every",
			Usage:   "Emit every n-th sequence twice; 0 disables duplicates",
			EnvVars: []string{"DUPLICATE_EVERY"},
			Value:   0,
		},
		&cli.StringFlag{
			Name:    "payload",
			Usage:   "JSON payload attached to every event",
			EnvVars: []string{"PAYLOAD"},
		},
		&cli.StringFlag{
			Name:    "kafka-brokers",
			Usage:   "The Kafka brokers to use (comma-separated list)",
			EnvVars: []string{"KAFKA_BROKERS"},
			Value:   "localhost:9092",
		},
		&cli.StringFlag{
			Name:     "kafka-topic",
			Aliases:  []string{"t"},
			Usage:    "The Kafka topic to emit to",
			EnvVars:  []string{"KAFKA_TOPIC"},
			Required: true,
		},
		&cli.BoolFlag{
			Name:    "kafka-enable-logs",
			Aliases: []string{"l"},
			Usage:   "Enable Kafka client logs",
			EnvVars: []string{"KAFKA_ENABLE_LOGS"},
		},
		&cli.StringFlag{
			Name:    "kafka-client-id",
			Usage:   "The Kafka client ID to use",
			EnvVars: []string{"KAFKA_CLIENT_ID"},
			Value:   "emitter",
		},
		&cli.IntFlag{
			Name:    "kafka-topic-num-partitions",
			Usage:   "Number of partitions when creating the topic",
			EnvVars: []string{"KAFKA_TOPIC_NUM_PARTITIONS"},
			Value:   1,
		},
		&cli.IntFlag{
			Name:    "kafka-topic-replication-factor",
			Usage:   "Replication factor when creating the topic",
			EnvVars: []string{"KAFKA_TOPIC_REPLICATION_FACTOR"},
			Value:   1,
		},
		&cli.StringFlag{
			Name:    "kafka-sasl-username",
			Usage:   "SASL username; SASL is disabled unless username and password are set",
			EnvVars: []string{"KAFKA_SASL_USERNAME"},
		},
		&cli.StringFlag{
			Name:    "kafka-sasl-password",
			Usage:   "SASL password",
			EnvVars: []string{"KAFKA_SASL_PASSWORD"},
		},
		&cli.StringFlag{
			Name:    "kafka-sasl-mechanism",
			Usage:   "SASL mechanism",
			EnvVars: []string{"KAFKA_SASL_MECHANISM"},
			Value:   "SCRAM-SHA-512",
		},
		&cli.StringFlag{
			Name:    "kafka-security-protocol",
			Usage:   "Security protocol used with SASL",
			EnvVars: []string{"KAFKA_SECURITY_PROTOCOL"},
			Value:   "SASL_SSL",
		},
		&cli.DurationFlag{
			Name:    "gap-watchdog-interval",
			Usage:   "Interval between window size checks",
			EnvVars: []string{"GAP_WATCHDOG_INTERVAL"},
			Value:   15 * time.Second,
		},
		&cli.Uint64Flag{
			Name:    "gap-watchdog-max-gap",
			Usage:   "Warn when highest - lowest exceeds this many sequences",
			EnvVars: []string{"GAP_WATCHDOG_MAX_GAP"},
			Value:   100_000,
		},
		&cli.StringFlag{
			Name:    "metrics-host",
			Usage:   "Host for Prometheus metrics server (empty for all interfaces)",
			EnvVars: []string{"METRICS_HOST"},
			Value:   "",
		},
		&cli.IntFlag{
			Name:    "metrics-port",
			Aliases: []string{"m"},
			Usage:   "Port for Prometheus metrics server",
			EnvVars: []string{"METRICS_PORT"},
			Value:   9090,
		},
		&cli.StringFlag{
			Name:    "environment",
			Aliases: []string{"E"},
			Usage:   "Deployment environment for metrics labels (e.g., 'production', 'staging')",
			EnvVars: []string{"ENVIRONMENT"},
		},
		&cli.StringFlag{
			Name:    "region",
			Aliases: []string{"R"},
			Usage:   "Cloud region for metrics labels (e.g., 'us-east-1')",
			EnvVars: []string{"REGION"},
		},
		&cli.StringFlag{
			Name:    "cloud-provider",
			Usage:   "Cloud provider for metrics labels (e.g., 'aws', 'gcp')",
			EnvVars: []string{"CLOUD_PROVIDER"},
		},
	}
}

// removeFlags returns the flags for the remove command
func removeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "stream",
			Aliases: []string{"S"},
			Usage:   "Name of the stream whose checkpoint is removed",
			EnvVars: []string{"STREAM"},
			Value:   "emitter",
		},
	}
}
