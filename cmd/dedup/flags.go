package main

import (
	"github.com/urfave/cli/v2"
)

// runFlags returns all CLI flags for the dedup run command
func runFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "Enable verbose logging",
			EnvVars: []string{"VERBOSE"},
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
			Value:   "dedup",
		},
		&cli.StringFlag{
			Name:     "output-topic",
			Aliases:  []string{"o"},
			Usage:    "Topic that receives each unique event once",
			EnvVars:  []string{"OUTPUT_TOPIC"},
			Required: true,
		},
		&cli.IntFlag{
			Name:    "output-topic-num-partitions",
			Usage:   "Number of partitions when creating the output topic",
			EnvVars: []string{"OUTPUT_TOPIC_NUM_PARTITIONS"},
			Value:   1,
		},
		&cli.IntFlag{
			Name:    "topic-replication-factor",
			Usage:   "Replication factor when creating the input, DLQ and output topics",
			EnvVars: []string{"TOPIC_REPLICATION_FACTOR"},
			Value:   1,
		},
		&cli.IntFlag{
			Name:    "input-topic-num-partitions",
			Usage:   "Number of partitions when creating the input topic",
			EnvVars: []string{"INPUT_TOPIC_NUM_PARTITIONS"},
			Value:   1,
		},
		&cli.IntFlag{
			Name:    "dlq-topic-num-partitions",
			Usage:   "Number of partitions when creating the DLQ topic",
			EnvVars: []string{"DLQ_TOPIC_NUM_PARTITIONS"},
			Value:   1,
		},
		&cli.StringFlag{
			Name:    "seen-max-memory",
			Usage:   "Cap on the seen-sequence bitmap (e.g. 1MB); empty means unbounded",
			EnvVars: []string{"SEEN_MAX_MEMORY"},
		},
		&cli.StringFlag{
			Name:    "metrics-host",
			Usage:   "Host for Prometheus metrics server (empty for all interfaces)",
			EnvVars: []string{"METRICS_HOST"},
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
			Value:   "dedup",
		},
	}
}
