package main

import (
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/ava-labs/watermarkset/pkg/kafka"
	"github.com/ava-labs/watermarkset/pkg/utils"

	confluentKafka "github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// Config holds all configuration for the dedup application
type Config struct {
	// Application settings
	Verbose  bool
	LogLevel string
	Stream   string

	// Kafka consumer settings, from the environment
	Consumer kafka.ConsumerConfig

	// Topic settings
	OutputTopic              string
	OutputTopicNumPartitions int
	InputTopicNumPartitions  int
	DLQTopicNumPartitions    int
	TopicReplicationFactor   int

	// Dedup settings
	SeenBuckets int

	// Metrics settings
	MetricsHost   string
	MetricsPort   int
	Environment   string
	Region        string
	CloudProvider string
}

// MetricsAddr returns the formatted metrics address
func (c *Config) MetricsAddr() string {
	return fmt.Sprintf("%s:%d", c.MetricsHost, c.MetricsPort)
}

// OutputProducerConfig builds the ConfigMap of the producer that forwards unique events.
func (c *Config) OutputProducerConfig() *confluentKafka.ConfigMap {
	cfg := &confluentKafka.ConfigMap{
		"bootstrap.servers": c.Consumer.BootstrapServers,
		"client.id":         c.Consumer.GroupID,

		// Reliability: wait for all replicas to acknowledge
		"acks": "all",

		"linger.ms":        5,
		"batch.size":       16384,
		"compression.type": "lz4",

		"enable.idempotence":     true,
		"go.logs.channel.enable": c.Consumer.EnableLogs,
	}
	c.Consumer.SASL.ApplyToConfigMap(cfg)
	return cfg
}

// buildConfig builds a Config from CLI context flags and the consumer environment
func buildConfig(c *cli.Context) (*Config, error) {
	consumerCfg, err := kafka.LoadConsumerConfig()
	if err != nil {
		return nil, err
	}

	buckets, err := utils.BucketsForSize(c.String("seen-max-memory"))
	if err != nil {
		return nil, fmt.Errorf("invalid seen-max-memory: %w", err)
	}

	cfg := &Config{
		Verbose:                  c.Bool("verbose"),
		LogLevel:                 c.String("log-level"),
		Stream:                   c.String("stream"),
		Consumer:                 consumerCfg,
		OutputTopic:              c.String("output-topic"),
		OutputTopicNumPartitions: c.Int("output-topic-num-partitions"),
		InputTopicNumPartitions:  c.Int("input-topic-num-partitions"),
		DLQTopicNumPartitions:    c.Int("dlq-topic-num-partitions"),
		TopicReplicationFactor:   c.Int("topic-replication-factor"),
		SeenBuckets:              buckets,
		MetricsHost:              c.String("metrics-host"),
		MetricsPort:              c.Int("metrics-port"),
		Environment:              c.String("environment"),
		Region:                   c.String("region"),
		CloudProvider:            c.String("cloud-provider"),
	}
	if cfg.Stream == "" {
		return nil, errors.New("invalid stream: must not be empty")
	}
	if cfg.OutputTopic == "" {
		return nil, errors.New("invalid output topic: must not be empty")
	}
	if cfg.OutputTopic == consumerCfg.Topic {
		return nil, errors.New("invalid output topic: must differ from the input topic")
	}
	return cfg, nil
}
