package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ava-labs/watermarkset/pkg/kafka"
	"github.com/ava-labs/watermarkset/pkg/utils"

	confluentKafka "github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// Config holds all configuration for the emitter application
type Config struct {
	// Application settings
	Verbose  bool
	LogLevel string
	Stream   string

	// Range settings
	Start        uint64
	End          uint64
	TickInterval time.Duration

	// Worker settings
	Concurrency    uint64
	Backfill       uint64
	SeqChCapacity  int
	MaxFailures    int
	WindowBuckets  int
	DuplicateEvery uint64
	Payload        json.RawMessage

	// Kafka settings
	KafkaBrokers                string
	KafkaTopic                  string
	KafkaEnableLogs             bool
	KafkaClientID               string
	KafkaTopicNumPartitions     int
	KafkaTopicReplicationFactor int
	KafkaSASL                   kafka.SASLConfig

	// Watchdog settings
	GapWatchdogInterval time.Duration
	GapWatchdogMaxGap   uint64

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

// KafkaProducerConfig builds a Kafka producer ConfigMap from the config
func (c *Config) KafkaProducerConfig() *confluentKafka.ConfigMap {
	cfg := &confluentKafka.ConfigMap{
		"bootstrap.servers": c.KafkaBrokers,
		"client.id":         c.KafkaClientID,

		// Reliability: wait for all replicas to acknowledge
		"acks": "all",

		"linger.ms":        5,
		"batch.size":       16384,
		"compression.type": "lz4",

		"enable.idempotence":     true,
		"go.logs.channel.enable": c.KafkaEnableLogs,
	}
	c.KafkaSASL.ApplyToConfigMap(cfg)
	return cfg
}

// buildConfig builds a Config from CLI context flags
func buildConfig(c *cli.Context) (*Config, error) {
	buckets, err := utils.BucketsForSize(c.String("window-max-memory"))
	if err != nil {
		return nil, fmt.Errorf("invalid window-max-memory: %w", err)
	}

	var payload json.RawMessage
	if p := c.String("payload"); p != "" {
		if !json.Valid([]byte(p)) {
			return nil, errors.New("invalid payload: must be valid JSON")
		}
		payload = json.RawMessage(p)
	}

	cfg := &Config{
		Verbose:                     c.Bool("verbose"),
		LogLevel:                    c.String("log-level"),
		Stream:                      c.String("stream"),
		Start:                       c.Uint64("start"),
		End:                         c.Uint64("end"),
		TickInterval:                c.Duration("tick-interval"),
		Concurrency:                 c.Uint64("concurrency"),
		Backfill:                    c.Uint64("backfill-priority"),
		SeqChCapacity:               c.Int("seq-ch-capacity"),
		MaxFailures:                 c.Int("max-failures"),
		WindowBuckets:               buckets,
		DuplicateEvery:              c.Uint64("duplicate-every"),
		Payload:                     payload,
		KafkaBrokers:                c.String("kafka-brokers"),
		KafkaTopic:                  c.String("kafka-topic"),
		KafkaEnableLogs:             c.Bool("kafka-enable-logs"),
		KafkaClientID:               c.String("kafka-client-id"),
		KafkaTopicNumPartitions:     c.Int("kafka-topic-num-partitions"),
		KafkaTopicReplicationFactor: c.Int("kafka-topic-replication-factor"),
		KafkaSASL: kafka.SASLConfig{
			Username:         c.String("kafka-sasl-username"),
			Password:         c.String("kafka-sasl-password"),
			Mechanism:        c.String("kafka-sasl-mechanism"),
			SecurityProtocol: c.String("kafka-security-protocol"),
		},
		GapWatchdogInterval: c.Duration("gap-watchdog-interval"),
		GapWatchdogMaxGap:   c.Uint64("gap-watchdog-max-gap"),
		MetricsHost:         c.String("metrics-host"),
		MetricsPort:         c.Int("metrics-port"),
		Environment:         c.String("environment"),
		Region:              c.String("region"),
		CloudProvider:       c.String("cloud-provider"),
	}
	if c.IsSet("start") && cfg.Start > cfg.End {
		return nil, fmt.Errorf("invalid range: start %d is above end %d", cfg.Start, cfg.End)
	}
	if cfg.Stream == "" {
		return nil, errors.New("invalid stream: must not be empty")
	}
	return cfg, nil
}
