package kafka

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Default timeout values for Kafka consumer
const (
	DefaultSessionTimeout       = 240 * time.Second
	DefaultMaxPollInterval      = 3400 * time.Second
	DefaultFlushTimeout         = 15 * time.Second
	DefaultGoroutineWaitTimeout = 30 * time.Second
	DefaultPollInterval         = 100 * time.Millisecond
)

// ConsumerConfig holds the configuration for a Kafka consumer
type ConsumerConfig struct {
	DLQTopic                    string         `env:"KAFKA_DLQ_TOPIC"              envDefault:"events-dlq"`     // Dead letter queue topic for failed messages
	Topic                       string         `env:"KAFKA_TOPIC"                  envDefault:"events"`         // Primary topic to consume from
	BootstrapServers            string         `env:"KAFKA_BOOTSTRAP_SERVERS"      envDefault:"localhost:9092"` // Kafka broker addresses
	GroupID                     string         `env:"KAFKA_GROUP_ID"               envDefault:"dedup"`          // Consumer group ID for offset management
	AutoOffsetReset             string         `env:"KAFKA_AUTO_OFFSET_RESET"      envDefault:"earliest"`       // Offset reset strategy: "earliest" or "latest"
	Concurrency                 int64          `env:"KAFKA_CONCURRENCY"            envDefault:"10"`             // Maximum concurrent message processors
	OffsetManagerCommitInterval time.Duration  `env:"KAFKA_OFFSET_COMMIT_INTERVAL" envDefault:"10s"`            // Interval for committing offsets
	OffsetWindowBuckets         int            `env:"KAFKA_OFFSET_WINDOW_BUCKETS"  envDefault:"0"`              // Per-partition cap on 64-offset buckets above the committed offset; 0 means unbounded
	SessionTimeout              *time.Duration `env:"KAFKA_SESSION_TIMEOUT"`                                    // Session timeout for Kafka consumer
	MaxPollInterval             *time.Duration `env:"KAFKA_MAX_POLL_INTERVAL"`                                  // Max poll interval for Kafka consumer
	FlushTimeout                *time.Duration `env:"KAFKA_FLUSH_TIMEOUT"`                                      // Flush timeout for the DLQ producer
	GoroutineWaitTimeout        *time.Duration `env:"KAFKA_GOROUTINE_WAIT_TIMEOUT"`                             // Wait for in-flight processors while closing the consumer
	PollInterval                *time.Duration `env:"KAFKA_POLL_INTERVAL"`                                      // Poll timeout per consumer loop iteration
	EnableLogs                  bool           `env:"KAFKA_ENABLE_LOGS"            envDefault:"false"`          // Enable librdkafka client logs
	PublishToDLQ                bool           `env:"KAFKA_PUBLISH_TO_DLQ"         envDefault:"true"`           // If false, a processing failure stops the consumer instead
	SASL                        SASLConfig     // Optional SASL credentials
}

// LoadConsumerConfig loads Kafka configuration from environment variables and fills
// in defaults.
func LoadConsumerConfig() (ConsumerConfig, error) {
	var cfg ConsumerConfig
	if err := env.Parse(&cfg); err != nil {
		return ConsumerConfig{}, fmt.Errorf("failed to parse consumer config: %w", err)
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return ConsumerConfig{}, err
	}
	return cfg, nil
}

// Validate checks the fields NewConsumer depends on.
func (c ConsumerConfig) Validate() error {
	if c.Topic == "" {
		return errors.New("invalid topic: must not be empty")
	}
	if c.BootstrapServers == "" {
		return errors.New("invalid bootstrap servers: must not be empty")
	}
	if c.GroupID == "" {
		return errors.New("invalid group id: must not be empty")
	}
	if c.Concurrency <= 0 {
		return errors.New("invalid concurrency: must be greater than 0")
	}
	if c.PublishToDLQ && c.DLQTopic == "" {
		return errors.New("invalid DLQ topic: must be set when publishing to DLQ")
	}
	if c.OffsetWindowBuckets < 0 {
		return errors.New("invalid offset window buckets: must not be negative")
	}
	return nil
}

// WithDefaults returns a copy of the config with default values filled in for any nil pointer fields.
// This method does not mutate the original config.
func (c ConsumerConfig) WithDefaults() ConsumerConfig {
	if c.SessionTimeout == nil {
		timeout := DefaultSessionTimeout
		c.SessionTimeout = &timeout
	}
	if c.MaxPollInterval == nil {
		interval := DefaultMaxPollInterval
		c.MaxPollInterval = &interval
	}
	if c.FlushTimeout == nil {
		timeout := DefaultFlushTimeout
		c.FlushTimeout = &timeout
	}
	if c.GoroutineWaitTimeout == nil {
		timeout := DefaultGoroutineWaitTimeout
		c.GoroutineWaitTimeout = &timeout
	}
	if c.PollInterval == nil {
		interval := DefaultPollInterval
		c.PollInterval = &interval
	}
	if c.OffsetManagerCommitInterval <= 0 {
		c.OffsetManagerCommitInterval = OffsetManagerCommitInterval
	}
	return c
}
