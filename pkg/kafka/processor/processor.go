// Package processor holds the kafka.Processor implementations of the dedup stage: Dedup
// drops events whose sequence number was already seen and hands the rest to a Forwarder.
package processor

import "github.com/ava-labs/watermarkset/pkg/kafka"

var (
	_ kafka.Processor = (*Dedup)(nil)
	_ Forwarder       = (*KafkaForwarder)(nil)
)
