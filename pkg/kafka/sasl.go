package kafka

import (
	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// SASLConfig holds optional SASL credentials shared by producers, consumers and admin clients.
type SASLConfig struct {
	Username         string `env:"KAFKA_SASL_USERNAME"`
	Password         string `env:"KAFKA_SASL_PASSWORD"`
	Mechanism        string `env:"KAFKA_SASL_MECHANISM"    envDefault:"SCRAM-SHA-512"`
	SecurityProtocol string `env:"KAFKA_SECURITY_PROTOCOL" envDefault:"SASL_SSL"`
}

// Enabled reports whether credentials are configured.
func (s SASLConfig) Enabled() bool {
	return s.Username != "" && s.Password != ""
}

// ApplyToConfigMap sets the SASL properties on cfg when credentials are configured and
// leaves cfg untouched otherwise.
func (s SASLConfig) ApplyToConfigMap(cfg *kafka.ConfigMap) {
	if !s.Enabled() {
		return
	}
	_ = cfg.SetKey("security.protocol", s.SecurityProtocol)
	_ = cfg.SetKey("sasl.mechanisms", s.Mechanism)
	_ = cfg.SetKey("sasl.username", s.Username)
	_ = cfg.SetKey("sasl.password", s.Password)
}
