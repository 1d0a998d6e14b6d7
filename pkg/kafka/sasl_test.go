package kafka

import (
	"testing"

	cKafka "github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/stretchr/testify/require"
)

func TestSASLConfig_ApplyToConfigMap(t *testing.T) {
	t.Run("disabled leaves config untouched", func(t *testing.T) {
		cfg := cKafka.ConfigMap{"bootstrap.servers": "localhost:9092"}
		SASLConfig{Username: "user"}.ApplyToConfigMap(&cfg)
		require.Len(t, cfg, 1)
	})

	t.Run("enabled sets all properties", func(t *testing.T) {
		cfg := cKafka.ConfigMap{}
		SASLConfig{
			Username:         "user",
			Password:         "secret",
			Mechanism:        "PLAIN",
			SecurityProtocol: "SASL_PLAINTEXT",
		}.ApplyToConfigMap(&cfg)
		require.Equal(t, cKafka.ConfigMap{
			"security.protocol": "SASL_PLAINTEXT",
			"sasl.mechanisms":   "PLAIN",
			"sasl.username":     "user",
			"sasl.password":     "secret",
		}, cfg)
	})
}
