package main

import (
	"context"
	"flag"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/ava-labs/watermarkset/pkg/checkpointer"

	confluentKafka "github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

func newTestContext(t *testing.T, flags []cli.Flag, args ...string) *cli.Context {
	t.Helper()
	set := flag.NewFlagSet("test", flag.ContinueOnError)
	for _, f := range flags {
		require.NoError(t, f.Apply(set))
	}
	require.NoError(t, set.Parse(args))
	return cli.NewContext(cli.NewApp(), set, nil)
}

func TestBuildConfig(t *testing.T) {
	t.Setenv("KAFKA_TOPIC", "events")
	t.Setenv("KAFKA_GROUP_ID", "dedup-test")
	t.Setenv("KAFKA_BOOTSTRAP_SERVERS", "broker:9092")
	t.Setenv("KAFKA_SASL_USERNAME", "user")
	t.Setenv("KAFKA_SASL_PASSWORD", "secret")

	c := newTestContext(t, runFlags(),
		"--output-topic", "events-unique",
		"--seen-max-memory", "1KB",
		"--output-topic-num-partitions", "3",
		"--metrics-port", "9292",
	)
	cfg, err := buildConfig(c)
	require.NoError(t, err)
	require.Equal(t, "dedup", cfg.Stream)
	require.Equal(t, "events", cfg.Consumer.Topic)
	require.Equal(t, "events-unique", cfg.OutputTopic)
	require.Equal(t, 3, cfg.OutputTopicNumPartitions)
	require.Equal(t, 128, cfg.SeenBuckets)
	require.Equal(t, ":9292", cfg.MetricsAddr())
	require.NotNil(t, cfg.Consumer.FlushTimeout)

	pcfg := cfg.OutputProducerConfig()
	v, err := pcfg.Get("bootstrap.servers", "")
	require.NoError(t, err)
	require.Equal(t, "broker:9092", v)
	v, err = pcfg.Get("sasl.username", "")
	require.NoError(t, err)
	require.Equal(t, "user", v)
}

func TestBuildConfig_Errors(t *testing.T) {
	t.Setenv("KAFKA_TOPIC", "events")

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"same topic", []string{"--output-topic", "events"}, "must differ from the input topic"},
		{"empty output", []string{"--output-topic", ""}, "invalid output topic"},
		{"bad memory cap", []string{"--output-topic", "out", "--seen-max-memory", "4B"}, "invalid seen-max-memory"},
		{"empty stream", []string{"--output-topic", "out", "--stream", ""}, "invalid stream"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := buildConfig(newTestContext(t, runFlags(), tt.args...))
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestReadStart(t *testing.T) {
	store, err := checkpointer.NewLevelDB(checkpointer.LevelDBConfig{InMemory: true})
	require.NoError(t, err)
	defer store.Close()
	ctx := t.Context()
	log := zap.NewNop().Sugar()

	start, err := readStart(ctx, log, store, "dedup")
	require.NoError(t, err)
	require.Zero(t, start)

	require.NoError(t, store.Write(ctx, "dedup", 512))
	start, err = readStart(ctx, log, store, "dedup")
	require.NoError(t, err)
	require.Equal(t, uint64(512), start)
}

// creatingAdmin reports every topic as missing and records creations.
type creatingAdmin struct {
	created []string
}

func (a *creatingAdmin) GetMetadata(*string, bool, int) (*confluentKafka.Metadata, error) {
	return &confluentKafka.Metadata{Topics: map[string]confluentKafka.TopicMetadata{}}, nil
}

func (a *creatingAdmin) CreateTopics(
	_ context.Context,
	topics []confluentKafka.TopicSpecification,
	_ ...confluentKafka.CreateTopicsAdminOption,
) ([]confluentKafka.TopicResult, error) {
	results := make([]confluentKafka.TopicResult, 0, len(topics))
	for _, spec := range topics {
		a.created = append(a.created, spec.Topic)
		results = append(results, confluentKafka.TopicResult{Topic: spec.Topic})
	}
	return results, nil
}

func (a *creatingAdmin) CreatePartitions(
	context.Context,
	[]confluentKafka.PartitionsSpecification,
	...confluentKafka.CreatePartitionsAdminOption,
) ([]confluentKafka.TopicResult, error) {
	return nil, nil
}

func (a *creatingAdmin) DeleteTopics(
	context.Context,
	[]string,
	...confluentKafka.DeleteTopicsAdminOption,
) ([]confluentKafka.TopicResult, error) {
	return nil, nil
}

func TestEnsureTopicsWith(t *testing.T) {
	cfg := &Config{
		OutputTopic:              "out",
		OutputTopicNumPartitions: 1,
		InputTopicNumPartitions:  2,
		DLQTopicNumPartitions:    1,
		TopicReplicationFactor:   1,
	}
	cfg.Consumer.Topic = "in"
	cfg.Consumer.DLQTopic = "in-dlq"
	cfg.Consumer.PublishToDLQ = true

	admin := &creatingAdmin{}
	require.NoError(t, ensureTopicsWith(t.Context(), zap.NewNop().Sugar(), admin, cfg))
	require.Equal(t, []string{"in", "out", "in-dlq"}, admin.created)

	cfg.Consumer.PublishToDLQ = false
	admin = &creatingAdmin{}
	require.NoError(t, ensureTopicsWith(t.Context(), zap.NewNop().Sugar(), admin, cfg))
	require.Equal(t, []string{"in", "out"}, admin.created)
}
