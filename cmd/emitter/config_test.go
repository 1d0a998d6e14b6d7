package main

import (
	"context"
	"flag"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/ava-labs/watermarkset/pkg/checkpointer"
	"github.com/ava-labs/watermarkset/pkg/slidingwindow"
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
	c := newTestContext(t, runFlags(),
		"--end", "1000",
		"--start", "10",
		"--concurrency", "8",
		"--backfill-priority", "4",
		"--kafka-topic", "events",
		"--window-max-memory", "1KB",
		"--duplicate-every", "5",
		"--payload", `{"source":"bench"}`,
		"--tick-interval", "10ms",
		"--metrics-port", "9191",
	)

	cfg, err := buildConfig(c)
	require.NoError(t, err)
	require.Equal(t, uint64(10), cfg.Start)
	require.Equal(t, uint64(1000), cfg.End)
	require.Equal(t, uint64(8), cfg.Concurrency)
	require.Equal(t, uint64(4), cfg.Backfill)
	require.Equal(t, 128, cfg.WindowBuckets)
	require.Equal(t, uint64(5), cfg.DuplicateEvery)
	require.JSONEq(t, `{"source":"bench"}`, string(cfg.Payload))
	require.Equal(t, 10*time.Millisecond, cfg.TickInterval)
	require.Equal(t, "emitter", cfg.Stream)
	require.Equal(t, 100, cfg.SeqChCapacity)
	require.Equal(t, 3, cfg.MaxFailures)
	require.Equal(t, ":9191", cfg.MetricsAddr())
	require.False(t, cfg.KafkaSASL.Enabled())

	kcfg := cfg.KafkaProducerConfig()
	v, err := kcfg.Get("client.id", "")
	require.NoError(t, err)
	require.Equal(t, "emitter", v)
}

func TestBuildConfig_Errors(t *testing.T) {
	base := []string{"--concurrency", "2", "--backfill-priority", "1", "--kafka-topic", "events"}
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"start above end", []string{"--start", "5", "--end", "4"}, "invalid range"},
		{"bad memory cap", []string{"--end", "4", "--window-max-memory", "tiny"}, "invalid window-max-memory"},
		{"bad payload", []string{"--end", "4", "--payload", "{"}, "invalid payload"},
		{"empty stream", []string{"--end", "4", "--stream", ""}, "invalid stream"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestContext(t, runFlags(), append(append([]string{}, base...), tt.args...)...)
			_, err := buildConfig(c)
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestResolveStart(t *testing.T) {
	store, err := checkpointer.NewLevelDB(checkpointer.LevelDBConfig{InMemory: true})
	require.NoError(t, err)
	defer store.Close()
	ctx := t.Context()
	log := zap.NewNop().Sugar()

	start, err := resolveStart(ctx, log, store, &Config{Stream: "s"})
	require.NoError(t, err)
	require.Zero(t, start)

	require.NoError(t, store.Write(ctx, "s", 77))
	start, err = resolveStart(ctx, log, store, &Config{Stream: "s"})
	require.NoError(t, err)
	require.Equal(t, uint64(77), start)

	start, err = resolveStart(ctx, log, store, &Config{Stream: "s", Start: 5})
	require.NoError(t, err)
	require.Equal(t, uint64(5), start)
}

type noopWorker struct{}

func (noopWorker) Process(context.Context, uint64) error { return nil }

func TestWaitForRange_CancelsWhenDone(t *testing.T) {
	s, err := slidingwindow.NewState(0, 9)
	require.NoError(t, err)
	mgr, err := slidingwindow.NewManager(zap.NewNop().Sugar(), s, noopWorker{}, 4, 2, 10, 3)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	go mgr.Run(ctx) //nolint:errcheck // stopped by cancel

	done := make(chan error, 1)
	go func() { done <- waitForRange(ctx, zap.NewNop().Sugar(), s, mgr, 9, cancel) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		require.Fail(t, "range never completed")
	}
	require.ErrorIs(t, ctx.Err(), context.Canceled)
	require.Equal(t, uint64(10), s.GetLowest())
}
