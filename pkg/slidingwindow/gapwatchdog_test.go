package slidingwindow

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ava-labs/watermarkset/pkg/metrics"
)

func hasWarning(recorded *observer.ObservedLogs, msg string) bool {
	for _, e := range recorded.All() {
		if e.Level == zap.WarnLevel && e.Message == msg {
			return true
		}
	}
	return false
}

func TestStartWatchdog_WarnsOnLargeGap(t *testing.T) {
	t.Parallel()
	// State: lowest=10, highest=25 -> gap=15
	state, err := NewState(10, 10)
	require.NoError(t, err)
	_ = state.SetHighest(25)

	core, recorded := observer.New(zap.WarnLevel)
	log := zap.New(core).Sugar()

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	go StartGapWatchdog(ctx, log, state, nil, 5*time.Millisecond, 5, 0)

	require.Eventually(t, func() bool {
		return hasWarning(recorded, "gap too large")
	}, time.Second, 5*time.Millisecond, "expected watchdog to warn when gap is larger than maxGap")
}

func TestStartWatchdog_WarnsOnWideWindow(t *testing.T) {
	t.Parallel()
	state, err := NewState(0, 1000)
	require.NoError(t, err)
	// Sequence 0 is missing, so marks at 64, 128 and 640 keep 11 buckets alive.
	for _, h := range []uint64{64, 128, 640} {
		require.NoError(t, state.MarkProcessed(h))
	}

	core, recorded := observer.New(zap.WarnLevel)
	log := zap.New(core).Sugar()
	mets, err := metrics.New(prometheus.NewRegistry())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	go StartGapWatchdog(ctx, log, state, mets, 5*time.Millisecond, 10_000, 4)

	require.Eventually(t, func() bool {
		return hasWarning(recorded, "processed window too wide")
	}, time.Second, 5*time.Millisecond)
	require.False(t, hasWarning(recorded, "gap too large"))
}

func TestStartWatchdog_QuietWhenDrained(t *testing.T) {
	t.Parallel()
	state, err := NewState(0, 0)
	require.NoError(t, err)
	require.NoError(t, state.MarkProcessed(0))
	_, _ = state.AdvanceLowest()

	core, recorded := observer.New(zap.WarnLevel)
	log := zap.New(core).Sugar()

	ctx, cancel := context.WithTimeout(t.Context(), 30*time.Millisecond)
	defer cancel()
	StartGapWatchdog(ctx, log, state, nil, 5*time.Millisecond, 0, 1)

	require.Zero(t, recorded.Len())
}
