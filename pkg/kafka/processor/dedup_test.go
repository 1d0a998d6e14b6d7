package processor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	cKafka "github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ava-labs/watermarkset/pkg/kafka/messages"
	"github.com/ava-labs/watermarkset/pkg/kafka/testutils"
	"github.com/ava-labs/watermarkset/pkg/metrics"
	"github.com/ava-labs/watermarkset/pkg/watermark"
)

type mockForwarder struct {
	mock.Mock
}

func (m *mockForwarder) Forward(ctx context.Context, seq uint64, msg *cKafka.Message) error {
	args := m.Called(ctx, seq, msg)
	return args.Error(0)
}

func sequenceMessage(seq uint64) *cKafka.Message {
	return testutils.SequenceMessage("events", 0, int64(seq), seq)
}

func TestNewDedup_Validation(t *testing.T) {
	t.Parallel()
	_, err := NewDedup(nil, 0, &mockForwarder{}, nil)
	require.ErrorContains(t, err, "invalid logger")
	_, err = NewDedup(zap.NewNop().Sugar(), 0, nil, nil)
	require.ErrorContains(t, err, "invalid forwarder")
}

func TestDedup_ForwardsEachSequenceOnce(t *testing.T) {
	t.Parallel()
	fwd := &mockForwarder{}
	fwd.On("Forward", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)

	d, err := NewDedup(zap.NewNop().Sugar(), 0, fwd, m)
	require.NoError(t, err)

	for _, seq := range []uint64{2, 0, 2, 1, 0, 3, 1} {
		require.NoError(t, d.Process(t.Context(), sequenceMessage(seq)))
	}

	fwd.AssertNumberOfCalls(t, "Forward", 4)
	for _, seq := range []uint64{0, 1, 2, 3} {
		fwd.AssertCalled(t, "Forward", mock.Anything, seq, mock.Anything)
	}
	require.Equal(t, uint64(4), d.GetLowest())
	require.True(t, d.Seen(3))
	require.False(t, d.Seen(4))

	const expected = `
# HELP watermarkset_dedup_duplicates_total Total number of events dropped as duplicates
# TYPE watermarkset_dedup_duplicates_total counter
watermarkset_dedup_duplicates_total 3
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "watermarkset_dedup_duplicates_total"))
}

func TestDedup_StartFromCheckpoint(t *testing.T) {
	t.Parallel()
	fwd := &mockForwarder{}
	fwd.On("Forward", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	d, err := NewDedup(zap.NewNop().Sugar(), 100, fwd, nil)
	require.NoError(t, err)

	require.NoError(t, d.Process(t.Context(), sequenceMessage(99)))
	require.NoError(t, d.Process(t.Context(), sequenceMessage(100)))

	fwd.AssertNumberOfCalls(t, "Forward", 1)
	fwd.AssertCalled(t, "Forward", mock.Anything, uint64(100), mock.Anything)
	require.Equal(t, uint64(101), d.GetLowest())
}

func TestDedup_FailedForwardIsRetried(t *testing.T) {
	t.Parallel()
	fwd := &mockForwarder{}
	fwd.On("Forward", mock.Anything, uint64(5), mock.Anything).Return(errors.New("broker down")).Once()
	fwd.On("Forward", mock.Anything, uint64(5), mock.Anything).Return(nil).Once()
	d, err := NewDedup(zap.NewNop().Sugar(), 5, fwd, nil)
	require.NoError(t, err)

	require.ErrorContains(t, d.Process(t.Context(), sequenceMessage(5)), "broker down")
	require.False(t, d.Seen(5))

	require.NoError(t, d.Process(t.Context(), sequenceMessage(5)))
	require.True(t, d.Seen(5))
	fwd.AssertExpectations(t)
}

func TestDedup_InvalidMessages(t *testing.T) {
	t.Parallel()
	fwd := &mockForwarder{}
	d, err := NewDedup(zap.NewNop().Sugar(), 0, fwd, nil)
	require.NoError(t, err)

	require.ErrorContains(t, d.Process(t.Context(), nil), "nil message")
	require.ErrorContains(t, d.Process(t.Context(), &cKafka.Message{}), "nil message")

	bad := &cKafka.Message{
		Value:   []byte(`{}`),
		Headers: []cKafka.Header{{Key: messages.SequenceHeader, Value: []byte("x")}},
	}
	err = d.Process(t.Context(), bad)
	require.ErrorIs(t, err, messages.ErrInvalidSequence)

	err = d.Process(t.Context(), &cKafka.Message{Value: []byte(`not json`)})
	require.ErrorIs(t, err, messages.ErrMissingSequence)
	fwd.AssertNotCalled(t, "Forward", mock.Anything, mock.Anything, mock.Anything)
}

func TestDedup_WindowOverflowStillForwards(t *testing.T) {
	t.Parallel()
	fwd := &mockForwarder{}
	fwd.On("Forward", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	d, err := NewDedup(zap.NewNop().Sugar(), 0, fwd, nil, watermark.WithMaxBuckets(1))
	require.NoError(t, err)

	require.NoError(t, d.Process(t.Context(), sequenceMessage(64)))
	require.False(t, d.Seen(64))
	require.NoError(t, d.Process(t.Context(), sequenceMessage(64)))
	fwd.AssertNumberOfCalls(t, "Forward", 2)
}

func TestDedup_ConcurrentDistinctSequences(t *testing.T) {
	t.Parallel()
	fwd := &mockForwarder{}
	fwd.On("Forward", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	d, err := NewDedup(zap.NewNop().Sugar(), 0, fwd, nil)
	require.NoError(t, err)

	const n = 1000
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for seq := uint64(w); seq < n; seq += 4 {
				require.NoError(t, d.Process(context.Background(), sequenceMessage(seq)))
			}
		}(w)
	}
	wg.Wait()

	require.Equal(t, uint64(n), d.GetLowest())
	fwd.AssertNumberOfCalls(t, "Forward", n)
}
