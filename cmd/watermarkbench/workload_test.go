package main

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"go.uber.org/zap/zapcore"
)

var testParams = workloadParams{count: 4096, batch: 1000, jitter: 64, seed: 7}

func TestBuildWorkloads(t *testing.T) {
	all, err := buildWorkloads(nil, testParams)
	require.NoError(t, err)
	require.Len(t, all, len(workloadBuilders))

	some, err := buildWorkloads([]string{"contains-aligned", "insert-in-order"}, testParams)
	require.NoError(t, err)
	require.Len(t, some, 2)
	require.Equal(t, "insert-in-order", some[0].name)
	require.Equal(t, "contains-aligned", some[1].name)

	_, err = buildWorkloads([]string{"nope"}, testParams)
	require.ErrorContains(t, err, `unknown workload "nope"`)

	_, err = buildWorkloads(nil, workloadParams{count: 0, batch: 1})
	require.ErrorContains(t, err, "invalid count")
}

// Every insert workload is a permutation of 0..count-1.
func TestInsertWorkloadsArePermutations(t *testing.T) {
	all, err := buildWorkloads(nil, testParams)
	require.NoError(t, err)
	for _, w := range all {
		if w.kind != opInsert {
			continue
		}
		t.Run(w.name, func(t *testing.T) {
			got := slices.Clone(w.ops)
			slices.Sort(got)
			require.Equal(t, sequence(testParams.count), got)
		})
	}

	nm := nearMonotonic(testParams)
	require.NotEqual(t, sequence(testParams.count), nm.ops, "jitter should reorder")
}

func TestRunWorkload(t *testing.T) {
	all, err := buildWorkloads(nil, testParams)
	require.NoError(t, err)
	for _, w := range all {
		for _, tf := range targets() {
			t.Run(w.name+"/"+tf.name, func(t *testing.T) {
				r, err := runWorkload(w, tf)
				require.NoError(t, err)
				require.Equal(t, testParams.count, r.ops)
				switch w.name {
				case "contains-aligned":
					require.Equal(t, testParams.count, r.hits)
				case "contains-unaligned":
					require.Equal(t, testParams.count/2, r.hits)
				default:
					require.Zero(t, r.hits)
				}
			})
		}
	}
}

// Completed insert workloads leave nothing but the watermark.
func TestRunWorkload_WatermarkDrains(t *testing.T) {
	for _, w := range []workload{inOrder(testParams), interleaved(testParams), nearMonotonic(testParams)} {
		r, err := runWorkload(w, targets()[0])
		require.NoError(t, err)
		require.Equal(t, uint64(8), r.bytes, w.name)
	}
}

func TestBestOfAndReport(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	sugar := zap.New(core).Sugar()

	tf := targets()[1]
	best, err := bestOf(t.Context(), sugar, containsUnaligned(testParams), tf, 3)
	require.NoError(t, err)
	report(sugar, best)

	entries := logs.FilterMessage("benchmark").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	require.Equal(t, "contains-unaligned", fields["workload"])
	require.Equal(t, "roaring64", fields["target"])
	require.EqualValues(t, testParams.count/2, fields["hits"])
	require.NotEmpty(t, fields["memory"])
}
