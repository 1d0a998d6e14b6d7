package main

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
)

type opKind int

const (
	opInsert opKind = iota
	opContains
)

func (k opKind) String() string {
	if k == opContains {
		return "contains"
	}
	return "insert"
}

// workload is a fixed list of operations applied to a fresh target, after an
// untimed prefill.
type workload struct {
	name    string
	kind    opKind
	prefill []uint64
	ops     []uint64
}

type workloadParams struct {
	count  int
	batch  int
	jitter int
	seed   int64
}

func (p workloadParams) validate() error {
	if p.count <= 0 {
		return errors.New("invalid count: must be greater than 0")
	}
	if p.batch <= 0 {
		return errors.New("invalid batch: must be greater than 0")
	}
	if p.jitter < 0 {
		return errors.New("invalid jitter: must not be negative")
	}
	return nil
}

var workloadBuilders = []struct {
	name  string
	build func(workloadParams) workload
}{
	{"insert-in-order", inOrder},
	{"insert-interleaved", interleaved},
	{"insert-near-monotonic", nearMonotonic},
	{"contains-aligned", containsAligned},
	{"contains-unaligned", containsUnaligned},
}

func workloadNamesUsage() string {
	names := make([]string, len(workloadBuilders))
	for i, b := range workloadBuilders {
		names[i] = b.name
	}
	return strings.Join(names, ", ")
}

// buildWorkloads returns the named workloads in their canonical order, or all of
// them when names is empty.
func buildWorkloads(names []string, p workloadParams) ([]workload, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}

	var out []workload
	for _, b := range workloadBuilders {
		if len(names) == 0 || want[b.name] {
			out = append(out, b.build(p))
			delete(want, b.name)
		}
	}
	for n := range want {
		return nil, fmt.Errorf("unknown workload %q, valid: %s", n, workloadNamesUsage())
	}
	return out, nil
}

func sequence(n int) []uint64 {
	out := make([]uint64, n)
	for i := range out {
		out[i] = uint64(i)
	}
	return out
}

func inOrder(p workloadParams) workload {
	return workload{name: "insert-in-order", kind: opInsert, ops: sequence(p.count)}
}

// interleaved inserts every batch as its even offsets followed by its odd ones, so half
// the window is sparse until each batch completes.
func interleaved(p workloadParams) workload {
	ops := make([]uint64, 0, p.count)
	for base := 0; base < p.count; base += p.batch {
		end := min(base+p.batch, p.count)
		for v := base; v < end; v += 2 {
			ops = append(ops, uint64(v))
		}
		for v := base + 1; v < end; v += 2 {
			ops = append(ops, uint64(v))
		}
	}
	return workload{name: "insert-interleaved", kind: opInsert, ops: ops}
}

// nearMonotonic swaps every element with one at most jitter positions ahead.
func nearMonotonic(p workloadParams) workload {
	ops := sequence(p.count)
	if p.jitter > 0 {
		rng := rand.New(rand.NewSource(p.seed)) //nolint:gosec // reproducible workload, not security
		for i := range ops {
			j := min(len(ops)-1, i+rng.Intn(p.jitter+1))
			ops[i], ops[j] = ops[j], ops[i]
		}
	}
	return workload{name: "insert-near-monotonic", kind: opInsert, ops: ops}
}

// containsAligned queries a dense prefix, all of it below the watermark.
func containsAligned(p workloadParams) workload {
	return workload{
		name:    "contains-aligned",
		kind:    opContains,
		prefill: sequence(p.count),
		ops:     sequence(p.count),
	}
}

// containsUnaligned queries a range where only even values are present, all of them
// in the window.
func containsUnaligned(p workloadParams) workload {
	prefill := make([]uint64, 0, (p.count+1)/2)
	for v := 0; v < p.count; v += 2 {
		prefill = append(prefill, uint64(v))
	}
	return workload{
		name:    "contains-unaligned",
		kind:    opContains,
		prefill: prefill,
		ops:     sequence(p.count),
	}
}
