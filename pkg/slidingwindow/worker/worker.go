package worker

import (
	"context"
)

// Worker processes one sequence number. A returned error counts as a failed attempt and
// the sequence is retried.
type Worker interface {
	Process(ctx context.Context, seq uint64) error
}
