package subscriber

import (
	"context"
)

// Submitter accepts realtime sequences. *slidingwindow.Manager implements it.
type Submitter interface {
	SubmitSequence(seq uint64) bool
}

// Subscriber feeds newly available sequences to a Submitter until ctx is done or the
// source is exhausted.
type Subscriber interface {
	Subscribe(ctx context.Context, submitter Submitter) error
}
