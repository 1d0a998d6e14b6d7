package subscriber

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Ticker makes one new sequence available per interval, from start through end.
type Ticker struct {
	log      *zap.SugaredLogger
	start    uint64
	end      uint64
	interval time.Duration
}

func NewTicker(log *zap.SugaredLogger, start, end uint64, interval time.Duration) (*Ticker, error) {
	if end < start {
		return nil, errors.New("invalid range: end must not be below start")
	}
	if interval <= 0 {
		return nil, errors.New("invalid interval: must be greater than 0")
	}
	return &Ticker{log: log, start: start, end: end, interval: interval}, nil
}

// Subscribe is a BLOCKING function. It submits start..end, one per tick, and returns nil
// after end, or ctx.Err() if ctx is done first.
func (s *Ticker) Subscribe(ctx context.Context, submitter Submitter) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	next := s.start
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if !submitter.SubmitSequence(next) {
				s.log.Debugw("dropped realtime sequence; queued for backfill", "sequence", next)
			}
			if next == s.end {
				s.log.Infow("ticker reached end of range", "end", s.end)
				return nil
			}
			next++
		}
	}
}
