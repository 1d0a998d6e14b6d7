package checkpointer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ava-labs/watermarkset/pkg/metrics"
)

// Checkpointer abstracts checkpoint persistence. A checkpoint is the lowest sequence not yet
// processed by a stream: every sequence below it is done, so a restart seeds a fresh window
// from it and nothing else needs to be stored.
type Checkpointer interface {
	// Initialize ensures the underlying storage is ready. It is idempotent.
	Initialize(ctx context.Context) error

	// Write atomically persists lowest as the checkpoint for stream.
	Write(ctx context.Context, stream string, lowest uint64) error

	// Read returns the checkpoint for stream and whether one exists. Without a checkpoint
	// exists is false and lowest is 0.
	Read(ctx context.Context, stream string) (lowest uint64, exists bool, err error)

	// Delete removes the checkpoint for stream. Deleting a missing checkpoint is not an error.
	Delete(ctx context.Context, stream string) error
}

// LowestSource reports the value to checkpoint. slidingwindow.State and processor.Dedup
// implement it.
type LowestSource interface {
	GetLowest() uint64
}

// Start periodically persists source.GetLowest() for stream until ctx is done, then writes
// once more so a graceful shutdown loses no progress.
//
// Returns nil on context cancellation, or an error if a checkpoint write fails after all
// retries.
func Start(
	ctx context.Context,
	log *zap.SugaredLogger,
	source LowestSource,
	checkpointer Checkpointer,
	cfg Config,
	stream string,
	m *metrics.Metrics,
) error {
	t := time.NewTicker(cfg.Interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			finalCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.WriteTimeout)
			lowest := source.GetLowest()
			err := checkpointer.Write(finalCtx, stream, lowest)
			cancel()
			m.RecordCheckpointWrite(lowest, err)
			if err != nil {
				log.Errorw("failed to write final checkpoint", "stream", stream, "lowest", lowest, "error", err)
				return nil
			}
			log.Infow("wrote final checkpoint", "stream", stream, "lowest", lowest)
			return nil

		case <-t.C:
			lowest := source.GetLowest()
			if err := writeWithRetry(ctx, log, checkpointer, cfg, stream, lowest, m); err != nil {
				return err
			}
		}
	}
}

func writeWithRetry(
	ctx context.Context,
	log *zap.SugaredLogger,
	checkpointer Checkpointer,
	cfg Config,
	stream string,
	lowest uint64,
	m *metrics.Metrics,
) error {
	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil
		}

		writeCtx, cancel := context.WithTimeout(ctx, cfg.WriteTimeout)
		lastErr = checkpointer.Write(writeCtx, stream, lowest)
		cancel()
		m.RecordCheckpointWrite(lowest, lastErr)
		if lastErr == nil {
			log.Debugw("wrote checkpoint", "stream", stream, "lowest", lowest)
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}

		log.Warnw("checkpoint write failed", "stream", stream, "attempt", attempt+1, "error", lastErr)
		if attempt < cfg.MaxRetries {
			select {
			case <-time.After(cfg.RetryBackoff):
			case <-ctx.Done():
				return nil
			}
		}
	}
	return fmt.Errorf("failed to write checkpoint (lowest: %d) after %d retries: %w",
		lowest, cfg.MaxRetries+1, lastErr)
}
