package slidingwindow

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ava-labs/watermarkset/pkg/metrics"
)

// StartGapWatchdog periodically reports the window to m and warns when the number of
// unprocessed sequences in [lowest..highest] exceeds maxGap, or when the processed set
// tracks more than maxBuckets buckets above its watermark. A zero maxBuckets disables
// the bucket check. m may be nil.
func StartGapWatchdog(
	ctx context.Context,
	log *zap.SugaredLogger,
	s *State,
	m *metrics.Metrics,
	interval time.Duration,
	maxGap uint64,
	maxBuckets int,
) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			lowest, highest := s.Window()
			buckets := s.WindowBuckets()
			m.UpdateWindowMetrics(lowest, highest, buckets)

			// lowest == highest+1 once every submitted sequence is processed.
			var gap uint64
			switch {
			case highest >= lowest:
				gap = highest - lowest
			case lowest == highest+1:
				gap = 0
			default:
				log.Warnw("state inconsistency in gap watchdog: lowest much greater than highest", "highest", highest, "lowest", lowest)
			}
			if gap > maxGap {
				log.Warnw("gap too large", "gap", gap, "highest", highest, "lowest", lowest)
			}
			if maxBuckets > 0 && buckets > maxBuckets {
				log.Warnw("processed window too wide",
					"buckets", buckets,
					"max_buckets", maxBuckets,
					"lowest", lowest,
				)
			}
		}
	}
}
