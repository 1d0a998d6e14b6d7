package slidingwindow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/ava-labs/watermarkset/pkg/metrics"
	"github.com/ava-labs/watermarkset/pkg/slidingwindow/worker"
)

// ErrMaxFailuresExceeded is returned by Run when a sequence fails maxFailures times.
var ErrMaxFailuresExceeded = errors.New("max failures exceeded")

type Manager struct {
	log     *zap.SugaredLogger
	state   *State
	worker  worker.Worker
	metrics *metrics.Metrics

	// Limits total concurrent workers (both realtime and backfill).
	workerSem *semaphore.Weighted
	// Caps how many of the concurrent workers may be backfill tasks.
	backfillSem *semaphore.Weighted

	// Input for new sequences (send-only by callers).
	seqChan chan uint64
	// Wake-up signal to re-run scheduling; buffered (size 1) to coalesce signals.
	workReady chan struct{}

	// Failure threshold for a sequence; when reached, the manager sends it to failureChan.
	maxFailures int
	failureChan chan uint64
}

// ManagerOption configures optional Manager dependencies.
type ManagerOption func(*Manager)

// WithMetrics reports window progress and worker outcomes to m.
func WithMetrics(m *metrics.Metrics) ManagerOption {
	return func(mgr *Manager) {
		mgr.metrics = m
	}
}

// NewManager creates a Manager and returns an error if arguments are invalid.
// Constraints: concurrency>0; 0<backfillPriority<concurrency; seqChanCapacity>0; maxFailures>0.
func NewManager(
	log *zap.SugaredLogger,
	s *State,
	w worker.Worker,
	concurrency, backfillPriority uint64,
	seqChanCapacity, maxFailures int,
	opts ...ManagerOption,
) (*Manager, error) {
	if log == nil {
		return nil, errors.New("invalid logger: must not be nil")
	}
	if s == nil {
		return nil, errors.New("invalid state: must not be nil")
	}
	if w == nil {
		return nil, errors.New("invalid worker: must not be nil")
	}
	if concurrency == 0 {
		return nil, errors.New("invalid concurrency: must be greater than 0")
	}
	if backfillPriority == 0 || backfillPriority >= concurrency {
		return nil, errors.New(
			"invalid backfill priority: must be greater than 0 and less than concurrency",
		)
	}
	if seqChanCapacity <= 0 {
		return nil, errors.New("invalid sequence channel capacity: must be greater than 0")
	}
	if maxFailures <= 0 {
		return nil, errors.New("invalid max failures: must be greater than 0")
	}

	m := &Manager{
		log:         log,
		state:       s,
		worker:      w,
		workerSem:   semaphore.NewWeighted(int64(concurrency)),
		backfillSem: semaphore.NewWeighted(int64(backfillPriority)),
		seqChan:     make(chan uint64, seqChanCapacity),
		workReady:   make(chan struct{}, 1),
		maxFailures: maxFailures,
		failureChan: make(chan uint64, 1),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// SubmitSequence raises highest to h so backfill can pick h up even when the realtime
// channel is full. Highest only moves forward: a sequence at or below the current highest
// is already covered by backfill and is not queued. It returns true if h was queued for
// realtime processing.
func (m *Manager) SubmitSequence(h uint64) bool {
	if !m.state.SetHighest(h) {
		m.log.Debugw("sequence not above highest, left to backfill", "sequence", h)
		return false
	}
	m.signalWorkReady()

	select {
	case m.seqChan <- h:
		return true
	default:
		return false
	}
}

// Run executes the scheduling loop until shutdown. It performs backfill work while there is
// capacity and an open window (lowest <= highest), and it handles realtime sequences. The two
// share the worker pool, with backfill capped at backfillPriority slots.
//
// It returns when ctx is done or when the failure threshold is exceeded for a sequence.
func (m *Manager) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for {
		// Aggressive backfill fill (non-blocking)
		for {
			if !m.tryAcquireBackfill() {
				break
			}
			next, ok := m.state.FindAndSetNextInflight()
			if !ok {
				m.backfillSem.Release(1)
				m.workerSem.Release(1)
				break
			}
			go m.process(ctx, next, true)
		}

		// Blocking wait for event (backfill, realtime, failure)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case h := <-m.failureChan:
			return fmt.Errorf(
				"%w: sequence %d failed after %d attempts",
				ErrMaxFailuresExceeded,
				h,
				m.state.GetFailureCount(h),
			)
		case h := <-m.seqChan:
			m.handleNewSequence(ctx, h)
		case <-m.workReady:
			// A worker finished or watermarks changed; loop restarts
		}
	}
}

// Done reports whether every sequence up to highest has been processed.
func (m *Manager) Done() bool {
	lowest, highest := m.state.Window()
	return lowest > highest
}

// handleNewSequence dispatches a realtime sequence if a worker slot is free. Otherwise the
// sequence is dropped here and picked up by the backfill scan.
func (m *Manager) handleNewSequence(ctx context.Context, h uint64) {
	// Realtime work does not consume backfill priority.
	if ok := m.tryAcquireWorker(); ok {
		if ok := m.state.TrySetInflight(h); !ok {
			m.workerSem.Release(1)
			return
		}
		go m.process(ctx, h, false)
	}
}

// process runs the worker for one sequence and records the outcome in the window.
func (m *Manager) process(ctx context.Context, h uint64, isBackfill bool) {
	defer func() {
		if isBackfill {
			m.backfillSem.Release(1)
		}
		m.workerSem.Release(1)
		m.state.UnsetInflight(h)
		m.signalWorkReady()
	}()

	start := time.Now()
	err := m.worker.Process(ctx, h)
	m.metrics.ObserveSequenceProcessing(err, time.Since(start).Seconds())
	if err != nil {
		m.log.Warnw("failed processing sequence", "sequence", h, "error", err)
		m.handleFailure(h)
		return
	}

	if err := m.state.MarkProcessed(h); err != nil {
		m.log.Warnw("failed to mark processed", "sequence", h, "error", err)
		if errors.Is(err, ErrOutOfWindow) {
			m.metrics.IncError(metrics.ErrTypeOutOfWindow)
		} else {
			m.metrics.IncError(metrics.ErrTypeWindowOverflow)
		}
		m.handleFailure(h)
		return
	}

	// Idempotent if not contiguous.
	if before, lowest := m.state.advanceLowest(); lowest != before {
		m.metrics.CommitSequences(lowest-before, lowest, m.state.GetHighest(), m.state.WindowBuckets())
	}
	m.state.ResetFailureCount(h)
}

// handleFailure increments the failure count for a sequence and signals when the threshold is reached.
func (m *Manager) handleFailure(h uint64) {
	failCount := m.state.IncrementFailureCount(h)
	if failCount >= m.maxFailures {
		select {
		case m.failureChan <- h:
		default:
		}
	}
}

// tryAcquireBackfill tries to acquire a backfill permit and a worker permit.
// It returns true if both permits are acquired, false otherwise.
func (m *Manager) tryAcquireBackfill() bool {
	if !m.backfillSem.TryAcquire(1) {
		return false
	}
	if !m.workerSem.TryAcquire(1) {
		m.backfillSem.Release(1)
		return false
	}
	return true
}

// tryAcquireWorker tries to acquire only a worker permit (used by realtime path).
func (m *Manager) tryAcquireWorker() bool {
	return m.workerSem.TryAcquire(1)
}

// signalWorkReady wakes up the scheduling loop.
func (m *Manager) signalWorkReady() {
	select {
	case m.workReady <- struct{}{}:
	default:
	}
}
