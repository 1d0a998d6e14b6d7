package slidingwindow

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ava-labs/watermarkset/pkg/watermark"
)

var (
	ErrInvalidWatermark = errors.New("invalid watermark update: new watermark violates invariants")
	ErrOutOfWindow      = errors.New("sequence outside current window")
)

// State is a thread-safe in-memory store for the sliding window state: the [lowest..highest]
// window, the processed sequences inside it and the sequences currently claimed by workers.
//
// Processed sequences are kept in a watermark.Set, so memory grows with how far processing
// runs ahead of lowest rather than with the number of sequences processed.
type State struct {
	mu        sync.Mutex
	lowest    uint64                 // lowest unprocessed sequence.
	highest   uint64                 // highest submitted sequence.
	processed *watermark.Set[uint64] // processed sequences; everything below lowest is implied.
	inflight  map[uint64]struct{}    // sequences claimed by a worker.
	setOpts   []watermark.Option

	// Per-sequence failure counters; trip threshold shuts down Run.
	failCounts map[uint64]int
	failMu     sync.Mutex
}

// NewState creates a new in-memory State with the given initial watermarks. Options are
// applied to the processed set, e.g. watermark.WithMaxBuckets to bound memory.
func NewState(initialLowest, initialHighest uint64, opts ...watermark.Option) (*State, error) {
	if initialHighest < initialLowest {
		return nil, fmt.Errorf(
			"invalid initial watermarks: highest < lowest: %d < %d",
			initialHighest,
			initialLowest,
		)
	}
	return &State{
		lowest:     initialLowest,
		highest:    initialHighest,
		processed:  watermark.NewFrom(initialLowest, opts...),
		inflight:   make(map[uint64]struct{}),
		setOpts:    opts,
		failCounts: make(map[uint64]int),
	}, nil
}

// GetLowest returns the lowest unprocessed sequence.
func (s *State) GetLowest() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lowest
}

// GetHighest returns the highest submitted sequence.
func (s *State) GetHighest() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.highest
}

// Window returns lowest and highest under a single lock.
func (s *State) Window() (uint64, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lowest, s.highest
}

// WindowBuckets returns the number of buckets the processed set tracks above its watermark.
func (s *State) WindowBuckets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processed.WindowLen()
}

// SetHighest raises highest. It returns true if the value was updated, false if newHighest
// is not greater than the current highest.
func (s *State) SetHighest(newHighest uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if newHighest <= s.highest {
		return false
	}
	s.highest = newHighest
	return true
}

// ResetLowest sets the lowest unprocessed sequence explicitly (used for re-ingestion).
// This may move lowest forward or backward. The processed set is rebuilt from the new
// lowest; marks at or above both the old and the new lowest are carried over, marks
// below the new lowest are dropped.
func (s *State) ResetLowest(newLowest uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if newLowest > s.highest {
		return fmt.Errorf("%w: new lowest > highest: %d > %d", ErrInvalidWatermark, newLowest, s.highest)
	}

	rebuilt := watermark.NewFrom(newLowest, s.setOpts...)
	from := max(newLowest, s.lowest)
	for h := from; h <= s.highest; h++ {
		if s.processed.Contains(h) {
			if err := rebuilt.Insert(h); err != nil {
				return fmt.Errorf("failed to carry processed mark %d: %w", h, err)
			}
		}
		if h == s.highest {
			break
		}
	}
	s.lowest = newLowest
	s.processed = rebuilt
	return nil
}

// MarkProcessed marks a sequence as processed.
func (s *State) MarkProcessed(h uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Sequences strictly below lowest are implicitly processed/committed already.
	if h < s.lowest {
		return nil
	}
	if h > s.highest {
		return fmt.Errorf("%w: sequence is greater than highest: %d > %d", ErrOutOfWindow, h, s.highest)
	}
	if err := s.processed.Insert(h); err != nil {
		return fmt.Errorf("failed to mark sequence %d processed: %w", h, err)
	}
	return nil
}

// IsProcessed returns true if a sequence is recorded as processed.
// Sequences below the current lowest are considered committed and implicitly processed.
func (s *State) IsProcessed(h uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isProcessedLocked(h)
}

func (s *State) isProcessedLocked(h uint64) bool {
	return h < s.lowest || s.processed.Contains(h)
}

// AdvanceLowest slides lowest forward over the contiguous run of processed sequences.
// Returns the new lowest and whether it changed. Idempotent.
func (s *State) AdvanceLowest() (uint64, bool) {
	before, after := s.advanceLowest()
	return after, after != before
}

// advanceLowest is AdvanceLowest reporting the lowest it started from, so callers can count
// committed sequences without racing other advances.
func (s *State) advanceLowest() (before, after uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	before = s.lowest
	next, ok := s.processed.LowestMissing()
	if !ok {
		// Every uint64 is processed; the window cannot move past highest.
		next = s.highest
	}
	if next > s.lowest {
		s.lowest = next
	}
	return before, s.lowest
}

// GetFailureCount returns the current failure count for a sequence.
func (s *State) GetFailureCount(h uint64) int {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	return s.failCounts[h]
}

// IncrementFailureCount increments the failure count for a sequence.
// Returns the new failure count.
func (s *State) IncrementFailureCount(h uint64) int {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	s.failCounts[h]++
	return s.failCounts[h]
}

// ResetFailureCount resets the failure count for a sequence.
func (s *State) ResetFailureCount(h uint64) {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	delete(s.failCounts, h)
}

// IsInflight returns true if a sequence is being processed.
func (s *State) IsInflight(h uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.inflight[h]
	return ok
}

// TrySetInflight claims a sequence for processing. It fails if the sequence is outside
// [lowest..highest], already processed, already claimed or beyond the processed set's
// window cap, where MarkProcessed could not record it yet.
func (s *State) TrySetInflight(h uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h < s.lowest || h > s.highest || s.isProcessedLocked(h) || !s.processed.Addressable(h) {
		return false
	}
	if _, ok := s.inflight[h]; ok {
		return false
	}
	s.inflight[h] = struct{}{}
	return true
}

// UnsetInflight removes a sequence from the inflight set.
func (s *State) UnsetInflight(h uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, h)
}

// FindNextUnclaimedSequence finds the next sequence in [lowest..highest] that is neither
// processed nor inflight and that the processed set can record.
func (s *State) FindNextUnclaimedSequence() (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findNextUnclaimedLocked()
}

// FindAndSetNextInflight finds the next unclaimed sequence and claims it atomically.
func (s *State) FindAndSetNextInflight() (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.findNextUnclaimedLocked()
	if !ok {
		return 0, false
	}
	s.inflight[h] = struct{}{}
	return h, true
}

// findNextUnclaimedLocked stops at the first sequence beyond the window cap; everything
// above it is beyond the cap too, until lowest moves.
func (s *State) findNextUnclaimedLocked() (uint64, bool) {
	if s.lowest > s.highest {
		return 0, false
	}
	for h := s.lowest; ; h++ {
		if !s.processed.Addressable(h) {
			return 0, false
		}
		if !s.isProcessedLocked(h) {
			if _, ok := s.inflight[h]; !ok {
				return h, true
			}
		}
		if h == s.highest {
			return 0, false
		}
	}
}
