// Package slidingwindow implements a concurrent scheduler that processes sequence numbers
// within a sliding window. It is designed for producers that need to catch up historical
// gaps (backfill) while also handling newly submitted sequences (realtime) under bounded
// concurrency and without duplicating work.
//
// Terminology
//   - lowest: the lowest sequence in the window that is not yet processed.
//   - highest: the highest sequence submitted so far.
//     The active window is [lowest..highest], inclusive. Once everything is processed
//     lowest is highest+1.
//
// Main components
//   - Manager: the scheduler. It looks for the next unprocessed sequence in the window
//     and dispatches work while respecting bounded concurrency and a configurable
//     backfill priority relative to realtime work. It tracks in-flight sequences so no
//     sequence runs twice at once, and counts per-sequence failures, stopping the run
//     when a threshold is exceeded.
//   - Worker: the unit of work that processes a single sequence given a context.
//   - State: the window. Processed sequences are kept in a watermark.Set, so lowest is
//     the set's lowest missing value and memory is proportional to how far processing
//     has run ahead of lowest.
//
// Scheduling strategy
//   - Backfill: the manager scans [lowest..highest] for the next sequence that is
//     neither processed nor in flight. While both backfillSem and workerSem have
//     capacity it dispatches a worker and repeats.
//   - Realtime: SubmitSequence raises highest and queues the sequence. The manager
//     acquires only a worker slot for it. If none is free the sequence is dropped from
//     the queue and backfill picks it up from the window.
//
// Success and failure handling
//   - On success the sequence is marked processed, lowest advances over any contiguous
//     processed run and the failure counter is reset.
//   - On failure the failure counter is incremented. When it reaches maxFailures Run
//     returns an error wrapping ErrMaxFailuresExceeded.
//   - In all cases semaphores are released, the in-flight mark is cleared and the
//     scheduler is woken.
//
// Usage
//  1. Construct a State with NewState(lowest, highest), optionally capping the
//     processed set with watermark.WithMaxBuckets.
//  2. Construct a Manager with NewManager.
//  3. Start Run(ctx) in a goroutine.
//  4. Call SubmitSequence as new sequences become available.
//  5. Cancel ctx to stop Run.
package slidingwindow
