// Package watermark implements a watermarking set: a membership container for
// integer identifiers that arrive mostly in order, such as message offsets or
// sequence numbers in an idempotent processing pipeline.
//
// Terminology
//   - Watermark: every value strictly below it has been inserted.
//   - Bucket: a 64-bit bitmap covering 64 consecutive values above the watermark.
//   - Window: the buckets currently tracked, front = lowest values. It grows at the
//     back when a value arrives ahead of the watermark and shrinks at the front when
//     the front bucket becomes saturated (all 64 bits set), which raises the
//     watermark by 64.
//
// Memory is proportional to the disorder of the stream (the gap between the
// watermark and the highest inserted value, divided by 64), not to the number of
// values seen. A single value inserted far ahead of the watermark pins a
// correspondingly large window until the gap is filled; WithMaxBuckets caps it.
//
// Typical use, deduplicating a message bus:
//
//	seen := watermark.New[uint64]()
//	for msg := range messages {
//		if seen.Contains(msg.ID) {
//			continue
//		}
//		if err := seen.Insert(msg.ID); err != nil {
//			return err
//		}
//		handle(msg)
//	}
//
// A Set is not safe for concurrent use; callers that share one across goroutines
// must guard it with their own lock.
package watermark
