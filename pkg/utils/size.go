package utils

import (
	"fmt"

	"github.com/inhies/go-bytesize"
)

// bucketBytes is the size of one 64-bit watermark bucket.
const bucketBytes = 8

// BucketsForSize converts a human memory cap such as "64KB" into a number of watermark
// buckets. An empty size means unbounded and returns 0.
func BucketsForSize(size string) (int, error) {
	if size == "" {
		return 0, nil
	}
	b, err := bytesize.Parse(size)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", size, err)
	}
	buckets := int(float64(b) / bucketBytes)
	if buckets < 1 {
		return 0, fmt.Errorf("invalid size %q: smaller than one bucket (%d bytes)", size, bucketBytes)
	}
	return buckets, nil
}

// BucketsSize formats the memory held by n buckets, e.g. "8.00KB".
func BucketsSize(n int) string {
	return bytesize.ByteSize(n * bucketBytes).String()
}
