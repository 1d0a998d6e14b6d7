package watermark

import (
	"fmt"
	"math"
	"math/big"
	"math/bits"

	"github.com/gammazero/deque"
	"golang.org/x/exp/constraints"
)

// BucketBits is the number of consecutive values tracked by one window bucket.
const BucketBits = 64

const saturated = ^uint64(0)

// Option configures a Set.
type Option func(*options)

type options struct {
	maxBuckets int
}

// WithMaxBuckets caps the window at n buckets (n*64 values above the watermark).
// Insertions that would need a bucket at index n or beyond fail with
// ErrAddressingOverflow. Zero or a negative n means no cap.
func WithMaxBuckets(n int) Option {
	return func(o *options) {
		o.maxBuckets = n
	}
}

// Set is a watermarking set. See the package documentation for the model.
//
// The zero value is not usable; construct one with New, NewFrom, NewBig or
// NewWithArithmetic.
type Set[T any] struct {
	arith      Arithmetic[T]
	watermark  T
	window     deque.Deque[uint64]
	maxBuckets int
}

// New returns an empty set with watermark 0.
func New[T constraints.Integer](opts ...Option) *Set[T] {
	var zero T
	return NewWithArithmetic[T](Integer[T]{}, zero, opts...)
}

// NewFrom returns a set in which every value below start is already present and
// nothing at or above start is.
func NewFrom[T constraints.Integer](start T, opts ...Option) *Set[T] {
	return NewWithArithmetic[T](Integer[T]{}, start, opts...)
}

// NewBig returns an arbitrary-precision set starting at start. A nil start means 0.
// The set keeps its own copy of start.
func NewBig(start *big.Int, opts ...Option) *Set[*big.Int] {
	return NewWithArithmetic[*big.Int](BigInt{}, new(big.Int).Set(orZero(start)), opts...)
}

// NewWithArithmetic returns a set over any element type for which arith supplies
// the numeric operations.
func NewWithArithmetic[T any](arith Arithmetic[T], start T, opts ...Option) *Set[T] {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return &Set[T]{
		arith:      arith,
		watermark:  start,
		maxBuckets: o.maxBuckets,
	}
}

// Watermark returns the current watermark. Every value below it is present.
func (s *Set[T]) Watermark() T {
	return s.watermark
}

// WindowLen returns the number of buckets tracked above the watermark.
func (s *Set[T]) WindowLen() int {
	return s.window.Len()
}

// Bucket returns the bitmap of window bucket i. It panics if i is out of range.
func (s *Set[T]) Bucket(i int) uint64 {
	return s.window.At(i)
}

// Insert marks v as present. Values below the watermark and values already present
// are no-ops.
//
// Insert fails with ErrAddressingOverflow when v is too far above the watermark to be
// indexed, and with ErrWatermarkOverflow when absorbing saturated buckets would push
// the watermark past the range of T. On error the set is left unchanged.
func (s *Set[T]) Insert(v T) error {
	if s.arith.Less(v, s.watermark) {
		return nil
	}

	bucket, offset, err := s.locate(v)
	if err != nil {
		return err
	}

	grown := 0
	for s.window.Len() <= bucket {
		s.window.PushBack(0)
		grown++
	}
	prev := s.window.At(bucket)
	s.window.Set(bucket, prev|1<<offset)

	n := s.saturatedPrefix()
	if n == 0 {
		return nil
	}

	next, err := s.raise(n)
	if err != nil {
		s.window.Set(bucket, prev)
		for ; grown > 0; grown-- {
			s.window.PopBack()
		}
		return err
	}

	for i := 0; i < n; i++ {
		s.window.PopFront()
	}
	s.watermark = next
	return nil
}

// Contains reports whether v has been inserted. Everything below the watermark is
// present. A value too far above the watermark to be indexed lies outside any window
// and is reported absent.
func (s *Set[T]) Contains(v T) bool {
	if s.arith.Less(v, s.watermark) {
		return true
	}
	bucket, offset, err := s.locate(v)
	if err != nil || bucket >= s.window.Len() {
		return false
	}
	return s.window.At(bucket)&(1<<offset) != 0
}

// Addressable reports whether Insert(v) can record v without ErrAddressingOverflow:
// v is below the watermark or its bucket lies within the addressable window, including
// any WithMaxBuckets cap. Values may become addressable as the watermark advances.
func (s *Set[T]) Addressable(v T) bool {
	if s.arith.Less(v, s.watermark) {
		return true
	}
	_, _, err := s.locate(v)
	return err == nil
}

// Size returns the number of distinct values present: the watermark read as a count
// plus every bit set in the window. Values below an explicit start watermark count as
// present. It fails with ErrAddressingOverflow when the watermark is negative or the
// total does not fit in a uint64.
func (s *Set[T]) Size() (uint64, error) {
	size, ok := s.arith.ToUint64(s.watermark)
	if !ok {
		return 0, fmt.Errorf("%w: watermark %v is not a count", ErrAddressingOverflow, s.watermark)
	}
	for i := 0; i < s.window.Len(); i++ {
		var carry uint64
		size, carry = bits.Add64(size, uint64(bits.OnesCount64(s.window.At(i))), 0)
		if carry != 0 {
			return 0, fmt.Errorf("%w: size exceeds uint64", ErrAddressingOverflow)
		}
	}
	return size, nil
}

// LowestMissing returns the smallest value not in the set: the watermark plus the run
// of present values at the start of the window. The second result is false if that
// value is not representable in T.
func (s *Set[T]) LowestMissing() (T, bool) {
	if s.window.Len() == 0 {
		return s.watermark, true
	}
	run := bits.TrailingZeros64(^s.window.Front())
	if run == 0 {
		return s.watermark, true
	}
	d, ok := s.arith.FromUint64(uint64(run))
	if !ok {
		return s.watermark, false
	}
	return s.arith.Add(s.watermark, d)
}

// locate maps v >= watermark to its window bucket and bit offset.
func (s *Set[T]) locate(v T) (int, uint, error) {
	diff, ok := s.arith.Sub(v, s.watermark)
	if !ok {
		return 0, 0, fmt.Errorf("%w: %v - %v does not fit the element type", ErrAddressingOverflow, v, s.watermark)
	}
	d, ok := s.arith.ToUint64(diff)
	if !ok {
		return 0, 0, fmt.Errorf("%w: distance %v from watermark is not a count", ErrAddressingOverflow, diff)
	}
	bucket := d / BucketBits
	if bucket >= math.MaxInt {
		return 0, 0, fmt.Errorf("%w: bucket %d is not addressable", ErrAddressingOverflow, bucket)
	}
	if s.maxBuckets > 0 && bucket >= uint64(s.maxBuckets) {
		return 0, 0, fmt.Errorf("%w: bucket %d exceeds window cap of %d", ErrAddressingOverflow, bucket, s.maxBuckets)
	}
	return int(bucket), uint(d % BucketBits), nil
}

// saturatedPrefix counts the full buckets at the front of the window.
func (s *Set[T]) saturatedPrefix() int {
	n := 0
	for n < s.window.Len() && s.window.At(n) == saturated {
		n++
	}
	return n
}

// raise returns the watermark advanced by n buckets without applying it.
func (s *Set[T]) raise(n int) (T, error) {
	w := s.watermark
	stride, ok := s.arith.FromUint64(BucketBits)
	if !ok {
		return w, fmt.Errorf("%w: bucket stride does not fit the element type", ErrWatermarkOverflow)
	}
	for i := 0; i < n; i++ {
		w, ok = s.arith.Add(w, stride)
		if !ok {
			return s.watermark, fmt.Errorf("%w: cannot raise watermark %v by %d", ErrWatermarkOverflow, s.watermark, BucketBits*n)
		}
	}
	return w, nil
}
