package watermark

import (
	"math/big"

	"golang.org/x/exp/constraints"
)

// Arithmetic is the numeric capability a Set needs from its element type: ordering,
// overflow-checked addition and subtraction, and conversion to and from a machine-width
// count. Every method reports false instead of wrapping around.
type Arithmetic[T any] interface {
	// Less reports whether a < b.
	Less(a, b T) bool
	// Add returns a+b.
	Add(a, b T) (T, bool)
	// Sub returns a-b.
	Sub(a, b T) (T, bool)
	// FromUint64 converts n to T.
	FromUint64(n uint64) (T, bool)
	// ToUint64 converts v to a count; negative values do not convert.
	ToUint64(v T) (uint64, bool)
}

// Integer implements Arithmetic for the built-in fixed-width integer types.
type Integer[T constraints.Integer] struct{}

var (
	_ Arithmetic[uint64] = Integer[uint64]{}
	_ Arithmetic[int8]   = Integer[int8]{}
)

func (Integer[T]) Less(a, b T) bool { return a < b }

func (Integer[T]) Add(a, b T) (T, bool) {
	var zero T
	s := a + b
	if b >= zero {
		return s, s >= a
	}
	return s, s < a
}

func (Integer[T]) Sub(a, b T) (T, bool) {
	var zero T
	d := a - b
	if b >= zero {
		return d, d <= a
	}
	return d, d > a
}

func (Integer[T]) FromUint64(n uint64) (T, bool) {
	var zero T
	v := T(n)
	if v < zero || uint64(v) != n {
		return zero, false
	}
	return v, true
}

func (Integer[T]) ToUint64(v T) (uint64, bool) {
	var zero T
	if v < zero {
		return 0, false
	}
	return uint64(v), true
}

// BigInt implements Arithmetic for arbitrary-precision integers. Operands are never
// mutated and a nil *big.Int reads as zero. Add and Sub cannot overflow.
type BigInt struct{}

var _ Arithmetic[*big.Int] = BigInt{}

func (BigInt) Less(a, b *big.Int) bool { return orZero(a).Cmp(orZero(b)) < 0 }

func (BigInt) Add(a, b *big.Int) (*big.Int, bool) {
	return new(big.Int).Add(orZero(a), orZero(b)), true
}

func (BigInt) Sub(a, b *big.Int) (*big.Int, bool) {
	return new(big.Int).Sub(orZero(a), orZero(b)), true
}

func (BigInt) FromUint64(n uint64) (*big.Int, bool) { return new(big.Int).SetUint64(n), true }

func (BigInt) ToUint64(v *big.Int) (uint64, bool) {
	v = orZero(v)
	if v.Sign() < 0 || !v.IsUint64() {
		return 0, false
	}
	return v.Uint64(), true
}

var bigZero = new(big.Int)

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return bigZero
	}
	return v
}
