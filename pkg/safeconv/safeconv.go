// Package safeconv provides integer conversions for hit counters that must
// never wrap around.
package safeconv

import "math"

// SaturateInt64 converts v to int64, clamping at math.MaxInt64.
func SaturateInt64(v uint64) int64 {
	if v > math.MaxInt64 {
		return math.MaxInt64
	}

	return int64(v)
}

// AddSaturating returns a+b, clamping at math.MaxUint64.
func AddSaturating(a, b uint64) uint64 {
	sum := a + b
	if sum < a {
		return math.MaxUint64
	}

	return sum
}

// MustNonNegative converts v to uint64, panics if negative.
// Use only when negative values are logically impossible.
func MustNonNegative(v int) uint64 {
	if v < 0 {
		panic("safeconv: negative int to uint64 conversion")
	}

	return uint64(v)
}
