// SPDX-License-Identifier: MIT
/*
Package bitint provides the power-of-two helpers used to size transform
windows. All functions are allocation free and safe to call from the
audio callback.

Usage:

	// Reject transform sizes the FFT cannot use
	if !bitint.IsPowerOfTwo(size) { ... }

	// Suggest a usable size close to what was asked for
	hint := bitint.NearestPowerOfTwo(3000) // Returns 2048

NextPowerOfTwo subtracts one before taking the bit length so that exact
powers of two are preserved: for 8, bits.Len(7) = 3 and 1<<3 = 8, whereas
bits.Len(8) = 4 would double the input.
*/
package bitint

import "math/bits"

// NextPowerOfTwo returns the smallest power of 2 >= size, and 1 for
// size <= 0.
func NextPowerOfTwo(size int) int {
	if size <= 0 {
		return 1
	}
	return 1 << bits.Len(uint(size-1))
}

// PrevPowerOfTwo returns the largest power of 2 <= size, and 0 for
// size <= 0.
func PrevPowerOfTwo(size int) int {
	if size <= 0 {
		return 0
	}
	return 1 << (bits.Len(uint(size)) - 1)
}

// NearestPowerOfTwo returns the power of 2 closest to size. Ties round up.
//
//	Input  Output
//	3000   2048
//	6000   4096
//	12     16
//	0      1
func NearestPowerOfTwo(size int) int {
	if size <= 1 {
		return 1
	}
	lo, hi := PrevPowerOfTwo(size), NextPowerOfTwo(size)
	if size-lo < hi-size {
		return lo
	}
	return hi
}

// IsPowerOfTwo reports whether n has exactly one bit set.
func IsPowerOfTwo(n int) bool {
	return n > 0 && (n&(n-1)) == 0
}
