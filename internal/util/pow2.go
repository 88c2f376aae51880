package util

import "math/bits"

// IsPowerOfTwo reports whether x is a power of two (> 0).
func IsPowerOfTwo(x uint64) bool {
	return x != 0 && (x&(x-1)) == 0
}

// NextPow2 returns the smallest power of two >= x (1 for x == 0),
// clamped to 1<<63 on overflow.
func NextPow2(x uint64) uint64 {
	if x <= 1 {
		return 1
	}
	x--
	x |= x >> 1
	x |= x >> 2
	x |= x >> 4
	x |= x >> 8
	x |= x >> 16
	x |= x >> 32
	x++
	if x == 0 {
		return 1 << 63
	}
	return x
}

// PrevPow2 returns the largest power of two <= x (1 for x == 0).
func PrevPow2(x uint64) uint64 {
	if x <= 1 {
		return 1
	}
	return 1 << (bits.Len64(x) - 1)
}
