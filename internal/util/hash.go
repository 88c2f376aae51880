// Package util contains internal helpers (hashing, sharding, padding).
//revive:disable:var-naming  // allow 'util' as an internal helpers package name
package util

import (
	"fmt"
)

// Fnv64a hashes shard keys using 64-bit FNV-1a.
// Blob paths are strings, so that case is the hot one; integer keys and
// fmt.Stringer are accepted for the generic engine. Other key types panic
// rather than hash poorly; single-shard caches never call this.
func Fnv64a[K comparable](k K) uint64 {
	switch v := any(k).(type) {
	case string:
		return fnv64aString(v)
	case int:
		return fnv64aUint64(uint64(v))
	case int64:
		return fnv64aUint64(uint64(v))
	case uint64:
		return fnv64aUint64(v)
	case uint32:
		return fnv64aUint64(uint64(v))
	case fmt.Stringer:
		return fnv64aString(v.String())
	default:
		panic(fmt.Sprintf("util.Fnv64a: unsupported shard key type %T", k))
	}
}

const (
	fnvOffset64 = 1469598103934665603
	fnvPrime64  = 1099511628211
)

// fnv64aString hashes s without converting it to a []byte.
func fnv64aString(s string) uint64 {
	h := uint64(fnvOffset64)
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= fnvPrime64
	}
	return h
}

func fnv64aUint64(u uint64) uint64 {
	h := uint64(fnvOffset64)
	for i := 0; i < 8; i++ {
		h ^= uint64(byte(u))
		h *= fnvPrime64
		u >>= 8
	}
	return h
}
