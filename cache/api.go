package cache

import "time"

// Cache is an in-memory key/value store with strict LRU eviction.
// All methods are safe for concurrent use by multiple goroutines.
//
// Typical complexity for operations is amortized O(1):
// a map lookup plus constant-time list adjustments under a shard lock.
type Cache[K comparable, V any] interface {
	// Add inserts k→v only if k is not resident (an expired entry counts as
	// absent). It uses the cache's DefaultTTL (if any).
	// Returns false if the key already exists or the value was rejected
	// because its cost exceeds the cost budget.
	Add(k K, v V) bool

	// Set inserts or updates k→v and promotes the entry to MRU.
	// It uses the cache's DefaultTTL (if any).
	// Returns false if the value was rejected because its cost exceeds the
	// cost budget; in that case any previous entry for k is dropped.
	Set(k K, v V) bool

	// SetWithTTL is Set with a per-key TTL (relative duration).
	// A non-positive ttl disables expiration for this entry.
	SetWithTTL(k K, v V, ttl time.Duration) bool

	// Get returns the value for k and a boolean flag indicating presence.
	// On hit, the entry is promoted to MRU.
	Get(k K) (V, bool)

	// Remove deletes k if present and returns true on success.
	// Removing an absent key is a no-op.
	Remove(k K) bool

	// Len returns the total number of resident entries across all shards.
	Len() int

	// Cost returns the total resident cost across all shards.
	Cost() int64

	// Stats returns a point-in-time snapshot of counters and sizes.
	Stats() Stats

	// Purge drops every resident entry without reporting evictions.
	Purge()

	// Check walks every shard and verifies the map/list bijection and the
	// capacity limits. A non-nil result wraps ErrInvariant and means a bug.
	Check() error

	// Close marks the cache closed; subsequent operations are ignored.
	Close() error
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Entries    int
	Cost       int64
	Hits       int64
	Misses     int64
	Evictions  uint64
	Rejections uint64
}
