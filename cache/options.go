package cache

import "time"

// EvictReason explains why an entry was removed.
type EvictReason int

const (
	// EvictPolicy: removed as the LRU entry to satisfy the entry count limit.
	EvictPolicy EvictReason = iota
	// EvictTTL: expired by TTL (lazy eviction on access).
	EvictTTL
	// EvictCapacity: removed to satisfy the cost budget, or dropped because
	// its replacement was too large to admit.
	EvictCapacity
)

// String returns a stable lowercase name, suitable for metric labels.
func (r EvictReason) String() string {
	switch r {
	case EvictTTL:
		return "ttl"
	case EvictCapacity:
		return "capacity"
	default:
		return "policy"
	}
}

// Metrics exposes cache-level observability hooks.
// A NoopMetrics implementation is provided and used by default.
type Metrics interface {
	Hit()
	Miss()
	Evict(reason EvictReason)
	// Reject is called when a value is refused because its cost alone
	// exceeds MaxCost.
	Reject()
	// Size reports cache-wide totals after every change.
	Size(entries int, cost int64)
}

// Clock provides time in UnixNano; useful for deterministic tests.
type Clock interface{ NowUnixNano() int64 }

// Options configures the cache behavior. Defaults applied in New():
//   - Shards <= 0  => 1 (single global LRU order)
//   - nil Metrics  => NoopMetrics
//
// At least one of Capacity or MaxCost must be positive.
type Options[K comparable, V any] struct {
	// Capacity is the entry count limit; 0 leaves the count unbounded.
	Capacity int

	// Shards defines the number of shards, rounded up to a power of two and
	// then down so that no shard is left with a zero entry share. Capacity
	// is split exactly: the shares sum to Capacity.
	Shards int

	// DefaultTTL applies to Add/Set (0 = no TTL).
	DefaultTTL time.Duration

	// Cost-based limiting (bytes for blob caches). If Cost is non-nil and
	// MaxCost > 0, the cache evicts until both entry count and total cost
	// limits are satisfied.
	Cost    func(v V) int64 // nil = all entries cost 0
	MaxCost int64           // total cost limit; 0 disables cost limiting; requires a single shard

	// OnEvict is called on eviction under the shard lock; keep callbacks lightweight.
	OnEvict func(k K, v V, reason EvictReason)
	Metrics Metrics

	// Clock allows overriding time source (tests). Nil => time.Now().
	Clock Clock
}
