package cache

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/IvanBrykalov/blobcache/internal/util"
)

// ErrInvariant is wrapped by Check when the internal index and entries
// disagree or a capacity limit is exceeded. It always indicates a bug.
var ErrInvariant = errors.New("cache: invariant violation")

// cache is a sharded in-memory KV store with strict LRU eviction per shard.
// All methods are safe for concurrent use by multiple goroutines.
type cache[K comparable, V any] struct {
	shards []*shard[K, V]
	hash   func(K) uint64
	closed atomic.Bool

	opt Options[K, V]
}

// New constructs a cache with the provided Options.
// It panics if neither Capacity nor MaxCost is positive, or if MaxCost is
// combined with more than one shard.
func New[K comparable, V any](opt Options[K, V]) Cache[K, V] {
	if opt.Capacity < 0 || opt.MaxCost < 0 {
		panic("cache: Capacity and MaxCost must be >= 0")
	}
	if opt.Capacity == 0 && opt.MaxCost == 0 {
		panic("cache: Capacity or MaxCost must be > 0")
	}
	if opt.MaxCost > 0 && opt.Shards > 1 {
		panic("cache: MaxCost requires a single shard")
	}
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}

	sh := 1
	if opt.Shards > 1 {
		sh = int(util.NextPow2(uint64(opt.Shards)))
		if opt.Capacity > 0 && sh > opt.Capacity {
			sh = int(util.PrevPow2(uint64(opt.Capacity)))
		}
	}
	opt.Shards = sh

	// floor share per shard, remainder one unit each to the first shards
	base, extra := 0, 0
	if opt.Capacity > 0 {
		base, extra = opt.Capacity/sh, opt.Capacity%sh
	}

	tot := &totals{}
	cs := make([]*shard[K, V], sh)
	for i := range cs {
		capacity := base
		if i < extra {
			capacity++
		}
		cs[i] = newShard[K, V](capacity, opt.MaxCost, tot, opt)
	}

	return &cache[K, V]{
		shards: cs,
		hash:   util.Fnv64a[K],
		opt:    opt,
	}
}

// Add inserts k→v only if absent, using DefaultTTL if set.
func (c *cache[K, V]) Add(k K, v V) bool {
	if c.closed.Load() {
		return false
	}
	return c.getShard(k).Add(k, v, c.defaultDeadline(), c.costOf(v))
}

// Set inserts or updates k→v, using DefaultTTL if set.
func (c *cache[K, V]) Set(k K, v V) bool {
	if c.closed.Load() {
		return false
	}
	return c.getShard(k).Set(k, v, c.defaultDeadline(), c.costOf(v))
}

// SetWithTTL inserts or updates k→v with a per-key TTL.
func (c *cache[K, V]) SetWithTTL(k K, v V, ttl time.Duration) bool {
	if c.closed.Load() {
		return false
	}
	return c.getShard(k).Set(k, v, c.deadline(ttl), c.costOf(v))
}

// Get returns the value for k and a presence flag.
func (c *cache[K, V]) Get(k K) (V, bool) {
	if c.closed.Load() {
		var zero V
		return zero, false
	}
	return c.getShard(k).Get(k)
}

// Remove deletes k if present and returns true on success.
func (c *cache[K, V]) Remove(k K) bool {
	if c.closed.Load() {
		return false
	}
	return c.getShard(k).Remove(k)
}

// Len returns the total number of resident entries across all shards.
func (c *cache[K, V]) Len() int {
	total := 0
	for _, s := range c.shards {
		total += s.Len()
	}
	return total
}

// Cost returns the total resident cost across all shards.
func (c *cache[K, V]) Cost() int64 {
	var total int64
	for _, s := range c.shards {
		total += s.Cost()
	}
	return total
}

// Stats aggregates per-shard counters.
func (c *cache[K, V]) Stats() Stats {
	var st Stats
	for _, s := range c.shards {
		s.addStats(&st)
	}
	return st
}

// Purge empties every shard.
func (c *cache[K, V]) Purge() {
	for _, s := range c.shards {
		s.Purge()
	}
}

// Check verifies internal invariants of every shard and the cache-wide
// limits.
func (c *cache[K, V]) Check() error {
	var entries int
	var cost int64
	for i, s := range c.shards {
		if err := s.check(i); err != nil {
			return err
		}
		entries += s.Len()
		cost += s.Cost()
	}
	if c.opt.Capacity > 0 && entries > c.opt.Capacity {
		return fmt.Errorf("%w: %d entries exceed capacity %d", ErrInvariant, entries, c.opt.Capacity)
	}
	if c.opt.MaxCost > 0 && cost > c.opt.MaxCost {
		return fmt.Errorf("%w: cost %d exceeds budget %d", ErrInvariant, cost, c.opt.MaxCost)
	}
	return nil
}

// Close marks the cache as closed. Future operations are ignored.
func (c *cache[K, V]) Close() error {
	c.closed.Store(true)
	return nil
}

// ---- helpers ----

// getShard picks a shard by hashing the key and masking with len-1.
// A single-shard cache skips hashing entirely.
func (c *cache[K, V]) getShard(k K) *shard[K, V] {
	if len(c.shards) == 1 {
		return c.shards[0]
	}
	return c.shards[util.ShardIndex(c.hash(k), len(c.shards))]
}

func (c *cache[K, V]) defaultDeadline() int64 {
	if c.opt.DefaultTTL <= 0 {
		return 0
	}
	return c.deadline(c.opt.DefaultTTL)
}

// deadline converts a relative TTL into an absolute UnixNano deadline.
// A non-positive ttl returns 0 (no expiration).
func (c *cache[K, V]) deadline(ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	now := time.Now().UnixNano()
	if c.opt.Clock != nil {
		now = c.opt.Clock.NowUnixNano()
	}
	return now + int64(ttl)
}

func (c *cache[K, V]) costOf(v V) int64 {
	if c.opt.Cost == nil {
		return 0
	}
	if n := c.opt.Cost(v); n > 0 {
		return n
	}
	return 0
}
