package cache

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IvanBrykalov/blobcache/internal/util"
)

// shard is an independent partition of the cache with its own lock, map,
// and an intrusive doubly linked list (head=MRU, tail=LRU).
type shard[K comparable, V any] struct {
	// ---- guarded by mu ----
	mu      sync.Mutex
	m       map[K]*node[K, V]
	head    *node[K, V] // MRU
	tail    *node[K, V] // LRU
	len     int         // number of resident entries
	cost    int64       // total resident cost
	cap     int         // per-shard entry capacity (0 = unbounded)
	maxCost int64       // cost limit (0 = disabled)

	tot *totals // shared by all shards of one cache
	opt Options[K, V]

	// ---- hot counters (separate cache lines to avoid false sharing) ----
	_       util.CacheLinePad
	hits    util.PaddedAtomicInt64
	misses  util.PaddedAtomicInt64
	evicts  util.PaddedAtomicUint64
	rejects util.PaddedAtomicUint64
}

// totals tracks resident entries and cost across every shard so Size
// reports cache-wide figures.
type totals struct {
	entries atomic.Int64
	cost    atomic.Int64
}

func (t *totals) add(entries int, cost int64) {
	t.entries.Add(int64(entries))
	t.cost.Add(cost)
}

func newShard[K comparable, V any](capacity int, maxCost int64, tot *totals, opt Options[K, V]) *shard[K, V] {
	return &shard[K, V]{
		m:       make(map[K]*node[K, V], capacity),
		cap:     capacity,
		maxCost: maxCost,
		tot:     tot,
		opt:     opt,
	}
}

// Add inserts a NEW entry as MRU. An expired resident entry is replaced.
// Returns false if the key is live or the value is too large to admit.
func (s *shard[K, V]) Add(k K, v V, ttl int64, cost int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n, exists := s.m[k]; exists {
		if !s.expiredLocked(n) {
			return false
		}
		s.evictNode(n, EvictTTL)
	}
	if s.oversizeLocked(cost) {
		s.rejectLocked()
		return false
	}
	s.pushLocked(k, v, ttl, cost)
	return true
}

// Set inserts or updates an entry and promotes it to MRU.
// An oversize value is refused and drops any previous entry for k.
func (s *shard[K, V]) Set(k K, v V, ttl int64, cost int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.m[k]
	if s.oversizeLocked(cost) {
		if ok {
			s.evictNode(n, EvictCapacity)
		}
		s.rejectLocked()
		return false
	}
	if ok {
		// In-place update: adjust cost delta and promote.
		s.cost += cost - n.cost
		s.tot.add(0, cost-n.cost)
		n.val = v
		n.exp = ttl
		n.cost = cost
		s.moveToFront(n)
		s.enforceLimitsLocked()
		return true
	}
	s.pushLocked(k, v, ttl, cost)
	return true
}

// Get returns the value and promotes the entry to MRU.
// TTL: if expired, the entry is evicted and a miss is returned.
func (s *shard[K, V]) Get(k K) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.m[k]
	if !ok {
		s.misses.Add(1)
		s.opt.Metrics.Miss()
		var zero V
		return zero, false
	}
	if s.expiredLocked(n) {
		s.evictNode(n, EvictTTL)
		s.misses.Add(1)
		s.opt.Metrics.Miss()
		s.reportSizeLocked()
		var zero V
		return zero, false
	}

	s.moveToFront(n)
	s.hits.Add(1)
	s.opt.Metrics.Hit()
	return n.val, true
}

// Remove deletes an entry by key. Returns true if the entry existed.
// Explicit removal is not counted as an eviction.
func (s *shard[K, V]) Remove(k K) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.m[k]
	if !ok {
		return false
	}
	s.unlink(n)
	delete(s.m, k)
	s.reportSizeLocked()
	return true
}

// Purge drops all entries.
func (s *shard[K, V]) Purge() {
	s.mu.Lock()
	defer s.mu.Unlock()

	clear(s.m)
	s.head, s.tail = nil, nil
	s.tot.add(-s.len, -s.cost)
	s.len, s.cost = 0, 0
	s.reportSizeLocked()
}

// Len returns the number of resident entries in this shard.
func (s *shard[K, V]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.len
}

// Cost returns the resident cost of this shard.
func (s *shard[K, V]) Cost() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cost
}

func (s *shard[K, V]) addStats(st *Stats) {
	s.mu.Lock()
	st.Entries += s.len
	st.Cost += s.cost
	s.mu.Unlock()
	st.Hits += s.hits.Load()
	st.Misses += s.misses.Load()
	st.Evictions += s.evicts.Load()
	st.Rejections += s.rejects.Load()
}

// check walks the list MRU→LRU and cross-checks it against the map,
// the counters and the limits. O(n); meant for tests and diagnostics.
func (s *shard[K, V]) check(idx int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	var cost int64
	var prev *node[K, V]
	for n := s.head; n != nil; n = n.next {
		if n.prev != prev {
			return fmt.Errorf("%w: shard %d: broken back link at position %d", ErrInvariant, idx, count)
		}
		if s.m[n.key] != n {
			return fmt.Errorf("%w: shard %d: list node at position %d not indexed", ErrInvariant, idx, count)
		}
		count++
		cost += n.cost
		prev = n
		if count > len(s.m) {
			return fmt.Errorf("%w: shard %d: list longer than index (%d)", ErrInvariant, idx, len(s.m))
		}
	}
	switch {
	case prev != s.tail:
		return fmt.Errorf("%w: shard %d: tail does not terminate the list", ErrInvariant, idx)
	case count != len(s.m) || count != s.len:
		return fmt.Errorf("%w: shard %d: list=%d index=%d len=%d", ErrInvariant, idx, count, len(s.m), s.len)
	case cost != s.cost:
		return fmt.Errorf("%w: shard %d: cost sum=%d counter=%d", ErrInvariant, idx, cost, s.cost)
	case s.cap > 0 && s.len > s.cap:
		return fmt.Errorf("%w: shard %d: %d entries exceed capacity %d", ErrInvariant, idx, s.len, s.cap)
	case s.maxCost > 0 && s.cost > s.maxCost:
		return fmt.Errorf("%w: shard %d: cost %d exceeds budget %d", ErrInvariant, idx, s.cost, s.maxCost)
	}
	return nil
}

// -------------------- internals (mu held) --------------------

func (s *shard[K, V]) oversizeLocked(cost int64) bool {
	return s.maxCost > 0 && cost > s.maxCost
}

func (s *shard[K, V]) rejectLocked() {
	s.rejects.Add(1)
	s.opt.Metrics.Reject()
	s.reportSizeLocked()
}

func (s *shard[K, V]) reportSizeLocked() {
	s.opt.Metrics.Size(int(s.tot.entries.Load()), s.tot.cost.Load())
}

func (s *shard[K, V]) pushLocked(k K, v V, ttl int64, cost int64) {
	n := &node[K, V]{key: k, val: v, exp: ttl, cost: cost}
	s.m[k] = n
	s.insertFront(n)
	s.enforceLimitsLocked()
}

func (s *shard[K, V]) expiredLocked(n *node[K, V]) bool {
	if n.exp == 0 {
		return false
	}
	return s.now() > n.exp
}

func (s *shard[K, V]) now() int64 {
	if s.opt.Clock != nil {
		return s.opt.Clock.NowUnixNano()
	}
	return time.Now().UnixNano()
}

// insertFront inserts n at MRU in O(1).
func (s *shard[K, V]) insertFront(n *node[K, V]) {
	n.prev = nil
	n.next = s.head
	if s.head != nil {
		s.head.prev = n
	}
	s.head = n
	if s.tail == nil {
		s.tail = n
	}
	s.len++
	s.cost += n.cost
	s.tot.add(1, n.cost)
}

// moveToFront promotes n to MRU in O(1).
func (s *shard[K, V]) moveToFront(n *node[K, V]) {
	if n == s.head {
		return
	}
	// detach
	if n.prev != nil {
		n.prev.next = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	}
	if s.tail == n {
		s.tail = n.prev
	}
	// insert at head
	n.prev = nil
	n.next = s.head
	if s.head != nil {
		s.head.prev = n
	}
	s.head = n
	if s.tail == nil {
		s.tail = n
	}
}

// unlink removes n from the list and updates counters in O(1).
// Map bookkeeping is left to the caller.
func (s *shard[K, V]) unlink(n *node[K, V]) {
	if n.prev != nil {
		n.prev.next = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	}
	if s.head == n {
		s.head = n.next
	}
	if s.tail == n {
		s.tail = n.prev
	}
	n.prev, n.next = nil, nil
	s.len--
	s.cost -= n.cost
	s.tot.add(-1, -n.cost)
}

// evictNode removes the node, updates metrics/counters, and calls OnEvict.
func (s *shard[K, V]) evictNode(n *node[K, V], reason EvictReason) {
	s.unlink(n)
	delete(s.m, n.key)
	s.evicts.Add(1)
	s.opt.Metrics.Evict(reason)
	if cb := s.opt.OnEvict; cb != nil {
		cb(n.key, n.val, reason)
	}
}

// enforceLimitsLocked evicts from the LRU end until both count and cost
// limits hold. The MRU entry is never evicted here: the count limit is at
// least one and an oversize MRU entry is refused before it is linked.
func (s *shard[K, V]) enforceLimitsLocked() {
	if s.cap > 0 {
		for s.len > s.cap && s.tail != s.head {
			s.evictNode(s.tail, EvictPolicy)
		}
	}
	if s.maxCost > 0 {
		for s.cost > s.maxCost && s.tail != s.head {
			s.evictNode(s.tail, EvictCapacity)
		}
	}
	s.reportSizeLocked()
}
