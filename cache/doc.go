// Package cache provides the in-memory LRU engine behind blobcache.
//
// Design
//
//   - Storage: each shard keeps a map[K]*node for lookups and an intrusive
//     MRU↔LRU doubly linked list for ordering. All operations are O(1) expected.
//
//   - Concurrency: one mutex per shard covers lookup, insertion and eviction,
//     so a reader never observes a half-applied update. The default is a
//     single shard, which gives one global strict LRU order. More shards reduce
//     contention at the price of per-shard ordering and per-shard budgets.
//
//   - Capacity: an entry count limit (Capacity) and/or a cost budget
//     (MaxCost, with Options.Cost giving the per-value cost, e.g. len of a
//     []byte). After every operation both limits hold. A value whose cost
//     alone exceeds the budget is rejected rather than flushing the shard.
//
//   - TTL: entries can have per-item deadlines (UnixNano). Expiration is lazy
//     on read.
//
//   - Metrics: Options.Metrics receives Hit/Miss/Evict/Reject/Size signals.
//     By default NoopMetrics is used.
//
// Basic usage
//
//	c := cache.New[string, []byte](cache.Options[string, []byte]{
//	    MaxCost: 64 << 20,
//	    Cost:    func(b []byte) int64 { return int64(len(b)) },
//	})
//	c.Set("a", []byte("1"))
//	if v, ok := c.Get("a"); ok {
//	    _ = v
//	}
//	c.Remove("a")
package cache
