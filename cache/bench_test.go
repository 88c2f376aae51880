package cache

import (
	"math/rand"
	"strconv"
	"sync/atomic"
	"testing"
)

// benchmarkMix exercises a read/write mix against a warm blob cache.
// RunParallel spawns GOMAXPROCS goroutines contending on one lock, which is
// the default single-shard configuration.
func benchmarkMix(b *testing.B, readsPct, shards int) {
	opt := Options[string, []byte]{
		Capacity: 100_000,
		Cost:     blobCost,
		Shards:   shards,
	}
	if shards <= 1 {
		opt.MaxCost = 64 << 20
	}
	c := New[string, []byte](opt)
	b.Cleanup(func() { _ = c.Close() })

	payload := make([]byte, 512)
	for i := 0; i < 50_000; i++ {
		c.Set("k:"+strconv.Itoa(i), payload)
	}

	b.ReportAllocs()
	b.ResetTimer()

	var seed int64 = 1
	keyMask := (1 << 16) - 1

	b.RunParallel(func(pb *testing.PB) {
		r := rand.New(rand.NewSource(atomic.AddInt64(&seed, 1)))
		i := 0
		for pb.Next() {
			k := "k:" + strconv.Itoa(i&keyMask)
			if r.Intn(100) < readsPct {
				c.Get(k)
			} else {
				c.Set(k, payload)
			}
			i++
		}
	})
}

func BenchmarkCache_90r10w(b *testing.B)         { benchmarkMix(b, 90, 1) }
func BenchmarkCache_50r50w(b *testing.B)         { benchmarkMix(b, 50, 1) }
func BenchmarkCache_90r10w_16Shards(b *testing.B) { benchmarkMix(b, 90, 16) }
