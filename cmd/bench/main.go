// Command bench drives a synthetic Zipf workload through a blob cache in
// front of an in-memory origin with injected latency, and exposes optional
// pprof/Prometheus endpoints.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof/* on DefaultServeMux
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/IvanBrykalov/blobcache"
	"github.com/IvanBrykalov/blobcache/internal/util"
	pmet "github.com/IvanBrykalov/blobcache/metrics/prom"
	"github.com/IvanBrykalov/blobcache/remote"
)

func main() {
	// ---- Flags ----
	var (
		entries  = flag.Int("entries", 10_000, "cache entry limit (0 = bytes only)")
		maxBytes = flag.Int64("bytes", 64<<20, "cache byte budget (0 = entries only; needs -shards=1)")
		shards   = flag.Int("shards", 1, "number of shards (0=auto)")

		workers  = flag.Int("workers", 2*runtime.GOMAXPROCS(0), "number of worker goroutines")
		duration = flag.Duration("duration", 10*time.Second, "benchmark duration")
		readPct  = flag.Int("reads", 95, "read percentage [0..100]")

		keys    = flag.Int("keys", 100_000, "keyspace size")
		blobLen = flag.Int("blob", 4096, "blob size in bytes")
		latency = flag.Duration("latency", 2*time.Millisecond, "simulated origin latency")
		zipfS   = flag.Float64("zipf_s", 1.1, "Zipf s > 1 (skew)")
		zipfV   = flag.Float64("zipf_v", 1.0, "Zipf v")
		seed    = flag.Int64("seed", time.Now().UnixNano(), "random seed")

		pprofAddr   = flag.String("pprof", "", "serve pprof at addr (e.g. :6060); empty = disabled")
		metricsAddr = flag.String("http", ":8080", "serve Prometheus metrics at addr")
	)
	flag.Parse()

	if *pprofAddr != "" {
		go func() {
			log.Printf("pprof: serving at %s", *pprofAddr)
			log.Println(http.ListenAndServe(*pprofAddr, nil))
		}()
	}

	metrics := pmet.New(nil, "blobcache", "bench", nil)
	http.Handle("/metrics", promhttp.Handler())
	go func() {
		log.Printf("metrics: serving at %s", *metricsAddr)
		log.Println(http.ListenAndServe(*metricsAddr, nil))
	}()

	// ---- Origin: every key exists, reads cost *latency ----
	origin := remote.NewMemStore()
	payload := make([]byte, *blobLen)
	for i := 0; i < *keys; i++ {
		if err := origin.Put(context.Background(), keyName(uint64(i)), payload); err != nil {
			log.Fatalf("seed origin: %v", err)
		}
	}
	origin.SetLatency(*latency)

	nShards := *shards
	if nShards == 0 {
		nShards = util.ReasonableShardCount()
	}
	if nShards > 1 && *maxBytes > 0 {
		log.Printf("byte budget needs a single shard; ignoring -bytes with -shards=%d", nShards)
		*maxBytes = 0
	}
	h, err := blobcache.New(blobcache.Config{
		Endpoint:   "http://bench.invalid",
		Auth:       "bench",
		Table:      "bench",
		MaxEntries: *entries,
		MaxBytes:   *maxBytes,
		Shards:     nShards,
	}, blobcache.WithRemote(origin), blobcache.WithMetrics(metrics))
	if err != nil {
		log.Fatalf("build cache: %v", err)
	}
	defer func() { _ = h.Close() }()

	// ---- Snapshot flags for goroutines ----
	readPctVal := *readPct
	keysMax := uint64(*keys - 1)
	seedBase := *seed
	zipfSVal := *zipfS
	zipfVVal := *zipfV
	workersN := *workers
	if workersN <= 0 {
		workersN = 1
	}

	// ---- Load generation ----
	var reads, writes, failures, total uint64
	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(workersN)
	for w := 0; w < workersN; w++ {
		go func(id int) {
			defer wg.Done()

			// rand.Rand is not goroutine-safe.
			localR := rand.New(rand.NewSource(seedBase + int64(id)*9973))
			localZipf := rand.NewZipf(localR, zipfSVal, zipfVVal, keysMax)

			for ctx.Err() == nil {
				atomic.AddUint64(&total, 1)
				k := keyName(localZipf.Uint64())
				var err error
				if int(localR.Int31n(100)) < readPctVal {
					atomic.AddUint64(&reads, 1)
					_, err = h.GetBlob(ctx, k)
				} else {
					atomic.AddUint64(&writes, 1)
					err = h.PutBlob(ctx, k, payload)
				}
				if err != nil && !errors.Is(err, context.DeadlineExceeded) {
					atomic.AddUint64(&failures, 1)
				}
			}
		}(w)
	}
	wg.Wait()
	elapsed := time.Since(start)

	// ---- Report ----
	st := h.Stats()
	ops := atomic.LoadUint64(&total)
	hitRate := 0.0
	if lookups := st.Hits + st.Misses; lookups > 0 {
		hitRate = float64(st.Hits) / float64(lookups) * 100
	}

	fmt.Printf("entries=%d bytes=%d shards=%d workers=%d keys=%d blob=%d latency=%v dur=%v seed=%d\n",
		*entries, *maxBytes, nShards, workersN, *keys, *blobLen, *latency, elapsed, seedBase)
	fmt.Printf("ops=%d (%.0f ops/s)  reads=%d  writes=%d  failures=%d\n",
		ops, float64(ops)/elapsed.Seconds(), atomic.LoadUint64(&reads), atomic.LoadUint64(&writes), atomic.LoadUint64(&failures))
	fmt.Printf("hits=%d  misses=%d  hit-rate=%.2f%%\n", st.Hits, st.Misses, hitRate)
	fmt.Printf("origin fetches=%d  coalesced=%d  evictions=%d  rejections=%d\n",
		origin.Fetches(), st.Coalesced, st.Evictions, st.Rejections)
	fmt.Printf("resident=%d blobs, %d bytes\n", st.Entries, st.Bytes)
}

func keyName(i uint64) string {
	return "blob/" + strconv.FormatUint(i, 10)
}
