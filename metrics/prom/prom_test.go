package prom

import (
	"context"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IvanBrykalov/blobcache"
	"github.com/IvanBrykalov/blobcache/cache"
	"github.com/IvanBrykalov/blobcache/remote"
)

func TestAdapter_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	a := New(reg, "blobcache", "", prometheus.Labels{"table": "assets"})

	a.Hit()
	a.Hit()
	a.Miss()
	a.Reject()
	a.Evict(cache.EvictPolicy)
	a.Evict(cache.EvictCapacity)
	a.Evict(cache.EvictCapacity)
	a.Size(3, 42)
	a.Fetch(blobcache.FetchOK, 5*time.Millisecond)
	a.Fetch(blobcache.FetchNotFound, time.Millisecond)
	a.Coalesced()

	assert.Equal(t, 2.0, testutil.ToFloat64(a.hits))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.misses))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.rejects))
	assert.Equal(t, 2.0, testutil.ToFloat64(a.evicts.WithLabelValues("capacity")))
	assert.Equal(t, 42.0, testutil.ToFloat64(a.sizeBytes))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.fetches.WithLabelValues("not_found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.coalesced))
	assert.Equal(t, 1, testutil.CollectAndCount(a.fetchDur.WithLabelValues("ok").(prometheus.Histogram)))
}

func TestAdapter_WiredIntoHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	a := New(reg, "blobcache", "", nil)

	mem := remote.NewMemStore()
	require.NoError(t, mem.Put(context.Background(), "k", []byte("abc")))
	h, err := blobcache.New(blobcache.Config{Endpoint: "http://kv", Auth: "t", Table: "x"},
		blobcache.WithRemote(mem), blobcache.WithMetrics(a))
	require.NoError(t, err)
	defer h.Close()

	for i := 0; i < 3; i++ {
		_, err := h.GetBlob(context.Background(), "k")
		require.NoError(t, err)
	}

	expected := `
# HELP blobcache_hits_total Cache hits
# TYPE blobcache_hits_total counter
blobcache_hits_total 2
# HELP blobcache_misses_total Cache misses
# TYPE blobcache_misses_total counter
blobcache_misses_total 1
# HELP blobcache_size_bytes Total size of resident blobs
# TYPE blobcache_size_bytes gauge
blobcache_size_bytes 3
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"blobcache_hits_total", "blobcache_misses_total", "blobcache_size_bytes"))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.fetches.WithLabelValues("ok")))
}

func TestAdapter_SizeGaugesSpanShards(t *testing.T) {
	reg := prometheus.NewRegistry()
	a := New(reg, "blobcache", "", nil)

	mem := remote.NewMemStore()
	h, err := blobcache.New(blobcache.Config{Endpoint: "http://kv", Auth: "t", Table: "x", MaxEntries: 64, Shards: 4},
		blobcache.WithRemote(mem), blobcache.WithMetrics(a))
	require.NoError(t, err)
	defer h.Close()

	for i := 0; i < 20; i++ {
		require.NoError(t, h.PutBlob(context.Background(), "k"+strconv.Itoa(i), []byte("ab")))
	}
	assert.Equal(t, 20.0, testutil.ToFloat64(a.sizeEnt))
	assert.Equal(t, 40.0, testutil.ToFloat64(a.sizeBytes))
}

func TestNew_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg, "blobcache", "", nil)
	assert.Panics(t, func() { New(reg, "blobcache", "", nil) })
}
