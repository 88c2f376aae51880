// Package prom exports blobcache metrics to Prometheus.
package prom

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/IvanBrykalov/blobcache"
	"github.com/IvanBrykalov/blobcache/cache"
)

// Adapter implements blobcache.Metrics and exports Prometheus counters,
// gauges and a fetch latency histogram.
// Safe for concurrent use; all Prometheus metric types are goroutine-safe.
type Adapter struct {
	hits      prometheus.Counter
	misses    prometheus.Counter
	evicts    *prometheus.CounterVec
	rejects   prometheus.Counter
	sizeEnt   prometheus.Gauge
	sizeBytes prometheus.Gauge
	fetches   *prometheus.CounterVec
	fetchDur  *prometheus.HistogramVec
	coalesced prometheus.Counter
}

// New constructs a Prometheus metrics adapter.
//   - reg:          registry to register metrics with (nil => prometheus.DefaultRegisterer)
//   - ns, sub:      Prometheus namespace and subsystem
//   - constLabels:  static labels applied to all metrics (may be nil), e.g. {"table": "assets"}
func New(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) *Adapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, Name: name, Help: help, ConstLabels: constLabels,
		})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: sub, Name: name, Help: help, ConstLabels: constLabels,
		})
	}

	a := &Adapter{
		hits:    counter("hits_total", "Cache hits"),
		misses:  counter("misses_total", "Cache misses"),
		rejects: counter("rejections_total", "Blobs too large to retain"),
		evicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   sub,
				Name:        "evictions_total",
				Help:        "Cache evictions by reason",
				ConstLabels: constLabels,
			},
			[]string{"reason"},
		),
		sizeEnt:   gauge("size_entries", "Number of resident blobs"),
		sizeBytes: gauge("size_bytes", "Total size of resident blobs"),
		fetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   sub,
				Name:        "origin_fetches_total",
				Help:        "Origin fetches by outcome",
				ConstLabels: constLabels,
			},
			[]string{"outcome"},
		),
		fetchDur: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   ns,
				Subsystem:   sub,
				Name:        "origin_fetch_duration_seconds",
				Help:        "Origin fetch latency by outcome",
				Buckets:     prometheus.ExponentialBuckets(0.001, 2, 14),
				ConstLabels: constLabels,
			},
			[]string{"outcome"},
		),
		coalesced: counter("coalesced_total", "GetBlob calls served by another caller's fetch"),
	}
	reg.MustRegister(a.hits, a.misses, a.rejects, a.evicts, a.sizeEnt, a.sizeBytes,
		a.fetches, a.fetchDur, a.coalesced)
	return a
}

// Hit increments the hit counter.
func (a *Adapter) Hit() { a.hits.Inc() }

// Miss increments the miss counter.
func (a *Adapter) Miss() { a.misses.Inc() }

// Evict increments the eviction counter with a reason label.
func (a *Adapter) Evict(r cache.EvictReason) {
	a.evicts.WithLabelValues(r.String()).Inc()
}

// Reject counts a blob refused by the byte budget.
func (a *Adapter) Reject() { a.rejects.Inc() }

// Size updates gauges with cache-wide entry and byte totals.
func (a *Adapter) Size(entries int, cost int64) {
	a.sizeEnt.Set(float64(entries))
	a.sizeBytes.Set(float64(cost))
}

// Fetch records one origin fetch.
func (a *Adapter) Fetch(outcome blobcache.FetchOutcome, d time.Duration) {
	a.fetches.WithLabelValues(string(outcome)).Inc()
	a.fetchDur.WithLabelValues(string(outcome)).Observe(d.Seconds())
}

// Coalesced counts a caller that joined an existing fetch.
func (a *Adapter) Coalesced() { a.coalesced.Inc() }

// Compile-time check: ensure Adapter implements blobcache.Metrics.
var _ blobcache.Metrics = (*Adapter)(nil)
