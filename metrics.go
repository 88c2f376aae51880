package blobcache

import (
	"time"

	"github.com/IvanBrykalov/blobcache/cache"
)

// FetchOutcome classifies one origin fetch.
type FetchOutcome string

const (
	FetchOK       FetchOutcome = "ok"
	FetchNotFound FetchOutcome = "not_found"
	FetchError    FetchOutcome = "error"
)

// Metrics extends the cache hooks with origin-side observations.
type Metrics interface {
	cache.Metrics
	// Fetch is called once per origin fetch with its outcome and duration.
	Fetch(outcome FetchOutcome, d time.Duration)
	// Coalesced is called for every GetBlob served by another caller's fetch.
	Coalesced()
}

// NoopMetrics discards every observation.
type NoopMetrics struct{ cache.NoopMetrics }

func (NoopMetrics) Fetch(FetchOutcome, time.Duration) {}
func (NoopMetrics) Coalesced()                        {}

var _ Metrics = NoopMetrics{}
