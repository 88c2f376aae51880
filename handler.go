package blobcache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/IvanBrykalov/blobcache/cache"
	"github.com/IvanBrykalov/blobcache/internal/singleflight"
	"github.com/IvanBrykalov/blobcache/remote"
)

// Handler serves blobs of one remote table through an in-memory LRU cache.
// It is safe for concurrent use.
type Handler struct {
	cfg     Config
	store   remote.Store
	blobs   cache.Cache[string, []byte]
	missing cache.Cache[string, struct{}] // nil unless NegativeTTL > 0
	sf      singleflight.Group[string, []byte]
	log     *logrus.Logger
	metrics Metrics

	// mu orders cache fills against origin writes. epoch advances on every
	// successful PutBlob/DeleteBlob and on Invalidate; a fetch that started under an older
	// epoch is returned to its callers but not cached.
	mu    sync.Mutex
	epoch uint64

	closed       atomic.Bool
	fetches      atomic.Int64
	fetchErrors  atomic.Int64
	notFound     atomic.Int64
	coalesced    atomic.Int64
	negativeHits atomic.Int64
}

// Stats is a point-in-time snapshot of a Handler.
type Stats struct {
	Entries    int    `json:"entries"` // resident blobs
	Bytes      int64  `json:"bytes"`   // summed size of resident blobs
	Hits       int64  `json:"hits"`
	Misses     int64  `json:"misses"`
	Evictions  uint64 `json:"evictions"`
	Rejections uint64 `json:"rejections"` // blobs too large to retain

	Fetches      int64 `json:"fetches"`       // origin fetches started
	FetchErrors  int64 `json:"fetch_errors"`  // origin fetches that failed with a transport error
	NotFound     int64 `json:"not_found"`     // origin fetches that returned NotFound
	Coalesced    int64 `json:"coalesced"`     // GetBlob calls served by another caller's fetch
	NegativeHits int64 `json:"negative_hits"` // GetBlob calls answered from the NotFound markers
	Negative     int   `json:"negative"`      // resident NotFound markers
	InFlight     int   `json:"in_flight"`     // keys with an outstanding fetch
}

// New validates cfg and returns a ready Handler. Invalid configuration is
// reported as a *ConfigError.
func New(cfg Config, opts ...Option) (*Handler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logrus.New()
		o.logger.SetOutput(io.Discard)
	}
	if o.metrics == nil {
		o.metrics = NoopMetrics{}
	}
	if o.store == nil {
		var storeOpts []remote.HTTPOption
		if o.httpClient != nil {
			storeOpts = append(storeOpts, remote.WithHTTPClient(o.httpClient))
		}
		s, err := remote.NewHTTPStore(cfg.TableConfig(), storeOpts...)
		if err != nil {
			return nil, err
		}
		o.store = s
	}

	h := &Handler{
		cfg:     cfg,
		store:   o.store,
		log:     o.logger,
		metrics: o.metrics,
	}
	h.blobs = cache.New[string, []byte](cache.Options[string, []byte]{
		Capacity:   cfg.MaxEntries,
		MaxCost:    cfg.MaxBytes,
		Cost:       func(b []byte) int64 { return int64(len(b)) },
		Shards:     cfg.Shards,
		DefaultTTL: cfg.BlobTTL,
		Metrics:    o.metrics,
		Clock:      o.clock,
	})
	if cfg.NegativeTTL > 0 {
		h.missing = cache.New[string, struct{}](cache.Options[string, struct{}]{
			Capacity:   cfg.NegativeEntries,
			DefaultTTL: cfg.NegativeTTL,
			Clock:      o.clock,
		})
	}

	h.log.WithFields(logrus.Fields{
		"action":      "init",
		"table":       cfg.Table,
		"endpoint":    cfg.Endpoint,
		"max_entries": cfg.MaxEntries,
		"max_bytes":   cfg.MaxBytes,
		"shards":      cfg.Shards,
	}).Debug("blob cache ready")
	return h, nil
}

// GetBlob returns the blob stored under key, serving it from memory when
// resident. Concurrent misses for the same key share one origin fetch.
// Cancelling ctx releases only this caller; the shared fetch continues for
// the others, bounded by Config.FetchTimeout.
func (h *Handler) GetBlob(ctx context.Context, key string) ([]byte, error) {
	if err := h.guard(key); err != nil {
		return nil, err
	}
	if b, ok := h.blobs.Get(key); ok {
		return bytes.Clone(b), nil
	}
	if h.missing != nil {
		if _, ok := h.missing.Get(key); ok {
			h.negativeHits.Add(1)
			return nil, fmt.Errorf("%w: %s/%s (cached)", ErrNotFound, h.cfg.Table, key)
		}
	}

	data, shared, err := h.sf.Do(ctx, key, func() ([]byte, error) {
		return h.fetch(ctx, key)
	})
	if shared {
		h.coalesced.Add(1)
		h.metrics.Coalesced()
	}
	if err != nil {
		return nil, err
	}
	return bytes.Clone(data), nil
}

// fetch performs the one origin call of a flight and fills the caches.
func (h *Handler) fetch(ctx context.Context, key string) ([]byte, error) {
	h.mu.Lock()
	epoch := h.epoch
	h.mu.Unlock()

	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.cfg.FetchTimeout)
	defer cancel()

	h.fetches.Add(1)
	start := time.Now()
	data, err := h.store.Fetch(fctx, key)
	elapsed := time.Since(start)

	entry := h.log.WithFields(logrus.Fields{
		"action":   "fetch",
		"table":    h.cfg.Table,
		"key":      key,
		"duration": elapsed,
	})
	switch {
	case err == nil:
		h.metrics.Fetch(FetchOK, elapsed)
		entry.WithField("bytes", len(data)).Debug("origin fetch")
		h.fill(key, data, epoch)
		return data, nil
	case errors.Is(err, ErrNotFound):
		h.notFound.Add(1)
		h.metrics.Fetch(FetchNotFound, elapsed)
		entry.Debug("origin has no such blob")
		h.fillMissing(key, epoch)
		return nil, err
	default:
		h.fetchErrors.Add(1)
		h.metrics.Fetch(FetchError, elapsed)
		entry.WithError(err).Warn("origin fetch failed")
		return nil, err
	}
}

func (h *Handler) fill(key string, data []byte, epoch uint64) {
	h.mu.Lock()
	stale := h.epoch != epoch
	added := false
	if !stale {
		added = h.blobs.Add(key, data)
	}
	h.mu.Unlock()

	if !added && h.cfg.MaxBytes > 0 && int64(len(data)) > h.cfg.MaxBytes {
		h.log.WithFields(logrus.Fields{
			"action": "fill",
			"table":  h.cfg.Table,
			"key":    key,
			"bytes":  len(data),
		}).Debug("blob exceeds cache budget; served without caching")
	}
}

func (h *Handler) fillMissing(key string, epoch uint64) {
	if h.missing == nil {
		return
	}
	h.mu.Lock()
	if h.epoch == epoch {
		h.missing.Set(key, struct{}{})
	}
	h.mu.Unlock()
}

// PutBlob writes data to the origin and, only once that succeeds, caches
// it. A failed write leaves the cache untouched.
func (h *Handler) PutBlob(ctx context.Context, key string, data []byte) error {
	if err := h.guard(key); err != nil {
		return err
	}
	if err := h.store.Put(ctx, key, data); err != nil {
		h.log.WithFields(logrus.Fields{
			"action": "put",
			"table":  h.cfg.Table,
			"key":    key,
		}).WithError(err).Warn("origin write failed")
		return err
	}

	h.mu.Lock()
	h.epoch++
	h.blobs.Set(key, bytes.Clone(data))
	if h.missing != nil {
		h.missing.Remove(key)
	}
	h.mu.Unlock()
	h.sf.Forget(key)
	return nil
}

// Invalidate drops key from the local cache only. It reports whether a
// blob was resident.
// A fetch already in flight for any key is served but not cached.
func (h *Handler) Invalidate(key string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.epoch++
	if h.missing != nil {
		h.missing.Remove(key)
	}
	return h.blobs.Remove(key)
}

// DeleteBlob removes key from the origin and then from the local cache.
// It returns errors.ErrUnsupported when the store cannot delete.
func (h *Handler) DeleteBlob(ctx context.Context, key string) error {
	if err := h.guard(key); err != nil {
		return err
	}
	d, ok := h.store.(remote.Deleter)
	if !ok {
		return errors.ErrUnsupported
	}
	if err := d.Delete(ctx, key); err != nil {
		h.log.WithFields(logrus.Fields{
			"action": "delete",
			"table":  h.cfg.Table,
			"key":    key,
		}).WithError(err).Warn("origin delete failed")
		return err
	}

	h.mu.Lock()
	h.epoch++
	h.blobs.Remove(key)
	if h.missing != nil {
		h.missing.Remove(key)
	}
	h.mu.Unlock()
	h.sf.Forget(key)
	return nil
}

// Stats returns a snapshot of cache and origin counters.
func (h *Handler) Stats() Stats {
	cs := h.blobs.Stats()
	st := Stats{
		Entries:      cs.Entries,
		Bytes:        cs.Cost,
		Hits:         cs.Hits,
		Misses:       cs.Misses,
		Evictions:    cs.Evictions,
		Rejections:   cs.Rejections,
		Fetches:      h.fetches.Load(),
		FetchErrors:  h.fetchErrors.Load(),
		NotFound:     h.notFound.Load(),
		Coalesced:    h.coalesced.Load(),
		NegativeHits: h.negativeHits.Load(),
		InFlight:     h.sf.InFlight(),
	}
	if h.missing != nil {
		st.Negative = h.missing.Len()
	}
	return st
}

// Check verifies the cache's internal invariants. A non-nil result wraps
// ErrInvariant.
func (h *Handler) Check() error {
	if err := h.blobs.Check(); err != nil {
		return err
	}
	if h.missing != nil {
		return h.missing.Check()
	}
	return nil
}

// Table returns the remote identity of this cache.
func (h *Handler) Table() remote.TableConfig { return h.cfg.TableConfig() }

// Config returns the effective configuration, defaults applied.
func (h *Handler) Config() Config { return h.cfg }

// Close releases cached blobs. Later calls fail with ErrClosed.
func (h *Handler) Close() error {
	if !h.closed.CompareAndSwap(false, true) {
		return nil
	}
	h.blobs.Purge()
	_ = h.blobs.Close()
	if h.missing != nil {
		h.missing.Purge()
		_ = h.missing.Close()
	}
	return nil
}

func (h *Handler) guard(key string) error {
	if h.closed.Load() {
		return ErrClosed
	}
	if key == "" {
		return ErrInvalidKey
	}
	return nil
}
