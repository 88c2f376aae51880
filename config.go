package blobcache

import (
	"time"

	"github.com/IvanBrykalov/blobcache/remote"
)

const (
	// DefaultMaxEntries is the entry limit applied when neither MaxEntries
	// nor MaxBytes is set.
	DefaultMaxEntries = 1024

	// DefaultNegativeEntries bounds the NotFound markers kept when negative
	// caching is enabled.
	DefaultNegativeEntries = 1024

	// DefaultFetchTimeout bounds one shared origin fetch.
	DefaultFetchTimeout = time.Minute
)

// Config describes a Handler. It is validated once by New and never
// mutated afterwards.
type Config struct {
	// Endpoint is the base URL of the remote KV service.
	Endpoint string
	// Auth is the credential for the remote service.
	Auth string
	// Table is the remote namespace backing this cache.
	Table string

	// MaxEntries limits the number of resident blobs (0 = unbounded).
	MaxEntries int
	// MaxBytes limits the summed size of resident blobs (0 = unbounded).
	// A blob larger than MaxBytes is served but never retained. A byte
	// budget requires a single shard.
	MaxBytes int64
	// Shards splits the cache into independently locked partitions. Strict
	// LRU order holds per shard; the default of 1 keeps it global. The
	// entry limit is split exactly across shards, so Shards may not exceed
	// MaxEntries.
	Shards int

	// BlobTTL expires cached blobs after the given duration (0 = never).
	BlobTTL time.Duration
	// NegativeTTL enables caching of NotFound results for the given
	// duration. 0 disables negative caching.
	NegativeTTL time.Duration
	// NegativeEntries bounds the NotFound markers (0 = DefaultNegativeEntries).
	NegativeEntries int

	// FetchTimeout bounds each shared origin fetch (0 = DefaultFetchTimeout).
	FetchTimeout time.Duration
}

// TableConfig returns the remote identity of the cache.
func (c Config) TableConfig() remote.TableConfig {
	return remote.TableConfig{Endpoint: c.Endpoint, Auth: c.Auth, Table: c.Table}
}

// Validate reports the first invalid field as a *ConfigError.
func (c Config) Validate() error {
	if err := c.TableConfig().Validate(); err != nil {
		return err
	}
	switch {
	case c.MaxEntries < 0:
		return &ConfigError{Field: "MaxEntries", Reason: "must not be negative"}
	case c.MaxBytes < 0:
		return &ConfigError{Field: "MaxBytes", Reason: "must not be negative"}
	case c.Shards < 0:
		return &ConfigError{Field: "Shards", Reason: "must not be negative"}
	case c.BlobTTL < 0:
		return &ConfigError{Field: "BlobTTL", Reason: "must not be negative"}
	case c.NegativeTTL < 0:
		return &ConfigError{Field: "NegativeTTL", Reason: "must not be negative"}
	case c.NegativeEntries < 0:
		return &ConfigError{Field: "NegativeEntries", Reason: "must not be negative"}
	case c.FetchTimeout < 0:
		return &ConfigError{Field: "FetchTimeout", Reason: "must not be negative"}
	case c.Shards > 1 && c.MaxBytes > 0:
		return &ConfigError{Field: "Shards", Reason: "a byte budget requires a single shard"}
	case c.Shards > 1 && c.Shards > c.withDefaults().MaxEntries:
		return &ConfigError{Field: "Shards", Reason: "must not exceed MaxEntries"}
	}
	return nil
}

// withDefaults fills zero values. It assumes c is valid.
func (c Config) withDefaults() Config {
	if c.MaxEntries == 0 && c.MaxBytes == 0 {
		c.MaxEntries = DefaultMaxEntries
	}
	if c.Shards == 0 {
		c.Shards = 1
	}
	if c.NegativeEntries == 0 {
		c.NegativeEntries = DefaultNegativeEntries
	}
	if c.FetchTimeout == 0 {
		c.FetchTimeout = DefaultFetchTimeout
	}
	return c
}
