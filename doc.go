// Package blobcache fronts a remote key-value blob table with an in-memory
// LRU cache.
//
// A Handler serves GetBlob from memory when the blob is resident and
// otherwise fetches it from the origin exactly once per key, no matter how
// many callers are waiting for it, then fills the cache. PutBlob writes
// through to the origin before touching the cache, so the cache never holds
// data the origin rejected.
//
//	h, err := blobcache.New(blobcache.Config{
//		Endpoint: "https://kv.example.com",
//		Auth:     token,
//		Table:    "assets",
//		MaxBytes: 256 << 20,
//	})
//	if err != nil {
//		return err
//	}
//	defer h.Close()
//
//	data, err := h.GetBlob(ctx, "images/logo.png")
//	switch {
//	case errors.Is(err, blobcache.ErrNotFound):
//		// origin has no such key
//	case errors.Is(err, blobcache.ErrTransport):
//		// origin unreachable; the caller may retry
//	}
//
// NotFound results are not cached unless Config.NegativeTTL is set.
package blobcache
