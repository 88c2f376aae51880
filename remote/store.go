// Package remote defines the origin side of blobcache: the Store contract
// for a remote key-value blob table, its error taxonomy, and the stock
// implementations (HTTP, in-memory). S3-compatible and chunked layouts live
// in the s3 and chunked subpackages.
package remote

import "context"

// Store fetches and writes blobs in one remote table. Implementations must
// be safe for concurrent use and must return ErrNotFound (possibly wrapped)
// for absent keys and a *TransportError for everything else that failed.
type Store interface {
	// Fetch returns the blob stored under key. The returned slice belongs to
	// the caller.
	Fetch(ctx context.Context, key string) ([]byte, error)
	// Put stores data under key, replacing any previous blob.
	Put(ctx context.Context, key string, data []byte) error
}

// Deleter is implemented by stores that can remove a blob from the origin.
// Deleting an absent key is not an error.
type Deleter interface {
	Delete(ctx context.Context, key string) error
}
