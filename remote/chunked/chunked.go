// Package chunked stores large blobs as content-hashed chunks plus an index
// on top of any remote.Store.
//
// Layout for a blob stored under path:
//
//	path:index   concatenated 8-byte little-endian chunk hashes
//	path:<hash>  one chunk, <hash> in signed decimal
//
// Chunk hashes are the first 8 bytes of SHAKE256 over the chunk and are
// verified on every fetch.
package chunked

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"

	"golang.org/x/crypto/sha3"
	"golang.org/x/sync/errgroup"

	"github.com/IvanBrykalov/blobcache/remote"
)

const (
	// DefaultChunkSize is the largest chunk written by Put.
	DefaultChunkSize = 1 << 20
	// DefaultParallelism bounds concurrent chunk transfers per blob.
	DefaultParallelism = 8

	indexSuffix = "index"
	hashSize    = 8
)

// Store decorates a remote.Store with the chunked layout.
type Store struct {
	inner       remote.Store
	chunkSize   int
	parallelism int
}

// Option configures a Store.
type Option func(*Store)

// WithChunkSize sets the maximum chunk size in bytes.
func WithChunkSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.chunkSize = n
		}
	}
}

// WithParallelism bounds concurrent chunk fetches and uploads.
func WithParallelism(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.parallelism = n
		}
	}
}

// New wraps inner.
func New(inner remote.Store, opts ...Option) *Store {
	s := &Store{inner: inner, chunkSize: DefaultChunkSize, parallelism: DefaultParallelism}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Hash returns the chunk hash used in keys and the index.
func Hash(data []byte) int64 {
	var out [hashSize]byte
	sha3.ShakeSum256(out[:], data)
	return int64(binary.LittleEndian.Uint64(out[:]))
}

// Fetch reads the index for path and reassembles the blob from its chunks.
func (s *Store) Fetch(ctx context.Context, path string) ([]byte, error) {
	index, err := s.inner.Fetch(ctx, indexKey(path))
	if err != nil {
		return nil, err
	}
	if len(index)%hashSize != 0 {
		return nil, &remote.TransportError{
			Op:  "get",
			Key: indexKey(path),
			Err: fmt.Errorf("%w: index length %d is not a multiple of %d", remote.ErrIntegrity, len(index), hashSize),
		}
	}

	hashes := make([]int64, len(index)/hashSize)
	for i := range hashes {
		hashes[i] = int64(binary.LittleEndian.Uint64(index[i*hashSize:]))
	}

	chunks := make([][]byte, len(hashes))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism)
	for i, h := range hashes {
		g.Go(func() error {
			key := chunkKey(path, h)
			data, err := s.inner.Fetch(gctx, key)
			if err != nil {
				// a chunk listed in the index must exist
				if errors.Is(err, remote.ErrNotFound) {
					return &remote.TransportError{Op: "get", Key: key, Err: err}
				}
				return err
			}
			if got := Hash(data); got != h {
				return &remote.TransportError{
					Op:  "get",
					Key: key,
					Err: fmt.Errorf("%w: got %d", remote.ErrIntegrity, got),
				}
			}
			chunks[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := 0
	for _, c := range chunks {
		total += len(c)
	}
	out := make([]byte, 0, total)
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out, nil
}

// Put uploads every chunk, then the index. The blob becomes visible to
// Fetch only once the index is written.
func (s *Store) Put(ctx context.Context, path string, data []byte) error {
	n := (len(data) + s.chunkSize - 1) / s.chunkSize
	index := make([]byte, n*hashSize)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism)
	for i := 0; i < n; i++ {
		chunk := data[i*s.chunkSize : min((i+1)*s.chunkSize, len(data))]
		h := Hash(chunk)
		binary.LittleEndian.PutUint64(index[i*hashSize:], uint64(h))
		g.Go(func() error {
			return s.inner.Put(gctx, chunkKey(path, h), chunk)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return s.inner.Put(ctx, indexKey(path), index)
}

// Delete removes the index of path when the inner store supports deletion.
// Chunks are content addressed and may be shared, so they are left behind.
func (s *Store) Delete(ctx context.Context, path string) error {
	d, ok := s.inner.(remote.Deleter)
	if !ok {
		return errors.ErrUnsupported
	}
	return d.Delete(ctx, indexKey(path))
}

func indexKey(path string) string { return path + ":" + indexSuffix }

func chunkKey(path string, h int64) string {
	return path + ":" + strconv.FormatInt(h, 10)
}

var (
	_ remote.Store   = (*Store)(nil)
	_ remote.Deleter = (*Store)(nil)
)
