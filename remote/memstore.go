package remote

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// MemStore is an in-process Store and Deleter. It backs tests, the bench
// workload and local runs of the service without a KV endpoint.
type MemStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte

	latency  time.Duration
	fetchErr error
	putErr   error

	fetches atomic.Int64
	puts    atomic.Int64
}

// NewMemStore returns an empty store.
func NewMemStore() *MemStore {
	return &MemStore{blobs: make(map[string][]byte)}
}

// SetLatency delays every Fetch and Put by d, honoring ctx.
func (m *MemStore) SetLatency(d time.Duration) {
	m.mu.Lock()
	m.latency = d
	m.mu.Unlock()
}

// FailFetch makes subsequent Fetch calls return err. nil restores normal
// operation.
func (m *MemStore) FailFetch(err error) {
	m.mu.Lock()
	m.fetchErr = err
	m.mu.Unlock()
}

// FailPut makes subsequent Put calls return err.
func (m *MemStore) FailPut(err error) {
	m.mu.Lock()
	m.putErr = err
	m.mu.Unlock()
}

// Fetch returns a copy of the blob under key.
func (m *MemStore) Fetch(ctx context.Context, key string) ([]byte, error) {
	m.fetches.Add(1)
	m.mu.RLock()
	latency, injected := m.latency, m.fetchErr
	m.mu.RUnlock()

	if err := sleep(ctx, latency); err != nil {
		return nil, &TransportError{Op: "get", Key: key, Err: err}
	}
	if injected != nil {
		return nil, injected
	}

	m.mu.RLock()
	b, ok := m.blobs[key]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return append([]byte(nil), b...), nil
}

// Put stores a copy of data under key.
func (m *MemStore) Put(ctx context.Context, key string, data []byte) error {
	m.puts.Add(1)
	m.mu.RLock()
	latency, injected := m.latency, m.putErr
	m.mu.RUnlock()

	if err := sleep(ctx, latency); err != nil {
		return &TransportError{Op: "put", Key: key, Err: err}
	}
	if injected != nil {
		return injected
	}

	m.mu.Lock()
	m.blobs[key] = append([]byte(nil), data...)
	m.mu.Unlock()
	return nil
}

// Delete removes key. Absent keys are ignored.
func (m *MemStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return &TransportError{Op: "delete", Key: key, Err: err}
	}
	m.mu.Lock()
	delete(m.blobs, key)
	m.mu.Unlock()
	return nil
}

// Len returns the number of stored blobs.
func (m *MemStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blobs)
}

// Fetches returns how many times Fetch was called.
func (m *MemStore) Fetches() int64 { return m.fetches.Load() }

// Puts returns how many times Put was called.
func (m *MemStore) Puts() int64 { return m.puts.Load() }

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var (
	_ Store   = (*MemStore)(nil)
	_ Deleter = (*MemStore)(nil)
	_ Store   = (*HTTPStore)(nil)
	_ Deleter = (*HTTPStore)(nil)
)
