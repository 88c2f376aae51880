package chunked

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"math/rand"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IvanBrykalov/blobcache/remote"
)

func randomBlob(n int) []byte {
	b := make([]byte, n)
	rand.New(rand.NewSource(int64(n))).Read(b)
	return b
}

func TestStore_RoundTrip(t *testing.T) {
	for _, size := range []int{0, 1, 63, 64, 65, 1000} {
		t.Run(strconv.Itoa(size), func(t *testing.T) {
			mem := remote.NewMemStore()
			s := New(mem, WithChunkSize(64), WithParallelism(3))
			ctx := context.Background()
			blob := randomBlob(size)

			require.NoError(t, s.Put(ctx, "f.bin", blob))
			got, err := s.Fetch(ctx, "f.bin")
			require.NoError(t, err)
			assert.True(t, bytes.Equal(blob, got))

			wantChunks := (size + 63) / 64
			index, err := mem.Fetch(ctx, "f.bin:index")
			require.NoError(t, err)
			assert.Len(t, index, wantChunks*8)
		})
	}
}

func TestStore_KeyLayout(t *testing.T) {
	mem := remote.NewMemStore()
	s := New(mem, WithChunkSize(4))
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "p", []byte("abcdefg")))

	index, err := mem.Fetch(ctx, "p:index")
	require.NoError(t, err)
	require.Len(t, index, 16)

	first := int64(binary.LittleEndian.Uint64(index))
	assert.Equal(t, Hash([]byte("abcd")), first)
	chunk, err := mem.Fetch(ctx, "p:"+strconv.FormatInt(first, 10))
	require.NoError(t, err)
	assert.Equal(t, "abcd", string(chunk))
}

func TestStore_MissingIndexIsNotFound(t *testing.T) {
	s := New(remote.NewMemStore())

	_, err := s.Fetch(context.Background(), "nope")
	assert.ErrorIs(t, err, remote.ErrNotFound)
	assert.NotErrorIs(t, err, remote.ErrTransport)
}

func TestStore_CorruptChunkIsIntegrityError(t *testing.T) {
	mem := remote.NewMemStore()
	s := New(mem, WithChunkSize(4))
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "p", []byte("abcdefgh")))

	h := Hash([]byte("efgh"))
	require.NoError(t, mem.Put(ctx, "p:"+strconv.FormatInt(h, 10), []byte("EVIL")))

	_, err := s.Fetch(ctx, "p")
	assert.ErrorIs(t, err, remote.ErrTransport)
	assert.ErrorIs(t, err, remote.ErrIntegrity)
}

func TestStore_MissingChunkIsTransportError(t *testing.T) {
	mem := remote.NewMemStore()
	s := New(mem, WithChunkSize(4))
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "p", []byte("abcdefgh")))
	require.NoError(t, mem.Delete(ctx, "p:"+strconv.FormatInt(Hash([]byte("abcd")), 10)))

	_, err := s.Fetch(ctx, "p")
	assert.ErrorIs(t, err, remote.ErrTransport)
}

func TestStore_TruncatedIndex(t *testing.T) {
	mem := remote.NewMemStore()
	ctx := context.Background()
	require.NoError(t, mem.Put(ctx, "p:index", []byte{1, 2, 3}))

	_, err := New(mem).Fetch(ctx, "p")
	assert.ErrorIs(t, err, remote.ErrIntegrity)
}

func TestStore_PutFailureSkipsIndex(t *testing.T) {
	mem := remote.NewMemStore()
	mem.FailPut(&remote.TransportError{Op: "put", Err: errors.New("down")})
	s := New(mem, WithChunkSize(4))

	err := s.Put(context.Background(), "p", []byte("abcdefgh"))
	assert.ErrorIs(t, err, remote.ErrTransport)

	mem.FailPut(nil)
	_, err = s.Fetch(context.Background(), "p")
	assert.ErrorIs(t, err, remote.ErrNotFound)
}

func TestStore_DeleteRemovesIndex(t *testing.T) {
	mem := remote.NewMemStore()
	s := New(mem)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "p", []byte("x")))
	require.NoError(t, s.Delete(ctx, "p"))

	_, err := s.Fetch(ctx, "p")
	assert.ErrorIs(t, err, remote.ErrNotFound)
}

func TestHash_Stable(t *testing.T) {
	assert.Equal(t, Hash([]byte("abc")), Hash([]byte("abc")))
	assert.NotEqual(t, Hash([]byte("abc")), Hash([]byte("abd")))
}
