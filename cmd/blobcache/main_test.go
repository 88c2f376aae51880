package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IvanBrykalov/blobcache/internal/config"
	"github.com/IvanBrykalov/blobcache/remote"
	"github.com/IvanBrykalov/blobcache/remote/chunked"
	"github.com/IvanBrykalov/blobcache/remote/s3"
)

func TestParseCLIFlags(t *testing.T) {
	t.Setenv("BLOBCACHE_CONFIG", "")
	opts, err := parseCLIFlags(nil)
	require.NoError(t, err)
	assert.Equal(t, "blobcache.toml", opts.configPath)

	t.Setenv("BLOBCACHE_CONFIG", "/etc/blobcache.yaml")
	opts, err = parseCLIFlags(nil)
	require.NoError(t, err)
	assert.Equal(t, "/etc/blobcache.yaml", opts.configPath)

	opts, err = parseCLIFlags([]string{"-config", "local.toml", "-check-config"})
	require.NoError(t, err)
	assert.Equal(t, "local.toml", opts.configPath)
	assert.True(t, opts.checkOnly)

	_, err = parseCLIFlags([]string{"-bogus"})
	assert.Error(t, err)
}

func TestRun_CheckConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blobcache.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[Log]
Level = "error"
[Remote]
Endpoint = "http://kv.local"
Auth = "secret"
Table = "assets"
`), 0o600))

	var out bytes.Buffer
	stdOut = &out
	t.Cleanup(func() { stdOut = os.Stdout })

	code := run(context.Background(), cliOptions{configPath: path, checkOnly: true})
	assert.Equal(t, 0, code)
	assert.Contains(t, out.String(), "ok")
}

func TestRun_InvalidConfig(t *testing.T) {
	var errOut bytes.Buffer
	stdErr = &errOut
	t.Cleanup(func() { stdErr = os.Stderr })

	code := run(context.Background(), cliOptions{configPath: filepath.Join(t.TempDir(), "absent.toml")})
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut.String(), "load config")
}

func TestBuildRemote(t *testing.T) {
	base := config.RemoteConfig{
		Backend:  config.BackendHTTP,
		Endpoint: "http://kv.local",
		Auth:     "secret",
		Table:    "assets",
	}

	store, err := buildRemote(base)
	require.NoError(t, err)
	assert.IsType(t, &remote.HTTPStore{}, store)

	withChunks := base
	withChunks.Chunked = true
	withChunks.ChunkSize = 4096
	withChunks.Parallelism = 2
	store, err = buildRemote(withChunks)
	require.NoError(t, err)
	assert.IsType(t, &chunked.Store{}, store)

	onS3 := base
	onS3.Backend = config.BackendS3
	onS3.Auth = "minio:minio123"
	store, err = buildRemote(onS3)
	require.NoError(t, err)
	assert.IsType(t, &s3.Store{}, store)

	onS3.Auth = "no-colon"
	_, err = buildRemote(onS3)
	assert.Error(t, err)
}
