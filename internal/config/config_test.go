package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_TOML(t *testing.T) {
	path := writeConfig(t, "blobcache.toml", `
Listen = ":9000"

[Log]
Level = "debug"

[Remote]
Endpoint = "https://kv.example.com"
Auth = "secret"
Table = "assets"
RequestTimeout = "5s"
Chunked = true
ChunkSize = 65536

[Cache]
MaxEntries = 100
MaxBytes = 1048576
NegativeTTL = 30
FetchTimeout = "2m"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Listen)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, BackendHTTP, cfg.Remote.Backend)
	assert.Equal(t, 5*time.Second, cfg.Remote.RequestTimeout)
	assert.True(t, cfg.Remote.Chunked)
	assert.Equal(t, 65536, cfg.Remote.ChunkSize)
	assert.Equal(t, 30*time.Second, cfg.Cache.NegativeTTL, "plain numbers are seconds")
	assert.Equal(t, 2*time.Minute, cfg.Cache.FetchTimeout)

	h := cfg.Handler()
	assert.Equal(t, "assets", h.Table)
	assert.EqualValues(t, 1048576, h.MaxBytes)
}

func TestLoad_YAMLDefaults(t *testing.T) {
	path := writeConfig(t, "blobcache.yaml", `
Remote:
  Backend: S3
  Endpoint: http://localhost:9000
  Auth: minio:minio123
  Table: blobs
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, BackendS3, cfg.Remote.Backend)
	assert.Equal(t, ":8080", cfg.Listen)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.EqualValues(t, 256<<20, cfg.Cache.MaxBytes)
	assert.Equal(t, time.Minute, cfg.Cache.FetchTimeout)
	assert.Equal(t, 1, cfg.Cache.Shards)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("BLOBCACHE_REMOTE_ENDPOINT", "http://kv.local")
	t.Setenv("BLOBCACHE_REMOTE_AUTH", "from-env")
	t.Setenv("BLOBCACHE_REMOTE_TABLE", "envtable")
	t.Setenv("BLOBCACHE_CACHE_BLOBTTL", "90s")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Remote.Auth)
	assert.Equal(t, "envtable", cfg.Remote.Table)
	assert.Equal(t, 90*time.Second, cfg.Cache.BlobTTL)
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"missing table", `
[Remote]
Endpoint = "http://kv"
Auth = "x"
`, "Remote.Table"},
		{"unknown backend", `
[Remote]
Backend = "ftp"
Endpoint = "http://kv"
Auth = "x"
Table = "t"
`, "Remote.Backend"},
		{"negative bytes", `
[Remote]
Endpoint = "http://kv"
Auth = "x"
Table = "t"
[Cache]
MaxBytes = -1
`, "Cache.MaxBytes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, "c.toml", tt.body))
			var fe FieldError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, tt.field, fe.Field)
		})
	}
}

func TestLoad_BadDuration(t *testing.T) {
	path := writeConfig(t, "c.toml", `
[Remote]
Endpoint = "http://kv"
Auth = "x"
Table = "t"
[Cache]
BlobTTL = "soon"
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}
