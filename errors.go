package blobcache

import (
	"errors"

	"github.com/IvanBrykalov/blobcache/cache"
	"github.com/IvanBrykalov/blobcache/remote"
)

// Errors re-exported from remote.
var (
	// ErrNotFound is returned when the origin table has no blob under the key.
	ErrNotFound = remote.ErrNotFound

	// ErrTransport matches every *TransportError.
	ErrTransport = remote.ErrTransport

	// ErrIntegrity is wrapped when fetched content fails its hash check.
	ErrIntegrity = remote.ErrIntegrity

	// ErrConfig matches every *ConfigError.
	ErrConfig = remote.ErrConfig
)

// ErrInvariant is reported by Handler.Check when the cache's internal
// structures disagree. It always indicates a bug.
var ErrInvariant = cache.ErrInvariant

var (
	// ErrInvalidKey is returned for an empty blob path.
	ErrInvalidKey = errors.New("blobcache: invalid key")

	// ErrClosed is returned by operations on a closed Handler.
	ErrClosed = errors.New("blobcache: handler closed")
)

type (
	// TransportError reports a failed origin call.
	TransportError = remote.TransportError

	// ConfigError names the configuration field that failed validation.
	ConfigError = remote.ConfigError
)
