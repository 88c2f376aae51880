package remote

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when the table has no blob under the key.
	ErrNotFound = errors.New("remote: blob not found")

	// ErrTransport matches every *TransportError via errors.Is.
	ErrTransport = errors.New("remote: transport failure")

	// ErrIntegrity is wrapped by a TransportError when fetched content does
	// not match its recorded hash.
	ErrIntegrity = errors.New("remote: content hash mismatch")

	// ErrConfig matches every *ConfigError via errors.Is.
	ErrConfig = errors.New("remote: invalid configuration")
)

// TransportError reports a remote call that could not complete: network
// failure, timeout, unexpected status or corrupted content. Callers may retry.
type TransportError struct {
	Op         string // "get", "put", "delete"
	Key        string
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.Err != nil && e.StatusCode != 0:
		return fmt.Sprintf("remote: %s %q: status %d: %v", e.Op, e.Key, e.StatusCode, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("remote: %s %q: %v", e.Op, e.Key, e.Err)
	default:
		return fmt.Sprintf("remote: %s %q: unexpected status %d", e.Op, e.Key, e.StatusCode)
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrTransport) true for any TransportError.
func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// ConfigError names the configuration field that failed validation.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("remote: config %s: %s", e.Field, e.Reason)
}

// Is makes errors.Is(err, ErrConfig) true for any ConfigError.
func (e *ConfigError) Is(target error) bool { return target == ErrConfig }

func newConfigError(field, reason string) error {
	return &ConfigError{Field: field, Reason: reason}
}

// IsNotFound reports whether err means the key is absent at the origin.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
