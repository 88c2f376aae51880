package remote

import (
	"net/url"
	"strings"
)

// TableConfig identifies the remote namespace backing a cache instance.
// It is a value type: once validated it is copied, never mutated.
type TableConfig struct {
	// Endpoint is the base URL of the KV service, e.g. https://kv.example.com.
	Endpoint string
	// Auth is the credential. For HTTP it is a bearer token (a value that
	// already carries a scheme, e.g. "Basic ...", is sent verbatim); for S3 it
	// is "accessKey:secretKey".
	Auth string
	// Table is the logical table / bucket name.
	Table string
}

// Validate checks that every field is present and well formed.
func (c TableConfig) Validate() error {
	endpoint := strings.TrimSpace(c.Endpoint)
	if endpoint == "" {
		return newConfigError("Endpoint", "must not be empty")
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return newConfigError("Endpoint", err.Error())
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return newConfigError("Endpoint", "scheme must be http or https")
	}
	if u.Host == "" {
		return newConfigError("Endpoint", "missing host")
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return newConfigError("Endpoint", "must not carry a query or fragment")
	}

	if strings.TrimSpace(c.Auth) == "" {
		return newConfigError("Auth", "must not be empty")
	}
	if strings.ContainsAny(c.Auth, "\r\n") {
		return newConfigError("Auth", "must not contain line breaks")
	}

	table := strings.TrimSpace(c.Table)
	if table == "" {
		return newConfigError("Table", "must not be empty")
	}
	if table != c.Table || strings.ContainsAny(table, "/ \t") {
		return newConfigError("Table", "must not contain slashes or whitespace")
	}
	return nil
}

// AuthorizationHeader returns the value for the HTTP Authorization header.
func (c TableConfig) AuthorizationHeader() string {
	if strings.Contains(strings.TrimSpace(c.Auth), " ") {
		return c.Auth
	}
	return "Bearer " + c.Auth
}

// Redacted returns a copy safe to log.
func (c TableConfig) Redacted() TableConfig {
	c.Auth = "REDACTED"
	return c
}
