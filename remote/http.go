package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultHTTPTimeout bounds a single request when no client is supplied.
const DefaultHTTPTimeout = 30 * time.Second

// Shared transport tunings: long-lived connections, bounded handshakes.
var defaultTransport = &http.Transport{
	Proxy:                 http.ProxyFromEnvironment,
	MaxIdleConns:          100,
	MaxIdleConnsPerHost:   100,
	IdleConnTimeout:       90 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: 1 * time.Second,
	ForceAttemptHTTP2:     true,
	DialContext: (&net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
}

// HTTPStore implements Store and Deleter against a KV service speaking
//
//	GET    {endpoint}/{table}/{key}   -> 2xx raw bytes | 404
//	POST   {endpoint}/{table}/{key}   <- raw bytes
//	DELETE {endpoint}/{table}/{key}
//
// with a bearer Authorization header. Redirects are never followed.
type HTTPStore struct {
	cfg     TableConfig
	base    string
	client  *http.Client
	timeout time.Duration
	headers http.Header
}

// HTTPOption configures an HTTPStore.
type HTTPOption func(*HTTPStore)

// WithHTTPClient sets the HTTP client used for requests. The store works on
// a shallow copy with redirects disabled.
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(s *HTTPStore) {
		if client != nil {
			s.client = client
		}
	}
}

// WithRequestTimeout overrides the per-request timeout of the client.
func WithRequestTimeout(d time.Duration) HTTPOption {
	return func(s *HTTPStore) {
		s.timeout = d
	}
}

// WithHeader sets an additional header on each request.
func WithHeader(key, value string) HTTPOption {
	return func(s *HTTPStore) {
		s.headers.Set(key, value)
	}
}

// NewHTTPStore validates cfg and returns a store bound to its table.
func NewHTTPStore(cfg TableConfig, opts ...HTTPOption) (*HTTPStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &HTTPStore{
		cfg:  cfg,
		base: strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/") + "/" + url.PathEscape(cfg.Table) + "/",
		client: &http.Client{
			Timeout:   DefaultHTTPTimeout,
			Transport: defaultTransport.Clone(),
		},
		headers: make(http.Header),
	}
	for _, opt := range opts {
		opt(s)
	}

	c := *s.client
	if s.timeout > 0 {
		c.Timeout = s.timeout
	}
	c.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	s.client = &c
	s.headers.Set("Authorization", cfg.AuthorizationHeader())
	return s, nil
}

// Table returns the table this store is bound to.
func (s *HTTPStore) Table() TableConfig { return s.cfg }

// Fetch issues one GET for key.
func (s *HTTPStore) Fetch(ctx context.Context, key string) ([]byte, error) {
	resp, err := s.do(ctx, http.MethodGet, key, nil)
	if err != nil {
		return nil, err
	}
	defer closeBody(resp)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, s.cfg.Table, key)
	case !isSuccess(resp.StatusCode):
		return nil, &TransportError{Op: "get", Key: key, StatusCode: resp.StatusCode}
	}

	data, err := readBody(resp)
	if err != nil {
		return nil, &TransportError{Op: "get", Key: key, StatusCode: resp.StatusCode, Err: err}
	}
	return data, nil
}

// Put uploads data under key.
func (s *HTTPStore) Put(ctx context.Context, key string, data []byte) error {
	resp, err := s.do(ctx, http.MethodPost, key, data)
	if err != nil {
		return err
	}
	defer closeBody(resp)

	if !isSuccess(resp.StatusCode) {
		return &TransportError{Op: "put", Key: key, StatusCode: resp.StatusCode}
	}
	return nil
}

// Delete removes key. A 404 counts as success.
func (s *HTTPStore) Delete(ctx context.Context, key string) error {
	resp, err := s.do(ctx, http.MethodDelete, key, nil)
	if err != nil {
		return err
	}
	defer closeBody(resp)

	if resp.StatusCode != http.StatusNotFound && !isSuccess(resp.StatusCode) {
		return &TransportError{Op: "delete", Key: key, StatusCode: resp.StatusCode}
	}
	return nil
}

func (s *HTTPStore) do(ctx context.Context, method, key string, body []byte) (*http.Response, error) {
	op := opName(method)
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.base+escapeKey(key), rd)
	if err != nil {
		return nil, &TransportError{Op: op, Key: key, Err: err}
	}
	for k, vs := range s.headers {
		req.Header[k] = vs
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/octet-stream")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		// surface the caller's own cancellation unchanged for errors.Is
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return nil, &TransportError{Op: op, Key: key, Err: ctxErr}
		}
		return nil, &TransportError{Op: op, Key: key, Err: err}
	}
	return resp, nil
}

// escapeKey escapes each path segment of key but keeps the separators.
func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

func readBody(resp *http.Response) ([]byte, error) {
	if resp.ContentLength > 0 {
		buf := bytes.NewBuffer(make([]byte, 0, resp.ContentLength))
		_, err := buf.ReadFrom(resp.Body)
		return buf.Bytes(), err
	}
	return io.ReadAll(resp.Body)
}

func closeBody(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

func isSuccess(code int) bool { return code >= 200 && code < 300 }

func opName(method string) string {
	switch method {
	case http.MethodPost:
		return "put"
	case http.MethodDelete:
		return "delete"
	default:
		return "get"
	}
}
