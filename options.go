package blobcache

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/IvanBrykalov/blobcache/cache"
	"github.com/IvanBrykalov/blobcache/remote"
)

// Option customizes a Handler.
type Option func(*options)

type options struct {
	store      remote.Store
	logger     *logrus.Logger
	metrics    Metrics
	clock      cache.Clock
	httpClient *http.Client
}

// WithRemote sets the origin store. By default New builds a
// remote.HTTPStore from the Config's endpoint, auth and table.
func WithRemote(s remote.Store) Option {
	return func(o *options) { o.store = s }
}

// WithLogger sets the logger. By default nothing is logged.
func WithLogger(l *logrus.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics installs observability hooks.
func WithMetrics(m Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithClock overrides the time source used for TTLs.
func WithClock(c cache.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithHTTPClient sets the client of the default HTTP store. Ignored when
// WithRemote is used.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}
