package server

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/IvanBrykalov/blobcache"
)

// AppOptions wires the Fiber application.
type AppOptions struct {
	Logger  *logrus.Logger
	Handler *blobcache.Handler
	// Gatherer backs /metrics; nil disables the route.
	Gatherer prometheus.Gatherer
	// BodyLimit caps PUT bodies in bytes (0 = Fiber default).
	BodyLimit int
}

const contextKeyRequestID = "_blobcache_request_id"

// NewApp builds the Fiber application.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Handler == nil {
		return nil, errors.New("blob handler is required")
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
		UnescapePath:  true,
		BodyLimit:     opts.BodyLimit,
	})
	app.Use(recover.New())
	app.Use(requestContextMiddleware(opts.Logger))

	r := &routes{log: opts.Logger, h: opts.Handler}
	app.Get("/blobs/*", r.getBlob)
	app.Put("/blobs/*", r.putBlob)
	app.Delete("/blobs/*", r.deleteBlob)
	app.Delete("/-/cache/*", r.invalidate)
	app.Get("/-/stats", r.stats)
	app.Get("/-/healthz", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	if opts.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}
	return app, nil
}

// requestContextMiddleware assigns a request ID and logs each request.
func requestContextMiddleware(logger *logrus.Logger) fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)

		start := time.Now()
		err := c.Next()
		logger.WithFields(logrus.Fields{
			"action":     "request",
			"request_id": reqID,
			"method":     c.Method(),
			"path":       c.Path(),
			"status":     c.Response().StatusCode(),
			"duration":   time.Since(start),
		}).Debug("handled")
		return err
	}
}

// RequestID returns the identifier assigned by the middleware.
func RequestID(c fiber.Ctx) string {
	if v, ok := c.Locals(contextKeyRequestID).(string); ok {
		return v
	}
	return ""
}

type routes struct {
	log *logrus.Logger
	h   *blobcache.Handler
}

func (r *routes) getBlob(c fiber.Ctx) error {
	data, err := r.h.GetBlob(requestContext(c), c.Params("*"))
	if err != nil {
		return r.renderError(c, "get", err)
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEOctetStream)
	return c.Send(data)
}

func (r *routes) putBlob(c fiber.Ctx) error {
	body := bytes.Clone(c.Body())
	if err := r.h.PutBlob(requestContext(c), c.Params("*"), body); err != nil {
		return r.renderError(c, "put", err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (r *routes) deleteBlob(c fiber.Ctx) error {
	if err := r.h.DeleteBlob(requestContext(c), c.Params("*")); err != nil {
		return r.renderError(c, "delete", err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (r *routes) invalidate(c fiber.Ctx) error {
	removed := r.h.Invalidate(c.Params("*"))
	return c.JSON(fiber.Map{"removed": removed})
}

func (r *routes) stats(c fiber.Ctx) error {
	table := r.h.Table().Redacted()
	return c.JSON(fiber.Map{
		"table":    table.Table,
		"endpoint": table.Endpoint,
		"stats":    r.h.Stats(),
	})
}

func (r *routes) renderError(c fiber.Ctx, op string, err error) error {
	status, code := classify(err)
	if status >= fiber.StatusInternalServerError {
		r.log.WithFields(logrus.Fields{
			"action":     op,
			"request_id": RequestID(c),
			"key":        c.Params("*"),
		}).WithError(err).Warn("request failed")
	}
	return c.Status(status).JSON(fiber.Map{"error": code})
}

// classify maps blobcache errors onto HTTP statuses.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, blobcache.ErrInvalidKey):
		return fiber.StatusBadRequest, "invalid_key"
	case errors.Is(err, blobcache.ErrNotFound):
		return fiber.StatusNotFound, "not_found"
	case errors.Is(err, errors.ErrUnsupported):
		return fiber.StatusNotImplemented, "unsupported"
	case errors.Is(err, blobcache.ErrClosed):
		return fiber.StatusServiceUnavailable, "closed"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		if errors.Is(err, blobcache.ErrTransport) {
			return fiber.StatusGatewayTimeout, "origin_timeout"
		}
		return fiber.StatusRequestTimeout, "cancelled"
	case errors.Is(err, blobcache.ErrTransport):
		return fiber.StatusBadGateway, "origin_unavailable"
	default:
		return fiber.StatusInternalServerError, "internal"
	}
}

func requestContext(c fiber.Ctx) context.Context {
	if ctx := c.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
