// Package server exposes a blobcache Handler over HTTP with Fiber.
//
// Routes:
//
//	GET    /blobs/<path>    serve a blob (cache, then origin)
//	PUT    /blobs/<path>    write through to the origin
//	DELETE /blobs/<path>    delete at the origin and locally
//	DELETE /-/cache/<path>  drop the local copy only
//	GET    /-/stats         cache and origin counters
//	GET    /-/healthz       liveness
//	GET    /metrics         Prometheus exposition
package server
