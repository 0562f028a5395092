// Package server provides the HTTP listener that runs alongside playback.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
//
// The [BasicRouter] implementation uses [http.ServeMux] internally with method filtering.
//
// # Handlers
//
//	GET /metrics  prometheus collectors from internal/metrics
//	GET /healthz  liveness, always "ok"
//	GET /status   JSON snapshot of the playing session
//
// [Serve] starts the listener in the background and returns a stop function that shuts it down
// with a short grace period. The play command starts it when metrics.listen is configured.
//
// # Handler Interface
//
// Custom handlers implement the [Handler] interface, which wraps the stdlib handler interface and adds routes,
// allowing handlers to register multiple routes to encapsulate route definitions within the implementation.
package server
