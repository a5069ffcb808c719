// Package server provides HTTP routing, middleware, and the OAuth connect endpoints.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
// [LoggingMiddleware] logs each request with charmbracelet/log and [RecoverMiddleware] turns panics into 500s.
//
// The [BasicRouter] implementation uses [http.ServeMux] internally with method filtering.
//
// # OAuth Handler
//
// [OAuthHandler] serves two routes per platform:
//
//	GET /connect/{platform}  → start the flow and redirect to the provider
//	GET /callback/{platform} → validate state, exchange the code, redirect to the accounts page
//
// Every callback outcome is a 302 to the configured accounts URL with either success=connected or a
// human readable error. A replayed authorization code is treated as a duplicate request and redirects
// without a status.
//
// The first result is also published on a channel, so `postx connect` can run the server just long enough
// to receive one callback.
//
// # Handler Interface
//
// Custom handlers implement the [Handler] interface, which wraps the stdlib handler interface and adds routes,
// allowing handlers to register multiple routes to encapsulate route definitions within the implementation.
package server
