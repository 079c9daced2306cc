// Package server provides HTTP routing, middleware, and the OAuth2 account
// link flow.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
//
// The [BasicRouter] implementation uses [http.ServeMux] internally with method filtering.
//
// # Account Linking
//
// [CallbackHandler] implements the OAuth2 authorization code callback: it
// validates the state parameter (CSRF protection), exchanges the code for
// tokens, and sends the result through a channel. It only processes one
// callback to prevent replay attacks.
//
// [Linker] orchestrates the whole loopback flow. When the user runs the link
// command, a temporary HTTP server starts on the configured address, the
// browser opens to the provider's consent page, the callback delivers the
// token, and the server shuts down. The caller persists the resulting token
// record.
//
// # Handler Interface
//
// Custom handlers implement the [Handler] interface, which wraps the stdlib handler interface and adds routes,
// allowing handlers to register multiple routes to encapsulate route definitions within the implementation.
package server
