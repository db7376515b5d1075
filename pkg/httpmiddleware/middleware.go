// Package httpmiddleware provides HTTP server middleware: panic
// recovery, request IDs and request logging.
package httpmiddleware

import "net/http"

// Middleware is a function that wraps an http.Handler with additional
// behavior.
type Middleware func(http.Handler) http.Handler

// Wrap applies middlewares to h. The first middleware in the list is
// the outermost, i.e. it sees the request first.
func Wrap(h http.Handler, middlewares ...Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}
