// Package intercept defines the capability interfaces the request handler
// uses to interact with an intercepted browser request, mirroring spec
// §4.4's "Runtime-tag polymorphism over request kind" design note: rather
// than structurally testing a duck-typed handle, the handler is written
// against a small capability interface supplied by the automation layer
// (out of this module's scope) that owns the actual browser session.
package intercept

import "context"

// Request is the read-only view of an intercepted network request.
type Request interface {
	Method() string
	URL() string
	ResourceType() string
	Headers() map[string][]string
}

// Response is the result of an outbound fetch performed on behalf of the
// handler.
type Response interface {
	Status() int
	OK() bool
	Headers() map[string][]string
	Body() ([]byte, error)
}

// Route is the mutable control surface the handler uses to resolve an
// intercepted request: each request is resolved by exactly one of Continue
// or Fulfill, optionally preceded by Fetch (spec §4.4).
type Route interface {
	// Continue lets the request proceed to the network unmodified.
	Continue(ctx context.Context) error
	// Fetch performs the outbound request with the given header overlay and
	// returns the origin's response (already decompressed per spec §4.4.3
	// rationale).
	Fetch(ctx context.Context, headers map[string][]string) (Response, error)
	// Fulfill completes the intercepted request with a synthesized response.
	Fulfill(ctx context.Context, status int, headers map[string][]string, body []byte) error
}
