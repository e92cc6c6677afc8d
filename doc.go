// Package ternsecure is a server-side authentication pipeline for applications that
// sign users in with Firebase Authentication.
//
// An [Engine] serves the fixed route shape /api/auth/{endpoint}/{subEndpoint}: it
// builds a [RequestContext], runs the validation stages (CORS, security, path,
// endpoint, body), dispatches to the first registered [EndpointHandler] that claims
// the endpoint, and writes a JSON response together with the cookies the handler
// staged. Engine methods are safe to call from multiple goroutines after
// [Builder.Build].
//
// # Architecture boundaries
//
// ternsecure is the public surface. It exposes [Engine], [Builder], [Config], the
// validation stages, the handler registry and the [Protect] decision. Token decoding
// lives in jwt, cookie attributes in cookie, identity provider calls in identity and
// the context cache in session. Rate limiting is internal.
//
// # What this package must NOT do
//
//   - Treat a failed or timed-out provider call as an authenticated outcome.
//   - Decode caller-supplied tokens without verifying them.
//   - Commit cookies for a request whose context is already cancelled.
//   - Keep per-request state anywhere but the request's own call frame.
package ternsecure
