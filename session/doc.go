// Package session caches per-session context (user, tenant, claims) keyed by session
// id, so that handlers and middleware can read it without decoding tokens again.
//
// # Bounding
//
// Every Cache is capacity-bounded. When a write pushes a cache past its capacity the
// oldest entries (by last write) are pruned. Writes are last-writer-wins.
//
// # Architecture boundaries
//
// This package owns the [Cache] implementations and the [Context] model. It does NOT
// verify tokens or set cookies.
//
// # What this package must NOT do
//
//   - Import ternsecure, jwt, or cookie (no upward imports).
//   - Store raw tokens in [Context] fields.
package session
