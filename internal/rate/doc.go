// Package rate provides Redis-backed fixed-window limiters for the credential
// endpoints that call the identity provider.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Key prefixes:
//   - tr:   session refresh, per session
//   - tpr:  password-reset email, per address hash
//   - tpri: password-reset email, per IP
//
// # What this package must NOT do
//
//   - Decide HTTP status codes (callers map ErrRateLimited).
//   - Be imported outside the ternsecure module.
package rate
