// Package jwt decodes and verifies Firebase-shaped identity tokens and session cookies.
//
// Decode runs full verification (signature, expiry, issuer, audience, subject,
// auth_time) against a KeySource. DecodeUnguarded only checks structure and must be
// reserved for cookies this system issued itself. Verify folds the outcome into an
// AuthObject and fails closed.
//
// # Architecture boundaries
//
// The package never performs HTTP routing or cookie handling. Remote key fetching is
// the only network access it does, and only through RemoteKeySet.
package jwt
