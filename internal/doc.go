// Package internal holds helpers private to TernSecure: random token generation
// here, and the Redis rate limiter under internal/rate.
package internal
