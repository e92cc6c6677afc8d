// Package cookie derives the names and attributes of every cookie the auth pipeline
// sets or clears.
//
// Attribute precedence, highest first: a per-call Override, the handler Config, the
// environment default, and a hardcoded fallback. Production cookies are host-locked
// with the __Host- prefix; development cookies use the __dev_ prefix.
package cookie
