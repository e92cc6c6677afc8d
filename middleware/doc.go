// Package middleware adapts a ternsecure.Engine to net/http handler chains for the
// application's own routes.
//
// # Middleware
//
//   - [Guard] resolves session cookies and attaches a ternsecure.Auth.
//   - [RequireBearer] does the same from an "Authorization: Bearer" ID token and
//     rejects requests without one.
//   - [Protect] turns the attached Auth into allow, redirect or 404.
//   - [IssueCSRF] sets the CSRF cookie sign-in pages echo back as csrfToken.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. Token verification and
// access decisions stay in the ternsecure package.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly.
//   - Write session cookies.
//   - Serve the /api/auth routes; mount the Engine for those.
package middleware
