package middleware

import (
	"context"
	"net/http"

	"github.com/ternsecure/ternsecure"
)

type csrfTokenContextKey struct{}

// IssueCSRF makes sure every response carries the CSRF cookie createsession checks
// and exposes the token to the wrapped handler, e.g. to render it into a form.
func IssueCSRF(engine *ternsecure.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := engine.IssueCSRFToken(w, r)
			if err != nil {
				http.Error(w, "csrf token unavailable", http.StatusInternalServerError)
				return
			}
			ctx := context.WithValue(r.Context(), csrfTokenContextKey{}, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CSRFTokenFromContext returns the token IssueCSRF attached.
func CSRFTokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(csrfTokenContextKey{}).(string)
	return token, ok && token != ""
}
