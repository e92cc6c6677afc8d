package middleware

import (
	"net/http"

	"github.com/ternsecure/ternsecure"
)

// Protect enforces a Protect decision on the wrapped handler. It expects Guard or
// RequireBearer to run first; without an attached Auth the request is treated as
// signed out and answered 404.
//
// Redirects use 307 so a protected POST is replayed after sign-in.
func Protect(predicate ternsecure.Predicate, opts *ternsecure.ProtectOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth, ok := ternsecure.AuthFromContext(r.Context())
			if !ok {
				http.NotFound(w, r)
				return
			}

			decision := auth.Protect(predicate, opts)
			switch decision.Kind {
			case ternsecure.DecisionAllow:
				next.ServeHTTP(w, r)
			case ternsecure.DecisionRedirect:
				w.Header().Set("Cache-Control", "no-store")
				http.Redirect(w, r, decision.URL, http.StatusTemporaryRedirect)
			default:
				http.NotFound(w, r)
			}
		})
	}
}

// RequireClaim allows signed-in users whose claim equals or contains value.
func RequireClaim(claim, value string) ternsecure.Predicate {
	return func(h ternsecure.Has) bool {
		return h.HasValue(claim, value)
	}
}
