package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/ternsecure/ternsecure"
)

// Guard resolves the request's session cookies through engine and attaches the
// result with ternsecure.WithAuth. It never rejects; pair it with Protect.
func Guard(engine *ternsecure.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "authentication unavailable", http.StatusInternalServerError)
				return
			}
			ctx := ternsecure.WithAuth(r.Context(), engine.Auth(r))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AuthObjectFromContext returns the AuthObject attached by Guard or RequireBearer.
func AuthObjectFromContext(ctx context.Context) (ternsecure.AuthObject, bool) {
	auth, ok := ternsecure.AuthFromContext(ctx)
	if !ok {
		return ternsecure.AuthObject{}, false
	}
	return auth.Resolve(), true
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
