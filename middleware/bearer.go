package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/ternsecure/ternsecure"
)

// RequireBearer authenticates API clients that send a Firebase ID token as
// "Authorization: Bearer <token>" instead of cookies. Requests without a valid
// token get a 401 error envelope.
func RequireBearer(engine *ternsecure.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				unauthorized(w, "Authentication unavailable")
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				unauthorized(w, "Missing bearer token")
				return
			}

			auth := engine.VerifyIDToken(r.Context(), token)
			if !auth.IsSignedIn() {
				unauthorized(w, "Invalid bearer token")
				return
			}

			ctx := ternsecure.WithAuth(r.Context(), engine.BindAuth(r, auth))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("WWW-Authenticate", `Bearer realm="ternsecure"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(ternsecure.ErrorBody{Error: ternsecure.CodeUnauthorized, Message: message})
}
