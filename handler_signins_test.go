package ternsecure

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/ternsecure/ternsecure/cookie"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return mr, rdb
}

func TestValidEmail(t *testing.T) {
	tests := map[string]bool{
		"a@example.com":       true,
		"first.last@sub.io":   true,
		"":                    false,
		"plain":               false,
		"no-domain@":          false,
		"space in@example.co": false,
		"a@nodot":             false,
	}
	for email, want := range tests {
		if got := ValidEmail(email); got != want {
			t.Fatalf("ValidEmail(%q) = %v, want %v", email, got, want)
		}
	}
}

func TestPasswordResetEmail(t *testing.T) {
	var gotBody map[string]any
	f := newFixture(t, nil)
	f.provider.reset = func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"email":"a@example.com"}`))
	}

	for _, sub := range []string{SubResetPasswordEmail, SubPasswordResetEmail} {
		rec := f.do(http.MethodPost, "/api/auth/signIns/"+sub, `{"email":"a@example.com"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d: %s", sub, rec.Code, rec.Body.String())
		}
		if got := decodeBody(t, rec)["message"]; got != "Password reset email sent" {
			t.Fatalf("unexpected message %v", got)
		}
	}
	if gotBody["requestType"] != "PASSWORD_RESET" || gotBody["email"] != "a@example.com" {
		t.Fatalf("unexpected provider body %v", gotBody)
	}
	if f.engine.MetricsSnapshot().Counters[MetricPasswordResetRequest] != 2 {
		t.Fatal("expected two password reset metrics")
	}
}

func TestPasswordResetFailures(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		method   string
		body     string
		provider http.HandlerFunc
		status   int
		code     ErrorCode
	}{
		{
			name:   "invalid email",
			path:   "/api/auth/signIns/resetPasswordEmail",
			method: http.MethodPost,
			body:   `{"email":"nope"}`,
			status: http.StatusBadRequest,
			code:   CodeInvalidEmail,
		},
		{
			name:   "malformed body",
			path:   "/api/auth/signIns/resetPasswordEmail",
			method: http.MethodPost,
			body:   `not json`,
			status: http.StatusBadRequest,
			code:   CodeInvalidEmail,
		},
		{
			name:     "unknown user",
			path:     "/api/auth/signIns/resetPasswordEmail",
			method:   http.MethodPost,
			body:     `{"email":"ghost@example.com"}`,
			provider: providerJSON(http.StatusBadRequest, `{"error":{"code":400,"message":"EMAIL_NOT_FOUND"}}`),
			status:   http.StatusNotFound,
			code:     CodeUserNotFound,
		},
		{
			name:     "provider failure",
			path:     "/api/auth/signIns/passwordResetEmail",
			method:   http.MethodPost,
			body:     `{"email":"a@example.com"}`,
			provider: providerJSON(http.StatusServiceUnavailable, `{"error":{"code":503,"message":"UNAVAILABLE"}}`),
			status:   http.StatusInternalServerError,
			code:     CodePasswordResetFailed,
		},
		{
			name:     "create strategy failure",
			path:     "/api/auth/signIns/create",
			method:   http.MethodPost,
			body:     `{"email":"a@example.com"}`,
			provider: providerJSON(http.StatusInternalServerError, `{}`),
			status:   http.StatusInternalServerError,
			code:     CodeSignInCreateFailed,
		},
		{
			name:   "unknown strategy",
			path:   "/api/auth/signIns/magicLink",
			method: http.MethodPost,
			body:   `{"email":"a@example.com"}`,
			status: http.StatusNotFound,
			code:   CodeNotFound,
		},
		{
			name:   "wrong method",
			path:   "/api/auth/signIns/resetPasswordEmail",
			method: http.MethodGet,
			status: http.StatusMethodNotAllowed,
			code:   CodeMethodNotAllowed,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, nil)
			f.provider.reset = tc.provider
			assertError(t, f.do(tc.method, tc.path, tc.body), tc.status, tc.code)
		})
	}
}

func TestPasswordResetWithoutAPIKey(t *testing.T) {
	f := newFixture(t, func(cfg *Config) { cfg.APIKey = "" })

	body := assertError(t, f.do(http.MethodPost, "/api/auth/signIns/resetPasswordEmail", `{"email":"a@example.com"}`),
		http.StatusInternalServerError, CodePasswordResetFailed)
	if body["message"] != "Failed to send password reset email" {
		t.Fatalf("configuration detail must not leak, got %v", body["message"])
	}
	if f.provider.count("/v1/accounts:sendOobCode") != 0 {
		t.Fatal("provider must not be called without an api key")
	}
}

func TestPasswordResetRateLimited(t *testing.T) {
	_, rdb := newTestRedis(t)
	f := newFixture(t, func(cfg *Config) {
		cfg.RateLimit.MaxResetAttempts = 2
	}, func(b *Builder) { b.WithRedis(rdb) })
	f.provider.reset = providerJSON(http.StatusOK, `{"email":"a@example.com"}`)

	for i := 0; i < 2; i++ {
		rec := f.do(http.MethodPost, "/api/auth/signIns/resetPasswordEmail", `{"email":"a@example.com"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("attempt %d: expected 200, got %d", i, rec.Code)
		}
	}
	assertError(t, f.do(http.MethodPost, "/api/auth/signIns/resetPasswordEmail", `{"email":"a@example.com"}`),
		http.StatusTooManyRequests, CodeRateLimited)
	if got := f.provider.count("/v1/accounts:sendOobCode"); got != 2 {
		t.Fatalf("expected limited request to skip the provider, got %d calls", got)
	}
	if f.engine.MetricsSnapshot().Counters[MetricRateLimitHit] != 1 {
		t.Fatal("expected rate limit metric")
	}
}

func TestPasswordResetIPThrottleIgnoresSpoofedForwarding(t *testing.T) {
	_, rdb := newTestRedis(t)
	f := newFixture(t, func(cfg *Config) {
		cfg.RateLimit.EnableResetThrottle = false
		cfg.RateLimit.MaxResetAttempts = 2
		cfg.TrustedProxies = []string{"10.0.0.0/8"}
	}, func(b *Builder) { b.WithRedis(rdb) })
	f.provider.reset = providerJSON(http.StatusOK, `{"email":"a@example.com"}`)

	limited := 0
	for i := 0; i < 10; i++ {
		body := fmt.Sprintf(`{"email":"user%d@example.com"}`, i)
		req := newRequest(http.MethodPost, "/api/auth/signIns/resetPasswordEmail", body)
		req.RemoteAddr = "203.0.113.9:5555"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("198.51.100.%d", i+1))
		if rec := f.serve(req); rec.Code == http.StatusTooManyRequests {
			limited++
		}
	}
	if limited != 8 {
		t.Fatalf("expected 8 requests limited by peer address, got %d", limited)
	}
	if got := f.provider.count("/v1/accounts:sendOobCode"); got != 2 {
		t.Fatalf("expected 2 provider calls, got %d", got)
	}

	for i := 0; i < 3; i++ {
		req := newRequest(http.MethodPost, "/api/auth/signIns/resetPasswordEmail", `{"email":"b@example.com"}`)
		req.RemoteAddr = "10.0.0.2:5555"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("198.51.100.%d", 100+i))
		if rec := f.serve(req); rec.Code != http.StatusOK {
			t.Fatalf("trusted proxy request %d: expected 200, got %d", i, rec.Code)
		}
	}
}

func TestRateLimiterFailsOpen(t *testing.T) {
	mr, rdb := newTestRedis(t)
	f := newFixture(t, nil, func(b *Builder) { b.WithRedis(rdb) })
	f.provider.reset = providerJSON(http.StatusOK, `{"email":"a@example.com"}`)
	mr.Close()

	rec := f.do(http.MethodPost, "/api/auth/signIns/resetPasswordEmail", `{"email":"a@example.com"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected limiter outage to fail open, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestRefreshRateLimited(t *testing.T) {
	_, rdb := newTestRedis(t)
	f := newFixture(t, func(cfg *Config) {
		cfg.RateLimit.MaxRefreshAttempts = 1
	}, func(b *Builder) { b.WithRedis(rdb) })
	f.provider.refresh = providerJSON(http.StatusOK,
		`{"id_token":"x","refresh_token":"rt-2","expires_in":"3600","user_id":"user-1"}`)

	body := `{"idToken":"` + mustSign(t, f.idSigner, "user-1", nil) + `"}`
	if rec := f.do(http.MethodPost, "/api/auth/sessions/refresh", body, f.cookie(cookie.RefreshToken, "rt-1")); rec.Code != http.StatusOK {
		t.Fatalf("first refresh: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	assertError(t, f.do(http.MethodPost, "/api/auth/sessions/refresh", body, f.cookie(cookie.RefreshToken, "rt-1")),
		http.StatusTooManyRequests, CodeRateLimited)
}
