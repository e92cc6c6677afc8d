package ternsecure

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ternsecure/ternsecure/cookie"
	"github.com/ternsecure/ternsecure/identity"
	"github.com/ternsecure/ternsecure/jwt"
)

const (
	testProject = "tern-test"
	testAPIKey  = "test-api-key"
	testKeyID   = "k1"
)

var (
	testNow    = time.Unix(1_760_000_000, 0)
	testSecret = []byte("0123456789abcdef0123456789abcdef")
)

// fakeAdmin stands in for the Firebase Admin SDK.
type fakeAdmin struct {
	mu sync.Mutex

	verifyErr  error
	customErr  error
	sessionErr error
	revokeErr  error

	revoked []string
}

func (a *fakeAdmin) VerifyIDToken(_ context.Context, idToken string) (*identity.Token, error) {
	if a.verifyErr != nil {
		return nil, a.verifyErr
	}
	decoded, err := jwt.DecodeUnguarded(idToken)
	if err != nil {
		return nil, err
	}
	return &identity.Token{UID: decoded.Claims.UserID(), Claims: decoded.Claims}, nil
}

func (a *fakeAdmin) CustomToken(_ context.Context, uid string, _ map[string]any) (string, error) {
	if a.customErr != nil {
		return "", a.customErr
	}
	return "custom-" + uid, nil
}

func (a *fakeAdmin) SessionCookie(_ context.Context, _ string, _ time.Duration) (string, error) {
	if a.sessionErr != nil {
		return "", a.sessionErr
	}
	return "session-cookie-value", nil
}

func (a *fakeAdmin) RevokeRefreshTokens(_ context.Context, uid string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.revoked = append(a.revoked, uid)
	return a.revokeErr
}

func (a *fakeAdmin) revokedUsers() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.revoked...)
}

// fakeProvider serves the identity provider REST endpoints.
type fakeProvider struct {
	mu    sync.Mutex
	calls map[string]int

	exchange http.HandlerFunc
	refresh  http.HandlerFunc
	reset    http.HandlerFunc
}

func (p *fakeProvider) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	p.calls[r.URL.Path]++
	p.mu.Unlock()

	var h http.HandlerFunc
	switch r.URL.Path {
	case "/v1/accounts:signInWithCustomToken":
		h = p.exchange
	case "/v1/token":
		h = p.refresh
	case "/v1/accounts:sendOobCode":
		h = p.reset
	}
	if h == nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	h(w, r)
}

func (p *fakeProvider) count(path string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[path]
}

func providerJSON(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}
}

type fixture struct {
	engine   *Engine
	admin    *fakeAdmin
	provider *fakeProvider

	idSigner      *jwt.Signer
	sessionSigner *jwt.Signer
}

type fixtureOption func(*Builder)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ProjectID = testProject
	cfg.APIKey = testAPIKey
	cfg.Tokens.Algorithms = []string{"HS256"}
	return cfg
}

func newFixture(t *testing.T, mutate func(*Config), opts ...fixtureOption) *fixture {
	t.Helper()

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	provider := &fakeProvider{calls: map[string]int{}}
	srv := httptest.NewServer(provider)
	t.Cleanup(srv.Close)

	admin := &fakeAdmin{}
	now := func() time.Time { return testNow }
	idp := identity.NewClient(identity.Config{
		BaseURL:        srv.URL,
		SecureTokenURL: srv.URL,
		HTTPClient:     srv.Client(),
		Timeout:        2 * time.Second,
		Retry:          identity.RetryPolicy{MaxAttempts: 1},
	})

	b := New().
		WithConfig(cfg).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))).
		WithAdmin(admin).
		WithIdentityClient(idp).
		WithIDTokenKeys(jwt.StaticKeys{testKeyID: testSecret}).
		WithSessionCookieKeys(jwt.StaticKeys{testKeyID: testSecret}).
		WithClock(now)
	for _, opt := range opts {
		opt(b)
	}
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)

	return &fixture{
		engine:        engine,
		admin:         admin,
		provider:      provider,
		idSigner:      newTestSigner(t, jwt.IDTokenIssuer(testProject), now),
		sessionSigner: newTestSigner(t, jwt.SessionCookieIssuer(testProject), now),
	}
}

func newTestSigner(t *testing.T, issuer string, now func() time.Time) *jwt.Signer {
	t.Helper()
	signer, err := jwt.NewSigner(jwt.SignerConfig{
		TTL:           time.Hour,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    testSecret,
		Issuer:        issuer,
		Audience:      testProject,
		KeyID:         testKeyID,
		Now:           now,
	})
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	return signer
}

func mustSign(t *testing.T, signer *jwt.Signer, uid string, extra map[string]any) string {
	t.Helper()
	token, err := signer.Sign(uid, extra)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return token
}

func (f *fixture) cookieName(kind cookie.TokenKind) string {
	return f.engine.CookiePolicy().Name(kind)
}

func (f *fixture) cookie(kind cookie.TokenKind, value string) *http.Cookie {
	return &http.Cookie{Name: f.cookieName(kind), Value: value}
}

func newRequest(method, path, body string, cookies ...*http.Cookie) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	return req
}

func (f *fixture) serve(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.engine.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) do(method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	return f.serve(newRequest(method, path, body, cookies...))
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	out := map[string]any{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return out
}

func assertError(t *testing.T, rec *httptest.ResponseRecorder, status int, code ErrorCode) map[string]any {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("expected status %d, got %d: %s", status, rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["error"] != string(code) {
		t.Fatalf("expected error %s, got %v", code, body["error"])
	}
	if msg, _ := body["message"].(string); msg == "" {
		t.Fatalf("expected error message, got %v", body)
	}
	return body
}

func responseCookies(rec *httptest.ResponseRecorder) map[string]*http.Cookie {
	out := map[string]*http.Cookie{}
	for _, c := range rec.Result().Cookies() {
		out[c.Name] = c
	}
	return out
}

var errUpstream = errors.New("upstream failure")
