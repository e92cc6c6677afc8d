package cookie

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func boolPtr(v bool) *bool { return &v }
func intPtr(v int) *int    { return &v }
func strPtr(v string) *string {
	return &v
}

func TestValidateSessionMaxAgeBounds(t *testing.T) {
	tests := []struct {
		seconds int
		want    bool
	}{
		{299, false},
		{300, true},
		{432000, true},
		{1209600, true},
		{1209601, false},
		{0, false},
		{-1, false},
	}
	for _, tc := range tests {
		if got := ValidateSessionMaxAge(tc.seconds); got != tc.want {
			t.Fatalf("ValidateSessionMaxAge(%d) = %v, want %v", tc.seconds, got, tc.want)
		}
	}
}

func TestNewPolicyRejectsOutOfRangeMaxAge(t *testing.T) {
	if _, err := NewPolicy(Config{MaxAge: 60}, Production); err != ErrInvalidMaxAge {
		t.Fatalf("expected ErrInvalidMaxAge, got %v", err)
	}
	if _, err := NewPolicy(Config{SameSite: "sideways"}, Production); err == nil {
		t.Fatal("expected invalid same_site to fail")
	}
}

func TestProductionSessionCookieIsHostLocked(t *testing.T) {
	p, err := NewPolicy(Config{HTTPOnly: boolPtr(false), Secure: boolPtr(false), Path: "/app"}, Production)
	if err != nil {
		t.Fatalf("new policy: %v", err)
	}
	spec, err := p.SessionCookieOptions(nil)
	if err != nil {
		t.Fatalf("session options: %v", err)
	}
	if spec.Name != "__Host-tern_session" {
		t.Fatalf("unexpected name %q", spec.Name)
	}
	if !spec.HTTPOnly || !spec.Secure {
		t.Fatalf("production session cookie must be httpOnly and secure: %+v", spec)
	}
	if spec.Path != "/" || spec.Domain != "" {
		t.Fatalf("__Host- cookie must use path / and no domain: %+v", spec)
	}
	if spec.MaxAge != DefaultSessionMaxAge {
		t.Fatalf("expected default max age, got %d", spec.MaxAge)
	}
}

func TestDevelopmentCookies(t *testing.T) {
	p, err := NewPolicy(Config{}, Development)
	if err != nil {
		t.Fatalf("new policy: %v", err)
	}
	spec := p.IDTokenCookieOptions()
	if spec.Name != "__dev_tern_id" || spec.Secure {
		t.Fatalf("unexpected development id cookie: %+v", spec)
	}
	if spec.MaxAge != 3600 || !spec.HTTPOnly {
		t.Fatalf("unexpected id cookie attributes: %+v", spec)
	}
}

func TestCSRFCookieIsReadableByScripts(t *testing.T) {
	for _, env := range []Environment{Production, Development} {
		p, err := NewPolicy(Config{HTTPOnly: boolPtr(true)}, env)
		if err != nil {
			t.Fatalf("new policy: %v", err)
		}
		spec := p.CSRFCookieOptions()
		if spec.HTTPOnly {
			t.Fatalf("%s: csrf cookie must not be httpOnly", env)
		}
		if spec.SameSite != http.SameSiteStrictMode {
			t.Fatalf("%s: expected strict same site, got %v", env, spec.SameSite)
		}
	}
}

func TestPrecedenceOverrideConfigEnvironmentFallback(t *testing.T) {
	p, err := NewPolicy(Config{Path: "/config", SameSite: "strict", MaxAge: 600}, Development)
	if err != nil {
		t.Fatalf("new policy: %v", err)
	}

	fallback, err := p.SessionCookieOptions(nil)
	if err != nil {
		t.Fatalf("session options: %v", err)
	}
	if fallback.Path != "/config" || fallback.SameSite != http.SameSiteStrictMode || fallback.MaxAge != 600 {
		t.Fatalf("config layer not applied: %+v", fallback)
	}
	if fallback.Secure {
		t.Fatal("development default must not force secure")
	}

	lax := http.SameSiteLaxMode
	override, err := p.SessionCookieOptions(&Override{
		Path:     strPtr("/override"),
		SameSite: &lax,
		Secure:   boolPtr(true),
		MaxAge:   intPtr(900),
	})
	if err != nil {
		t.Fatalf("session options: %v", err)
	}
	if override.Path != "/override" || override.SameSite != lax || !override.Secure || override.MaxAge != 900 {
		t.Fatalf("override layer not applied: %+v", override)
	}

	for _, maxAge := range []int{10, MaxSessionMaxAge + 1} {
		if _, err := p.SessionCookieOptions(&Override{MaxAge: intPtr(maxAge)}); !errors.Is(err, ErrInvalidMaxAge) {
			t.Fatalf("max age %d: expected ErrInvalidMaxAge, got %v", maxAge, err)
		}
	}
	if spec := p.Options(Session, &Override{MaxAge: intPtr(10)}); spec.MaxAge != 600 {
		t.Fatalf("out-of-range override must not be clamped, got %d", spec.MaxAge)
	}

	bare, _ := NewPolicy(Config{}, Development)
	if spec, _ := bare.SessionCookieOptions(nil); spec.Path != "/" || spec.SameSite != http.SameSiteLaxMode {
		t.Fatalf("fallback layer not applied: %+v", spec)
	}
}

func TestProductionDomainUsesSecurePrefix(t *testing.T) {
	p, err := NewPolicy(Config{Domain: "example.com"}, Production)
	if err != nil {
		t.Fatalf("new policy: %v", err)
	}
	spec := p.RefreshTokenCookieOptions()
	if spec.Name != "__Secure-tern_refresh" || spec.Domain != "example.com" {
		t.Fatalf("unexpected spec %+v", spec)
	}
}

func TestDeleteOptionsClearCookie(t *testing.T) {
	p, _ := NewPolicy(Config{}, Production)
	spec := p.DeleteOptions(Session, nil)
	if spec.MaxAge != 0 {
		t.Fatalf("delete options must carry max age 0, got %d", spec.MaxAge)
	}
	c := spec.Cookie("ignored")
	if c.MaxAge != -1 || c.Value != "" {
		t.Fatalf("rendered delete cookie must expire immediately: %+v", c)
	}
	rec := httptest.NewRecorder()
	http.SetCookie(rec, c)
	if got := rec.Header().Get("Set-Cookie"); got == "" {
		t.Fatal("expected Set-Cookie header")
	}
}

func TestJarBuffersWrites(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "a", Value: "1"})
	jar := NewJar(req)

	if v, ok := jar.Get("a"); !ok || v != "1" {
		t.Fatalf("expected incoming cookie, got %q %v", v, ok)
	}
	p, _ := NewPolicy(Config{}, Development)
	jar.Set(p.IDTokenCookieOptions(), "tok")
	if v, ok := jar.Get(p.Name(IDToken)); !ok || v != "tok" {
		t.Fatalf("expected buffered cookie, got %q %v", v, ok)
	}
	jar.Delete(Spec{Name: "a", Path: "/"})
	if _, ok := jar.Get("a"); ok {
		t.Fatal("expected deleted cookie to be hidden")
	}

	if got := len(jar.Pending()); got != 2 {
		t.Fatalf("expected 2 pending cookies, got %d", got)
	}
	if got := len(jar.Pending()); got != 0 {
		t.Fatalf("expected pending to drain, got %d", got)
	}

	jar.Set(p.IDTokenCookieOptions(), "tok2")
	jar.Discard()
	if len(jar.Pending()) != 0 {
		t.Fatal("expected discard to drop writes")
	}
}
