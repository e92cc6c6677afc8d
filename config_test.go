package ternsecure

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ternsecure/ternsecure/cookie"
)

func TestDefaultConfigNeedsProjectID(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.Validate()
	if !errors.Is(err, ErrInvalidConfig) || !strings.Contains(err.Error(), "project_id") {
		t.Fatalf("expected project_id error, got %v", err)
	}

	cfg.ProjectID = "p"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}
}

func TestConfigValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"environment", func(c *Config) { c.Environment = "staging" }},
		{"algorithms", func(c *Config) { c.Tokens.Algorithms = nil }},
		{"leeway", func(c *Config) { c.Tokens.Leeway = time.Hour }},
		{"identity timeout", func(c *Config) { c.Identity.Timeout = 0 }},
		{"identity attempts", func(c *Config) { c.Identity.MaxAttempts = 0 }},
		{"cookie max age", func(c *Config) { c.Cookies.MaxAge = 60 }},
		{"same site", func(c *Config) { c.Cookies.SameSite = "sometimes" }},
		{"cache capacity", func(c *Config) { c.Cache.Capacity = 0 }},
		{"refresh throttle", func(c *Config) { c.RateLimit.MaxRefreshAttempts = 0 }},
		{"reset throttle", func(c *Config) { c.RateLimit.ResetWindow = 0 }},
		{"audit buffer", func(c *Config) { c.Audit.BufferSize = -1 }},
		{"empty origin", func(c *Config) { c.Validation.CORS.AllowedOrigins = []string{" "} }},
		{"cors max age", func(c *Config) { c.Validation.CORS.MaxAge = -1 }},
		{"protect url", func(c *Config) { c.Protect.SignInURL = "http://[::1" }},
		{"trusted proxy", func(c *Config) { c.TrustedProxies = []string{"lb.internal"} }},
		{"endpoint method", func(c *Config) {
			ep := c.Validation.Endpoints[EndpointUsers]
			ep.Methods = []string{"FETCH"}
			c.Validation.Endpoints[EndpointUsers] = ep
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			tc.mutate(&cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestCloneConfigIsDeep(t *testing.T) {
	cfg := testConfig()
	clone := cloneConfig(cfg)

	clone.Tokens.Algorithms[0] = "none"
	clone.Validation.CORS.AllowedOrigins[0] = "https://changed"
	sub := clone.Validation.Endpoints[EndpointSessions].SubEndpoints[SubVerify]
	sub.Enabled = false
	clone.Validation.Endpoints[EndpointSessions].SubEndpoints[SubVerify] = sub

	if cfg.Tokens.Algorithms[0] != "HS256" || cfg.Validation.CORS.AllowedOrigins[0] != "*" {
		t.Fatal("clone shares slices with the original")
	}
	if !cfg.Validation.Endpoints[EndpointSessions].SubEndpoints[SubVerify].Enabled {
		t.Fatal("clone shares endpoint maps with the original")
	}
}

func TestEngineConfigReturnsCopy(t *testing.T) {
	f := newFixture(t, nil)
	cfg := f.engine.Config()
	cfg.Validation.CORS.AllowedOrigins[0] = "https://changed"
	if f.engine.Config().Validation.CORS.AllowedOrigins[0] != "*" {
		t.Fatal("engine configuration must not be mutable through Config")
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"TERNSECURE_ENVIRONMENT":      "production",
		"TERNSECURE_API_KEY":          " key ",
		"TERNSECURE_PROJECT_ID":       "proj",
		"TERNSECURE_TENANT_ID":        "tenant-a",
		"TERNSECURE_COOKIE_DOMAIN":    "example.com",
		"TERNSECURE_ALLOWED_ORIGINS":  "https://a.example.com, ,https://b.example.com",
		"TERNSECURE_CREDENTIALS_PATH": "",
		"TERNSECURE_TRUSTED_PROXIES":  "10.0.0.0/8, 127.0.0.1",
	}
	cfg := DefaultConfig()
	cfg.CredentialsPath = "/keep"
	ApplyEnv(&cfg, func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})

	if cfg.Environment != cookie.Production || cfg.APIKey != "key" || cfg.ProjectID != "proj" ||
		cfg.TenantID != "tenant-a" || cfg.Cookies.Domain != "example.com" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.CredentialsPath != "/keep" {
		t.Fatal("empty variables must not override")
	}
	origins := cfg.Validation.CORS.AllowedOrigins
	if len(origins) != 2 || origins[0] != "https://a.example.com" || origins[1] != "https://b.example.com" {
		t.Fatalf("unexpected origins %v", origins)
	}
	if p := cfg.TrustedProxies; len(p) != 2 || p[0] != "10.0.0.0/8" || p[1] != "127.0.0.1" {
		t.Fatalf("unexpected trusted proxies %v", p)
	}
}

func TestLoadConfigFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ternsecure.yaml")
	data := `
environment: development
project_id: from-file
api_key: file-key
cookies:
  max_age: 86400
validation:
  cors:
    allowed_origins: ["https://app.example.com"]
session:
  mint_session_cookie: true
protect:
  sign_in_url: /login
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("TERNSECURE_API_KEY", "env-key")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ProjectID != "from-file" || cfg.APIKey != "env-key" {
		t.Fatalf("expected file values with env override, got %+v", cfg)
	}
	if cfg.Cookies.MaxAge != 86400 || !cfg.Session.MintSessionCookie || cfg.Protect.SignInURL != "/login" {
		t.Fatalf("unexpected file values %+v", cfg)
	}
	if got := cfg.Validation.CORS.AllowedOrigins; len(got) != 1 || got[0] != "https://app.example.com" {
		t.Fatalf("unexpected origins %v", got)
	}
	// sections absent from the file keep their defaults
	if cfg.Cache.Capacity != 10000 || len(cfg.Validation.Endpoints) != 3 {
		t.Fatalf("expected defaults preserved, got %+v", cfg.Cache)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected missing file error")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("project_id: [unterminated"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected parse error")
	}

	t.Setenv("TERNSECURE_PROJECT_ID", "")
	if _, err := LoadConfig(""); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected validation error without project id, got %v", err)
	}
}

func TestBuilderSingleUse(t *testing.T) {
	b := New().WithConfig(testConfig()).WithAdmin(&fakeAdmin{})
	if _, err := b.Build(); err != nil {
		t.Fatalf("first build: %v", err)
	}
	if _, err := b.Build(); !errors.Is(err, ErrBuilderUsed) {
		t.Fatalf("expected ErrBuilderUsed, got %v", err)
	}
}

func TestBuilderRejectsInvalidConfig(t *testing.T) {
	if _, err := New().WithAdmin(&fakeAdmin{}).Build(); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}
