package ternsecure

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ternsecure/ternsecure/cookie"
)

// LoadConfig reads a YAML file over DefaultConfig, applies TERNSECURE_* environment
// overrides and validates the result. An empty path skips the file.
//
// Environment variables override file values:
//   - TERNSECURE_ENVIRONMENT, TERNSECURE_API_KEY, TERNSECURE_PROJECT_ID
//   - TERNSECURE_TENANT_ID, TERNSECURE_CREDENTIALS_PATH
//   - TERNSECURE_ALLOWED_ORIGINS (comma separated), TERNSECURE_COOKIE_DOMAIN
//   - TERNSECURE_TRUSTED_PROXIES (comma separated IPs or CIDRs)
func LoadConfig(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	}

	ApplyEnv(&cfg, os.LookupEnv)
	cfg.Environment = cookie.ParseEnvironment(string(cfg.Environment))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyEnv overrides cfg from lookup, normally os.LookupEnv. Empty values are ignored.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	set := func(key string, apply func(string)) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			apply(strings.TrimSpace(v))
		}
	}

	set("TERNSECURE_ENVIRONMENT", func(v string) { cfg.Environment = cookie.ParseEnvironment(v) })
	set("TERNSECURE_API_KEY", func(v string) { cfg.APIKey = v })
	set("TERNSECURE_PROJECT_ID", func(v string) { cfg.ProjectID = v })
	set("TERNSECURE_TENANT_ID", func(v string) { cfg.TenantID = v })
	set("TERNSECURE_CREDENTIALS_PATH", func(v string) { cfg.CredentialsPath = v })
	set("TERNSECURE_COOKIE_DOMAIN", func(v string) { cfg.Cookies.Domain = v })
	set("TERNSECURE_ALLOWED_ORIGINS", func(v string) { cfg.Validation.CORS.AllowedOrigins = splitList(v) })
	set("TERNSECURE_TRUSTED_PROXIES", func(v string) { cfg.TrustedProxies = splitList(v) })
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
