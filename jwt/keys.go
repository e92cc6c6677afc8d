package jwt

import (
	"context"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/jwk"
	"golang.org/x/sync/singleflight"
)

const (
	// GoogleIDTokenKeysURL publishes the JWK set that signs Firebase ID tokens.
	GoogleIDTokenKeysURL = "https://www.googleapis.com/service_accounts/v1/jwk/securetoken@system.gserviceaccount.com"
	// GoogleSessionCookieCertsURL publishes the x509 certificates that sign Firebase session cookies.
	GoogleSessionCookieCertsURL = "https://www.googleapis.com/identitytoolkit/v3/relyingparty/publicKeys"
)

// KeySource resolves the verification key for a token header.
type KeySource interface {
	Key(ctx context.Context, kid string) (any, error)
}

// StaticKeys is a fixed kid to key map.
//
// A single-entry map also matches tokens without a kid header.
type StaticKeys map[string]any

// Key implements KeySource.
func (s StaticKeys) Key(_ context.Context, kid string) (any, error) {
	if kid == "" {
		if len(s) == 1 {
			for _, key := range s {
				return key, nil
			}
		}
		return nil, ErrMissingKeyID
	}
	key, ok := s[kid]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKeyID, kid)
	}
	return key, nil
}

// KeyFormat selects how a RemoteKeySet parses its endpoint.
type KeyFormat int

const (
	// FormatJWKS expects {"keys":[...]}.
	FormatJWKS KeyFormat = iota
	// FormatX509 expects {"kid": "-----BEGIN CERTIFICATE-----..."}.
	FormatX509
)

// RemoteKeySet fetches and caches public keys from an HTTPS endpoint.
//
// Keys are cached for the Cache-Control max-age of the response (MinRefresh when
// absent). An unknown kid triggers one refetch; concurrent refetches collapse into a
// single request.
type RemoteKeySet struct {
	url        string
	format     KeyFormat
	client     *http.Client
	minRefresh time.Duration
	now        func() time.Time

	mu        sync.RWMutex
	keys      map[string]any
	expiresAt time.Time

	group singleflight.Group
}

// NewRemoteKeySet builds a RemoteKeySet. A nil client uses a 10s timeout client.
func NewRemoteKeySet(url string, format KeyFormat, client *http.Client) *RemoteKeySet {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &RemoteKeySet{
		url:        url,
		format:     format,
		client:     client,
		minRefresh: 5 * time.Minute,
		now:        time.Now,
	}
}

// Key implements KeySource.
func (r *RemoteKeySet) Key(ctx context.Context, kid string) (any, error) {
	if kid == "" {
		return nil, ErrMissingKeyID
	}
	r.mu.RLock()
	key, ok := r.keys[kid]
	fresh := r.now().Before(r.expiresAt)
	r.mu.RUnlock()
	if ok && fresh {
		return key, nil
	}

	if _, err, _ := r.group.Do("refresh", func() (any, error) {
		return nil, r.refresh(ctx)
	}); err != nil {
		if ok {
			// stale key still verifies until the next successful fetch
			return key, nil
		}
		return nil, err
	}

	r.mu.RLock()
	key, ok = r.keys[kid]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKeyID, kid)
	}
	return key, nil
}

func (r *RemoteKeySet) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrKeyFetch, err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrKeyFetch, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrKeyFetch, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrKeyFetch, err)
	}

	var keys map[string]any
	switch r.format {
	case FormatX509:
		keys, err = parseCertificateMap(body)
	default:
		keys, err = parseJWKS(body)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrKeyFetch, err)
	}

	ttl := maxAge(resp.Header.Get("Cache-Control"))
	if ttl < r.minRefresh {
		ttl = r.minRefresh
	}
	r.mu.Lock()
	r.keys = keys
	r.expiresAt = r.now().Add(ttl)
	r.mu.Unlock()
	return nil
}

// maxExponentBytes bounds RSA public exponents to values that fit an int on every
// platform.
const maxExponentBytes = 4

// parseJWKS keeps the RSA and Ed25519 keys of a JWK set that carry a kid.
func parseJWKS(body []byte) (map[string]any, error) {
	set, err := jwk.Parse(body)
	if err != nil {
		return nil, err
	}
	keys := make(map[string]any, set.Len())
	for i := 0; i < set.Len(); i++ {
		key, ok := set.Get(i)
		if !ok || key.KeyID() == "" {
			continue
		}
		if rk, ok := key.(jwk.RSAPublicKey); ok && len(rk.E()) > maxExponentBytes {
			continue
		}
		var raw any
		if err := key.Raw(&raw); err != nil {
			continue
		}
		switch pub := raw.(type) {
		case *rsa.PublicKey:
			if pub.E < 3 {
				continue
			}
			keys[key.KeyID()] = pub
		case ed25519.PublicKey:
			keys[key.KeyID()] = pub
		}
	}
	if len(keys) == 0 {
		return nil, errors.New("key set contains no usable keys")
	}
	return keys, nil
}

func parseCertificateMap(body []byte) (map[string]any, error) {
	var certs map[string]string
	if err := json.Unmarshal(body, &certs); err != nil {
		return nil, err
	}
	keys := make(map[string]any, len(certs))
	for kid, certPEM := range certs {
		block, _ := pem.Decode([]byte(certPEM))
		if block == nil {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			continue
		}
		keys[kid] = cert.PublicKey
	}
	if len(keys) == 0 {
		return nil, errors.New("certificate map contains no usable keys")
	}
	return keys, nil
}

func maxAge(cacheControl string) time.Duration {
	for _, directive := range strings.Split(cacheControl, ",") {
		directive = strings.TrimSpace(directive)
		if !strings.HasPrefix(directive, "max-age=") {
			continue
		}
		seconds, err := strconv.Atoi(strings.TrimPrefix(directive, "max-age="))
		if err != nil || seconds < 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}
	return 0
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

// ParseEd25519PublicKey accepts a raw 32-byte key or a PEM block.
func ParseEd25519PublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
