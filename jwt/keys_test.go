package jwt

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newRSAKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}
	return key
}

func jwksServer(t *testing.T, kid string, pub *rsa.PublicKey, hits *int32) *httptest.Server {
	t.Helper()
	doc := map[string]any{"keys": []map[string]string{{
		"kty": "RSA",
		"kid": kid,
		"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(hits, 1)
		w.Header().Set("Cache-Control", "public, max-age=3600, must-revalidate")
		_ = json.NewEncoder(w).Encode(doc)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRemoteKeySetJWKSVerifiesAndCaches(t *testing.T) {
	key := newRSAKey(t)
	var hits int32
	srv := jwksServer(t, "google-1", &key.PublicKey, &hits)

	keys := NewRemoteKeySet(srv.URL, FormatJWKS, srv.Client())
	codec, err := NewCodec(Config{ProjectID: testProject, Keys: keys})
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	signer, err := NewSigner(SignerConfig{
		TTL:           time.Hour,
		SigningMethod: MethodRS256,
		RSAKey:        key,
		Issuer:        IDTokenIssuer(testProject),
		Audience:      testProject,
		KeyID:         "google-1",
	})
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	token, err := signer.Sign("user-1", nil)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := codec.Decode(context.Background(), token); err != nil {
			t.Fatalf("decode %d: %v", i, err)
		}
	}
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Fatalf("expected one key fetch, got %d", got)
	}
}

func TestRemoteKeySetUnknownKid(t *testing.T) {
	key := newRSAKey(t)
	var hits int32
	srv := jwksServer(t, "google-1", &key.PublicKey, &hits)
	keys := NewRemoteKeySet(srv.URL, FormatJWKS, srv.Client())

	if _, err := keys.Key(context.Background(), "rotated"); !errors.Is(err, ErrUnknownKeyID) {
		t.Fatalf("expected ErrUnknownKeyID, got %v", err)
	}
	if _, err := keys.Key(context.Background(), ""); !errors.Is(err, ErrMissingKeyID) {
		t.Fatalf("expected ErrMissingKeyID, got %v", err)
	}
}

func TestRemoteKeySetConcurrentFirstUse(t *testing.T) {
	key := newRSAKey(t)
	var hits int32
	srv := jwksServer(t, "google-1", &key.PublicKey, &hits)
	keys := NewRemoteKeySet(srv.URL, FormatJWKS, srv.Client())

	var wg sync.WaitGroup
	errs := make(chan error, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := keys.Key(context.Background(), "google-1"); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent key lookup failed: %v", err)
	}
	if got := atomic.LoadInt32(&hits); got < 1 || got > 50 {
		t.Fatalf("unexpected fetch count %d", got)
	}
}

func TestRemoteKeySetX509(t *testing.T) {
	key := newRSAKey(t)
	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "securetoken"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"cert-1": string(certPEM)})
	}))
	defer srv.Close()

	keys := NewRemoteKeySet(srv.URL, FormatX509, srv.Client())
	got, err := keys.Key(context.Background(), "cert-1")
	if err != nil {
		t.Fatalf("key: %v", err)
	}
	pub, ok := got.(*rsa.PublicKey)
	if !ok || pub.N.Cmp(key.PublicKey.N) != 0 {
		t.Fatalf("unexpected key %T", got)
	}
}

func TestRemoteKeySetFetchFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	keys := NewRemoteKeySet(srv.URL, FormatJWKS, srv.Client())
	if _, err := keys.Key(context.Background(), "k"); !errors.Is(err, ErrKeyFetch) {
		t.Fatalf("expected ErrKeyFetch, got %v", err)
	}
}

func TestParseJWKS(t *testing.T) {
	rsaKey := newRSAKey(t)
	edPub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate ed25519 key: %v", err)
	}
	enc := base64.RawURLEncoding.EncodeToString
	n := enc(rsaKey.PublicKey.N.Bytes())

	doc := map[string]any{"keys": []map[string]string{
		{"kty": "RSA", "kid": "rsa-1", "n": n, "e": enc(big.NewInt(int64(rsaKey.PublicKey.E)).Bytes())},
		{"kty": "RSA", "kid": "rsa-huge-e", "n": n, "e": enc([]byte{1, 0, 0, 0, 0, 0, 0, 0, 1})},
		{"kty": "RSA", "n": n, "e": "AQAB"},
		{"kty": "OKP", "kid": "ed-1", "crv": "Ed25519", "x": enc(edPub)},
	}}
	body, _ := json.Marshal(doc)

	keys, err := parseJWKS(body)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("expected 2 usable keys, got %d: %v", len(keys), keys)
	}
	if pub, ok := keys["rsa-1"].(*rsa.PublicKey); !ok || pub.N.Cmp(rsaKey.PublicKey.N) != 0 || pub.E != rsaKey.PublicKey.E {
		t.Fatalf("unexpected rsa key %v", keys["rsa-1"])
	}
	if pub, ok := keys["ed-1"].(ed25519.PublicKey); !ok || !pub.Equal(edPub) {
		t.Fatalf("unexpected ed25519 key %v", keys["ed-1"])
	}
	if _, ok := keys["rsa-huge-e"]; ok {
		t.Fatal("exponent wider than 32 bits must be skipped")
	}

	for _, bad := range []string{`{"keys":[]}`, `not json`} {
		if _, err := parseJWKS([]byte(bad)); err == nil {
			t.Fatalf("expected error for %s", bad)
		}
	}
}

func TestMaxAge(t *testing.T) {
	tests := map[string]time.Duration{
		"":                             0,
		"public, max-age=19702":        19702 * time.Second,
		"max-age=abc":                  0,
		"no-cache, max-age=60, public": time.Minute,
	}
	for header, want := range tests {
		if got := maxAge(header); got != want {
			t.Fatalf("maxAge(%q) = %v, want %v", header, got, want)
		}
	}
}
