package jwt

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

const testProject = "tern-test"

var fixedNow = time.Unix(1_760_000_000, 0)

func newHSFixture(t *testing.T) (*Signer, *Codec) {
	t.Helper()
	secret := []byte("0123456789abcdef0123456789abcdef")
	signer, err := NewSigner(SignerConfig{
		TTL:           time.Hour,
		SigningMethod: MethodHS256,
		PrivateKey:    secret,
		Issuer:        IDTokenIssuer(testProject),
		Audience:      testProject,
		KeyID:         "k1",
		Now:           func() time.Time { return fixedNow },
	})
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	codec, err := NewCodec(Config{
		ProjectID:  testProject,
		Algorithms: []string{"HS256"},
		Keys:       StaticKeys{"k1": secret},
		Now:        func() time.Time { return fixedNow },
	})
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	return signer, codec
}

func tamperPayload(t *testing.T, token string, mutate func(map[string]any)) string {
	t.Helper()
	parts := strings.Split(token, ".")
	raw, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	payload := map[string]any{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	mutate(payload)
	encoded, _ := json.Marshal(payload)
	parts[1] = base64.RawURLEncoding.EncodeToString(encoded)
	return strings.Join(parts, ".")
}

func TestDecodeValidToken(t *testing.T) {
	signer, codec := newHSFixture(t)
	token, err := signer.Sign("user-1", map[string]any{"email": "a@example.com", "role": "admin"})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	decoded, err := codec.Decode(context.Background(), token)
	if err != nil {
		t.Fatalf("expected valid token, got %v", err)
	}
	if !decoded.Verified {
		t.Fatal("expected decoded token to be marked verified")
	}
	if decoded.Claims.UserID() != "user-1" || decoded.Claims.Email() != "a@example.com" {
		t.Fatalf("unexpected claims: %#v", decoded.Claims)
	}
	if got := decoded.Claims.Custom()["role"]; got != "admin" {
		t.Fatalf("expected custom role claim, got %v", got)
	}
}

func TestDecodeFailureReasons(t *testing.T) {
	signer, codec := newHSFixture(t)
	valid, err := signer.Sign("user-1", nil)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	sign := func(extra map[string]any) string {
		tok, err := signer.Sign("user-1", extra)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return tok
	}

	tests := []struct {
		name  string
		token string
		want  Reason
	}{
		{"empty", "", ReasonInvalidFormat},
		{"two segments", valid[:strings.LastIndex(valid, ".")], ReasonInvalidFormat},
		{"four segments", valid + ".extra", ReasonInvalidFormat},
		{"garbage payload", "eyJhbGciOiJIUzI1NiJ9.%%%.sig", ReasonInvalidFormat},
		{"tampered payload", tamperPayload(t, valid, func(p map[string]any) { p["sub"] = "attacker" }), ReasonInvalidSignature},
		{"expired", sign(map[string]any{"exp": fixedNow.Add(-time.Minute).Unix()}), ReasonExpired},
		{"not yet valid", sign(map[string]any{"nbf": fixedNow.Add(time.Hour).Unix()}), ReasonNotActive},
		{"wrong issuer", sign(map[string]any{"iss": "https://securetoken.google.com/other"}), ReasonInvalidIssuer},
		{"wrong audience", sign(map[string]any{"aud": "other"}), ReasonInvalidAudience},
		{"empty subject", sign(map[string]any{"sub": ""}), ReasonInvalidSubject},
		{"auth_time in future", sign(map[string]any{"auth_time": fixedNow.Add(time.Hour).Unix()}), ReasonIssuedInFuture},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			decoded, err := codec.Decode(context.Background(), tc.token)
			if err == nil {
				t.Fatalf("expected failure, got %#v", decoded)
			}
			if got := ReasonOf(err); got != tc.want {
				t.Fatalf("expected reason %s, got %s (%v)", tc.want, got, err)
			}
		})
	}
}

func TestDecodeRejectsUnknownKidAndWrongAlgorithm(t *testing.T) {
	_, codec := newHSFixture(t)
	other, err := NewSigner(SignerConfig{
		TTL:           time.Hour,
		SigningMethod: MethodHS256,
		PrivateKey:    []byte("another-secret-another-secret-!!"),
		Issuer:        IDTokenIssuer(testProject),
		Audience:      testProject,
		KeyID:         "k2",
		Now:           func() time.Time { return fixedNow },
	})
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	token, _ := other.Sign("user-1", nil)
	if _, err := codec.Decode(context.Background(), token); ReasonOf(err) != ReasonUnknownKeyID {
		t.Fatalf("expected unknown kid, got %v", err)
	}

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate ed25519 key: %v", err)
	}
	edSigner, err := NewSigner(SignerConfig{
		TTL:           time.Hour,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		Issuer:        IDTokenIssuer(testProject),
		Audience:      testProject,
		KeyID:         "k1",
		Now:           func() time.Time { return fixedNow },
	})
	if err != nil {
		t.Fatalf("new ed signer: %v", err)
	}
	edToken, _ := edSigner.Sign("user-1", nil)
	if _, err := codec.Decode(context.Background(), edToken); ReasonOf(err) != ReasonInvalidSignature {
		t.Fatalf("expected algorithm mismatch to be a signature failure, got %v", err)
	}
}

func TestDecodeUnguardedSkipsVerification(t *testing.T) {
	signer, _ := newHSFixture(t)
	expired, _ := signer.Sign("user-1", map[string]any{"exp": fixedNow.Add(-time.Hour).Unix()})
	tampered := tamperPayload(t, expired, func(p map[string]any) { p["role"] = "admin" })

	decoded, err := DecodeUnguarded(tampered)
	if err != nil {
		t.Fatalf("expected unguarded decode to succeed, got %v", err)
	}
	if decoded.Verified {
		t.Fatal("unguarded decode must not mark the token verified")
	}
	if decoded.Claims.String("role") != "admin" {
		t.Fatalf("expected tampered claim to be visible, got %#v", decoded.Claims)
	}

	for _, bad := range []string{"", "a.b", "a.b.c.d", "not-base64.@@.x"} {
		if _, err := DecodeUnguarded(bad); ReasonOf(err) != ReasonInvalidFormat {
			t.Fatalf("expected %q to be rejected as malformed, got %v", bad, err)
		}
	}
}

func TestVerifyFailsClosed(t *testing.T) {
	signer, codec := newHSFixture(t)
	ctx := context.Background()

	if auth := codec.Verify(ctx, ""); auth.IsSignedIn() || auth.Reason() != SignedOutNoToken {
		t.Fatalf("expected no-token, got %+v", auth)
	}

	expired, _ := signer.Sign("user-1", map[string]any{"exp": fixedNow.Add(-time.Second).Unix()})
	if auth := codec.Verify(ctx, expired); auth.IsSignedIn() || auth.Reason() != SignedOutTokenExpired {
		t.Fatalf("expected token-expired, got %+v", auth)
	}

	if auth := codec.Verify(ctx, "x.y.z"); auth.IsSignedIn() || auth.Reason() != SignedOutTokenInvalid {
		t.Fatalf("expected token-invalid, got %+v", auth)
	}

	valid, _ := signer.Sign("user-1", map[string]any{"admin": true})
	auth := codec.Verify(ctx, valid)
	if !auth.IsSignedIn() || auth.UserID != "user-1" {
		t.Fatalf("expected signed in user-1, got %+v", auth)
	}
	if !auth.Has("admin") || auth.Has("missing") {
		t.Fatal("unexpected Has results")
	}
	if want := "user-1:" + "1760000000"; auth.SessionID != want {
		t.Fatalf("expected session id %q, got %q", want, auth.SessionID)
	}
}

func TestNewCodecValidation(t *testing.T) {
	if _, err := NewCodec(Config{ProjectID: testProject}); err == nil {
		t.Fatal("expected missing key source to fail")
	}
	if _, err := NewCodec(Config{Keys: StaticKeys{}}); err == nil {
		t.Fatal("expected missing project to fail")
	}
	if _, err := NewCodec(Config{ProjectID: testProject, Keys: StaticKeys{}, Leeway: time.Hour}); err == nil {
		t.Fatal("expected excessive leeway to fail")
	}
	codec, err := NewCodec(Config{ProjectID: testProject, Type: TypeSessionCookie, Keys: StaticKeys{}})
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	if codec.Issuer() != SessionCookieIssuer(testProject) {
		t.Fatalf("unexpected issuer %q", codec.Issuer())
	}
}
