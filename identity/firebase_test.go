package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	firebaseAuth "firebase.google.com/go/v4/auth"
)

type fakeFirebase struct {
	revoked []string
	err     error
}

func (f *fakeFirebase) VerifyIDToken(_ context.Context, idToken string) (*firebaseAuth.Token, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &firebaseAuth.Token{
		UID:      "uid-" + idToken,
		AuthTime: 1_700_000_000,
		Expires:  1_700_003_600,
		Firebase: firebaseAuth.FirebaseInfo{SignInProvider: "password", Tenant: "t1"},
		Claims:   map[string]interface{}{"role": "admin"},
	}, nil
}

func (f *fakeFirebase) CustomTokenWithClaims(_ context.Context, uid string, _ map[string]interface{}) (string, error) {
	return "custom-" + uid, f.err
}

func (f *fakeFirebase) RevokeRefreshTokens(_ context.Context, uid string) error {
	f.revoked = append(f.revoked, uid)
	return f.err
}

func TestFirebaseAdminAdapter(t *testing.T) {
	fake := &fakeFirebase{}
	admin := &FirebaseAdmin{client: fake}
	ctx := context.Background()

	tok, err := admin.VerifyIDToken(ctx, "abc")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if tok.UID != "uid-abc" || tok.SignInProvider != "password" || tok.Tenant != "t1" {
		t.Fatalf("unexpected token %+v", tok)
	}
	if !tok.AuthTime.Equal(time.Unix(1_700_000_000, 0)) || tok.Claims["role"] != "admin" {
		t.Fatalf("unexpected token times or claims %+v", tok)
	}

	custom, err := admin.CustomToken(ctx, "u1", nil)
	if err != nil || custom != "custom-u1" {
		t.Fatalf("unexpected custom token %q (%v)", custom, err)
	}

	if _, err := admin.SessionCookie(ctx, "abc", time.Hour); !errors.Is(err, ErrSessionCookieUnsupported) {
		t.Fatalf("expected tenant admin to refuse session cookies, got %v", err)
	}

	if err := admin.RevokeRefreshTokens(ctx, "u1"); err != nil || len(fake.revoked) != 1 {
		t.Fatalf("unexpected revoke result %v %v", err, fake.revoked)
	}
}

func TestFirebaseAdminWrapsErrors(t *testing.T) {
	boom := errors.New("boom")
	admin := &FirebaseAdmin{client: &fakeFirebase{err: boom}}
	if _, err := admin.VerifyIDToken(context.Background(), "x"); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
	if err := admin.RevokeRefreshTokens(context.Background(), "u"); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}
