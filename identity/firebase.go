package identity

import (
	"context"
	"fmt"
	"time"

	firebase "firebase.google.com/go/v4"
	firebaseAuth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"
)

// Token is a verified Firebase ID token.
type Token struct {
	UID            string
	AuthTime       time.Time
	Expires        time.Time
	SignInProvider string
	Tenant         string
	Claims         map[string]any
}

// Admin is the subset of the Firebase Admin SDK the session handlers use.
type Admin interface {
	VerifyIDToken(ctx context.Context, idToken string) (*Token, error)
	CustomToken(ctx context.Context, uid string, claims map[string]any) (string, error)
	SessionCookie(ctx context.Context, idToken string, expiresIn time.Duration) (string, error)
	RevokeRefreshTokens(ctx context.Context, uid string) error
}

// firebaseClient is satisfied by both firebaseAuth.Client and firebaseAuth.TenantClient.
type firebaseClient interface {
	VerifyIDToken(ctx context.Context, idToken string) (*firebaseAuth.Token, error)
	CustomTokenWithClaims(ctx context.Context, uid string, devClaims map[string]interface{}) (string, error)
	RevokeRefreshTokens(ctx context.Context, uid string) error
}

type sessionCookieMinter interface {
	SessionCookie(ctx context.Context, idToken string, expiresIn time.Duration) (string, error)
}

// FirebaseConfig configures NewFirebaseAdmin.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsPath string
	// TenantID scopes every call to an Identity Platform tenant.
	TenantID string
}

// FirebaseAdmin implements Admin with the Firebase Admin SDK.
type FirebaseAdmin struct {
	client firebaseClient
	minter sessionCookieMinter
}

// NewFirebaseAdmin initialises a Firebase app and its auth client.
func NewFirebaseAdmin(ctx context.Context, cfg FirebaseConfig) (*FirebaseAdmin, error) {
	var opts []option.ClientOption
	if cfg.CredentialsPath != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsPath))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{
		ProjectID: cfg.ProjectID,
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create firebase app: %w", err)
	}

	authClient, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get auth client: %w", err)
	}

	if cfg.TenantID != "" {
		tenantClient, err := authClient.TenantManager.AuthForTenant(cfg.TenantID)
		if err != nil {
			return nil, fmt.Errorf("failed to get tenant auth client for %s: %w", cfg.TenantID, err)
		}
		return &FirebaseAdmin{client: tenantClient}, nil
	}
	return &FirebaseAdmin{client: authClient, minter: authClient}, nil
}

// VerifyIDToken verifies idToken with Google's public keys.
func (a *FirebaseAdmin) VerifyIDToken(ctx context.Context, idToken string) (*Token, error) {
	token, err := a.client.VerifyIDToken(ctx, idToken)
	if err != nil {
		return nil, fmt.Errorf("failed to verify ID token: %w", err)
	}
	return tokenFromFirebase(token), nil
}

// CustomToken mints a custom token for uid carrying developer claims.
func (a *FirebaseAdmin) CustomToken(ctx context.Context, uid string, claims map[string]any) (string, error) {
	token, err := a.client.CustomTokenWithClaims(ctx, uid, claims)
	if err != nil {
		return "", fmt.Errorf("failed to mint custom token: %w", err)
	}
	return token, nil
}

// SessionCookie mints a Firebase session cookie. Tenant-scoped admins return
// ErrSessionCookieUnsupported.
func (a *FirebaseAdmin) SessionCookie(ctx context.Context, idToken string, expiresIn time.Duration) (string, error) {
	if a.minter == nil {
		return "", ErrSessionCookieUnsupported
	}
	cookie, err := a.minter.SessionCookie(ctx, idToken, expiresIn)
	if err != nil {
		return "", fmt.Errorf("failed to mint session cookie: %w", err)
	}
	return cookie, nil
}

// RevokeRefreshTokens invalidates every refresh token of uid.
func (a *FirebaseAdmin) RevokeRefreshTokens(ctx context.Context, uid string) error {
	if err := a.client.RevokeRefreshTokens(ctx, uid); err != nil {
		return fmt.Errorf("failed to revoke refresh tokens: %w", err)
	}
	return nil
}

func tokenFromFirebase(token *firebaseAuth.Token) *Token {
	out := &Token{
		UID:            token.UID,
		SignInProvider: token.Firebase.SignInProvider,
		Tenant:         token.Firebase.Tenant,
		Claims:         make(map[string]any, len(token.Claims)),
	}
	if token.AuthTime > 0 {
		out.AuthTime = time.Unix(token.AuthTime, 0)
	}
	if token.Expires > 0 {
		out.Expires = time.Unix(token.Expires, 0)
	}
	for k, v := range token.Claims {
		out.Claims[k] = v
	}
	return out
}
