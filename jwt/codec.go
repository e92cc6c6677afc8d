package jwt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenType selects the issuer convention a Codec verifies.
type TokenType string

const (
	// TypeIDToken verifies ID tokens issued by securetoken.google.com.
	TypeIDToken TokenType = "id_token"
	// TypeSessionCookie verifies session cookies issued by session.firebase.google.com.
	TypeSessionCookie TokenType = "session_cookie"
)

// IDTokenIssuer returns the iss value of Firebase ID tokens for a project.
func IDTokenIssuer(projectID string) string {
	return "https://securetoken.google.com/" + projectID
}

// SessionCookieIssuer returns the iss value of Firebase session cookies for a project.
func SessionCookieIssuer(projectID string) string {
	return "https://session.firebase.google.com/" + projectID
}

// Config configures a Codec.
//
// Issuer and Audience default from ProjectID and Type. Algorithms defaults to RS256,
// the only algorithm Firebase signs with; tests and self-issued deployments add
// HS256 or EdDSA.
type Config struct {
	ProjectID       string
	Type            TokenType
	Issuer          string
	Audience        string
	Algorithms      []string
	Leeway          time.Duration
	RequireAuthTime bool
	Keys            KeySource
	Now             func() time.Time
}

// Codec decodes and verifies tokens. It is safe for concurrent use.
type Codec struct {
	config Config
	parser *jwt.Parser
}

// NewCodec validates cfg and returns a Codec.
func NewCodec(cfg Config) (*Codec, error) {
	if cfg.Keys == nil {
		return nil, errors.New("codec requires a key source")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.Type == "" {
		cfg.Type = TypeIDToken
	}
	cfg.ProjectID = strings.TrimSpace(cfg.ProjectID)
	if cfg.Issuer == "" && cfg.ProjectID != "" {
		if cfg.Type == TypeSessionCookie {
			cfg.Issuer = SessionCookieIssuer(cfg.ProjectID)
		} else {
			cfg.Issuer = IDTokenIssuer(cfg.ProjectID)
		}
	}
	if cfg.Audience == "" {
		cfg.Audience = cfg.ProjectID
	}
	if cfg.Issuer == "" || cfg.Audience == "" {
		return nil, errors.New("codec requires a project id or explicit issuer and audience")
	}
	if len(cfg.Algorithms) == 0 {
		cfg.Algorithms = []string{jwt.SigningMethodRS256.Alg()}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods(cfg.Algorithms),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithAudience(cfg.Audience),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(cfg.Now),
	}
	if cfg.Leeway > 0 {
		options = append(options, jwt.WithLeeway(cfg.Leeway))
	}
	return &Codec{config: cfg, parser: jwt.NewParser(options...)}, nil
}

// Issuer returns the iss value this codec accepts.
func (c *Codec) Issuer() string { return c.config.Issuer }

// Decode fully verifies token. Failures are returned as *TokenError and never panic.
func (c *Codec) Decode(ctx context.Context, token string) (*Decoded, error) {
	claims := jwt.MapClaims{}
	parsed, err := c.parser.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		kid, _ := t.Header["kid"].(string)
		return c.config.Keys.Key(ctx, kid)
	})
	if err != nil {
		return nil, newTokenError(err)
	}
	if !parsed.Valid {
		return nil, newTokenError(jwt.ErrTokenInvalidClaims)
	}

	set := ClaimSet(claims)
	if err := set.validateFirebase(c.config.Now(), c.config.Leeway, c.config.RequireAuthTime); err != nil {
		return nil, newTokenError(err)
	}
	return &Decoded{Raw: token, Header: parsed.Header, Claims: set, Verified: true}, nil
}

// DecodeUnguarded parses token without checking signature, expiry, or claims.
// Only cookies this system set itself may be read this way.
func DecodeUnguarded(token string) (*Decoded, error) {
	if strings.Count(token, ".") != 2 {
		return nil, &TokenError{
			Reason:  ReasonInvalidFormat,
			Message: fmt.Sprintf("token has %d segments, want 3", strings.Count(token, ".")+1),
			Err:     jwt.ErrTokenMalformed,
		}
	}
	claims := jwt.MapClaims{}
	parsed, _, err := jwt.NewParser().ParseUnverified(token, claims)
	if err != nil {
		return nil, newTokenError(err)
	}
	return &Decoded{Raw: token, Header: parsed.Header, Claims: ClaimSet(claims)}, nil
}

// DecodeUnguarded is the method form of the package function.
func (c *Codec) DecodeUnguarded(token string) (*Decoded, error) {
	return DecodeUnguarded(token)
}

// Verify decodes token and folds the outcome into an AuthObject. It fails closed:
// every error other than expiry yields SignedOut(ReasonTokenInvalid).
func (c *Codec) Verify(ctx context.Context, token string) AuthObject {
	if strings.TrimSpace(token) == "" {
		return SignedOut(SignedOutNoToken)
	}
	decoded, err := c.Decode(ctx, token)
	if err != nil {
		if ReasonOf(err) == ReasonExpired {
			return SignedOut(SignedOutTokenExpired)
		}
		return SignedOut(SignedOutTokenInvalid)
	}
	return SignedIn(decoded)
}
