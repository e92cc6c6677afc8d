package jwt

import (
	"crypto/rsa"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the algorithm a Signer uses.
type SigningMethod string

const (
	MethodRS256   SigningMethod = "rs256"
	MethodEd25519 SigningMethod = "ed25519"
	MethodHS256   SigningMethod = "hs256"
)

// SignerConfig configures a Signer.
//
// PrivateKey is the HMAC secret for hs256, a raw or PEM Ed25519 key for ed25519, or a
// PEM RSA key for rs256 (RSAKey takes precedence when set).
type SignerConfig struct {
	TTL           time.Duration
	SigningMethod SigningMethod
	PrivateKey    []byte
	RSAKey        *rsa.PrivateKey
	Issuer        string
	Audience      string
	KeyID         string
	Now           func() time.Time
}

// Signer issues Firebase-shaped tokens. It backs self-issued deployments and test
// fixtures; production Firebase tokens are issued by Google.
type Signer struct {
	config SignerConfig
	key    any
}

// NewSigner validates cfg and returns a Signer.
func NewSigner(cfg SignerConfig) (*Signer, error) {
	if cfg.TTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)

	var key any
	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) == 0 {
			return nil, errors.New("hs256 requires private key")
		}
		key = cfg.PrivateKey
	case MethodEd25519:
		edKey, err := parseEdPrivateKey(cfg.PrivateKey)
		if err != nil {
			return nil, err
		}
		key = edKey
	case MethodRS256:
		if cfg.RSAKey != nil {
			key = cfg.RSAKey
			break
		}
		rsaKey, err := jwt.ParseRSAPrivateKeyFromPEM(cfg.PrivateKey)
		if err != nil {
			return nil, errors.New("invalid rsa private key")
		}
		key = rsaKey
	default:
		return nil, errors.New("unsupported signing method")
	}
	return &Signer{config: cfg, key: key}, nil
}

// Sign issues a token for uid. extra claims are merged last and may override
// defaults, which lets tests craft expired or malformed claims.
func (s *Signer) Sign(uid string, extra map[string]any) (string, error) {
	now := s.config.Now()
	claims := jwt.MapClaims{
		"sub":       uid,
		"user_id":   uid,
		"iat":       now.Unix(),
		"exp":       now.Add(s.config.TTL).Unix(),
		"auth_time": now.Unix(),
		"firebase":  map[string]any{"sign_in_provider": "custom", "identities": map[string]any{}},
	}
	if s.config.Issuer != "" {
		claims["iss"] = s.config.Issuer
	}
	if s.config.Audience != "" {
		claims["aud"] = s.config.Audience
	}
	for k, v := range extra {
		claims[k] = v
	}

	token := jwt.NewWithClaims(s.method(), claims)
	if s.config.KeyID != "" {
		token.Header["kid"] = s.config.KeyID
	}
	return token.SignedString(s.key)
}

// Algorithm returns the JWS alg value the signer produces.
func (s *Signer) Algorithm() string { return s.method().Alg() }

func (s *Signer) method() jwt.SigningMethod {
	switch s.config.SigningMethod {
	case MethodHS256:
		return jwt.SigningMethodHS256
	case MethodRS256:
		return jwt.SigningMethodRS256
	default:
		return jwt.SigningMethodEdDSA
	}
}
