package cookie

// TokenKind identifies one credential cookie.
type TokenKind int

const (
	Session TokenKind = iota
	IDToken
	RefreshToken
	CustomToken
	CSRFToken
)

// Name prefixes.
const (
	HostPrefix   = "__Host-"
	SecurePrefix = "__Secure-"
	DevPrefix    = "__dev_"
)

var baseNames = map[TokenKind]string{
	Session:      "tern_session",
	IDToken:      "tern_id",
	RefreshToken: "tern_refresh",
	CustomToken:  "tern_custom",
	CSRFToken:    "tern_csrf",
}

func (k TokenKind) String() string {
	switch k {
	case Session:
		return "session"
	case IDToken:
		return "id_token"
	case RefreshToken:
		return "refresh_token"
	case CustomToken:
		return "custom_token"
	case CSRFToken:
		return "csrf_token"
	default:
		return "unknown"
	}
}

// SessionKinds lists every cookie a signed-in session owns. CSRF is excluded: it is
// issued before sign-in and outlives sessions.
var SessionKinds = []TokenKind{Session, IDToken, RefreshToken, CustomToken}

// Name returns the cookie name for kind under the policy's environment.
func (p *Policy) Name(kind TokenKind) string {
	return p.name(kind, p.config.Domain)
}

// __Host- forbids a Domain attribute, so a production policy with a domain falls back
// to __Secure-.
func (p *Policy) name(kind TokenKind, domain string) string {
	base := baseNames[kind]
	if p.env != Production {
		return DevPrefix + base
	}
	if domain != "" {
		return SecurePrefix + base
	}
	return HostPrefix + base
}
