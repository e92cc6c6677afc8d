package jwt

// SignedOutReason explains a signed-out AuthObject.
type SignedOutReason string

const (
	SignedOutNoToken      SignedOutReason = "no-token"
	SignedOutTokenExpired SignedOutReason = "token-expired"
	SignedOutTokenInvalid SignedOutReason = "token-invalid"
)

// AuthObject is the result of resolving a request's credentials: either signed in
// with a user and claims, or signed out with a reason. Construct it with SignedIn or
// SignedOut; the zero value is signed out with no reason.
type AuthObject struct {
	signedIn bool
	reason   SignedOutReason

	UserID    string
	SessionID string
	Claims    ClaimSet
	Token     string
}

// SignedIn builds an authenticated AuthObject from a decoded token.
func SignedIn(d *Decoded) AuthObject {
	return AuthObject{
		signedIn:  true,
		UserID:    d.Claims.UserID(),
		SessionID: d.Claims.SessionID(),
		Claims:    d.Claims,
		Token:     d.Raw,
	}
}

// SignedOut builds an unauthenticated AuthObject.
func SignedOut(reason SignedOutReason) AuthObject {
	return AuthObject{reason: reason}
}

// IsSignedIn reports whether the object carries an authenticated user.
func (a AuthObject) IsSignedIn() bool { return a.signedIn }

// Reason returns the signed-out reason, empty when signed in.
func (a AuthObject) Reason() SignedOutReason { return a.reason }

// Has reports whether the signed-in user carries a truthy claim. Signed-out objects
// have no claims.
func (a AuthObject) Has(claim string) bool {
	return a.signedIn && a.Claims.Has(claim)
}

// HasValue reports whether the signed-in user's claim equals or contains value.
func (a AuthObject) HasValue(claim, value string) bool {
	return a.signedIn && a.Claims.HasValue(claim, value)
}
