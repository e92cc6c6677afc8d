package identity

import (
	"context"
	"strconv"
	"time"
)

// CustomTokenRequest is the input of ExchangeCustomForIDAndRefreshTokens.
type CustomTokenRequest struct {
	Token string
}

// TokenPair is an ID token with its refresh token.
type TokenPair struct {
	IDToken      string
	RefreshToken string
	ExpiresIn    time.Duration
	UserID       string
	IsNewUser    bool
}

type signInWithCustomTokenBody struct {
	Token             string `json:"token"`
	ReturnSecureToken bool   `json:"returnSecureToken"`
	TenantID          string `json:"tenantId,omitempty"`
}

type signInWithCustomTokenResult struct {
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
	IsNewUser    bool   `json:"isNewUser"`
}

// ExchangeCustomForIDAndRefreshTokens trades a custom token minted by the Admin SDK
// for an ID token and refresh token.
func (c *Client) ExchangeCustomForIDAndRefreshTokens(ctx context.Context, apiKey string, req CustomTokenRequest) (*TokenPair, error) {
	if err := requireAPIKey(apiKey); err != nil {
		return nil, err
	}
	res, err := call[signInWithCustomTokenBody, signInWithCustomTokenResult](ctx, c, "exchangeCustomToken",
		c.toolkitURL("accounts:signInWithCustomToken", apiKey),
		signInWithCustomTokenBody{Token: req.Token, ReturnSecureToken: true, TenantID: c.tenantID})
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		IDToken:      res.IDToken,
		RefreshToken: res.RefreshToken,
		ExpiresIn:    seconds(res.ExpiresIn),
		IsNewUser:    res.IsNewUser,
	}, nil
}

// RefreshTokenRequest is the input of RefreshToken.
type RefreshTokenRequest struct {
	RefreshToken string
}

type refreshBody struct {
	GrantType    string `json:"grant_type"`
	RefreshToken string `json:"refresh_token"`
}

type refreshResult struct {
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    string `json:"expires_in"`
	UserID       string `json:"user_id"`
}

// RefreshToken exchanges a refresh token for a fresh ID token.
func (c *Client) RefreshToken(ctx context.Context, apiKey string, req RefreshTokenRequest) (*TokenPair, error) {
	if err := requireAPIKey(apiKey); err != nil {
		return nil, err
	}
	res, err := call[refreshBody, refreshResult](ctx, c, "refreshToken", c.tokenURL(apiKey),
		refreshBody{GrantType: "refresh_token", RefreshToken: req.RefreshToken})
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		IDToken:      res.IDToken,
		RefreshToken: res.RefreshToken,
		ExpiresIn:    seconds(res.ExpiresIn),
		UserID:       res.UserID,
	}, nil
}

// PasswordResetRequest is the input of SendPasswordResetEmail.
type PasswordResetRequest struct {
	Email string
}

type oobCodeBody struct {
	RequestType string `json:"requestType"`
	Email       string `json:"email"`
	TenantID    string `json:"tenantId,omitempty"`
}

type oobCodeResult struct {
	Email string `json:"email"`
}

// SendPasswordResetEmail asks the provider to email a password-reset link.
func (c *Client) SendPasswordResetEmail(ctx context.Context, apiKey string, req PasswordResetRequest) (string, error) {
	if err := requireAPIKey(apiKey); err != nil {
		return "", err
	}
	res, err := call[oobCodeBody, oobCodeResult](ctx, c, "resetPasswordEmail",
		c.toolkitURL("accounts:sendOobCode", apiKey),
		oobCodeBody{RequestType: "PASSWORD_RESET", Email: req.Email, TenantID: c.tenantID})
	if err != nil {
		return "", err
	}
	return res.Email, nil
}

func seconds(s string) time.Duration {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}
