package oauth

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// TokenTypeBearer is assumed when the token endpoint omits token_type.
const TokenTypeBearer = "Bearer"

// TokenResponse is the token endpoint's JSON body.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// Credentials converts the response. Expiry is fixed here as
// now + expires_in and never re-derived.
func (r *TokenResponse) Credentials(now time.Time) *Credentials {
	tokenType := r.TokenType
	if tokenType == "" {
		tokenType = TokenTypeBearer
	}
	return &Credentials{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		IDToken:      r.IDToken,
		TokenType:    tokenType,
		ExpiresAt:    now.Add(time.Duration(r.ExpiresIn) * time.Second),
	}
}

// Scopes returns the granted scopes, split on spaces or commas.
func (r *TokenResponse) Scopes() []string {
	return splitScopes(r.Scope)
}

// parseTokenResponse decodes a token endpoint body.
func parseTokenResponse(body []byte) (*TokenResponse, error) {
	var tr TokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, Wrap(ErrDecodingFailed, err)
	}
	if tr.AccessToken == "" {
		return nil, Wrap(ErrDecodingFailed, errors.New("no access_token in response"))
	}
	return &tr, nil
}

// Credentials is the persisted session. Values are never mutated after
// construction; a refresh produces a new Credentials.
type Credentials struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	IDToken      string    `json:"id_token,omitempty"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// ExpiresWithin reports whether the credentials expire within d of now.
func (c *Credentials) ExpiresWithin(now time.Time, d time.Duration) bool {
	return !now.Add(d).Before(c.ExpiresAt)
}

// IsExpired reports whether the access token has expired.
func (c *Credentials) IsExpired() bool {
	return c.ExpiresWithin(time.Now(), 0)
}

// CanRefresh reports whether a refresh token is present.
func (c *Credentials) CanRefresh() bool {
	return c.RefreshToken != ""
}

// Token converts the credentials for use with golang.org/x/oauth2 clients.
func (c *Credentials) Token() *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken:  c.AccessToken,
		TokenType:    c.TokenType,
		RefreshToken: c.RefreshToken,
		Expiry:       c.ExpiresAt,
	}
	if c.IDToken != "" {
		tok = tok.WithExtra(map[string]any{"id_token": c.IDToken})
	}
	return tok
}

// splitScopes splits a scope string by spaces or commas.
func splitScopes(scope string) []string {
	return strings.FieldsFunc(scope, func(r rune) bool {
		return r == ' ' || r == ','
	})
}
