package oauth

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// TokenClient performs the authorization_code and refresh_token grants
// against the token endpoint.
type TokenClient struct {
	transport    Transport
	tokenURL     string
	clientID     string
	clientSecret string
	redirectURI  string
	now          func() time.Time
}

// TokenClientOption configures a TokenClient.
type TokenClientOption func(*TokenClient)

// WithClock overrides the clock used to compute credential expiry.
func WithClock(now func() time.Time) TokenClientOption {
	return func(c *TokenClient) { c.now = now }
}

// NewTokenClient creates a token client for cfg's registration.
func NewTokenClient(cfg Config, transport Transport, opts ...TokenClientOption) *TokenClient {
	c := &TokenClient{
		transport:    transport,
		tokenURL:     cfg.Endpoints().TokenURL(),
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		redirectURI:  cfg.RedirectURI,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Exchange trades an authorization code (and optional PKCE verifier) for
// credentials. The raw response is returned alongside for callers that need
// the identity token or granted scope.
func (c *TokenClient) Exchange(ctx context.Context, code, codeVerifier string) (*Credentials, *TokenResponse, error) {
	if strings.TrimSpace(code) == "" {
		return nil, nil, ErrMissingAuthorizationCode
	}

	data := url.Values{}
	data.Set("grant_type", "authorization_code")
	data.Set("code", code)
	data.Set("redirect_uri", c.redirectURI)
	data.Set("client_id", c.clientID)
	if codeVerifier != "" {
		data.Set("code_verifier", codeVerifier)
	}
	if c.clientSecret != "" {
		data.Set("client_secret", c.clientSecret)
	}

	tr, err := c.post(ctx, data, ErrTokenExchangeFailed)
	if err != nil {
		return nil, nil, err
	}
	return tr.Credentials(c.now()), tr, nil
}

// Refresh redeems a refresh token for new credentials.
func (c *TokenClient) Refresh(ctx context.Context, refreshToken string) (*Credentials, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return nil, ErrRefreshTokenExpired
	}

	data := url.Values{}
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", refreshToken)
	data.Set("client_id", c.clientID)
	if c.clientSecret != "" {
		data.Set("client_secret", c.clientSecret)
	}

	tr, err := c.post(ctx, data, ErrTokenRefreshFailed)
	if err != nil {
		return nil, err
	}
	return tr.Credentials(c.now()), nil
}

// post sends a grant and parses the response. Non-2xx statuses fail with
// kind; body parse failures fail with ErrDecodingFailed.
func (c *TokenClient) post(ctx context.Context, data url.Values, kind error) (*TokenResponse, error) {
	if c.tokenURL == "" {
		return nil, fmt.Errorf("%w: token url not configured", ErrInvalidConfiguration)
	}

	resp, err := c.transport.PostForm(ctx, c.tokenURL, data)
	if err != nil {
		return nil, Wrap(ErrNetwork, err)
	}
	if !resp.OK() {
		return nil, statusError(kind, resp)
	}
	return parseTokenResponse(resp.Body)
}
