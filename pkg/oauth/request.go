package oauth

import (
	"fmt"
	"strings"

	"golang.org/x/oauth2"
)

// AuthorizationRequest is the one-shot output of NewAuthorizationRequest.
// It is consumed once when the redirect returns.
type AuthorizationRequest struct {
	// URL is the fully-formed authorize URL to open in the browser.
	URL string

	// State is the anti-CSRF value the callback must echo.
	State string

	// Nonce is set only in ModeOIDC.
	Nonce string

	// PKCE is set only in ModeOAuthPKCE and ModeOIDC.
	PKCE *PKCE

	// VerificationType records which endpoint URL targets.
	VerificationType VerificationType
}

// CodeVerifier returns the PKCE verifier or "".
func (r *AuthorizationRequest) CodeVerifier() string {
	if r.PKCE == nil {
		return ""
	}
	return r.PKCE.Verifier
}

// NewAuthorizationRequest builds the authorize URL and its security
// parameters for cfg. The caller decides the scope list; in ModeOIDC it is
// expected to already contain "openid".
func NewAuthorizationRequest(cfg Config) (*AuthorizationRequest, error) {
	cfg = cfg.WithDefaults()
	if err := validateRedirectURI(cfg.RedirectURI); err != nil {
		return nil, err
	}

	provider := cfg.Endpoints()
	endpoint := provider.AuthURL()
	scope := strings.Join(cfg.Scopes, " ")
	if cfg.VerificationType == VerificationGroups {
		endpoint = provider.GroupsURL()
		if endpoint == "" {
			if cfg.Environment == EnvironmentSandbox {
				return nil, ErrGroupsUnavailableInSandbox
			}
			return nil, fmt.Errorf("%w: groups endpoint not configured", ErrInvalidConfiguration)
		}
		scope = strings.Join(cfg.Scopes, ",")
	}
	if endpoint == "" {
		return nil, fmt.Errorf("%w: authorization endpoint not configured", ErrInvalidConfiguration)
	}

	state, err := GenerateRandomToken()
	if err != nil {
		return nil, fmt.Errorf("generate state: %w", err)
	}

	req := &AuthorizationRequest{
		State:            state,
		VerificationType: cfg.VerificationType,
	}
	opts := []oauth2.AuthCodeOption{oauth2.SetAuthURLParam("scope", scope)}

	if cfg.Mode.UsesPKCE() {
		pkce := NewPKCE()
		req.PKCE = &pkce
		opts = append(opts, oauth2.S256ChallengeOption(pkce.Verifier))
	}
	if cfg.Mode == ModeOIDC {
		nonce, err := GenerateRandomToken()
		if err != nil {
			return nil, fmt.Errorf("generate nonce: %w", err)
		}
		req.Nonce = nonce
		opts = append(opts, oauth2.SetAuthURLParam("nonce", nonce))
	}

	oc := &oauth2.Config{
		ClientID:    cfg.ClientID,
		Endpoint:    oauth2.Endpoint{AuthURL: endpoint},
		RedirectURL: cfg.RedirectURI,
	}
	req.URL = oc.AuthCodeURL(state, opts...)
	return req, nil
}
