package oauth

import (
	"fmt"
	"strings"
)

const (
	sandboxBaseURL    = "https://api.idmelabs.com/"
	productionBaseURL = "https://api.id.me/"
	groupsURL         = "https://groups.id.me/"
)

// Provider defines the endpoints of an identity-verification deployment.
type Provider interface {
	// Name returns the provider's identifier.
	Name() string

	// AuthURL returns the single-policy authorization endpoint URL.
	AuthURL() string

	// GroupsURL returns the multi-policy authorization endpoint URL.
	// Returns empty string when the deployment has none.
	GroupsURL() string

	// TokenURL returns the token endpoint URL.
	TokenURL() string

	// JWKSURL returns the JWKS endpoint URL for identity token validation.
	JWKSURL() string

	// Issuer returns the expected identity token issuer.
	Issuer() string

	// UserInfoURL returns the bearer-authenticated identity/attribute endpoint.
	UserInfoURL() string

	// PoliciesURL returns the verification policy listing endpoint.
	PoliciesURL() string
}

// ProviderConfig holds configuration for a custom deployment.
type ProviderConfig struct {
	ProviderName     string
	AuthEndpoint     string
	GroupsEndpoint   string
	TokenEndpoint    string
	JWKSEndpoint     string
	IssuerURL        string
	UserInfoEndpoint string
	PoliciesEndpoint string
}

// customProvider implements Provider with user-supplied configuration.
type customProvider struct {
	config ProviderConfig
}

// CustomProvider creates a Provider from custom configuration.
func CustomProvider(cfg ProviderConfig) (Provider, error) {
	if strings.TrimSpace(cfg.ProviderName) == "" {
		return nil, fmt.Errorf("%w: provider name is required", ErrInvalidConfiguration)
	}
	if strings.TrimSpace(cfg.TokenEndpoint) == "" {
		return nil, fmt.Errorf("%w: token endpoint is required", ErrInvalidConfiguration)
	}
	return &customProvider{config: cfg}, nil
}

// ProviderFromBaseURL lays out the standard endpoint paths under base.
// groups may be empty.
func ProviderFromBaseURL(name, base, groups string) Provider {
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return &customProvider{config: ProviderConfig{
		ProviderName:     name,
		AuthEndpoint:     base + "oauth/authorize",
		GroupsEndpoint:   groups,
		TokenEndpoint:    base + "oauth/token",
		JWKSEndpoint:     base + "oidc/.well-known/jwks",
		IssuerURL:        base + "oidc",
		UserInfoEndpoint: base + "api/public/v3/userinfo",
		PoliciesEndpoint: base + "api/public/v3/policies",
	}}
}

func (p *customProvider) Name() string        { return p.config.ProviderName }
func (p *customProvider) AuthURL() string     { return p.config.AuthEndpoint }
func (p *customProvider) GroupsURL() string   { return p.config.GroupsEndpoint }
func (p *customProvider) TokenURL() string    { return p.config.TokenEndpoint }
func (p *customProvider) JWKSURL() string     { return p.config.JWKSEndpoint }
func (p *customProvider) Issuer() string      { return p.config.IssuerURL }
func (p *customProvider) UserInfoURL() string { return p.config.UserInfoEndpoint }
func (p *customProvider) PoliciesURL() string { return p.config.PoliciesEndpoint }

// Sandbox returns the provider's test deployment. It has no groups endpoint.
func Sandbox() Provider {
	return ProviderFromBaseURL("sandbox", sandboxBaseURL, "")
}

// Production returns the provider's live deployment.
func Production() Provider {
	return ProviderFromBaseURL("production", productionBaseURL, groupsURL)
}
