package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// DiscoveryDocument is the subset of an OpenID Provider's
// .well-known/openid-configuration this package uses.
type DiscoveryDocument struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	UserInfoEndpoint      string `json:"userinfo_endpoint"`
	JWKSUri               string `json:"jwks_uri"`

	// IDTokenSigningAlgValuesSupported lists the provider's identity token
	// algorithms. RS256 must be among them when present.
	IDTokenSigningAlgValuesSupported []string `json:"id_token_signing_alg_values_supported,omitempty"`
}

// Validate checks the fields Discover relies on.
func (d *DiscoveryDocument) Validate() error {
	var missing []string
	if d.Issuer == "" {
		missing = append(missing, "issuer")
	}
	if d.AuthorizationEndpoint == "" {
		missing = append(missing, "authorization_endpoint")
	}
	if d.TokenEndpoint == "" {
		missing = append(missing, "token_endpoint")
	}
	if d.JWKSUri == "" {
		missing = append(missing, "jwks_uri")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: discovery document missing %s", ErrUnexpectedResponse, strings.Join(missing, ", "))
	}

	if len(d.IDTokenSigningAlgValuesSupported) > 0 {
		for _, alg := range d.IDTokenSigningAlgValuesSupported {
			if alg == "RS256" {
				return nil
			}
		}
		return fmt.Errorf("%w: provider does not sign identity tokens with RS256", ErrUnexpectedResponse)
	}
	return nil
}

// DiscoveryURL returns the well-known configuration URL for issuer.
func DiscoveryURL(issuer string) string {
	return strings.TrimSuffix(strings.TrimSpace(issuer), "/") + "/.well-known/openid-configuration"
}

// Discover reads issuer's discovery document and returns a Provider for
// its endpoints. The document's issuer must match. policiesURL and
// groupsURL are not part of the document and may be empty.
func Discover(ctx context.Context, transport Transport, issuer, groupsURL, policiesURL string) (Provider, error) {
	resp, err := transport.Get(ctx, DiscoveryURL(issuer), nil)
	if err != nil {
		return nil, Wrap(ErrNetwork, err)
	}
	if !resp.OK() {
		return nil, statusError(ErrUnexpectedResponse, resp)
	}

	var doc DiscoveryDocument
	if err := json.Unmarshal(resp.Body, &doc); err != nil {
		return nil, Wrap(ErrDecodingFailed, err)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSuffix(doc.Issuer, "/") != strings.TrimSuffix(strings.TrimSpace(issuer), "/") {
		return nil, fmt.Errorf("%w: discovery issuer %q does not match %q", ErrUnexpectedResponse, doc.Issuer, issuer)
	}

	return &customProvider{config: ProviderConfig{
		ProviderName:     doc.Issuer,
		AuthEndpoint:     doc.AuthorizationEndpoint,
		GroupsEndpoint:   groupsURL,
		TokenEndpoint:    doc.TokenEndpoint,
		JWKSEndpoint:     doc.JWKSUri,
		IssuerURL:        doc.Issuer,
		UserInfoEndpoint: doc.UserInfoEndpoint,
		PoliciesEndpoint: policiesURL,
	}}, nil
}
