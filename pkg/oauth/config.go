package oauth

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

// Environment selects the provider deployment.
type Environment string

const (
	// EnvironmentSandbox targets the provider's test deployment.
	EnvironmentSandbox Environment = "sandbox"

	// EnvironmentProduction targets the live deployment.
	EnvironmentProduction Environment = "production"
)

// AuthMode selects which security parameters accompany a login.
type AuthMode string

const (
	// ModeOAuth is the confidential-client code flow. Requires a client secret.
	ModeOAuth AuthMode = "oauth"

	// ModeOAuthPKCE is the public-client code flow with a PKCE pair.
	ModeOAuthPKCE AuthMode = "oauth_pkce"

	// ModeOIDC adds a nonce and identity token validation to the PKCE flow.
	ModeOIDC AuthMode = "oidc"
)

// UsesPKCE reports whether the mode sends a code challenge.
func (m AuthMode) UsesPKCE() bool { return m == ModeOAuthPKCE || m == ModeOIDC }

// VerificationType selects the single-policy or multi-policy endpoint.
type VerificationType string

const (
	// VerificationSingle routes to the authorize endpoint.
	VerificationSingle VerificationType = "single"

	// VerificationGroups routes to the multi-policy groups endpoint (production only).
	VerificationGroups VerificationType = "groups"
)

// Scopes understood by the provider.
const (
	ScopeOpenID         = "openid"
	ScopeProfile        = "profile"
	ScopeEmail          = "email"
	ScopeMilitary       = "military"
	ScopeFirstResponder = "first_responder"
	ScopeNurse          = "nurse"
	ScopeTeacher        = "teacher"
	ScopeStudent        = "student"
	ScopeGovernment     = "government"
	ScopeLowIncome      = "low_income"
)

// DefaultScopes is used when a configuration requests none.
var DefaultScopes = []string{ScopeOpenID, ScopeProfile, ScopeEmail}

const defaultTimeout = 30 * time.Second

// Config describes a client registration. It is treated as an immutable
// value: Validate and the builders work on a defaulted copy.
type Config struct {
	// ClientID is the registered client identifier.
	ClientID string `validate:"required"`

	// ClientSecret is required in ModeOAuth and optional otherwise.
	ClientSecret string

	// RedirectURI is the callback the provider redirects to after login.
	RedirectURI string `validate:"required"`

	// Scopes to request. Defaults to DefaultScopes.
	Scopes []string `validate:"dive,required"`

	// Environment defaults to EnvironmentProduction.
	Environment Environment `validate:"omitempty,oneof=sandbox production"`

	// Mode defaults to ModeOAuthPKCE.
	Mode AuthMode `validate:"omitempty,oneof=oauth oauth_pkce oidc"`

	// VerificationType defaults to VerificationSingle.
	VerificationType VerificationType `validate:"omitempty,oneof=single groups"`

	// Provider overrides the endpoints derived from Environment.
	Provider Provider `validate:"-"`

	// Timeout is the HTTP client timeout for provider requests.
	Timeout time.Duration

	// TLSConfig allows custom TLS configuration.
	TLSConfig *tls.Config `validate:"-"`

	// InsecureSkipVerify disables TLS certificate verification (not recommended).
	InsecureSkipVerify bool
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// WithDefaults returns a copy of c with unset fields defaulted.
func (c Config) WithDefaults() Config {
	if c.Environment == "" {
		c.Environment = EnvironmentProduction
	}
	if c.Mode == "" {
		c.Mode = ModeOAuthPKCE
	}
	if c.VerificationType == "" {
		c.VerificationType = VerificationSingle
	}
	if len(c.Scopes) == 0 {
		c.Scopes = append([]string(nil), DefaultScopes...)
	} else {
		c.Scopes = append([]string(nil), c.Scopes...)
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	return c
}

// Validate checks the configuration. The domain rules are applied in a
// fixed order: client secret, groups availability, redirect uri.
func (c Config) Validate() error {
	c = c.WithDefaults()

	if err := getValidator().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidConfiguration, strings.Join(fields, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}

	if c.Mode == ModeOAuth && strings.TrimSpace(c.ClientSecret) == "" {
		return ErrMissingClientSecret
	}
	if c.VerificationType == VerificationGroups && c.Environment == EnvironmentSandbox {
		return ErrGroupsUnavailableInSandbox
	}
	return validateRedirectURI(c.RedirectURI)
}

// Endpoints returns the provider the configuration targets.
func (c Config) Endpoints() Provider {
	if c.Provider != nil {
		return c.Provider
	}
	if c.Environment == EnvironmentSandbox {
		return Sandbox()
	}
	return Production()
}

// ScopesWithOpenID returns the scopes with "openid" prepended when missing.
func (c Config) ScopesWithOpenID() []string {
	scopes := c.WithDefaults().Scopes
	for _, s := range scopes {
		if s == ScopeOpenID {
			return scopes
		}
	}
	return append([]string{ScopeOpenID}, scopes...)
}

func validateRedirectURI(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRedirectURI, err)
	}
	if u.Scheme == "" {
		return fmt.Errorf("%w: %q has no scheme", ErrInvalidRedirectURI, raw)
	}
	return nil
}
