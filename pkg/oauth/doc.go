// Package oauth implements the client side of the authorization code grant
// against an identity-verification provider.
//
// The package covers the protocol pieces only; pkg/idverify composes them
// into a login flow.
//
// # Configuration
//
// A Config names the client registration, the target environment and the
// mode. ModeOAuth is a confidential client and requires a secret.
// ModeOAuthPKCE and ModeOIDC send a PKCE challenge instead; ModeOIDC also
// adds "openid" and a nonce.
//
//	cfg := oauth.Config{
//	    ClientID:    "your-client-id",
//	    RedirectURI: "myapp://callback",
//	    Scopes:      []string{oauth.ScopeMilitary},
//	    Environment: oauth.EnvironmentSandbox,
//	    Mode:        oauth.ModeOAuthPKCE,
//	}
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
//
// # Authorization Request
//
// NewAuthorizationRequest returns the authorize URL together with the
// state, nonce and PKCE verifier that must be kept until the redirect
// returns. ParseCallback checks the redirect against the stored state and
// returns the authorization code.
//
//	req, err := oauth.NewAuthorizationRequest(cfg)
//	// open req.URL, wait for the redirect ...
//	code, err := oauth.ParseCallback(redirectURL, req.State)
//
// # Token Endpoint
//
// TokenClient exchanges the code and refreshes credentials. Credentials
// carry an absolute expiry and convert to *oauth2.Token so they can back an
// oauth2.TokenSource.
//
//	client := oauth.NewTokenClient(cfg, oauth.NewTransport(cfg))
//	creds, resp, err := client.Exchange(ctx, code, req.CodeVerifier())
//
// # Errors
//
// Every failure maps to one of the sentinel errors in errors.go. Use
// errors.Is to test the kind, or Kind to recover it:
//
//	if errors.Is(err, oauth.ErrUserCancelled) {
//	    return nil
//	}
//
// # Discovery
//
// Discover builds a Provider from an issuer's
// /.well-known/openid-configuration document for deployments that do not
// use the built-in Sandbox and Production endpoints.
package oauth
