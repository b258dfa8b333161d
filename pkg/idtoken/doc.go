// Package idtoken verifies OpenID Connect identity tokens.
//
// Only RS256 is accepted; every other alg header, including "none", is
// rejected before any key is consulted. Keys come from a KeySource, normally
// a Cache over the provider's JWKS endpoint:
//
//	keys := idtoken.NewCache(transport, provider.JWKSURL())
//	v := idtoken.NewValidator(keys, provider.Issuer(), clientID)
//	decoded, err := v.Validate(ctx, rawIDToken, expectedNonce)
//
// Failures carry the oauth package's error kinds (ErrInvalidJWT,
// ErrJWTSignatureInvalid, ErrJWTClaimInvalid, ErrJWKSKeyNotFound) as
// *oauth.JWTError values.
package idtoken
