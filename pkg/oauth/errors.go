package oauth

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfiguration indicates a structurally invalid configuration
	// (missing client id, unknown enum value).
	ErrInvalidConfiguration = errors.New("oauth: invalid configuration")

	// ErrMissingClientSecret indicates oauth mode was selected without a client secret.
	ErrMissingClientSecret = errors.New("oauth: client secret is required for oauth mode")

	// ErrGroupsUnavailableInSandbox indicates the groups verification type was
	// requested against the sandbox environment.
	ErrGroupsUnavailableInSandbox = errors.New("oauth: groups verification is not available in sandbox")

	// ErrInvalidRedirectURI indicates the redirect uri does not parse to a scheme.
	ErrInvalidRedirectURI = errors.New("oauth: invalid redirect uri")

	// ErrUserCancelled indicates the user dismissed the authorization flow.
	ErrUserCancelled = errors.New("oauth: user cancelled")

	// ErrStateMismatch indicates the callback state does not match the request.
	ErrStateMismatch = errors.New("oauth: state mismatch")

	// ErrMissingAuthorizationCode indicates the callback carried no code.
	ErrMissingAuthorizationCode = errors.New("oauth: missing authorization code")

	// ErrInvalidCallbackURL indicates the callback url could not be parsed.
	ErrInvalidCallbackURL = errors.New("oauth: invalid callback url")

	// ErrTokenExchangeFailed indicates the authorization code exchange failed.
	ErrTokenExchangeFailed = errors.New("oauth: token exchange failed")

	// ErrTokenRefreshFailed indicates the refresh grant failed.
	ErrTokenRefreshFailed = errors.New("oauth: token refresh failed")

	// ErrNotAuthenticated indicates no credentials are available.
	ErrNotAuthenticated = errors.New("oauth: not authenticated")

	// ErrRefreshTokenExpired indicates credentials expired and cannot be refreshed.
	ErrRefreshTokenExpired = errors.New("oauth: refresh token expired")

	// ErrInvalidJWT indicates a malformed or unsupported JWT.
	ErrInvalidJWT = errors.New("oauth: invalid jwt")

	// ErrJWTSignatureInvalid indicates the RS256 signature did not verify.
	ErrJWTSignatureInvalid = errors.New("oauth: jwt signature invalid")

	// ErrJWTClaimInvalid indicates a claim failed validation.
	ErrJWTClaimInvalid = errors.New("oauth: jwt claim invalid")

	// ErrJWKSKeyNotFound indicates no key in the set matched the token's kid.
	ErrJWKSKeyNotFound = errors.New("oauth: jwks key not found")

	// ErrNetwork indicates a transport-level failure.
	ErrNetwork = errors.New("oauth: network error")

	// ErrUnexpectedResponse indicates a non-2xx response from a resource endpoint.
	ErrUnexpectedResponse = errors.New("oauth: unexpected response")

	// ErrDecodingFailed indicates a response body could not be decoded.
	ErrDecodingFailed = errors.New("oauth: decoding failed")

	// ErrStorage indicates the credential store failed.
	ErrStorage = errors.New("oauth: storage error")
)

// kinds is the closed taxonomy, most specific first.
var kinds = []error{
	ErrMissingClientSecret,
	ErrGroupsUnavailableInSandbox,
	ErrInvalidRedirectURI,
	ErrInvalidConfiguration,
	ErrUserCancelled,
	ErrStateMismatch,
	ErrMissingAuthorizationCode,
	ErrInvalidCallbackURL,
	ErrTokenExchangeFailed,
	ErrTokenRefreshFailed,
	ErrNotAuthenticated,
	ErrRefreshTokenExpired,
	ErrInvalidJWT,
	ErrJWTSignatureInvalid,
	ErrJWTClaimInvalid,
	ErrJWKSKeyNotFound,
	ErrNetwork,
	ErrUnexpectedResponse,
	ErrDecodingFailed,
	ErrStorage,
}

// Kind returns the taxonomy sentinel carried by err, or nil if err is not
// one of this package's errors.
func Kind(err error) error {
	if err == nil {
		return nil
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// StatusError carries the HTTP status and raw body of a failed token or
// resource request. Kind is ErrTokenExchangeFailed, ErrTokenRefreshFailed or
// ErrUnexpectedResponse.
type StatusError struct {
	Kind       error
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%v: status %d", e.Kind, e.StatusCode)
	}
	return fmt.Sprintf("%v: status %d: %s", e.Kind, e.StatusCode, e.Body)
}

func (e *StatusError) Unwrap() error { return e.Kind }

// JWTError describes an identity token rejection.
type JWTError struct {
	Kind   error
	Claim  string
	KeyID  string
	Reason string
}

func (e *JWTError) Error() string {
	switch {
	case e.Claim != "":
		return fmt.Sprintf("%v: %s: %s", e.Kind, e.Claim, e.Reason)
	case errors.Is(e.Kind, ErrJWKSKeyNotFound):
		return fmt.Sprintf("%v: kid %q", e.Kind, e.KeyID)
	case e.Reason != "":
		return fmt.Sprintf("%v: %s", e.Kind, e.Reason)
	}
	return e.Kind.Error()
}

func (e *JWTError) Unwrap() error { return e.Kind }

// WrappedError attaches a taxonomy kind to an underlying cause. Both are
// reachable through errors.Is and errors.As.
type WrappedError struct {
	Kind error
	Err  error
}

func (e *WrappedError) Error() string {
	return fmt.Sprintf("%v: %v", e.Kind, e.Err)
}

func (e *WrappedError) Unwrap() []error { return []error{e.Kind, e.Err} }

// Wrap tags err with kind. Errors that already carry a kind are returned
// unchanged so nested failures keep their most specific classification.
func Wrap(kind, err error) error {
	if err == nil {
		return nil
	}
	if Kind(err) != nil {
		return err
	}
	return &WrappedError{Kind: kind, Err: err}
}

// statusError builds a StatusError from a response.
func statusError(kind error, resp *Response) error {
	return &StatusError{Kind: kind, StatusCode: resp.StatusCode, Body: string(resp.Body)}
}
