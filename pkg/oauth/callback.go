package oauth

import (
	"fmt"
	"net/url"
)

// errorAccessDenied is the callback error code sent when the user declines.
const errorAccessDenied = "access_denied"

// ParseCallback extracts the authorization code from a redirect callback.
// A state that is present must equal expectedState.
func ParseCallback(callbackURL, expectedState string) (string, error) {
	u, err := url.Parse(callbackURL)
	if err != nil {
		return "", Wrap(ErrInvalidCallbackURL, err)
	}
	q := u.Query()

	if e := q.Get("error"); e != "" {
		if e == errorAccessDenied {
			return "", ErrUserCancelled
		}
		desc := q.Get("error_description")
		if desc == "" {
			desc = e
		}
		return "", &StatusError{Kind: ErrTokenExchangeFailed, Body: desc}
	}

	if state := q.Get("state"); state != "" && state != expectedState {
		return "", fmt.Errorf("%w: callback state does not match request", ErrStateMismatch)
	}

	code := q.Get("code")
	if code == "" {
		return "", ErrMissingAuthorizationCode
	}
	return code, nil
}
