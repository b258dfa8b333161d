package oauth

import (
	"crypto/rand"

	"golang.org/x/oauth2"
)

// ChallengeMethodS256 is the only PKCE challenge method sent.
const ChallengeMethodS256 = "S256"

// PKCE is a code verifier and its S256 challenge (RFC 7636).
type PKCE struct {
	Verifier  string
	Challenge string
	Method    string
}

// NewPKCE generates a pair from a 32-byte random verifier (43 characters).
func NewPKCE() PKCE {
	return PKCEFromVerifier(oauth2.GenerateVerifier())
}

// PKCEFromVerifier derives the pair for a known verifier.
func PKCEFromVerifier(verifier string) PKCE {
	return PKCE{
		Verifier:  verifier,
		Challenge: oauth2.S256ChallengeFromVerifier(verifier),
		Method:    ChallengeMethodS256,
	}
}

// GenerateRandomToken returns 32 random bytes, base64url-encoded without
// padding. Used for state and nonce values.
func GenerateRandomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return EncodeBase64URL(b), nil
}
