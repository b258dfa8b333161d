package idtoken

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jeremyhahn/go-idverify/pkg/oauth"
)

// Header is the JOSE header fields this package inspects.
type Header struct {
	Alg string `json:"alg"`
	Kid string `json:"kid,omitempty"`
	Typ string `json:"typ,omitempty"`
}

// Claims are the typed claims checked during validation.
type Claims struct {
	jwt.RegisteredClaims
	Nonce string `json:"nonce,omitempty"`
}

// Decoded is a compact JWT split into its parts. It is produced and consumed
// within one validation call.
type Decoded struct {
	Header Header
	Claims Claims

	// Raw holds every payload claim; numbers are json.Number.
	Raw map[string]any

	// SignedPortion is the exact "header.payload" text that was signed.
	SignedPortion string

	// Signature is the decoded signature bytes.
	Signature []byte

	// mistyped names typed claims whose JSON value had the wrong type. They
	// are left zero in Claims.
	mistyped map[string]bool
}

// Has reports whether the payload carried claim.
func (d *Decoded) Has(claim string) bool {
	_, ok := d.Raw[claim]
	return ok
}

func malformed(format string, args ...any) error {
	return &oauth.JWTError{Kind: oauth.ErrInvalidJWT, Reason: fmt.Sprintf(format, args...)}
}

// Decode splits and parses token without verifying it.
func Decode(token string) (*Decoded, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, malformed("JWT must have 3 parts, found %d", len(parts))
	}

	headerJSON, err := oauth.DecodeBase64URL(parts[0])
	if err != nil {
		return nil, malformed("invalid base64url in header")
	}
	var rawHeader map[string]any
	if err := json.Unmarshal(headerJSON, &rawHeader); err != nil || rawHeader == nil {
		return nil, malformed("header is not a JSON object")
	}
	var header Header
	if err := json.Unmarshal(headerJSON, &header); err != nil {
		return nil, malformed("invalid header: %v", err)
	}
	if header.Alg == "" {
		return nil, malformed("Missing 'alg' in JWT header")
	}

	raw, err := decodeObject(parts[1])
	if err != nil {
		return nil, err
	}
	payloadJSON, _ := oauth.DecodeBase64URL(parts[1])
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payloadJSON, &fields); err != nil {
		return nil, malformed("payload is not a JSON object")
	}
	claims, mistyped := parseClaims(fields)

	sig, err := oauth.DecodeBase64URL(parts[2])
	if err != nil {
		return nil, malformed("invalid base64url in signature")
	}

	return &Decoded{
		Header:        header,
		Claims:        claims,
		Raw:           raw,
		SignedPortion: parts[0] + "." + parts[1],
		Signature:     sig,
		mistyped:      mistyped,
	}, nil
}

// parseClaims fills the typed claims one at a time so a claim of the wrong
// type is reported against that claim instead of failing the whole token.
func parseClaims(fields map[string]json.RawMessage) (Claims, map[string]bool) {
	var c Claims
	targets := map[string]any{
		"iss":   &c.Issuer,
		"sub":   &c.Subject,
		"aud":   &c.Audience,
		"exp":   &c.ExpiresAt,
		"nbf":   &c.NotBefore,
		"iat":   &c.IssuedAt,
		"jti":   &c.ID,
		"nonce": &c.Nonce,
	}
	var mistyped map[string]bool
	for name, dst := range targets {
		raw, ok := fields[name]
		if !ok {
			continue
		}
		if err := json.Unmarshal(raw, dst); err != nil {
			if mistyped == nil {
				mistyped = make(map[string]bool)
			}
			mistyped[name] = true
		}
	}
	// Unmarshal may leave a partial value behind on error.
	if mistyped["aud"] {
		c.Audience = nil
	}
	return c, mistyped
}

// DecodePayload returns the claims of token's payload without verifying
// the signature. Used for bodies that resource endpoints return as JWTs.
func DecodePayload(token string) (map[string]any, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, malformed("JWT must have 3 parts, found %d", len(parts))
	}
	return decodeObject(parts[1])
}

func decodeObject(segment string) (map[string]any, error) {
	b, err := oauth.DecodeBase64URL(segment)
	if err != nil {
		return nil, malformed("invalid base64url in payload")
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil || m == nil {
		return nil, malformed("payload is not a JSON object")
	}
	return m, nil
}
