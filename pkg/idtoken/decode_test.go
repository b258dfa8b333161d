package idtoken

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/jeremyhahn/go-idverify/pkg/oauth"
)

func TestDecode(t *testing.T) {
	key, _ := keys(t)
	token := signToken(t, key,
		map[string]any{"alg": "RS256", "kid": "k1", "typ": "JWT"},
		map[string]any{"sub": "user-1", "aud": "client", "exp": 1893456000, "nonce": "n1", "email": "a@b.c"},
	)

	d, err := Decode(token)
	if err != nil {
		t.Fatalf("Decode() failed: %v", err)
	}

	parts := strings.Split(token, ".")
	if d.SignedPortion != parts[0]+"."+parts[1] {
		t.Errorf("SignedPortion = %q, want header.payload", d.SignedPortion)
	}
	if d.Header.Alg != "RS256" || d.Header.Kid != "k1" || d.Header.Typ != "JWT" {
		t.Errorf("Unexpected header %+v", d.Header)
	}
	if d.Claims.Subject != "user-1" || d.Claims.Nonce != "n1" {
		t.Errorf("Unexpected claims %+v", d.Claims)
	}
	if len(d.Claims.Audience) != 1 || d.Claims.Audience[0] != "client" {
		t.Errorf("Expected string aud to decode, got %v", d.Claims.Audience)
	}
	if d.Raw["email"] != "a@b.c" {
		t.Errorf("Expected pass-through claim in Raw, got %v", d.Raw["email"])
	}
	if n, ok := d.Raw["exp"].(json.Number); !ok || n.String() != "1893456000" {
		t.Errorf("Expected exp as json.Number, got %#v", d.Raw["exp"])
	}
	if len(d.Signature) != 256 {
		t.Errorf("Expected 256-byte signature, got %d", len(d.Signature))
	}
}

func TestDecode_Malformed(t *testing.T) {
	header := oauth.EncodeBase64URL([]byte(`{"alg":"RS256"}`))
	noAlg := oauth.EncodeBase64URL([]byte(`{"typ":"JWT"}`))
	payload := oauth.EncodeBase64URL([]byte(`{"sub":"x"}`))
	notObject := oauth.EncodeBase64URL([]byte(`["x"]`))

	tests := []struct {
		name   string
		token  string
		reason string
	}{
		{"two parts", header + "." + payload, "JWT must have 3 parts, found 2"},
		{"four parts", header + "." + payload + ".s.x", "JWT must have 3 parts, found 4"},
		{"bad header base64", "!!." + payload + ".c2ln", "invalid base64url in header"},
		{"bad payload base64", header + ".@@.c2ln", "invalid base64url in payload"},
		{"header not json", oauth.EncodeBase64URL([]byte("nope")) + "." + payload + ".c2ln", "header is not a JSON object"},
		{"payload not object", header + "." + notObject + ".c2ln", "payload is not a JSON object"},
		{"missing alg", noAlg + "." + payload + ".c2ln", "Missing 'alg' in JWT header"},
		{"bad signature base64", header + "." + payload + ".***", "invalid base64url in signature"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.token)
			if !errors.Is(err, oauth.ErrInvalidJWT) {
				t.Fatalf("Expected ErrInvalidJWT, got %v", err)
			}
			var je *oauth.JWTError
			if !errors.As(err, &je) || je.Reason != tt.reason {
				t.Errorf("Reason = %q, want %q", je.Reason, tt.reason)
			}
		})
	}
}

func TestDecode_MistypedClaims(t *testing.T) {
	token := encodeSegment(t, map[string]any{"alg": "RS256"}) + "." +
		encodeSegment(t, map[string]any{"iss": 123, "exp": "soon", "aud": 42, "sub": "user-1"}) + ".c2ln"

	d, err := Decode(token)
	if err != nil {
		t.Fatalf("Decode() failed: %v", err)
	}
	for _, claim := range []string{"iss", "exp", "aud"} {
		if !d.mistyped[claim] {
			t.Errorf("%s not reported as mistyped", claim)
		}
	}
	if d.mistyped["sub"] {
		t.Error("sub reported as mistyped")
	}
	if d.Claims.Subject != "user-1" {
		t.Errorf("Subject = %q, want user-1", d.Claims.Subject)
	}
	if d.Claims.Audience != nil || d.Claims.ExpiresAt != nil {
		t.Errorf("mistyped claims not left zero: aud=%v exp=%v", d.Claims.Audience, d.Claims.ExpiresAt)
	}
}

func TestDecode_AudienceArray(t *testing.T) {
	token := encodeSegment(t, map[string]any{"alg": "RS256"}) + "." +
		encodeSegment(t, map[string]any{"aud": []string{"a", "b"}}) + ".c2ln"
	d, err := Decode(token)
	if err != nil {
		t.Fatalf("Decode() failed: %v", err)
	}
	if len(d.Claims.Audience) != 2 || d.Claims.Audience[1] != "b" {
		t.Errorf("Unexpected audience %v", d.Claims.Audience)
	}
}

func TestDecodePayload(t *testing.T) {
	token := "eyJhbGciOiJub25lIn0." + oauth.EncodeBase64URL([]byte(`{"given_name":"Ada"}`)) + "."
	m, err := DecodePayload(token)
	if err != nil {
		t.Fatalf("DecodePayload() failed: %v", err)
	}
	if m["given_name"] != "Ada" {
		t.Errorf("Unexpected payload %v", m)
	}

	if _, err := DecodePayload("a.b"); !errors.Is(err, oauth.ErrInvalidJWT) {
		t.Errorf("Expected ErrInvalidJWT, got %v", err)
	}
}
