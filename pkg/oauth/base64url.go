package oauth

import (
	"encoding/base64"
	"strings"
)

// EncodeBase64URL encodes b per RFC 4648 §5 without padding.
func EncodeBase64URL(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

// DecodeBase64URL decodes unpadded base64url. Trailing padding is tolerated.
func DecodeBase64URL(s string) ([]byte, error) {
	b, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
	if err != nil {
		return nil, Wrap(ErrDecodingFailed, err)
	}
	return b, nil
}
