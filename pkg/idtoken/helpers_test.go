package idtoken

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"math/big"
	"sync"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jeremyhahn/go-idverify/pkg/oauth"
)

var (
	testKeyOnce sync.Once
	testKey     *rsa.PrivateKey
	otherKey    *rsa.PrivateKey
)

func keys(t *testing.T) (*rsa.PrivateKey, *rsa.PrivateKey) {
	t.Helper()
	testKeyOnce.Do(func() {
		var err error
		if testKey, err = rsa.GenerateKey(rand.Reader, 2048); err != nil {
			t.Fatal(err)
		}
		if otherKey, err = rsa.GenerateKey(rand.Reader, 2048); err != nil {
			t.Fatal(err)
		}
	})
	return testKey, otherKey
}

func jwkFor(kid string, pub *rsa.PublicKey) JSONWebKey {
	return JSONWebKey{
		Kty: "RSA",
		Kid: kid,
		Use: "sig",
		Alg: AlgRS256,
		N:   oauth.EncodeBase64URL(pub.N.Bytes()),
		E:   oauth.EncodeBase64URL(big.NewInt(int64(pub.E)).Bytes()),
	}
}

func encodeSegment(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return oauth.EncodeBase64URL(b)
}

func signToken(t *testing.T, key *rsa.PrivateKey, header, claims map[string]any) string {
	t.Helper()
	signing := encodeSegment(t, header) + "." + encodeSegment(t, claims)
	sig, err := jwt.SigningMethodRS256.Sign(signing, key)
	if err != nil {
		t.Fatal(err)
	}
	return signing + "." + oauth.EncodeBase64URL(sig)
}

type staticKeys struct {
	set *KeySet
	err error
}

func (s staticKeys) KeySet(ctx context.Context) (*KeySet, error) {
	return s.set, s.err
}
