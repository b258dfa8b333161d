package idtoken

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jeremyhahn/go-idverify/pkg/logging"
	"github.com/jeremyhahn/go-idverify/pkg/metrics"
	"github.com/jeremyhahn/go-idverify/pkg/oauth"
	"go.uber.org/zap"
)

// AlgRS256 is the only accepted signing algorithm.
const AlgRS256 = "RS256"

// Validator verifies identity tokens issued to one client.
type Validator struct {
	keys     KeySource
	issuer   string
	clientID string
	now      func() time.Time
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// ValidatorOption configures a Validator.
type ValidatorOption func(*Validator)

// WithClock overrides the clock used for the exp check.
func WithClock(now func() time.Time) ValidatorOption {
	return func(v *Validator) { v.now = now }
}

// WithValidatorLogger sets the validator logger.
func WithValidatorLogger(l *zap.Logger) ValidatorOption {
	return func(v *Validator) { v.logger = logging.OrNop(l) }
}

// WithValidatorMetrics records validation outcomes on m.
func WithValidatorMetrics(m *metrics.Metrics) ValidatorOption {
	return func(v *Validator) { v.metrics = m }
}

// NewValidator creates a validator expecting tokens from issuer for clientID.
func NewValidator(keys KeySource, issuer, clientID string, opts ...ValidatorOption) *Validator {
	v := &Validator{
		keys:     keys,
		issuer:   issuer,
		clientID: clientID,
		now:      time.Now,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate decodes token, verifies its RS256 signature and checks iss, aud,
// exp and, when expectedNonce is non-empty, nonce.
func (v *Validator) Validate(ctx context.Context, token, expectedNonce string) (*Decoded, error) {
	d, err := v.validate(ctx, token, expectedNonce)
	v.metrics.ObserveIDTokenValidation(err)
	if err != nil {
		v.logger.Info("id token rejected", zap.String("result", metrics.Result(err)))
		return nil, err
	}
	return d, nil
}

func (v *Validator) validate(ctx context.Context, token, expectedNonce string) (*Decoded, error) {
	d, err := Decode(token)
	if err != nil {
		return nil, err
	}
	if d.Header.Alg != AlgRS256 {
		return nil, malformed("unsupported algorithm %q", d.Header.Alg)
	}

	set, err := v.keys.KeySet(ctx)
	if err != nil {
		return nil, err
	}
	jwk, err := set.Select(d.Header.Kid)
	if err != nil {
		return nil, err
	}
	pub, err := jwk.RSAPublicKey()
	if err != nil {
		return nil, err
	}
	if err := jwt.SigningMethodRS256.Verify(d.SignedPortion, d.Signature, pub); err != nil {
		v.logger.Debug("signature mismatch", logging.KeyID(jwk.Kid))
		return nil, &oauth.JWTError{Kind: oauth.ErrJWTSignatureInvalid, KeyID: jwk.Kid, Reason: err.Error()}
	}

	if err := v.checkClaims(d, expectedNonce); err != nil {
		return nil, err
	}
	return d, nil
}

func claimInvalid(claim, format string, args ...any) error {
	return &oauth.JWTError{Kind: oauth.ErrJWTClaimInvalid, Claim: claim, Reason: fmt.Sprintf(format, args...)}
}

func (v *Validator) checkClaims(d *Decoded, expectedNonce string) error {
	c := d.Claims

	for _, claim := range []string{"iss", "aud", "exp"} {
		if d.mistyped[claim] {
			return claimInvalid(claim, "wrong type")
		}
	}
	if d.Has("iss") && c.Issuer != v.issuer {
		return claimInvalid("iss", "expected %q, got %q", v.issuer, c.Issuer)
	}
	if d.Has("aud") && !slices.Contains(c.Audience, v.clientID) {
		return claimInvalid("aud", "%q not in audience", v.clientID)
	}
	if d.Has("exp") && c.ExpiresAt != nil && !v.now().Before(c.ExpiresAt.Time) {
		return claimInvalid("exp", "expired")
	}
	if expectedNonce != "" {
		switch {
		case !d.Has("nonce"):
			return claimInvalid("nonce", "missing")
		case d.mistyped["nonce"]:
			return claimInvalid("nonce", "wrong type")
		case c.Nonce != expectedNonce:
			return claimInvalid("nonce", "mismatch")
		}
	}
	return nil
}
