package idtoken

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"math/big"
	"time"

	"github.com/jeremyhahn/go-idverify/pkg/logging"
	"github.com/jeremyhahn/go-idverify/pkg/metrics"
	"github.com/jeremyhahn/go-idverify/pkg/oauth"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DefaultTTL is how long a fetched key set is served without refetching.
const DefaultTTL = time.Hour

// DefaultFetchTimeout bounds a shared key set fetch.
const DefaultFetchTimeout = 30 * time.Second

const keySetCacheKey = "jwks"

// JSONWebKey is one entry of a key set.
type JSONWebKey struct {
	Kty string `json:"kty"`
	Kid string `json:"kid,omitempty"`
	Use string `json:"use,omitempty"`
	Alg string `json:"alg,omitempty"`
	N   string `json:"n,omitempty"`
	E   string `json:"e,omitempty"`
}

// IsRSA reports an RSA key with both modulus and exponent.
func (k JSONWebKey) IsRSA() bool {
	return k.Kty == "RSA" && k.N != "" && k.E != ""
}

// RSAPublicKey reconstructs the key from its big-endian modulus and exponent.
func (k JSONWebKey) RSAPublicKey() (*rsa.PublicKey, error) {
	nBytes, err := oauth.DecodeBase64URL(k.N)
	if err != nil {
		return nil, malformed("invalid RSA modulus for kid %q", k.Kid)
	}
	eBytes, err := oauth.DecodeBase64URL(k.E)
	if err != nil {
		return nil, malformed("invalid RSA exponent for kid %q", k.Kid)
	}
	e := new(big.Int).SetBytes(eBytes)
	if !e.IsInt64() || e.Int64() < 2 || e.Int64() > 1<<31-1 {
		return nil, malformed("unsupported RSA exponent for kid %q", k.Kid)
	}
	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: int(e.Int64()),
	}, nil
}

// KeySet is a provider's published signing keys.
type KeySet struct {
	Keys []JSONWebKey `json:"keys"`
}

// Select picks the verification key for kid. With a kid, the RSA key
// carrying it; without one, the first RSA key.
func (s *KeySet) Select(kid string) (JSONWebKey, error) {
	for _, k := range s.Keys {
		if k.IsRSA() && (kid == "" || k.Kid == kid) {
			return k, nil
		}
	}
	if kid != "" {
		return JSONWebKey{}, &oauth.JWTError{Kind: oauth.ErrJWKSKeyNotFound, KeyID: kid}
	}
	return JSONWebKey{}, malformed("no RSA keys and no kid")
}

// KeySource supplies the current key set.
type KeySource interface {
	KeySet(ctx context.Context) (*KeySet, error)
}

// Cache fetches and time-caches a key set. A failed refetch after expiry is
// returned as an error; the expired set is never served.
type Cache struct {
	transport oauth.Transport
	url       string
	ttl       time.Duration
	store     *gocache.Cache
	group     singleflight.Group
	logger    *zap.Logger
	metrics   *metrics.Metrics
	timeout   time.Duration
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithLogger sets the cache logger.
func WithLogger(l *zap.Logger) CacheOption {
	return func(c *Cache) { c.logger = logging.OrNop(l) }
}

// WithFetchTimeout overrides DefaultFetchTimeout.
func WithFetchTimeout(d time.Duration) CacheOption {
	return func(c *Cache) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithMetrics records fetch outcomes on m.
func WithMetrics(m *metrics.Metrics) CacheOption {
	return func(c *Cache) { c.metrics = m }
}

// NewCache creates a cache for the key set at jwksURL.
func NewCache(transport oauth.Transport, jwksURL string, opts ...CacheOption) *Cache {
	c := &Cache{
		transport: transport,
		url:       jwksURL,
		ttl:       DefaultTTL,
		timeout:   DefaultFetchTimeout,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.store = gocache.New(c.ttl, 0)
	return c
}

// KeySet returns the cached set while it is younger than the TTL and
// otherwise refetches. Concurrent misses share one request. The shared fetch
// does not inherit any single caller's cancellation; a caller whose ctx ends
// stops waiting and the others keep theirs.
func (c *Cache) KeySet(ctx context.Context) (*KeySet, error) {
	if v, ok := c.store.Get(keySetCacheKey); ok {
		return v.(*KeySet), nil
	}

	ch := c.group.DoChan(keySetCacheKey, func() (any, error) {
		// Another caller may have filled the cache while we queued.
		if v, ok := c.store.Get(keySetCacheKey); ok {
			return v, nil
		}
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()

		set, err := c.fetch(fetchCtx)
		c.metrics.ObserveJWKSFetch(err)
		if err != nil {
			c.logger.Warn("jwks fetch failed", zap.String("url", c.url), zap.Error(err))
			return nil, err
		}
		c.store.Set(keySetCacheKey, set, c.ttl)
		c.logger.Debug("jwks fetched", zap.Int("keys", len(set.Keys)))
		return set, nil
	})

	select {
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*KeySet), nil
	case <-ctx.Done():
		return nil, oauth.Wrap(oauth.ErrNetwork, ctx.Err())
	}
}

// Invalidate drops the cached set.
func (c *Cache) Invalidate() {
	c.store.Delete(keySetCacheKey)
}

func (c *Cache) fetch(ctx context.Context) (*KeySet, error) {
	resp, err := c.transport.Get(ctx, c.url, nil)
	if err != nil {
		return nil, oauth.Wrap(oauth.ErrNetwork, err)
	}
	if !resp.OK() {
		return nil, &oauth.StatusError{Kind: oauth.ErrUnexpectedResponse, StatusCode: resp.StatusCode, Body: string(resp.Body)}
	}
	var set KeySet
	if err := json.Unmarshal(resp.Body, &set); err != nil {
		return nil, oauth.Wrap(oauth.ErrDecodingFailed, err)
	}
	if set.Keys == nil {
		return nil, oauth.Wrap(oauth.ErrDecodingFailed, errors.New("jwks has no keys member"))
	}
	return &set, nil
}
