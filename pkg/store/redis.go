package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jeremyhahn/go-idverify/pkg/oauth"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is used when no key is configured.
const DefaultRedisKey = "idverify:credentials"

// Redis stores credentials as JSON under one key, so several processes can
// share a session.
type Redis struct {
	client redis.Cmdable
	key    string
	// grace is added to the credential expiry to form the key TTL.
	grace time.Duration
}

// RedisOption configures a Redis store.
type RedisOption func(*Redis)

// WithKey overrides DefaultRedisKey.
func WithKey(key string) RedisOption {
	return func(s *Redis) { s.key = key }
}

// WithExpiryGrace keeps the key for d past the access token expiry so a
// refresh token remains available. Zero stores without expiry.
func WithExpiryGrace(d time.Duration) RedisOption {
	return func(s *Redis) { s.grace = d }
}

// NewRedis creates a store over client.
func NewRedis(client redis.Cmdable, opts ...RedisOption) *Redis {
	s := &Redis{client: client, key: DefaultRedisKey}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Redis) Save(ctx context.Context, creds *oauth.Credentials) error {
	data, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("store: marshal credentials: %w", err)
	}

	var ttl time.Duration
	if s.grace > 0 {
		ttl = time.Until(creds.ExpiresAt) + s.grace
		if ttl <= 0 {
			ttl = s.grace
		}
	}
	if err := s.client.Set(ctx, s.key, data, ttl).Err(); err != nil {
		return fmt.Errorf("store: redis set %q: %w", s.key, err)
	}
	return nil
}

func (s *Redis) Load(ctx context.Context) (*oauth.Credentials, error) {
	raw, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: redis get %q: %w", s.key, err)
	}

	var creds oauth.Credentials
	if err := json.Unmarshal(raw, &creds); err != nil {
		return nil, fmt.Errorf("store: unmarshal %q: %w", s.key, err)
	}
	return &creds, nil
}

func (s *Redis) Delete(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("store: redis del %q: %w", s.key, err)
	}
	return nil
}
