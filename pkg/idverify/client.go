// Package idverify is the entry point of the SDK. A Client runs the browser
// login, keeps the resulting session fresh, and reads the verified identity
// and attributes of the signed-in user.
//
//	bridge := redirect.New(launcher)
//	client, err := idverify.New(oauth.Config{
//		ClientID:    "client-id",
//		RedirectURI: "http://127.0.0.1:8976/callback",
//		Scopes:      []string{oauth.ScopeMilitary},
//	}, bridge)
//	creds, err := client.Login(ctx)
//
// The host application captures the redirect and hands it to
// bridge.OnRedirect.
package idverify

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jeremyhahn/go-idverify/pkg/idtoken"
	"github.com/jeremyhahn/go-idverify/pkg/logging"
	"github.com/jeremyhahn/go-idverify/pkg/metrics"
	"github.com/jeremyhahn/go-idverify/pkg/oauth"
	"github.com/jeremyhahn/go-idverify/pkg/redirect"
	"github.com/jeremyhahn/go-idverify/pkg/store"
	"github.com/jeremyhahn/go-idverify/pkg/token"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// Client coordinates logins and authenticated requests for one client
// registration.
type Client struct {
	cfg       oauth.Config
	provider  oauth.Provider
	bridge    *redirect.Bridge
	transport oauth.Transport
	store     token.Store
	keys      idtoken.KeySource
	now       func() time.Time
	logger    *zap.Logger
	metrics   *metrics.Metrics

	tokens    *oauth.TokenClient
	validator *idtoken.Validator
	manager   *token.Manager
}

// Option configures a Client.
type Option func(*Client)

// WithTransport replaces the HTTP transport built from the configuration.
func WithTransport(t oauth.Transport) Option {
	return func(c *Client) { c.transport = t }
}

// WithStore persists the session in s. The default keeps it in memory.
func WithStore(s token.Store) Option {
	return func(c *Client) { c.store = s }
}

// WithKeySource replaces the JWKS cache used to verify identity tokens.
func WithKeySource(k idtoken.KeySource) Option {
	return func(c *Client) { c.keys = k }
}

// WithClock overrides the clock used for expiry decisions.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithLogger sets the logger shared by the client's components.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = logging.OrNop(l) }
}

// WithMetrics records outcomes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// New creates a client for cfg. The configuration is checked when Login
// runs, so an invalid one fails before any network traffic.
func New(cfg oauth.Config, bridge *redirect.Bridge, opts ...Option) (*Client, error) {
	if bridge == nil {
		return nil, errors.New("idverify: redirect bridge is required")
	}
	cfg = cfg.WithDefaults()
	c := &Client{
		cfg:      cfg,
		provider: cfg.Endpoints(),
		bridge:   bridge,
		now:      time.Now,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.transport == nil {
		c.transport = oauth.NewTransport(cfg)
	}
	if c.store == nil {
		c.store = store.NewMemory()
	}
	if c.keys == nil {
		c.keys = idtoken.NewCache(c.transport, c.provider.JWKSURL(),
			idtoken.WithLogger(c.logger),
			idtoken.WithMetrics(c.metrics))
	}

	c.tokens = oauth.NewTokenClient(cfg, c.transport, oauth.WithClock(c.now))
	c.validator = idtoken.NewValidator(c.keys, c.provider.Issuer(), cfg.ClientID,
		idtoken.WithClock(c.now),
		idtoken.WithValidatorLogger(c.logger),
		idtoken.WithValidatorMetrics(c.metrics))
	c.manager = token.NewManager(c.store, c.tokens,
		token.WithClock(c.now),
		token.WithLogger(c.logger),
		token.WithMetrics(c.metrics))
	return c, nil
}

// Config returns the defaulted configuration.
func (c *Client) Config() oauth.Config { return c.cfg }

// Bridge returns the rendezvous the host feeds redirects into.
func (c *Client) Bridge() *redirect.Bridge { return c.bridge }

// Login runs the browser flow and stores the resulting session. Starting a
// new Login cancels any attempt still waiting for its redirect.
func (c *Client) Login(ctx context.Context) (creds *oauth.Credentials, err error) {
	defer func() { c.metrics.ObserveLogin(err) }()
	log := logging.From(ctx, c.logger)

	if err := c.cfg.Validate(); err != nil {
		return nil, err
	}

	cfg := c.cfg
	if cfg.Mode == oauth.ModeOIDC {
		cfg.Scopes = cfg.ScopesWithOpenID()
	}
	req, err := oauth.NewAuthorizationRequest(cfg)
	if err != nil {
		return nil, err
	}

	log.Info("starting login",
		zap.String("mode", string(cfg.Mode)),
		zap.String("verification_type", string(req.VerificationType)))

	callback, err := c.bridge.Launch(ctx, req.URL)
	if err != nil {
		return nil, err
	}
	code, err := oauth.ParseCallback(callback, req.State)
	if err != nil {
		return nil, err
	}

	creds, resp, err := c.tokens.Exchange(ctx, code, req.CodeVerifier())
	if err != nil {
		return nil, err
	}
	if cfg.Mode == oauth.ModeOIDC && resp.IDToken != "" {
		if _, err := c.validator.Validate(ctx, resp.IDToken, req.Nonce); err != nil {
			return nil, err
		}
	}

	if err := c.manager.Store(ctx, creds); err != nil {
		log.Warn("login succeeded but session was not persisted", zap.Error(err))
	}
	log.Info("login successful")
	return creds, nil
}

// Credentials returns credentials valid for at least minTTL, refreshing
// them when needed. Zero uses token.DefaultMinTTL.
func (c *Client) Credentials(ctx context.Context, minTTL time.Duration) (*oauth.Credentials, error) {
	if minTTL <= 0 {
		minTTL = token.DefaultMinTTL
	}
	return c.manager.ValidCredentials(ctx, minTTL)
}

// CurrentCredentials returns the stored session as-is, or nil.
func (c *Client) CurrentCredentials(ctx context.Context) (*oauth.Credentials, error) {
	return c.manager.Current(ctx)
}

// Logout drops the session from memory and from the store.
func (c *Client) Logout(ctx context.Context) error {
	err := c.manager.Clear(ctx)
	if err != nil {
		logging.From(ctx, c.logger).Warn("logout could not clear the store", zap.Error(err))
		return err
	}
	logging.From(ctx, c.logger).Info("logged out")
	return nil
}

// HTTPClient returns a client that attaches the session's access token to
// each request, refreshing it as it nears expiry.
func (c *Client) HTTPClient(ctx context.Context) *http.Client {
	return oauth2.NewClient(ctx, c.manager)
}

// IsCancellation reports whether err means the user abandoned the login.
// Hosts treat it as a non-error.
func IsCancellation(err error) bool {
	return errors.Is(err, oauth.ErrUserCancelled)
}
