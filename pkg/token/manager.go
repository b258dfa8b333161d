// Package token owns the current credentials of a session: it hydrates them
// lazily from a Store, persists new ones, and serves valid credentials,
// coalescing concurrent refreshes into a single token endpoint call.
package token

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/jeremyhahn/go-idverify/pkg/logging"
	"github.com/jeremyhahn/go-idverify/pkg/metrics"
	"github.com/jeremyhahn/go-idverify/pkg/oauth"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// DefaultMinTTL is the remaining lifetime below which credentials are refreshed.
const DefaultMinTTL = 60 * time.Second

// Store persists one set of credentials.
type Store interface {
	Save(ctx context.Context, creds *oauth.Credentials) error
	// Load returns nil, nil when nothing is stored.
	Load(ctx context.Context) (*oauth.Credentials, error)
	// Delete succeeds when nothing is stored.
	Delete(ctx context.Context) error
}

// Refresher redeems a refresh token. *oauth.TokenClient implements it.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*oauth.Credentials, error)
}

// flight is one in-progress refresh. creds and err are written by the
// owner before done is closed.
type flight struct {
	done   chan struct{}
	creds  *oauth.Credentials
	err    error
	cancel context.CancelFunc
}

// Manager serves the session's credentials. All mutable state sits behind
// mu; Credentials values are never mutated once published, so callers may
// keep the pointers they receive.
type Manager struct {
	store     Store
	refresher Refresher
	now       func() time.Time
	logger    *zap.Logger
	metrics   *metrics.Metrics

	mu         sync.Mutex
	persistMu  sync.Mutex
	current    *oauth.Credentials
	hydrated   bool
	inflight   *flight
	generation uint64
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the clock used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithLogger sets the manager logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) { m.logger = logging.OrNop(l) }
}

// WithMetrics records refresh outcomes on mt.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// NewManager creates a manager over store and refresher.
func NewManager(store Store, refresher Refresher, opts ...Option) *Manager {
	m := &Manager{
		store:     store,
		refresher: refresher,
		now:       time.Now,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Current returns the credentials in memory, loading them from the store on
// first use. It returns nil, nil when there are none.
func (m *Manager) Current(ctx context.Context) (*oauth.Credentials, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.hydrated {
		return m.current, nil
	}
	creds, err := m.store.Load(ctx)
	if err != nil {
		return nil, oauth.Wrap(oauth.ErrStorage, err)
	}
	m.current = creds
	m.hydrated = true
	return creds, nil
}

// Store replaces the credentials in memory and persists them.
//
// Persistence is fail-open: the in-memory value is updated even when the
// store write fails, keeping the session usable for this process. The
// returned ErrStorage error tells the caller the session will not survive a
// restart; treating it as fatal is the caller's choice.
//
// A refresh still running for the previous session is cancelled and its
// result discarded.
func (m *Manager) Store(ctx context.Context, creds *oauth.Credentials) error {
	m.mu.Lock()
	m.current = creds
	m.hydrated = true
	m.retire()
	gen := m.generation
	m.mu.Unlock()

	return m.persistIfCurrent(ctx, creds, gen)
}

// persistIfCurrent saves creds unless a newer Store or Clear has happened
// since gen. Saves are serialized so an older session never lands last.
func (m *Manager) persistIfCurrent(ctx context.Context, creds *oauth.Credentials, gen uint64) error {
	m.persistMu.Lock()
	defer m.persistMu.Unlock()

	m.mu.Lock()
	stale := m.generation != gen
	m.mu.Unlock()
	if stale {
		return nil
	}

	if err := m.store.Save(ctx, creds); err != nil {
		m.logger.Warn("credentials not persisted; continuing with in-memory session", zap.Error(err))
		return oauth.Wrap(oauth.ErrStorage, err)
	}
	return nil
}

// ValidCredentials returns credentials that stay valid for at least minTTL,
// refreshing them if needed. Concurrent callers share one refresh and all
// observe its result.
func (m *Manager) ValidCredentials(ctx context.Context, minTTL time.Duration) (*oauth.Credentials, error) {
	creds, err := m.Current(ctx)
	if err != nil {
		return nil, err
	}
	if creds == nil {
		return nil, oauth.ErrNotAuthenticated
	}
	if !creds.ExpiresWithin(m.now(), minTTL) {
		return creds, nil
	}

	m.mu.Lock()
	// Re-check: another caller may have refreshed or cleared meanwhile.
	creds = m.current
	if creds == nil {
		m.mu.Unlock()
		return nil, oauth.ErrNotAuthenticated
	}
	if !creds.ExpiresWithin(m.now(), minTTL) {
		m.mu.Unlock()
		return creds, nil
	}
	if f := m.inflight; f != nil {
		m.mu.Unlock()
		m.metrics.ObserveCoalescedRefresh()
		return wait(ctx, f)
	}
	if !creds.CanRefresh() {
		m.mu.Unlock()
		return nil, oauth.ErrRefreshTokenExpired
	}

	refreshCtx, cancel := context.WithCancel(ctx)
	f := &flight{
		done:   make(chan struct{}),
		err:    fmt.Errorf("%w: refresh aborted", oauth.ErrTokenRefreshFailed),
		cancel: cancel,
	}
	m.inflight = f
	gen := m.generation
	m.mu.Unlock()

	defer func() {
		cancel()
		m.mu.Lock()
		if m.inflight == f {
			m.inflight = nil
		}
		m.mu.Unlock()
		close(f.done)
	}()

	f.creds, f.err = m.refresh(refreshCtx, creds, gen)
	return f.creds, f.err
}

// refresh performs the network call and publishes the result unless the
// session was cleared while it ran.
func (m *Manager) refresh(ctx context.Context, old *oauth.Credentials, gen uint64) (*oauth.Credentials, error) {
	m.logger.Debug("refreshing credentials", zap.Time("expires_at", old.ExpiresAt))

	next, err := m.refresher.Refresh(ctx, old.RefreshToken)
	m.metrics.ObserveRefresh(err)
	if ok, cur, serr := m.superseded(gen); ok {
		m.logger.Debug("discarding refresh of a replaced session")
		return cur, serr
	}
	if err != nil {
		m.logger.Warn("credential refresh failed", zap.String("result", metrics.Result(err)))
		if grantRejected(err) {
			m.drop(ctx, gen)
		}
		return nil, err
	}

	if next.RefreshToken == "" {
		carried := *next
		carried.RefreshToken = old.RefreshToken
		next = &carried
	}

	m.mu.Lock()
	if m.generation != gen {
		m.mu.Unlock()
		_, cur, serr := m.superseded(gen)
		return cur, serr
	}
	m.current = next
	m.hydrated = true
	m.mu.Unlock()

	// Fail-open, as in Store.
	_ = m.persistIfCurrent(ctx, next, gen)
	return next, nil
}

// grantRejected reports a refresh the token endpoint refused outright, as
// opposed to a transient failure worth retrying.
func grantRejected(err error) bool {
	var se *oauth.StatusError
	return errors.As(err, &se) &&
		(se.StatusCode == http.StatusBadRequest || se.StatusCode == http.StatusUnauthorized)
}

// drop discards a session whose refresh grant was rejected.
func (m *Manager) drop(ctx context.Context, gen uint64) {
	m.mu.Lock()
	if m.generation != gen {
		m.mu.Unlock()
		return
	}
	m.current = nil
	m.hydrated = true
	m.generation++
	m.mu.Unlock()

	m.persistMu.Lock()
	defer m.persistMu.Unlock()
	if err := m.store.Delete(context.WithoutCancel(ctx)); err != nil {
		m.logger.Warn("failed to delete rejected credentials", zap.Error(err))
	}
}

func wait(ctx context.Context, f *flight) (*oauth.Credentials, error) {
	select {
	case <-f.done:
		return f.creds, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Clear drops the in-memory credentials, cancels any in-flight refresh and
// deletes the stored copy. It is idempotent.
func (m *Manager) Clear(ctx context.Context) error {
	m.mu.Lock()
	m.current = nil
	m.hydrated = true
	m.retire()
	m.mu.Unlock()

	m.persistMu.Lock()
	defer m.persistMu.Unlock()
	if err := m.store.Delete(ctx); err != nil {
		return oauth.Wrap(oauth.ErrStorage, err)
	}
	return nil
}

// retire starts a new session generation and detaches the in-flight
// refresh. m.mu must be held.
func (m *Manager) retire() {
	m.generation++
	if f := m.inflight; f != nil {
		f.cancel()
		m.inflight = nil
	}
}

// superseded reports whether the session changed since gen. When it did,
// the newer credentials are returned, or ErrNotAuthenticated if the
// session was cleared.
func (m *Manager) superseded(gen uint64) (bool, *oauth.Credentials, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generation == gen {
		return false, nil, nil
	}
	if m.current == nil {
		return true, nil, fmt.Errorf("%w: session cleared during refresh", oauth.ErrNotAuthenticated)
	}
	return true, m.current, nil
}

// Token implements oauth2.TokenSource.
func (m *Manager) Token() (*oauth2.Token, error) {
	creds, err := m.ValidCredentials(context.Background(), DefaultMinTTL)
	if err != nil {
		return nil, err
	}
	return creds.Token(), nil
}

var _ oauth2.TokenSource = (*Manager)(nil)
