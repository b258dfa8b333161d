// Package redirect rendezvous a launched browser flow with the redirect
// callback that completes it.
//
// A Bridge holds at most one pending attempt. Launching a new attempt
// cancels the previous one with oauth.ErrUserCancelled, so successive logins
// follow a last-request-wins policy and no caller is left waiting.
package redirect

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jeremyhahn/go-idverify/pkg/logging"
	"github.com/jeremyhahn/go-idverify/pkg/oauth"
	"go.uber.org/zap"
)

// Launcher opens the external browser surface on authURL. It returns once
// the surface is shown; the callback arrives later through the Bridge.
type Launcher interface {
	Launch(ctx context.Context, authURL string) error
}

// LauncherFunc adapts a function to Launcher.
type LauncherFunc func(ctx context.Context, authURL string) error

// Launch calls f.
func (f LauncherFunc) Launch(ctx context.Context, authURL string) error {
	return f(ctx, authURL)
}

type result struct {
	url string
	err error
}

// attempt is a one-shot slot. resolve succeeds at most once.
type attempt struct {
	id   string
	ch   chan result
	once sync.Once
}

func (a *attempt) resolve(r result) bool {
	resolved := false
	a.once.Do(func() {
		a.ch <- r
		resolved = true
	})
	return resolved
}

// Bridge is the single-slot rendezvous between Launch and OnRedirect.
type Bridge struct {
	launcher Launcher
	logger   *zap.Logger

	mu      sync.Mutex
	pending *attempt
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the bridge logger.
func WithLogger(l *zap.Logger) Option {
	return func(b *Bridge) { b.logger = logging.OrNop(l) }
}

// New creates a bridge that opens URLs with launcher.
func New(launcher Launcher, opts ...Option) *Bridge {
	b := &Bridge{launcher: launcher, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Launch installs a new pending attempt, cancelling any previous one, opens
// authURL and blocks until the callback URL arrives, OnCancel is called, a
// newer Launch supersedes it, or ctx is done. The slot is always cleared
// before Launch returns.
func (b *Bridge) Launch(ctx context.Context, authURL string) (string, error) {
	a := &attempt{id: uuid.NewString(), ch: make(chan result, 1)}
	log := b.logger.With(logging.AttemptID(a.id))

	b.mu.Lock()
	if prev := b.pending; prev != nil {
		if prev.resolve(result{err: fmt.Errorf("%w: superseded by attempt %s", oauth.ErrUserCancelled, a.id)}) {
			log.Info("cancelled previous login attempt", zap.String("previous_attempt_id", prev.id))
		}
	}
	b.pending = a
	b.mu.Unlock()
	defer b.clear(a)

	if err := b.launcher.Launch(ctx, authURL); err != nil {
		log.Warn("browser launch failed", zap.Error(err))
		return "", fmt.Errorf("launch browser: %w", err)
	}
	log.Debug("waiting for redirect")

	select {
	case r := <-a.ch:
		return r.url, r.err
	case <-ctx.Done():
		log.Info("login attempt abandoned", zap.Error(ctx.Err()))
		return "", fmt.Errorf("%w: %w", oauth.ErrUserCancelled, ctx.Err())
	}
}

// OnRedirect delivers a callback URL to the pending attempt. It reports
// false when nothing is waiting, which makes late or duplicate callbacks
// harmless.
func (b *Bridge) OnRedirect(callbackURL string) bool {
	a := b.current()
	if a == nil || !a.resolve(result{url: callbackURL}) {
		b.logger.Debug("ignoring redirect with no pending attempt")
		return false
	}
	return true
}

// OnCancel fails the pending attempt with oauth.ErrUserCancelled.
func (b *Bridge) OnCancel() bool {
	a := b.current()
	if a == nil {
		return false
	}
	return a.resolve(result{err: oauth.ErrUserCancelled})
}

// Pending returns the id of the waiting attempt.
func (b *Bridge) Pending() (string, bool) {
	a := b.current()
	if a == nil {
		return "", false
	}
	return a.id, true
}

func (b *Bridge) current() *attempt {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pending
}

func (b *Bridge) clear(a *attempt) {
	b.mu.Lock()
	if b.pending == a {
		b.pending = nil
	}
	b.mu.Unlock()
}
