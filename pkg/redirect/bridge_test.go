package redirect

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jeremyhahn/go-idverify/pkg/oauth"
)

// signalLauncher reports every launched URL on a channel.
type signalLauncher struct {
	launched chan string
	err      error
}

func newSignalLauncher() *signalLauncher {
	return &signalLauncher{launched: make(chan string, 4)}
}

func (l *signalLauncher) Launch(ctx context.Context, authURL string) error {
	if l.err != nil {
		return l.err
	}
	l.launched <- authURL
	return nil
}

type launchResult struct {
	url string
	err error
}

func launchAsync(b *Bridge, ctx context.Context, url string) <-chan launchResult {
	out := make(chan launchResult, 1)
	go func() {
		u, err := b.Launch(ctx, url)
		out <- launchResult{u, err}
	}()
	return out
}

func awaitLaunch(t *testing.T, l *signalLauncher) string {
	t.Helper()
	select {
	case u := <-l.launched:
		return u
	case <-time.After(2 * time.Second):
		t.Fatal("browser was never launched")
		return ""
	}
}

func awaitResult(t *testing.T, ch <-chan launchResult) launchResult {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("Launch did not return")
		return launchResult{}
	}
}

func TestBridge_RedirectResolvesLaunch(t *testing.T) {
	l := newSignalLauncher()
	b := New(l)

	done := launchAsync(b, context.Background(), "https://idp/authorize")
	if got := awaitLaunch(t, l); got != "https://idp/authorize" {
		t.Errorf("Launched %q", got)
	}
	if _, ok := b.Pending(); !ok {
		t.Fatal("Expected a pending attempt")
	}

	if !b.OnRedirect("myapp://callback?code=c&state=s") {
		t.Fatal("OnRedirect() should resolve the pending attempt")
	}
	r := awaitResult(t, done)
	if r.err != nil || r.url != "myapp://callback?code=c&state=s" {
		t.Errorf("Unexpected result %+v", r)
	}
	if _, ok := b.Pending(); ok {
		t.Error("Slot must be cleared after Launch returns")
	}
}

func TestBridge_SpuriousCallbacks(t *testing.T) {
	b := New(newSignalLauncher())
	if b.OnRedirect("myapp://callback?code=late") {
		t.Error("OnRedirect() with nothing pending should be a no-op")
	}
	if b.OnCancel() {
		t.Error("OnCancel() with nothing pending should be a no-op")
	}
}

func TestBridge_DuplicateRedirect(t *testing.T) {
	l := newSignalLauncher()
	b := New(l)
	done := launchAsync(b, context.Background(), "u")
	awaitLaunch(t, l)

	first := b.OnRedirect("first")
	second := b.OnRedirect("second")
	if !first || second {
		t.Errorf("Expected only first redirect to resolve, got %v %v", first, second)
	}
	if r := awaitResult(t, done); r.url != "first" {
		t.Errorf("Expected first callback, got %q", r.url)
	}
}

func TestBridge_OnCancel(t *testing.T) {
	l := newSignalLauncher()
	b := New(l)
	done := launchAsync(b, context.Background(), "u")
	awaitLaunch(t, l)

	b.OnCancel()
	if r := awaitResult(t, done); !errors.Is(r.err, oauth.ErrUserCancelled) {
		t.Errorf("Expected ErrUserCancelled, got %v", r.err)
	}
}

func TestBridge_SecondLaunchCancelsFirst(t *testing.T) {
	l := newSignalLauncher()
	b := New(l)

	first := launchAsync(b, context.Background(), "first")
	awaitLaunch(t, l)
	firstID, _ := b.Pending()

	second := launchAsync(b, context.Background(), "second")
	awaitLaunch(t, l)

	if r := awaitResult(t, first); !errors.Is(r.err, oauth.ErrUserCancelled) {
		t.Fatalf("First caller should be cancelled, got %+v", r)
	}

	secondID, ok := b.Pending()
	if !ok || secondID == firstID {
		t.Fatalf("Expected second attempt pending, got %q (first %q)", secondID, firstID)
	}

	b.OnRedirect("cb")
	if r := awaitResult(t, second); r.err != nil || r.url != "cb" {
		t.Errorf("Second caller should receive the callback, got %+v", r)
	}
}

func TestBridge_ContextCancellation(t *testing.T) {
	l := newSignalLauncher()
	b := New(l)

	ctx, cancel := context.WithCancel(context.Background())
	done := launchAsync(b, ctx, "u")
	awaitLaunch(t, l)
	cancel()

	r := awaitResult(t, done)
	if !errors.Is(r.err, oauth.ErrUserCancelled) || !errors.Is(r.err, context.Canceled) {
		t.Errorf("Expected ErrUserCancelled wrapping context.Canceled, got %v", r.err)
	}
	if _, ok := b.Pending(); ok {
		t.Error("Cancelled attempt left the slot occupied")
	}

	// A later attempt is not blocked by the stale waiter.
	next := launchAsync(b, context.Background(), "again")
	awaitLaunch(t, l)
	b.OnRedirect("ok")
	if r := awaitResult(t, next); r.url != "ok" {
		t.Errorf("Expected later attempt to succeed, got %+v", r)
	}
}

func TestBridge_LaunchFailureClearsSlot(t *testing.T) {
	l := newSignalLauncher()
	l.err = errors.New("no browser")
	b := New(l)

	_, err := b.Launch(context.Background(), "u")
	if err == nil || !errors.Is(err, l.err) {
		t.Fatalf("Expected launch error, got %v", err)
	}
	if _, ok := b.Pending(); ok {
		t.Error("Failed launch left the slot occupied")
	}
}

func TestBridge_RedirectBeforeLauncherReturns(t *testing.T) {
	var b *Bridge
	b = New(LauncherFunc(func(ctx context.Context, authURL string) error {
		// The redirect may race ahead of the launcher returning.
		b.OnRedirect("fast")
		return nil
	}))

	u, err := b.Launch(context.Background(), "u")
	if err != nil || u != "fast" {
		t.Errorf("Expected early redirect to be delivered, got %q %v", u, err)
	}
}
