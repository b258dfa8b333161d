package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os/exec"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jeremyhahn/go-idverify/pkg/redirect"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	pageDone      = "Verification complete. You can close this window."
	pageCancelled = "Login cancelled. You can close this window."
	pageStale     = "No login is in progress."
)

// newCallbackRouter serves the redirect target on callbackPath, a cancel
// endpoint next to it and, when gatherer is set, /metrics.
func newCallbackRouter(bridge *redirect.Bridge, callbackPath string, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	if callbackPath == "" {
		callbackPath = "/"
	}

	r.Get(callbackPath, func(w http.ResponseWriter, req *http.Request) {
		callback := "http://" + req.Host + req.URL.RequestURI()
		if !bridge.OnRedirect(callback) {
			http.Error(w, pageStale, http.StatusGone)
			return
		}
		fmt.Fprintln(w, pageDone)
	})
	r.Get("/cancel", func(w http.ResponseWriter, req *http.Request) {
		if !bridge.OnCancel() {
			http.Error(w, pageStale, http.StatusGone)
			return
		}
		fmt.Fprintln(w, pageCancelled)
	})
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

// callbackServer listens on the redirect URI's host for the duration of a
// login.
type callbackServer struct {
	srv *http.Server
}

func startCallbackServer(redirectURI string, handler http.Handler, logger *zap.Logger) (*callbackServer, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" || !isLoopback(u.Hostname()) {
		return nil, fmt.Errorf("login needs a loopback http redirect uri, got %q", redirectURI)
	}

	ln, err := net.Listen("tcp", u.Host)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", u.Host, err)
	}
	s := &callbackServer{
		srv: &http.Server{Handler: handler, ReadHeaderTimeout: 10 * time.Second},
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("callback server stopped", zap.Error(err))
		}
	}()
	logger.Debug("callback server listening", zap.String("addr", ln.Addr().String()))
	return s, nil
}

func (s *callbackServer) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// browserLauncher prints the authorize URL and, unless printOnly is set,
// asks the desktop to open it. A failed open leaves the printed URL for the
// user to follow.
func browserLauncher(out io.Writer, printOnly bool, logger *zap.Logger) redirect.Launcher {
	return redirect.LauncherFunc(func(ctx context.Context, authURL string) error {
		fmt.Fprintf(out, "Open this URL to verify your identity:\n\n  %s\n\n", authURL)
		if printOnly {
			return nil
		}

		var cmd *exec.Cmd
		switch runtime.GOOS {
		case "darwin":
			cmd = exec.Command("open", authURL)
		case "windows":
			cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", authURL)
		default:
			cmd = exec.Command("xdg-open", authURL)
		}
		if err := cmd.Start(); err != nil {
			logger.Debug("could not open browser", zap.Error(err))
			return nil
		}
		go cmd.Wait()
		return nil
	})
}
