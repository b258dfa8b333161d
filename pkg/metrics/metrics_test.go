package metrics

import (
	"errors"
	"testing"

	"github.com/jeremyhahn/go-idverify/pkg/oauth"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestResult(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{errors.New("boom"), "unknown"},
		{oauth.ErrStateMismatch, "state_mismatch"},
		{oauth.ErrMissingClientSecret, "client_secret_is_required"},
		{&oauth.StatusError{Kind: oauth.ErrTokenRefreshFailed, StatusCode: 400}, "token_refresh_failed"},
		{oauth.Wrap(oauth.ErrNetwork, errors.New("refused")), "network_error"},
	}
	for _, tt := range tests {
		if got := Result(tt.err); got != tt.want {
			t.Errorf("Result(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestMetrics_Observe(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	m.ObserveLogin(nil)
	m.ObserveLogin(oauth.ErrUserCancelled)
	m.ObserveRefresh(nil)
	m.ObserveCoalescedRefresh()
	m.ObserveCoalescedRefresh()
	m.ObserveJWKSFetch(oauth.Wrap(oauth.ErrDecodingFailed, errors.New("x")))
	m.ObserveIDTokenValidation(nil)

	if got := testutil.ToFloat64(m.Logins.WithLabelValues("ok")); got != 1 {
		t.Errorf("Expected 1 ok login, got %v", got)
	}
	if got := testutil.ToFloat64(m.Logins.WithLabelValues("user_cancelled")); got != 1 {
		t.Errorf("Expected 1 cancelled login, got %v", got)
	}
	if got := testutil.ToFloat64(m.Refreshes.WithLabelValues(ResultCoalesced)); got != 2 {
		t.Errorf("Expected 2 coalesced refreshes, got %v", got)
	}
	if got := testutil.ToFloat64(m.JWKSFetches.WithLabelValues("decoding_failed")); got != 1 {
		t.Errorf("Expected 1 failed jwks fetch, got %v", got)
	}
}

func TestMetrics_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := New(reg); err != nil {
		t.Fatal(err)
	}
	if _, err := New(reg); err == nil {
		t.Error("Expected duplicate registration to fail")
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.ObserveLogin(nil)
	m.ObserveRefresh(nil)
	m.ObserveCoalescedRefresh()
	m.ObserveJWKSFetch(nil)
	m.ObserveIDTokenValidation(nil)
}
