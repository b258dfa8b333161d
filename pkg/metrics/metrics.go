// Package metrics exposes Prometheus counters for login, refresh, key set
// and identity token outcomes. A nil *Metrics is valid and records nothing.
package metrics

import (
	"strings"

	"github.com/jeremyhahn/go-idverify/pkg/oauth"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "idverify"

// Result label values besides error kinds.
const (
	ResultOK        = "ok"
	ResultCoalesced = "coalesced"
	ResultUnknown   = "unknown"
)

// Metrics groups the SDK's collectors.
type Metrics struct {
	Logins             *prometheus.CounterVec
	Refreshes          *prometheus.CounterVec
	JWKSFetches        *prometheus.CounterVec
	IDTokenValidations *prometheus.CounterVec
}

// New creates the collectors and registers them on reg. A nil reg uses
// prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		Logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logins_total",
			Help:      "Login attempts by result",
		}, []string{"result"}),
		Refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_refreshes_total",
			Help:      "Credential refreshes by result; coalesced counts callers that joined an in-flight refresh",
		}, []string{"result"}),
		JWKSFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jwks_fetches_total",
			Help:      "Key set fetches by result",
		}, []string{"result"}),
		IDTokenValidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "id_token_validations_total",
			Help:      "Identity token validations by result",
		}, []string{"result"}),
	}

	for _, c := range []prometheus.Collector{m.Logins, m.Refreshes, m.JWKSFetches, m.IDTokenValidations} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ObserveLogin records a login outcome.
func (m *Metrics) ObserveLogin(err error) {
	if m == nil {
		return
	}
	m.Logins.WithLabelValues(Result(err)).Inc()
}

// ObserveRefresh records a refresh outcome.
func (m *Metrics) ObserveRefresh(err error) {
	if m == nil {
		return
	}
	m.Refreshes.WithLabelValues(Result(err)).Inc()
}

// ObserveCoalescedRefresh records a caller that waited on another's refresh.
func (m *Metrics) ObserveCoalescedRefresh() {
	if m == nil {
		return
	}
	m.Refreshes.WithLabelValues(ResultCoalesced).Inc()
}

// ObserveJWKSFetch records a key set fetch outcome.
func (m *Metrics) ObserveJWKSFetch(err error) {
	if m == nil {
		return
	}
	m.JWKSFetches.WithLabelValues(Result(err)).Inc()
}

// ObserveIDTokenValidation records an identity token validation outcome.
func (m *Metrics) ObserveIDTokenValidation(err error) {
	if m == nil {
		return
	}
	m.IDTokenValidations.WithLabelValues(Result(err)).Inc()
}

// Result maps err to a low-cardinality label: "ok", the error kind in
// snake case (e.g. "state_mismatch"), or "unknown".
func Result(err error) string {
	if err == nil {
		return ResultOK
	}
	kind := oauth.Kind(err)
	if kind == nil {
		return ResultUnknown
	}
	label := strings.TrimPrefix(kind.Error(), "oauth: ")
	if i := strings.Index(label, " for "); i > 0 {
		label = label[:i]
	}
	return strings.ReplaceAll(label, " ", "_")
}
