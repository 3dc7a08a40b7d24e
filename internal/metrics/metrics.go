// Package metrics holds the Prometheus collectors for the session layer.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Gateway outcomes.
const (
	OutcomeSuccess      = "success"
	OutcomeHTTPError    = "http_error"
	OutcomeRetried      = "retried"
	OutcomeUnauthorized = "unauthorized"
	OutcomeNetworkError = "network_error"
)

// Refresh results.
const (
	RefreshSuccess    = "success"
	RefreshNoToken    = "no_token"
	RefreshFailed     = "failed"
	RefreshAbandoned  = "abandoned"
	RefreshSuperseded = "superseded"
)

// Collectors groups the session-layer counters.
type Collectors struct {
	GatewayRequests *prometheus.CounterVec
	Refreshes       *prometheus.CounterVec
	Exchanges       prometheus.Counter
}

// New creates the collectors and registers them on reg. A nil reg skips
// registration, which keeps tests from sharing the default registry.
func New(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		GatewayRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "learnflow",
			Name:      "gateway_requests_total",
			Help:      "Authenticated gateway calls by final outcome.",
		}, []string{"outcome"}),
		Refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "learnflow",
			Name:      "refresh_total",
			Help:      "Refresh protocol invocations by result.",
		}, []string{"result"}),
		Exchanges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "learnflow",
			Name:      "refresh_exchanges_total",
			Help:      "Refresh exchanges actually sent to the issuer.",
		}),
	}

	if reg != nil {
		reg.MustRegister(c.GatewayRequests, c.Refreshes, c.Exchanges)
	}

	return c
}

// Nop returns unregistered collectors.
func Nop() *Collectors {
	return New(nil)
}

// StatusOutcome classifies a final response that needed no refresh.
func StatusOutcome(status int) string {
	if status >= 200 && status <= 299 {
		return OutcomeSuccess
	}
	return OutcomeHTTPError
}

// ObserveRequest counts one gateway call.
func (c *Collectors) ObserveRequest(outcome string) {
	if c == nil {
		return
	}
	c.GatewayRequests.WithLabelValues(outcome).Inc()
}

// ObserveRefresh counts one refresh invocation.
func (c *Collectors) ObserveRefresh(result string) {
	if c == nil {
		return
	}
	c.Refreshes.WithLabelValues(result).Inc()
}

// ObserveExchange counts one issuer round trip.
func (c *Collectors) ObserveExchange() {
	if c == nil {
		return
	}
	c.Exchanges.Inc()
}
