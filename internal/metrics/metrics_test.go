package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	c.ObserveRequest(OutcomeRetried)
	c.ObserveRefresh(RefreshSuccess)
	c.ObserveExchange()

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make([]string, 0, len(families))
	for _, family := range families {
		names = append(names, family.GetName())
	}
	assert.ElementsMatch(t, []string{
		"learnflow_gateway_requests_total",
		"learnflow_refresh_total",
		"learnflow_refresh_exchanges_total",
	}, names)
}

func TestNew_TwoRegistriesDoNotConflict(t *testing.T) {
	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}

func TestObserve_Counts(t *testing.T) {
	c := Nop()

	c.ObserveRequest(OutcomeSuccess)
	c.ObserveRequest(OutcomeSuccess)
	c.ObserveRefresh(RefreshNoToken)

	assert.Equal(t, float64(2), testutil.ToFloat64(c.GatewayRequests.WithLabelValues(OutcomeSuccess)))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.Refreshes.WithLabelValues(RefreshNoToken)))
	assert.Equal(t, float64(0), testutil.ToFloat64(c.Exchanges))
}

func TestObserve_NilCollectorsAreSafe(t *testing.T) {
	var c *Collectors

	assert.NotPanics(t, func() {
		c.ObserveRequest(OutcomeSuccess)
		c.ObserveRefresh(RefreshFailed)
		c.ObserveExchange()
	})
}

func TestStatusOutcome(t *testing.T) {
	tests := []struct {
		status int
		want   string
	}{
		{200, OutcomeSuccess},
		{204, OutcomeSuccess},
		{302, OutcomeHTTPError},
		{404, OutcomeHTTPError},
		{500, OutcomeHTTPError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusOutcome(tt.status), "status %d", tt.status)
	}
}
