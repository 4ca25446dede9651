package metrics

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg)

	m.Observe("/api/v1/cart", http.MethodGet, http.StatusOK, 20*time.Millisecond)
	m.Observe("/api/v1/cart", http.MethodGet, http.StatusOK, 30*time.Millisecond)
	m.Observe("", http.MethodGet, http.StatusNotFound, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("/api/v1/cart", http.MethodGet, "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("unmatched", http.MethodGet, "404")))

	expected := `
# HELP partyshop_http_requests_total HTTP requests by route, method and status.
# TYPE partyshop_http_requests_total counter
partyshop_http_requests_total{method="GET",route="/api/v1/cart",status="200"} 2
partyshop_http_requests_total{method="GET",route="unmatched",status="404"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "partyshop_http_requests_total"))
}

func TestHTTPMetricsDurationHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg)
	m.Observe("/api/v1/orders", http.MethodPost, http.StatusCreated, 40*time.Millisecond)
	m.Observe("/api/v1/orders", http.MethodPost, http.StatusConflict, 3*time.Second)

	families, err := reg.Gather()
	require.NoError(t, err)
	var hist *dto.Histogram
	for _, mf := range families {
		if mf.GetName() == "partyshop_http_request_duration_seconds" {
			require.Len(t, mf.GetMetric(), 1)
			hist = mf.GetMetric()[0].GetHistogram()
		}
	}
	require.NotNil(t, hist)
	assert.Equal(t, uint64(2), hist.GetSampleCount())
	assert.InDelta(t, 3.04, hist.GetSampleSum(), 0.001)
	for _, b := range hist.GetBucket() {
		if b.GetUpperBound() == 0.05 {
			assert.Equal(t, uint64(1), b.GetCumulativeCount())
		}
	}
}

func TestHTTPMetricsWithoutRegisterer(t *testing.T) {
	assert.NotPanics(t, func() {
		NewHTTPMetrics(nil).Observe("/x", http.MethodGet, http.StatusOK, time.Millisecond)
	})
}
