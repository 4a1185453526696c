package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()
	m.BarsRejected("malformed", 2)
	m.BarsRejected("malformed", 1)
	m.PositionClosed("stop loss")
	m.PositionsOpen(3)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.barsRejected.WithLabelValues("malformed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.closes.WithLabelValues("stop loss")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.positionsOpen))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.Signal("alerted")
	m.CycleDuration("scan", 1.2)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `coinsentinel_signals_total{outcome="alerted"} 1`)
	assert.Contains(t, string(body), "coinsentinel_cycle_duration_seconds_bucket")
	assert.Contains(t, string(body), "go_goroutines")
}
