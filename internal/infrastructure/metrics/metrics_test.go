package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Recording(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.IngestResult("ok")
	m.IngestResult("ok")
	m.IngestResult("auth failed")
	assert.Equal(t, 2.0, testutil.ToFloat64(m.IngestTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IngestTotal.WithLabelValues("auth failed")))

	m.ObserveAppend(3 * time.Millisecond)
	assert.Equal(t, 1, testutil.CollectAndCount(m.PartitionAppend))

	m.WatchdogPass(5, 2)
	m.WatchdogPass(4, 1)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.WatchdogRuns))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.WatchdogEvaluated))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WatchdogOffline))

	m.Alert("OFFLINE", true)
	m.Alert("RECOVER", false)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AlertsTotal.WithLabelValues("OFFLINE", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AlertsTotal.WithLabelValues("RECOVER", "false")))

	m.HTTPRequest("POST", "/ingest", 200, time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("POST", "/ingest", "200")))

	m.MirrorFailure()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MirrorWriteFailures))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.IngestResult("ok")
	m.ObserveAppend(time.Second)
	m.WatchdogPass(1, 1)
	m.Alert("OFFLINE", true)
	m.HTTPRequest("GET", "/", 200, 0)
	m.MirrorFailure()
}

func TestMetrics_Handler(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.IngestResult("ok")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `solarwatch_ingest_total{result="ok"} 1`), body)
}
