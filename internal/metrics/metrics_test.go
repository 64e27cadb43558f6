package metrics

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerRecordsAndServes(t *testing.T) {
	m := NewManagerWithRegistry(prometheus.NewRegistry())
	p := m.GetPrometheusMetrics()

	p.RecordGenerated("url", 10*time.Millisecond)
	p.RecordGenerated("url", 5*time.Millisecond)
	p.RecordScanned("text", "upload")
	p.RecordDecode("upload", "not_found", time.Millisecond)
	p.RecordFrameDropped()
	p.RecordCacheLookup("hit")
	p.UpdateHistoryRecords(42)
	p.UpdateComponentHealth("storage", true)
	m.UpdateSystemMetrics()

	assert.Equal(t, 2.0, testutil.ToFloat64(p.QRCodesGeneratedTotal.WithLabelValues("url")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.DecodeFailuresTotal.WithLabelValues("upload", "not_found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.FramesDroppedTotal))
	assert.Equal(t, 42.0, testutil.ToFloat64(p.HistoryRecords))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.ComponentHealth.WithLabelValues("storage")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "qrcode_generated_total")
	assert.Contains(t, rec.Body.String(), "qrcode_goroutines")
}

func TestSeparateRegistriesDoNotCollide(t *testing.T) {
	assert.NotPanics(t, func() {
		NewManagerWithRegistry(prometheus.NewRegistry())
		NewManagerWithRegistry(prometheus.NewRegistry())
	})
}
