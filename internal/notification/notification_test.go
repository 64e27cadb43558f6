package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdevs17/qrcode-generator/internal/config"
	"github.com/smartdevs17/qrcode-generator/internal/metrics"
	"github.com/smartdevs17/qrcode-generator/internal/models"
)

type fakeSource struct {
	events chan models.HistoryEvent
}

func (f *fakeSource) Subscribe(ctx context.Context, buffer int) <-chan models.HistoryEvent {
	return f.events
}

type recordingServer struct {
	*httptest.Server
	mu       sync.Mutex
	payloads []WebhookPayload
	headers  []http.Header
	calls    int32
}

func newRecordingServer(t *testing.T, status func(call int32) int) *recordingServer {
	rs := &recordingServer{}
	rs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		call := atomic.AddInt32(&rs.calls, 1)

		var p WebhookPayload
		if err := json.NewDecoder(r.Body).Decode(&p); err == nil {
			rs.mu.Lock()
			rs.payloads = append(rs.payloads, p)
			rs.headers = append(rs.headers, r.Header.Clone())
			rs.mu.Unlock()
		}
		w.WriteHeader(status(call))
	}))
	t.Cleanup(rs.Close)
	return rs
}

func (rs *recordingServer) received() []WebhookPayload {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return append([]WebhookPayload(nil), rs.payloads...)
}

func testConfig(urls ...string) *config.NotificationConfig {
	return &config.NotificationConfig{
		Enabled:       true,
		Webhooks:      urls,
		Headers:       map[string]string{"Authorization": "Bearer secret"},
		QueueSize:     8,
		Timeout:       time.Second,
		RetryAttempts: 3,
		RetryDelay:    time.Millisecond,
	}
}

func TestSendDeliversPayloadAndHeaders(t *testing.T) {
	srv := newRecordingServer(t, func(int32) int { return http.StatusOK })
	sender := NewWebhookSender(testConfig(srv.URL), NewNotificationLogger())

	qr := &models.QRCode{ID: 7, Content: "https://example.com", Type: models.QRCodeTypeURL, IsGenerated: true}
	payload := BuildPayload(models.HistoryEvent{Action: models.HistoryActionCreated, QRCode: qr, At: time.Now()})

	require.NoError(t, sender.Send(context.Background(), srv.URL, payload))

	got := srv.received()
	require.Len(t, got, 1)
	assert.Equal(t, "created", got[0].Event)
	assert.Equal(t, "qrcode-generator", got[0].Source)
	assert.Equal(t, "history_event", got[0].Type)
	assert.Equal(t, "1.0", got[0].Version)
	require.NotNil(t, got[0].Data.QRCode)
	assert.Equal(t, "https://example.com", got[0].Data.QRCode.Content)

	srv.mu.Lock()
	h := srv.headers[0]
	srv.mu.Unlock()
	assert.Equal(t, "Bearer secret", h.Get("Authorization"))
	assert.Equal(t, "application/json", h.Get("Content-Type"))
	assert.NotEmpty(t, h.Get("X-Request-ID"))
	assert.NotEmpty(t, h.Get("X-Timestamp"))
}

func TestSendRetriesServerErrors(t *testing.T) {
	srv := newRecordingServer(t, func(call int32) int {
		if call < 3 {
			return http.StatusInternalServerError
		}
		return http.StatusNoContent
	})
	sender := NewWebhookSender(testConfig(srv.URL), NewNotificationLogger())

	err := sender.Send(context.Background(), srv.URL, BuildPayload(models.HistoryEvent{Action: models.HistoryActionCleared, Count: 4}))
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&srv.calls))
}

func TestSendDoesNotRetryClientErrors(t *testing.T) {
	srv := newRecordingServer(t, func(int32) int { return http.StatusBadRequest })
	sender := NewWebhookSender(testConfig(srv.URL), NewNotificationLogger())

	err := sender.Send(context.Background(), srv.URL, BuildPayload(models.HistoryEvent{Action: models.HistoryActionDeleted}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status: 400")
	assert.Equal(t, int32(1), atomic.LoadInt32(&srv.calls))
}

func TestSendGivesUpAfterMaxAttempts(t *testing.T) {
	srv := newRecordingServer(t, func(int32) int { return http.StatusServiceUnavailable })
	sender := NewWebhookSender(testConfig(srv.URL), NewNotificationLogger())

	err := sender.Send(context.Background(), srv.URL, BuildPayload(models.HistoryEvent{Action: models.HistoryActionDeleted}))
	require.Error(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&srv.calls))
}

func TestCalculateRetryDelay(t *testing.T) {
	sender := NewWebhookSender(&config.NotificationConfig{RetryAttempts: 5, RetryDelay: time.Second}, NewNotificationLogger())

	assert.Equal(t, time.Second, sender.calculateRetryDelay(2))
	assert.Equal(t, 2*time.Second, sender.calculateRetryDelay(3))
	assert.Equal(t, 4*time.Second, sender.calculateRetryDelay(4))

	sender.retry.MaxDelay = 3 * time.Second
	assert.Equal(t, 3*time.Second, sender.calculateRetryDelay(4))

	sender.retry.Backoff = "linear"
	assert.Equal(t, 2*time.Second, sender.calculateRetryDelay(3))
}

func TestNotifierForwardsEvents(t *testing.T) {
	ok := newRecordingServer(t, func(int32) int { return http.StatusOK })
	broken := newRecordingServer(t, func(int32) int { return http.StatusNotFound })

	source := &fakeSource{events: make(chan models.HistoryEvent, 4)}
	mm := metrics.NewManagerWithRegistry(prometheus.NewRegistry())

	n, err := NewNotifier(testConfig(ok.URL, broken.URL), source, mm)
	require.NoError(t, err)
	require.NoError(t, n.Start(context.Background()))
	assert.True(t, n.IsRunning())
	assert.Error(t, n.Start(context.Background()))

	source.events <- models.HistoryEvent{Action: models.HistoryActionCreated, QRCode: &models.QRCode{ID: 1, Content: "hello"}}

	assert.Eventually(t, func() bool {
		return n.GetStats().Delivered == 1 && n.GetStats().Failed == 1
	}, 2*time.Second, 10*time.Millisecond)

	n.Stop()
	assert.False(t, n.IsRunning())
	n.Stop()

	pm := mm.GetPrometheusMetrics()
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.NotificationsSentTotal.WithLabelValues("created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.NotificationFailuresTotal.WithLabelValues("created", "EXTERNAL_ERROR")))
	require.Len(t, ok.received(), 1)
	assert.Equal(t, "hello", ok.received()[0].Data.QRCode.Content)
}

func TestValidateConfig(t *testing.T) {
	assert.Error(t, ValidateConfig(nil))
	assert.Error(t, ValidateConfig(&config.NotificationConfig{}))
	assert.Error(t, ValidateConfig(&config.NotificationConfig{Webhooks: []string{""}}))
	assert.NoError(t, ValidateConfig(testConfig("http://localhost/hook")))

	_, err := NewNotifier(&config.NotificationConfig{}, &fakeSource{}, nil)
	assert.Error(t, err)
}
