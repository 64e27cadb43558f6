package viewstate

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/smartdevs17/qrcode-generator/internal/cache"
	"github.com/smartdevs17/qrcode-generator/internal/config"
	"github.com/smartdevs17/qrcode-generator/internal/metrics"
	"github.com/smartdevs17/qrcode-generator/internal/models"
	"github.com/smartdevs17/qrcode-generator/internal/qrcode"
	"github.com/smartdevs17/qrcode-generator/internal/repository"
	"github.com/smartdevs17/qrcode-generator/internal/storage"
	"github.com/smartdevs17/qrcode-generator/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 3 * time.Second
	tick    = 10 * time.Millisecond
)

func newTestRepository(t *testing.T) *repository.Repository {
	t.Helper()
	require.NoError(t, utils.InitLogger("error", "text", "stderr", ""))

	store, err := storage.NewStorage(&config.StorageConfig{
		Type:             "sqlite",
		ConnectionString: filepath.Join(t.TempDir(), "viewstate.db"),
		MaxConnections:   2,
		MaxIdleTime:      time.Minute,
	})
	require.NoError(t, err)
	require.NoError(t, store.Connect())
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Migrate())

	return repository.New(store)
}

func newTestRenderer(t *testing.T) *qrcode.Renderer {
	t.Helper()
	enc, err := qrcode.NewEncoder(&config.QRConfig{Size: 128, MaxSize: 512, ErrorCorrection: "L", Margin: 2})
	require.NoError(t, err)
	return qrcode.NewRenderer(enc, cache.NewMemoryCache(8, time.Minute), time.Minute, nil)
}

// failingRepo fails every call it overrides; anything else panics through the nil interface.
type failingRepo struct {
	repository.QRCodeRepository
	err error
}

func (f failingRepo) InsertQRCode(context.Context, *models.QRCode) (int64, error) { return 0, f.err }
func (f failingRepo) DeleteQRCode(context.Context, *models.QRCode) error { return f.err }
func (f failingRepo) DeleteAllQRCodes(context.Context) (int64, error) { return 0, f.err }
func (f failingRepo) GetQRCodeCount(context.Context) (int64, error) { return 0, f.err }

func (f failingRepo) Observe(ctx context.Context, _ models.QRCodeFilter) <-chan repository.Result {
	ch := make(chan repository.Result, 1)
	ch <- repository.Result{Err: f.err}
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch
}

// searchFailingRepo lists one record but fails every search.
type searchFailingRepo struct {
	repository.QRCodeRepository
	err error
}

func (f searchFailingRepo) Observe(ctx context.Context, filter models.QRCodeFilter) <-chan repository.Result {
	ch := make(chan repository.Result, 1)
	if filter.Query != "" {
		ch <- repository.Result{Err: f.err}
	} else {
		ch <- repository.Result{QRCodes: []*models.QRCode{{ID: 1, Content: "kept", Type: models.QRCodeTypeText}}}
	}
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch
}

func TestValueSubscribeDeliversLatest(t *testing.T) {
	v := NewValue(1)
	ctx, cancel := context.WithCancel(context.Background())

	ch := v.Subscribe(ctx)
	assert.Equal(t, 1, <-ch)

	v.Set(2)
	v.Set(3)
	assert.Equal(t, 3, <-ch)
	assert.Equal(t, 3, v.Get())

	assert.Equal(t, 4, v.Update(func(x int) int { return x + 1 }))
	assert.Equal(t, 4, <-ch)

	cancel()
	require.Eventually(t, func() bool {
		_, ok := <-ch
		return !ok
	}, waitFor, tick)

	// Setting after the subscriber left must not block or panic.
	v.Set(5)
}

func TestHistoryModelTracksRepository(t *testing.T) {
	repo := newTestRepository(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := NewHistoryModel(repo)
	m.Start(ctx)
	defer m.Stop()

	require.Eventually(t, func() bool { return !m.Loading.Get() }, waitFor, tick)
	assert.Empty(t, m.Records.Get())

	first := &models.QRCode{Content: "https://golang.org", Type: models.QRCodeTypeURL, IsGenerated: true}
	_, err := repo.InsertQRCode(ctx, first)
	require.NoError(t, err)
	_, err = repo.InsertQRCode(ctx, &models.QRCode{Content: "plain note", IsGenerated: false})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(m.Records.Get()) == 2 }, waitFor, tick)
	assert.Equal(t, "plain note", m.Records.Get()[0].Content)

	m.UpdateSearchQuery("golang")
	require.Eventually(t, func() bool {
		records := m.Records.Get()
		return len(records) == 1 && records[0].Content == "https://golang.org"
	}, waitFor, tick)
	assert.Equal(t, "golang", m.Snapshot().Query)

	m.UpdateSearchQuery("   ")
	require.Eventually(t, func() bool { return len(m.Records.Get()) == 2 }, waitFor, tick)

	require.NoError(t, m.Delete(ctx, first))
	require.Eventually(t, func() bool { return len(m.Records.Get()) == 1 }, waitFor, tick)

	n, err := m.DeleteAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	require.Eventually(t, func() bool { return len(m.Records.Get()) == 0 }, waitFor, tick)
	assert.Empty(t, m.Error.Get())
}

func TestHistoryModelErrors(t *testing.T) {
	require.NoError(t, utils.InitLogger("error", "text", "stderr", ""))
	repo := failingRepo{err: utils.NewAppError(utils.ErrCodeDatabase, "Database not connected")}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := NewHistoryModel(repo)
	m.Start(ctx)
	require.Eventually(t, func() bool { return m.Error.Get() == "Failed to load history: Database not connected" }, waitFor, tick)
	assert.False(t, m.Loading.Get())

	m.ClearError()
	m.UpdateSearchQuery("abc")
	require.Eventually(t, func() bool { return m.Error.Get() == "Search failed: Database not connected" }, waitFor, tick)

	assert.Error(t, m.Delete(ctx, &models.QRCode{ID: 1}))
	assert.Equal(t, "Failed to delete QR code: Database not connected", m.Error.Get())

	_, err := m.DeleteAll(ctx)
	assert.Error(t, err)
	assert.Equal(t, "Failed to clear history: Database not connected", m.Error.Get())

	// A failed search must not leave the previous results on screen.
	searching := NewHistoryModel(searchFailingRepo{err: errors.New("boom")})
	searching.Start(ctx)
	defer searching.Stop()
	require.Eventually(t, func() bool { return len(searching.Records.Get()) == 1 }, waitFor, tick)

	searching.UpdateSearchQuery("zzz")
	require.Eventually(t, func() bool { return searching.Error.Get() == "Search failed: boom" }, waitFor, tick)
	assert.Empty(t, searching.Records.Get())
	assert.False(t, searching.Loading.Get())
}

func TestSettingsModel(t *testing.T) {
	repo := newTestRepository(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := NewSettingsModel(repo, config.UIConfig{DarkTheme: true, AutoCopy: true})
	assert.True(t, m.DarkTheme.Get())
	assert.True(t, m.AutoCopy.Get())

	assert.False(t, m.ToggleTheme())
	assert.True(t, m.ToggleTheme())
	assert.False(t, m.ToggleAutoCopy())
	m.SetDarkTheme(false)
	m.SetAutoCopy(true)

	_, err := repo.InsertQRCode(ctx, &models.QRCode{Content: "a"})
	require.NoError(t, err)
	require.NoError(t, m.Load(ctx))
	assert.Equal(t, int64(1), m.HistoryCount.Get())

	m.Watch(ctx)
	_, err = repo.InsertQRCode(ctx, &models.QRCode{Content: "b"})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return m.HistoryCount.Get() == 2 }, waitFor, tick)

	n, err := m.ClearAllHistory(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Zero(t, m.HistoryCount.Get())
	assert.False(t, m.Loading.Get())

	assert.Equal(t, models.Settings{DarkTheme: false, AutoCopy: true, HistoryCount: 0}, m.Snapshot())
}

func TestSettingsModelErrors(t *testing.T) {
	repo := failingRepo{err: errors.New("disk full")}
	m := NewSettingsModel(repo, config.UIConfig{})
	ctx := context.Background()

	assert.Error(t, m.Load(ctx))
	assert.Equal(t, "Failed to load settings: disk full", m.Error.Get())

	assert.Error(t, m.RefreshHistoryCount(ctx))
	assert.Equal(t, "Failed to refresh history count: disk full", m.Error.Get())

	_, err := m.ClearAllHistory(ctx)
	assert.Error(t, err)
	assert.Equal(t, "Failed to clear history: disk full", m.Error.Get())

	m.ClearError()
	assert.Empty(t, m.Error.Get())
}

func TestGenerateModel(t *testing.T) {
	repo := newTestRepository(t)
	reg := metrics.NewManagerWithRegistry(prometheus.NewRegistry())
	m := NewGenerateModel(repo, newTestRenderer(t), reg)
	ctx := context.Background()

	_, err := m.Generate(ctx)
	assert.True(t, utils.IsValidation(err))
	assert.Equal(t, EmptyInputMessage, m.Error.Get())

	m.UpdateInputText("https://example.com")
	assert.Equal(t, models.QRCodeTypeURL, m.DetectedType())

	record, err := m.Generate(ctx)
	require.NoError(t, err)
	assert.Empty(t, m.Error.Get())
	assert.Positive(t, record.ID)
	assert.True(t, record.IsGenerated)
	assert.Equal(t, models.QRCodeTypeURL, record.Type)
	assert.NotEmpty(t, m.Image.Get())
	assert.False(t, m.Generating.Get())

	text, err := qrcode.NewDecoder().DecodeBytes(m.Image.Get())
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", text)

	m.UpdateInputText("not saved")
	record, err = m.GenerateWith(ctx, GenerateOptions{Size: 256})
	require.NoError(t, err)
	assert.Zero(t, record.ID)

	count, err := repo.GetQRCodeCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	assert.Equal(t, 2.0, testutil.ToFloat64(reg.GetPrometheusMetrics().QRCodesGeneratedTotal.WithLabelValues("url"))+
		testutil.ToFloat64(reg.GetPrometheusMetrics().QRCodesGeneratedTotal.WithLabelValues("text")))

	_, err = m.GenerateWith(ctx, GenerateOptions{Size: 100000})
	assert.True(t, utils.IsValidation(err))
	assert.Contains(t, m.Error.Get(), "Failed to generate QR code: Invalid QR code size")

	m.Clear()
	assert.Nil(t, m.Image.Get())
	assert.Nil(t, m.Record.Get())
	assert.Empty(t, m.Error.Get())
}

func TestGenerateModelKeepsImageWhenSaveFails(t *testing.T) {
	m := NewGenerateModel(failingRepo{err: errors.New("read-only")}, newTestRenderer(t), nil)
	m.UpdateInputText("hello")

	record, err := m.Generate(context.Background())
	assert.Error(t, err)
	require.NotNil(t, record)
	assert.NotEmpty(t, m.Image.Get())
	assert.Equal(t, "Failed to save QR code: read-only", m.Error.Get())

	m.ClearError()
	assert.Empty(t, m.Error.Get())
}

func TestScanModel(t *testing.T) {
	repo := newTestRepository(t)
	m := NewScanModel(repo, "upload", nil)
	ctx := context.Background()

	record, err := m.OnQRCodeScanned(ctx, "ignored")
	require.NoError(t, err)
	assert.Nil(t, record)

	m.OnScanFailed("camera unplugged")
	m.StartScanning()
	assert.Empty(t, m.Error.Get())
	assert.True(t, m.Scanning.Get())

	assert.True(t, m.ToggleTorch())
	assert.False(t, m.ToggleTorch())

	record, err = m.OnQRCodeScanned(ctx, "tel:+15551234")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.False(t, m.Scanning.Get())
	assert.Equal(t, models.QRCodeTypePhone, record.Type)
	assert.False(t, record.IsGenerated)
	assert.Positive(t, record.ID)
	assert.Equal(t, record, m.Result.Get())

	second, err := m.OnQRCodeScanned(ctx, "too late")
	require.NoError(t, err)
	assert.Nil(t, second)

	scanned, err := repo.GetScannedQRCodes(ctx)
	require.NoError(t, err)
	assert.Len(t, scanned, 1)

	m.ClearResult()
	assert.Nil(t, m.Result.Get())

	m.StartScanning()
	m.StopScanning()
	assert.False(t, m.Scanning.Get())
}

func TestScanModelPublishesSavedResult(t *testing.T) {
	repo := newTestRepository(t)
	m := NewScanModel(repo, "upload", nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	results := m.Result.Subscribe(ctx)
	assert.Nil(t, <-results)

	m.StartScanning()
	record, err := m.OnQRCodeScanned(ctx, "hello")
	require.NoError(t, err)
	require.Positive(t, record.ID)

	var latest *models.QRCode
	require.Eventually(t, func() bool {
		select {
		case latest = <-results:
		default:
		}
		return latest != nil && latest.ID == record.ID
	}, waitFor, tick)
	assert.Same(t, record, m.Result.Get())
	assert.Equal(t, "hello", latest.Content)
}

func TestScanModelSaveFailure(t *testing.T) {
	m := NewScanModel(failingRepo{err: errors.New("locked")}, "file", nil)
	m.StartScanning()

	record, err := m.OnQRCodeScanned(context.Background(), "hello")
	assert.Error(t, err)
	require.NotNil(t, record)
	assert.Equal(t, "Failed to save scanned QR code: locked", m.Error.Get())

	m.ClearError()
	assert.Empty(t, m.Error.Get())
}
