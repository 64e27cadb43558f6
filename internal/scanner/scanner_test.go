package scanner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/smartdevs17/qrcode-generator/internal/config"
	"github.com/smartdevs17/qrcode-generator/internal/metrics"
	"github.com/smartdevs17/qrcode-generator/internal/models"
	"github.com/smartdevs17/qrcode-generator/internal/qrcode"
	"github.com/smartdevs17/qrcode-generator/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T) (ResultHandler, <-chan Result) {
	t.Helper()
	ch := make(chan Result, 16)
	return func(r Result) { ch <- r }, ch
}

func waitResult(t *testing.T, ch <-chan Result) Result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for analyzer result")
		return Result{}
	}
}

func TestAnalyzerKeepsOnlyLatestFrame(t *testing.T) {
	started := make(chan string, 4)
	release := make(chan struct{})

	decode := func(f Frame) (string, error) {
		started <- f.ID
		if f.ID == "a" {
			<-release
		}
		return "content-" + f.ID, nil
	}

	handler, results := collect(t)
	m := metrics.NewManagerWithRegistry(prometheus.NewRegistry())
	a := NewAnalyzer(decode, handler, 0, m)
	require.NoError(t, a.Start(context.Background()))
	defer a.Stop()

	assert.False(t, a.Submit(Frame{ID: "a", Source: SourceFile}))
	assert.Equal(t, "a", <-started)

	assert.False(t, a.Submit(Frame{ID: "b", Source: SourceFile}))
	assert.True(t, a.Submit(Frame{ID: "c", Source: SourceFile}))

	close(release)

	first := waitResult(t, results)
	second := waitResult(t, results)
	assert.Equal(t, "a", first.FrameID)
	assert.Equal(t, "c", second.FrameID)
	assert.Equal(t, "content-c", second.Content)
	assert.Equal(t, models.QRCodeTypeText, second.Type)

	stats := a.Stats()
	assert.Equal(t, int64(3), stats.Submitted)
	assert.Equal(t, int64(2), stats.Analyzed)
	assert.Equal(t, int64(1), stats.Dropped)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GetPrometheusMetrics().FramesDroppedTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.GetPrometheusMetrics().FramesAnalyzedTotal))
}

func TestAnalyzerSubmitNeverBlocks(t *testing.T) {
	block := make(chan struct{})
	defer close(block)

	a := NewAnalyzer(func(Frame) (string, error) { <-block; return "", nil }, nil, 0, nil)
	require.NoError(t, a.Start(context.Background()))

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			a.Submit(Frame{Source: SourceUpload})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Submit blocked")
	}
	assert.GreaterOrEqual(t, a.Stats().Dropped, int64(98))
}

func TestAnalyzerDecodesRealImages(t *testing.T) {
	require.NoError(t, utils.InitLogger("error", "text", "stderr", ""))

	enc, err := qrcode.NewEncoder(&config.QRConfig{Size: 200, MaxSize: 400, ErrorCorrection: "M", Margin: 4})
	require.NoError(t, err)
	png, err := enc.EncodePNG("https://example.com/scan", 0)
	require.NoError(t, err)

	handler, results := collect(t)
	a := NewAnalyzer(DecoderFunc(qrcode.NewDecoder()), handler, time.Minute, nil)
	require.NoError(t, a.Start(context.Background()))
	defer a.Stop()

	a.Submit(Frame{ID: "png", Source: SourceUpload, Data: png})
	r := waitResult(t, results)
	assert.Equal(t, "https://example.com/scan", r.Content)
	assert.Equal(t, models.QRCodeTypeURL, r.Type)
	assert.Empty(t, r.Error)

	img, err := enc.EncodeImage("image frame", 0)
	require.NoError(t, err)
	a.Submit(Frame{ID: "img", Source: SourceUpload, Image: img})
	r = waitResult(t, results)
	assert.Equal(t, "image frame", r.Content)
}

func TestAnalyzerFailures(t *testing.T) {
	decode := func(f Frame) (string, error) {
		switch f.ID {
		case "empty":
			return "", utils.NewAppError(utils.ErrCodeNotFound, "No QR code found in image", "")
		default:
			return "", errors.New("sensor glitch")
		}
	}

	handler, results := collect(t)
	a := NewAnalyzer(decode, handler, 0, nil)
	require.NoError(t, a.Start(context.Background()))
	defer a.Stop()

	a.Submit(Frame{ID: "empty"})
	require.Eventually(t, func() bool { return a.Stats().NoCode == 1 }, 2*time.Second, 5*time.Millisecond)

	a.Submit(Frame{ID: "broken"})
	r := waitResult(t, results)
	assert.Equal(t, "broken", r.FrameID)
	assert.Contains(t, r.Error, "sensor glitch")
	assert.Empty(t, r.Content)

	select {
	case extra := <-results:
		t.Fatalf("unexpected result for frame %s", extra.FrameID)
	default:
	}
}

func TestAnalyzerLifecycle(t *testing.T) {
	a := NewAnalyzer(func(Frame) (string, error) { return "x", nil }, nil, 0, nil)

	require.NoError(t, a.Start(context.Background()))
	assert.True(t, a.IsRunning())
	assert.Error(t, a.Start(context.Background()))

	require.NoError(t, a.Stop())
	assert.False(t, a.IsRunning())
	require.NoError(t, a.Stop())

	// A frame submitted while stopped waits for the next start.
	a.Submit(Frame{ID: "later"})
	require.NoError(t, a.Start(context.Background()))
	require.Eventually(t, func() bool { return a.Stats().Analyzed == 1 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, a.Stop())
}

func TestDirectoryWatcher(t *testing.T) {
	require.NoError(t, utils.InitLogger("error", "text", "stderr", ""))
	dir := t.TempDir()

	enc, err := qrcode.NewEncoder(&config.QRConfig{Size: 200, MaxSize: 400, ErrorCorrection: "M", Margin: 4})
	require.NoError(t, err)
	existing, err := enc.EncodePNG("already here", 0)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "old.png"), existing, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	handler, results := collect(t)
	a := NewAnalyzer(DecoderFunc(qrcode.NewDecoder()), handler, 0, nil)
	require.NoError(t, a.Start(context.Background()))
	defer a.Stop()

	w, err := NewDirectoryWatcher(dir, []string{"PNG", ".jpg"}, a)
	require.NoError(t, err)
	w.settleDelay = 20 * time.Millisecond

	assert.True(t, w.Matches("x.png"))
	assert.False(t, w.Matches("x.txt"))

	n, err := w.ScanExisting()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	r := waitResult(t, results)
	assert.Equal(t, "already here", r.Content)
	assert.Equal(t, SourceWatch, r.Source)

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- w.Run(ctx) }()

	fresh, err := enc.EncodePNG("dropped in", 0)
	require.NoError(t, err)

	// The watch is registered asynchronously; keep rewriting until it is seen.
	target := filepath.Join(dir, "new.png")
	var got Result
	require.Eventually(t, func() bool {
		_ = os.WriteFile(target, fresh, 0o644)
		select {
		case got = <-results:
			return true
		case <-time.After(200 * time.Millisecond):
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, "dropped in", got.Content)
	assert.Equal(t, target, got.Path)

	cancel()
	assert.NoError(t, <-runErr)
}

func TestDirectoryWatcherRejectsBadPath(t *testing.T) {
	_, err := NewDirectoryWatcher(filepath.Join(t.TempDir(), "missing"), nil, nil)
	assert.True(t, utils.IsValidation(err))

	file := filepath.Join(t.TempDir(), "file.png")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	_, err = NewDirectoryWatcher(file, nil, nil)
	assert.True(t, utils.IsValidation(err))
}
