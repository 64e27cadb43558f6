// File: internal/scanner/analyzer.go
package scanner

import (
	"context"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/smartdevs17/qrcode-generator/internal/metrics"
	"github.com/smartdevs17/qrcode-generator/internal/models"
	"github.com/smartdevs17/qrcode-generator/internal/qrcode"
	"github.com/smartdevs17/qrcode-generator/pkg/utils"
)

// Frame sources
const (
	SourceUpload = "upload"
	SourceFile   = "file"
	SourceWatch  = "watch"
)

// Frame is one image handed to the analyzer. Either Image or Data is set.
type Frame struct {
	ID         string
	Source     string
	Path       string
	Image      image.Image
	Data       []byte
	ReceivedAt time.Time
}

// Result is the outcome of analyzing a frame that held a code or failed to decode
type Result struct {
	FrameID string            `json:"frame_id"`
	Source  string            `json:"source"`
	Path    string            `json:"path,omitempty"`
	Content string            `json:"content,omitempty"`
	Type    models.QRCodeType `json:"type,omitempty"`
	Error   string            `json:"error,omitempty"`
}

// ResultHandler receives results on the analyzer worker goroutine
type ResultHandler func(Result)

// DecodeFunc extracts the QR content from a frame
type DecodeFunc func(Frame) (string, error)

// DecoderFunc adapts a qrcode.Decoder to a DecodeFunc
func DecoderFunc(d *qrcode.Decoder) DecodeFunc {
	return func(f Frame) (string, error) {
		if f.Image != nil {
			return d.Decode(f.Image)
		}
		return d.DecodeBytes(f.Data)
	}
}

// AnalyzerStats counts frames over the analyzer's lifetime
type AnalyzerStats struct {
	Submitted int64 `json:"submitted"`
	Analyzed  int64 `json:"analyzed"`
	Dropped   int64 `json:"dropped"`
	NoCode    int64 `json:"no_code"`
	Failed    int64 `json:"failed"`
}

// Analyzer decodes frames on a single worker. At most one frame is in flight
// and at most one waits; a newer frame replaces the waiting one.
type Analyzer struct {
	decode  DecodeFunc
	handler ResultHandler
	pending chan Frame
	submit  sync.Mutex

	slowThreshold  time.Duration
	metricsManager *metrics.Manager
	logger         *logrus.Entry

	submitted atomic.Int64
	analyzed  atomic.Int64
	dropped   atomic.Int64
	noCode    atomic.Int64
	failed    atomic.Int64

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewAnalyzer creates an analyzer. slowThreshold of 0 disables slow-frame warnings.
func NewAnalyzer(decode DecodeFunc, handler ResultHandler, slowThreshold time.Duration, metricsManager *metrics.Manager) *Analyzer {
	if handler == nil {
		handler = func(Result) {}
	}
	return &Analyzer{
		decode:         decode,
		handler:        handler,
		pending:        make(chan Frame, 1),
		slowThreshold:  slowThreshold,
		metricsManager: metricsManager,
		logger:         utils.ComponentLogger("analyzer"),
	}
}

// Start launches the worker goroutine
func (a *Analyzer) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.running {
		return utils.NewAppError(utils.ErrCodeProcessing, "Analyzer already running", "")
	}

	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.done = make(chan struct{})
	a.running = true

	go a.worker(ctx, a.done)

	a.logger.Debug("Frame analyzer started")
	return nil
}

// Stop halts the worker after the in-flight frame finishes. The pending frame is discarded.
func (a *Analyzer) Stop() error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return nil
	}
	a.running = false
	cancel, done := a.cancel, a.done
	a.mu.Unlock()

	cancel()
	<-done

	select {
	case <-a.pending:
		a.recordDropped()
	default:
	}

	a.logger.Debug("Frame analyzer stopped")
	return nil
}

// IsRunning reports whether the worker is active
func (a *Analyzer) IsRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

// Submit queues frame without blocking. It reports whether a waiting frame was replaced.
func (a *Analyzer) Submit(frame Frame) bool {
	if frame.ID == "" {
		frame.ID = utils.GenerateID()
	}
	if frame.ReceivedAt.IsZero() {
		frame.ReceivedAt = time.Now()
	}
	a.submitted.Add(1)

	a.submit.Lock()
	defer a.submit.Unlock()

	select {
	case a.pending <- frame:
		return false
	default:
	}

	replaced := false
	select {
	case <-a.pending:
		replaced = true
		a.recordDropped()
	default:
		// The worker took the waiting frame in between.
	}

	// Submitters are serialized, so the slot is free now.
	a.pending <- frame
	return replaced
}

// Stats returns a snapshot of the frame counters
func (a *Analyzer) Stats() AnalyzerStats {
	return AnalyzerStats{
		Submitted: a.submitted.Load(),
		Analyzed:  a.analyzed.Load(),
		Dropped:   a.dropped.Load(),
		NoCode:    a.noCode.Load(),
		Failed:    a.failed.Load(),
	}
}

func (a *Analyzer) worker(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-a.pending:
			a.analyze(frame)
		}
	}
}

func (a *Analyzer) analyze(frame Frame) {
	start := time.Now()
	content, err := a.decode(frame)
	elapsed := time.Since(start)

	a.analyzed.Add(1)
	if a.metricsManager != nil {
		pm := a.metricsManager.GetPrometheusMetrics()
		pm.RecordFrameAnalyzed()
		reason := ""
		if err != nil {
			reason = qrcode.FailureReason(err)
		}
		pm.RecordDecode(frame.Source, reason, elapsed)
	}

	if a.slowThreshold > 0 && elapsed > a.slowThreshold {
		a.logger.WithFields(logrus.Fields{
			"frame_id": frame.ID,
			"duration": elapsed,
		}).Warn("Slow frame analysis")
	}

	result := Result{FrameID: frame.ID, Source: frame.Source, Path: frame.Path}

	switch {
	case err == nil:
		result.Content = content
		result.Type = qrcode.DetectType(content)
	case utils.IsNotFound(err):
		a.noCode.Add(1)
		return
	default:
		a.failed.Add(1)
		result.Error = err.Error()
		a.logger.WithFields(logrus.Fields{
			"frame_id": frame.ID,
			"source":   frame.Source,
			"path":     frame.Path,
		}).WithError(err).Warn("Frame analysis failed")
	}

	a.handler(result)
}

func (a *Analyzer) recordDropped() {
	a.dropped.Add(1)
	if a.metricsManager != nil {
		a.metricsManager.GetPrometheusMetrics().RecordFrameDropped()
	}
}
