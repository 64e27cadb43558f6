package viewstate

import (
	"context"
	"sync"
	"time"

	"github.com/smartdevs17/qrcode-generator/internal/metrics"
	"github.com/smartdevs17/qrcode-generator/internal/models"
	"github.com/smartdevs17/qrcode-generator/internal/qrcode"
	"github.com/smartdevs17/qrcode-generator/internal/repository"
	"github.com/smartdevs17/qrcode-generator/pkg/utils"
)

// ScanModel backs the scanning screen
type ScanModel struct {
	Scanning     *Value[bool]
	TorchEnabled *Value[bool]
	Result       *Value[*models.QRCode]
	Error        *Value[string]

	repo           repository.QRCodeRepository
	source         string
	metricsManager *metrics.Manager

	// serializes the scanning check so only the first code of a session is taken
	mu sync.Mutex
}

// NewScanModel creates a scan model; source labels where frames come from
func NewScanModel(repo repository.QRCodeRepository, source string, metricsManager *metrics.Manager) *ScanModel {
	return &ScanModel{
		Scanning:       NewValue(false),
		TorchEnabled:   NewValue(false),
		Result:         NewValue[*models.QRCode](nil),
		Error:          NewValue(""),
		repo:           repo,
		source:         source,
		metricsManager: metricsManager,
	}
}

// StartScanning begins a session and clears any previous error
func (m *ScanModel) StartScanning() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Scanning.Set(true)
	m.Error.Set("")
}

// StopScanning ends the session
func (m *ScanModel) StopScanning() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Scanning.Set(false)
}

// ToggleTorch flips the torch flag and returns the new value
func (m *ScanModel) ToggleTorch() bool {
	return m.TorchEnabled.Update(func(v bool) bool { return !v })
}

// OnQRCodeScanned takes the first code of a session: it stores the result,
// stops scanning and records a scanned history entry. Codes arriving while
// not scanning are ignored and return nil.
func (m *ScanModel) OnQRCodeScanned(ctx context.Context, content string) (*models.QRCode, error) {
	m.mu.Lock()
	if !m.Scanning.Get() {
		m.mu.Unlock()
		return nil, nil
	}
	m.Scanning.Set(false)
	m.mu.Unlock()

	record := &models.QRCode{
		Content:     content,
		Type:        qrcode.DetectType(content),
		Timestamp:   time.Now().UTC(),
		IsGenerated: false,
	}
	m.Result.Set(record)

	if m.metricsManager != nil {
		m.metricsManager.GetPrometheusMetrics().RecordScanned(string(record.Type), m.source)
	}

	// The published result is never mutated; the saved copy carries the id.
	saved := *record
	if _, err := m.repo.InsertQRCode(ctx, &saved); err != nil {
		m.Error.Set("Failed to save scanned QR code: " + utils.UserMessage(err))
		return record, err
	}

	m.Result.Set(&saved)
	return &saved, nil
}

// OnScanFailed surfaces a frame source or decoder failure
func (m *ScanModel) OnScanFailed(message string) {
	m.Error.Set("Scan failed: " + message)
}

// ClearResult forgets the last scanned code
func (m *ScanModel) ClearResult() {
	m.Result.Set(nil)
}

// ClearError empties the error slot
func (m *ScanModel) ClearError() {
	m.Error.Set("")
}
