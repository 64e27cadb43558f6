package viewstate

import (
	"context"
	"strings"
	"time"

	"github.com/smartdevs17/qrcode-generator/internal/metrics"
	"github.com/smartdevs17/qrcode-generator/internal/models"
	"github.com/smartdevs17/qrcode-generator/internal/qrcode"
	"github.com/smartdevs17/qrcode-generator/internal/repository"
	"github.com/smartdevs17/qrcode-generator/pkg/utils"
)

// EmptyInputMessage is shown when generation is requested without text
const EmptyInputMessage = "Please enter text or URL to generate QR code"

// GenerateOptions tune a single generation
type GenerateOptions struct {
	// Size in pixels; 0 selects the configured default
	Size int
	// Save records the result in the history
	Save bool
}

// GenerateModel backs the generation screen
type GenerateModel struct {
	InputText  *Value[string]
	Image      *Value[[]byte]
	Record     *Value[*models.QRCode]
	Generating *Value[bool]
	Error      *Value[string]

	repo           repository.QRCodeRepository
	renderer       *qrcode.Renderer
	metricsManager *metrics.Manager
}

// NewGenerateModel creates a generation model
func NewGenerateModel(repo repository.QRCodeRepository, renderer *qrcode.Renderer, metricsManager *metrics.Manager) *GenerateModel {
	return &GenerateModel{
		InputText:      NewValue(""),
		Image:          NewValue[[]byte](nil),
		Record:         NewValue[*models.QRCode](nil),
		Generating:     NewValue(false),
		Error:          NewValue(""),
		repo:           repo,
		renderer:       renderer,
		metricsManager: metricsManager,
	}
}

// UpdateInputText replaces the text to encode
func (m *GenerateModel) UpdateInputText(text string) {
	m.InputText.Set(text)
}

// DetectedType classifies the current input
func (m *GenerateModel) DetectedType() models.QRCodeType {
	return qrcode.DetectType(m.InputText.Get())
}

// Generate renders the input at the default size and records it
func (m *GenerateModel) Generate(ctx context.Context) (*models.QRCode, error) {
	return m.GenerateWith(ctx, GenerateOptions{Save: true})
}

// GenerateWith renders the input and, when opts.Save is set, records it.
// The image stays available even if recording fails.
func (m *GenerateModel) GenerateWith(ctx context.Context, opts GenerateOptions) (*models.QRCode, error) {
	content := m.InputText.Get()
	if strings.TrimSpace(content) == "" {
		m.Error.Set(EmptyInputMessage)
		return nil, utils.NewAppError(utils.ErrCodeValidation, EmptyInputMessage, "")
	}

	m.Generating.Set(true)
	m.Error.Set("")
	defer m.Generating.Set(false)

	start := time.Now()
	png, err := m.renderer.Render(ctx, content, opts.Size)
	if err != nil {
		m.Error.Set("Failed to generate QR code: " + utils.UserMessage(err))
		return nil, err
	}

	record := &models.QRCode{
		Content:     content,
		Type:        qrcode.DetectType(content),
		Timestamp:   time.Now().UTC(),
		IsGenerated: true,
	}

	if m.metricsManager != nil {
		m.metricsManager.GetPrometheusMetrics().RecordGenerated(string(record.Type), time.Since(start))
	}

	m.Image.Set(png)
	m.Record.Set(record)

	if opts.Save {
		if _, err := m.repo.InsertQRCode(ctx, record); err != nil {
			m.Error.Set("Failed to save QR code: " + utils.UserMessage(err))
			return record, err
		}
		m.Record.Set(record)
	}

	return record, nil
}

// Clear drops the generated image and any error
func (m *GenerateModel) Clear() {
	m.Image.Set(nil)
	m.Record.Set(nil)
	m.Error.Set("")
}

// ClearError empties the error slot
func (m *GenerateModel) ClearError() {
	m.Error.Set("")
}
