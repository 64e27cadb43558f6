package viewstate

import (
	"context"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/smartdevs17/qrcode-generator/internal/models"
	"github.com/smartdevs17/qrcode-generator/internal/repository"
	"github.com/smartdevs17/qrcode-generator/pkg/utils"
)

// HistoryModel backs the history screen: the live record list and its search box
type HistoryModel struct {
	Records *Value[[]*models.QRCode]
	Loading *Value[bool]
	Error   *Value[string]
	Query   *Value[string]

	repo   repository.QRCodeRepository
	logger *logrus.Entry

	mu         sync.Mutex
	ctx        context.Context
	cancel     context.CancelFunc
	generation int
}

// NewHistoryModel creates a history model; call Start to begin observing
func NewHistoryModel(repo repository.QRCodeRepository) *HistoryModel {
	return &HistoryModel{
		Records: NewValue([]*models.QRCode{}),
		Loading: NewValue(false),
		Error:   NewValue(""),
		Query:   NewValue(""),
		repo:    repo,
		logger:  utils.ComponentLogger("history"),
	}
}

// Start observes the whole history until ctx ends
func (m *HistoryModel) Start(ctx context.Context) {
	m.mu.Lock()
	m.ctx = ctx
	m.mu.Unlock()

	m.UpdateSearchQuery(m.Query.Get())
}

// Stop cancels the active stream
func (m *HistoryModel) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.generation++
}

// UpdateSearchQuery switches the stream: a blank query lists everything,
// anything else searches content. The previous stream is cancelled.
func (m *HistoryModel) UpdateSearchQuery(query string) {
	m.Query.Set(query)

	if strings.TrimSpace(query) == "" {
		m.observe(models.QRCodeFilter{}, "Failed to load history")
		return
	}
	m.observe(models.QRCodeFilter{Query: query}, "Search failed")
}

func (m *HistoryModel) observe(filter models.QRCodeFilter, errPrefix string) {
	m.mu.Lock()
	if m.ctx == nil {
		m.mu.Unlock()
		return
	}
	if m.cancel != nil {
		m.cancel()
	}
	ctx, cancel := context.WithCancel(m.ctx)
	m.cancel = cancel
	m.generation++
	generation := m.generation
	m.mu.Unlock()

	m.Loading.Set(true)
	results := m.repo.Observe(ctx, filter)

	go func() {
		for result := range results {
			m.apply(generation, result, errPrefix)
		}
	}()
}

// apply publishes a result unless a newer stream has replaced the one that produced it
func (m *HistoryModel) apply(generation int, result repository.Result, errPrefix string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if generation != m.generation {
		return
	}

	if result.Err != nil {
		m.logger.WithError(result.Err).Warn(errPrefix)
		m.Records.Set([]*models.QRCode{})
		m.Loading.Set(false)
		m.Error.Set(errPrefix + ": " + utils.UserMessage(result.Err))
		return
	}
	m.Records.Set(result.QRCodes)
	m.Loading.Set(false)
}

// Delete removes one record; the list refreshes through the active stream
func (m *HistoryModel) Delete(ctx context.Context, qr *models.QRCode) error {
	if err := m.repo.DeleteQRCode(ctx, qr); err != nil {
		m.Error.Set("Failed to delete QR code: " + utils.UserMessage(err))
		return err
	}
	return nil
}

// DeleteAll clears the history
func (m *HistoryModel) DeleteAll(ctx context.Context) (int64, error) {
	n, err := m.repo.DeleteAllQRCodes(ctx)
	if err != nil {
		m.Error.Set("Failed to clear history: " + utils.UserMessage(err))
		return 0, err
	}
	return n, nil
}

// ClearError empties the error slot
func (m *HistoryModel) ClearError() {
	m.Error.Set("")
}

// HistoryState is a point-in-time copy of the model
type HistoryState struct {
	Records []*models.QRCode `json:"records"`
	Loading bool             `json:"loading"`
	Error   string           `json:"error,omitempty"`
	Query   string           `json:"query"`
}

// Snapshot returns the current state
func (m *HistoryModel) Snapshot() HistoryState {
	return HistoryState{
		Records: m.Records.Get(),
		Loading: m.Loading.Get(),
		Error:   m.Error.Get(),
		Query:   m.Query.Get(),
	}
}
