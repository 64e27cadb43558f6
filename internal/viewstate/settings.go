package viewstate

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/smartdevs17/qrcode-generator/internal/config"
	"github.com/smartdevs17/qrcode-generator/internal/models"
	"github.com/smartdevs17/qrcode-generator/internal/repository"
	"github.com/smartdevs17/qrcode-generator/pkg/utils"
)

// SettingsModel backs the settings screen
type SettingsModel struct {
	DarkTheme    *Value[bool]
	AutoCopy     *Value[bool]
	HistoryCount *Value[int64]
	Loading      *Value[bool]
	Error        *Value[string]

	repo   repository.QRCodeRepository
	logger *logrus.Entry
}

// NewSettingsModel creates a settings model seeded with the configured defaults
func NewSettingsModel(repo repository.QRCodeRepository, defaults config.UIConfig) *SettingsModel {
	return &SettingsModel{
		DarkTheme:    NewValue(defaults.DarkTheme),
		AutoCopy:     NewValue(defaults.AutoCopy),
		HistoryCount: NewValue(int64(0)),
		Loading:      NewValue(false),
		Error:        NewValue(""),
		repo:         repo,
		logger:       utils.ComponentLogger("settings"),
	}
}

// Load reads the history count
func (m *SettingsModel) Load(ctx context.Context) error {
	count, err := m.repo.GetQRCodeCount(ctx)
	if err != nil {
		m.logger.WithError(err).Warn("Failed to load settings")
		m.Error.Set("Failed to load settings: " + utils.UserMessage(err))
		return err
	}
	m.HistoryCount.Set(count)
	return nil
}

// Watch keeps the history count current until ctx ends
func (m *SettingsModel) Watch(ctx context.Context) {
	events := m.repo.Subscribe(ctx, 1)
	go func() {
		for range events {
			m.RefreshHistoryCount(ctx)
		}
	}()
}

// ToggleTheme flips dark theme and returns the new value
func (m *SettingsModel) ToggleTheme() bool {
	return m.DarkTheme.Update(func(v bool) bool { return !v })
}

// ToggleAutoCopy flips auto-copy and returns the new value
func (m *SettingsModel) ToggleAutoCopy() bool {
	return m.AutoCopy.Update(func(v bool) bool { return !v })
}

// SetDarkTheme sets the theme preference
func (m *SettingsModel) SetDarkTheme(enabled bool) {
	m.DarkTheme.Set(enabled)
}

// SetAutoCopy sets the auto-copy preference
func (m *SettingsModel) SetAutoCopy(enabled bool) {
	m.AutoCopy.Set(enabled)
}

// ClearAllHistory deletes every record
func (m *SettingsModel) ClearAllHistory(ctx context.Context) (int64, error) {
	m.Loading.Set(true)
	defer m.Loading.Set(false)

	n, err := m.repo.DeleteAllQRCodes(ctx)
	if err != nil {
		m.Error.Set("Failed to clear history: " + utils.UserMessage(err))
		return 0, err
	}

	m.HistoryCount.Set(0)
	return n, nil
}

// RefreshHistoryCount re-reads the history count
func (m *SettingsModel) RefreshHistoryCount(ctx context.Context) error {
	count, err := m.repo.GetQRCodeCount(ctx)
	if err != nil {
		if ctx.Err() == nil {
			m.Error.Set("Failed to refresh history count: " + utils.UserMessage(err))
		}
		return err
	}
	m.HistoryCount.Set(count)
	return nil
}

// ClearError empties the error slot
func (m *SettingsModel) ClearError() {
	m.Error.Set("")
}

// Snapshot returns the current preferences
func (m *SettingsModel) Snapshot() models.Settings {
	return models.Settings{
		DarkTheme:    m.DarkTheme.Get(),
		AutoCopy:     m.AutoCopy.Get(),
		HistoryCount: m.HistoryCount.Get(),
	}
}
