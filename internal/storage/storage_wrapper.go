package storage

import (
	"context"
	"time"

	"github.com/smartdevs17/qrcode-generator/internal/metrics"
	"github.com/smartdevs17/qrcode-generator/internal/models"
)

const qrCodesTable = "qr_codes"

// StorageWithMetrics wraps a storage implementation with metrics
type StorageWithMetrics struct {
	Storage
	metricsManager *metrics.Manager
}

// NewStorageWithMetrics creates a storage wrapper with metrics
func NewStorageWithMetrics(storage Storage, metricsManager *metrics.Manager) *StorageWithMetrics {
	return &StorageWithMetrics{
		Storage:        storage,
		metricsManager: metricsManager,
	}
}

func (s *StorageWithMetrics) record(operation string, start time.Time, err error) {
	if s.metricsManager == nil {
		return
	}

	status := "success"
	if err != nil {
		status = "error"
	}

	s.metricsManager.GetPrometheusMetrics().RecordDatabaseOperation(
		operation,
		qrCodesTable,
		status,
		time.Since(start),
	)
}

func (s *StorageWithMetrics) refreshCount(ctx context.Context) {
	if s.metricsManager == nil {
		return
	}
	if count, err := s.Storage.CountQRCodes(ctx); err == nil {
		s.metricsManager.GetPrometheusMetrics().UpdateHistoryRecords(count)
	}
}

// InsertQRCode saves a record and records metrics
func (s *StorageWithMetrics) InsertQRCode(ctx context.Context, qr *models.QRCode) (int64, error) {
	start := time.Now()
	id, err := s.Storage.InsertQRCode(ctx, qr)
	s.record("insert", start, err)
	if err == nil {
		s.refreshCount(ctx)
	}
	return id, err
}

// GetQRCode fetches a record and records metrics
func (s *StorageWithMetrics) GetQRCode(ctx context.Context, id int64) (*models.QRCode, error) {
	start := time.Now()
	qr, err := s.Storage.GetQRCode(ctx, id)
	s.record("select_one", start, err)
	return qr, err
}

// GetQRCodes queries records and records metrics
func (s *StorageWithMetrics) GetQRCodes(ctx context.Context, filter models.QRCodeFilter) ([]*models.QRCode, error) {
	start := time.Now()
	qrCodes, err := s.Storage.GetQRCodes(ctx, filter)
	s.record("select", start, err)
	return qrCodes, err
}

// DeleteQRCode deletes a record and records metrics
func (s *StorageWithMetrics) DeleteQRCode(ctx context.Context, id int64) error {
	start := time.Now()
	err := s.Storage.DeleteQRCode(ctx, id)
	s.record("delete", start, err)
	if err == nil {
		s.refreshCount(ctx)
	}
	return err
}

// DeleteAllQRCodes clears the history and records metrics
func (s *StorageWithMetrics) DeleteAllQRCodes(ctx context.Context) (int64, error) {
	start := time.Now()
	n, err := s.Storage.DeleteAllQRCodes(ctx)
	s.record("delete_all", start, err)
	if err == nil && s.metricsManager != nil {
		s.metricsManager.GetPrometheusMetrics().UpdateHistoryRecords(0)
	}
	return n, err
}

// CountQRCodes counts records and records metrics
func (s *StorageWithMetrics) CountQRCodes(ctx context.Context) (int64, error) {
	start := time.Now()
	count, err := s.Storage.CountQRCodes(ctx)
	s.record("count", start, err)
	if err == nil && s.metricsManager != nil {
		s.metricsManager.GetPrometheusMetrics().UpdateHistoryRecords(count)
	}
	return count, err
}

// GetHealth reports storage health and mirrors it into the component gauge
func (s *StorageWithMetrics) GetHealth() *StorageHealth {
	health := s.Storage.GetHealth()
	if s.metricsManager != nil && health != nil {
		s.metricsManager.GetPrometheusMetrics().UpdateComponentHealth("storage", health.Healthy)
	}
	return health
}
