// File: internal/repository/repository.go
package repository

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/smartdevs17/qrcode-generator/internal/models"
	"github.com/smartdevs17/qrcode-generator/internal/storage"
	"github.com/smartdevs17/qrcode-generator/pkg/utils"
)

// QRCodeRepository is the history API used by the view-state holders and the outer surfaces
type QRCodeRepository interface {
	GetAllQRCodes(ctx context.Context) ([]*models.QRCode, error)
	GetGeneratedQRCodes(ctx context.Context) ([]*models.QRCode, error)
	GetScannedQRCodes(ctx context.Context) ([]*models.QRCode, error)
	SearchQRCodes(ctx context.Context, query string) ([]*models.QRCode, error)
	GetQRCodesSince(ctx context.Context, since time.Time) ([]*models.QRCode, error)
	GetQRCodes(ctx context.Context, filter models.QRCodeFilter) ([]*models.QRCode, error)
	GetQRCode(ctx context.Context, id int64) (*models.QRCode, error)
	InsertQRCode(ctx context.Context, qr *models.QRCode) (int64, error)
	DeleteQRCode(ctx context.Context, qr *models.QRCode) error
	DeleteQRCodeByID(ctx context.Context, id int64) error
	DeleteAllQRCodes(ctx context.Context) (int64, error)
	GetQRCodeCount(ctx context.Context) (int64, error)

	Observe(ctx context.Context, filter models.QRCodeFilter) <-chan Result
	Subscribe(ctx context.Context, buffer int) <-chan models.HistoryEvent
}

// Result is one emission of an observed query
type Result struct {
	QRCodes []*models.QRCode
	Err     error
}

// Repository delegates to storage and announces every successful write
type Repository struct {
	storage storage.Storage
	hub     *eventHub
	logger  *logrus.Entry
}

var _ QRCodeRepository = (*Repository)(nil)

// New creates a repository over store
func New(store storage.Storage) *Repository {
	return &Repository{
		storage: store,
		hub:     newEventHub(),
		logger:  utils.ComponentLogger("repository"),
	}
}

// GetAllQRCodes returns the whole history, newest first
func (r *Repository) GetAllQRCodes(ctx context.Context) ([]*models.QRCode, error) {
	return r.storage.GetQRCodes(ctx, models.QRCodeFilter{})
}

// GetGeneratedQRCodes returns codes generated by this app
func (r *Repository) GetGeneratedQRCodes(ctx context.Context) ([]*models.QRCode, error) {
	return r.storage.GetQRCodes(ctx, models.GeneratedFilter(true))
}

// GetScannedQRCodes returns codes scanned by this app
func (r *Repository) GetScannedQRCodes(ctx context.Context) ([]*models.QRCode, error) {
	return r.storage.GetQRCodes(ctx, models.GeneratedFilter(false))
}

// SearchQRCodes returns records whose content contains query
func (r *Repository) SearchQRCodes(ctx context.Context, query string) ([]*models.QRCode, error) {
	return r.storage.GetQRCodes(ctx, models.QRCodeFilter{Query: query})
}

// GetQRCodesSince returns records recorded at or after since
func (r *Repository) GetQRCodesSince(ctx context.Context, since time.Time) ([]*models.QRCode, error) {
	return r.storage.GetQRCodes(ctx, models.QRCodeFilter{Since: &since})
}

// GetQRCodes runs an arbitrary filter
func (r *Repository) GetQRCodes(ctx context.Context, filter models.QRCodeFilter) ([]*models.QRCode, error) {
	return r.storage.GetQRCodes(ctx, filter)
}

// GetQRCode returns a single record
func (r *Repository) GetQRCode(ctx context.Context, id int64) (*models.QRCode, error) {
	return r.storage.GetQRCode(ctx, id)
}

// InsertQRCode stores qr and publishes a created event
func (r *Repository) InsertQRCode(ctx context.Context, qr *models.QRCode) (int64, error) {
	id, err := r.storage.InsertQRCode(ctx, qr)
	if err != nil {
		return 0, err
	}

	stored := *qr
	r.publish(models.HistoryEvent{Action: models.HistoryActionCreated, QRCode: &stored, Count: 1})
	return id, nil
}

// DeleteQRCode deletes the record qr refers to
func (r *Repository) DeleteQRCode(ctx context.Context, qr *models.QRCode) error {
	if qr == nil {
		return utils.NewAppError(utils.ErrCodeValidation, "QR code is required", "")
	}

	if err := r.storage.DeleteQRCode(ctx, qr.ID); err != nil {
		return err
	}

	deleted := *qr
	r.publish(models.HistoryEvent{Action: models.HistoryActionDeleted, QRCode: &deleted, Count: 1})
	return nil
}

// DeleteQRCodeByID deletes one record by id
func (r *Repository) DeleteQRCodeByID(ctx context.Context, id int64) error {
	if err := r.storage.DeleteQRCode(ctx, id); err != nil {
		return err
	}

	r.publish(models.HistoryEvent{Action: models.HistoryActionDeleted, QRCode: &models.QRCode{ID: id}, Count: 1})
	return nil
}

// DeleteAllQRCodes clears the history
func (r *Repository) DeleteAllQRCodes(ctx context.Context) (int64, error) {
	n, err := r.storage.DeleteAllQRCodes(ctx)
	if err != nil {
		return 0, err
	}

	r.publish(models.HistoryEvent{Action: models.HistoryActionCleared, Count: n})
	return n, nil
}

// GetQRCodeCount returns the history size
func (r *Repository) GetQRCodeCount(ctx context.Context) (int64, error) {
	return r.storage.CountQRCodes(ctx)
}

// GetStorageStats exposes storage statistics
func (r *Repository) GetStorageStats(ctx context.Context) (*storage.StorageStats, error) {
	return r.storage.GetStorageStats(ctx)
}

// GetHealth exposes storage health
func (r *Repository) GetHealth() *storage.StorageHealth {
	return r.storage.GetHealth()
}

// Subscribe returns the raw event feed. The channel closes when ctx ends.
// Events are dropped for a subscriber whose buffer is full.
func (r *Repository) Subscribe(ctx context.Context, buffer int) <-chan models.HistoryEvent {
	return r.hub.subscribe(ctx, buffer)
}

// Observe emits the result of filter immediately and again after every write,
// until ctx ends. Bursts of writes coalesce into a single re-query.
func (r *Repository) Observe(ctx context.Context, filter models.QRCodeFilter) <-chan Result {
	out := make(chan Result, 1)
	invalidated := r.hub.subscribe(ctx, 1)

	go func() {
		defer close(out)

		for {
			qrCodes, err := r.storage.GetQRCodes(ctx, filter)
			if err != nil && ctx.Err() != nil {
				return
			}

			select {
			case out <- Result{QRCodes: qrCodes, Err: err}:
			case <-ctx.Done():
				return
			}

			select {
			case _, ok := <-invalidated:
				if !ok {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}

func (r *Repository) publish(event models.HistoryEvent) {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}

	dropped := r.hub.publish(event)
	if dropped > 0 {
		r.logger.WithFields(logrus.Fields{
			"action":  event.Action,
			"dropped": dropped,
		}).Debug("History event dropped for slow subscribers")
	}
}
