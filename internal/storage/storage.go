// File: internal/storage/storage.go
package storage

import (
	"context"
	"strings"
	"time"

	"github.com/smartdevs17/qrcode-generator/internal/models"
	"github.com/smartdevs17/qrcode-generator/pkg/utils"
)

// Storage defines the interface for QR code history storage operations
type Storage interface {
	// Connection management
	Connect() error
	Close() error
	Ping() error
	Migrate() error
	GetHealth() *StorageHealth

	// History operations
	InsertQRCode(ctx context.Context, qr *models.QRCode) (int64, error)
	GetQRCode(ctx context.Context, id int64) (*models.QRCode, error)
	GetQRCodes(ctx context.Context, filter models.QRCodeFilter) ([]*models.QRCode, error)
	DeleteQRCode(ctx context.Context, id int64) error
	DeleteAllQRCodes(ctx context.Context) (int64, error)
	CountQRCodes(ctx context.Context) (int64, error)

	// Statistics
	GetStorageStats(ctx context.Context) (*StorageStats, error)
}

// StorageHealth describes the state of the storage connection
type StorageHealth struct {
	StorageType string            `json:"storage_type"`
	Healthy     bool              `json:"healthy"`
	Details     map[string]string `json:"details,omitempty"`
	LastPing    time.Time         `json:"last_ping"`
}

// StorageStats provides storage statistics
type StorageStats struct {
	TotalQRCodes     int64                       `json:"total_qr_codes"`
	GeneratedQRCodes int64                       `json:"generated_qr_codes"`
	ScannedQRCodes   int64                       `json:"scanned_qr_codes"`
	QRCodesByType    map[models.QRCodeType]int64 `json:"qr_codes_by_type"`
	OldestQRCode     *time.Time                  `json:"oldest_qr_code,omitempty"`
	LatestQRCode     *time.Time                  `json:"latest_qr_code,omitempty"`
	DatabaseSize     int64                       `json:"database_size_bytes"`
}

// StorageConfig holds storage configuration
type StorageConfig struct {
	Type             string        `json:"type"`
	ConnectionString string        `json:"connection_string"`
	MaxConnections   int           `json:"max_connections"`
	MaxIdleTime      time.Duration `json:"max_idle_time"`
}

const qrCodeColumns = "id, content, type, recorded_at, is_generated"

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanQRCode(row rowScanner) (*models.QRCode, error) {
	var qr models.QRCode
	var qrType string
	var recordedAt int64

	if err := row.Scan(&qr.ID, &qr.Content, &qrType, &recordedAt, &qr.IsGenerated); err != nil {
		return nil, err
	}

	qr.Type = models.QRCodeType(qrType)
	qr.Timestamp = utils.FromUnixMillis(recordedAt)
	return &qr, nil
}

// prepareQRCode validates a record before it is written and fills defaults
func prepareQRCode(qr *models.QRCode) error {
	if qr == nil {
		return utils.NewAppError(utils.ErrCodeValidation, "QR code is required", "")
	}
	if qr.Content == "" {
		return utils.NewAppError(utils.ErrCodeValidation, "QR code content is required", "")
	}
	if qr.ID < 0 {
		return utils.NewAppError(utils.ErrCodeValidation, "QR code id must not be negative", "")
	}
	if qr.Type == "" {
		qr.Type = models.QRCodeTypeText
	}
	if !qr.Type.Valid() {
		return utils.NewAppError(utils.ErrCodeValidation, "Unknown QR code type", string(qr.Type))
	}
	if qr.Timestamp.IsZero() {
		qr.Timestamp = time.Now().UTC()
	}
	// Storage keeps millisecond precision; keep the caller's copy consistent with it.
	qr.Timestamp = utils.FromUnixMillis(utils.UnixMillis(qr.Timestamp))
	return nil
}

// escapeLike escapes LIKE wildcards so the query matches literally
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// dialect captures the SQL differences between the supported backends
type dialect struct {
	// placeholder returns the bind marker for the n-th argument (1-based)
	placeholder func(n int) string
	likeOp      string
	// noLimit is emitted when an offset is requested without a limit
	noLimit string
}

var (
	sqliteDialect   = dialect{placeholder: sqlitePlaceholder, likeOp: "LIKE", noLimit: "LIMIT -1"}
	postgresDialect = dialect{placeholder: postgresPlaceholder, likeOp: "ILIKE", noLimit: "LIMIT ALL"}
)

// filterQuery builds the WHERE/ORDER/LIMIT tail shared by both backends
func filterQuery(filter models.QRCodeFilter, d dialect) (string, []interface{}) {
	placeholder := d.placeholder
	var sb strings.Builder
	args := []interface{}{}

	sb.WriteString(" WHERE 1=1")

	if filter.Generated != nil {
		args = append(args, *filter.Generated)
		sb.WriteString(" AND is_generated = " + placeholder(len(args)))
	}

	if filter.Query != "" {
		args = append(args, "%"+escapeLike(filter.Query)+"%")
		sb.WriteString(" AND content " + d.likeOp + " " + placeholder(len(args)) + ` ESCAPE '\'`)
	}

	if filter.Since != nil {
		args = append(args, utils.UnixMillis(*filter.Since))
		sb.WriteString(" AND recorded_at >= " + placeholder(len(args)))
	}

	sb.WriteString(" ORDER BY recorded_at DESC, id DESC")

	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		sb.WriteString(" LIMIT " + placeholder(len(args)))
	}

	if filter.Offset > 0 {
		if filter.Limit <= 0 {
			sb.WriteString(" " + d.noLimit)
		}
		args = append(args, filter.Offset)
		sb.WriteString(" OFFSET " + placeholder(len(args)))
	}

	return sb.String(), args
}
