// File: internal/storage/sqlite.go
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/smartdevs17/qrcode-generator/internal/models"
	"github.com/smartdevs17/qrcode-generator/pkg/utils"
	_ "modernc.org/sqlite"
)

// SQLiteStorage implements Storage interface using SQLite
type SQLiteStorage struct {
	db         *sql.DB
	config     *StorageConfig
	logger     *logrus.Logger
	migrations []*Migration
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(config *StorageConfig) *SQLiteStorage {
	return &SQLiteStorage{
		config:     config,
		logger:     utils.GetLogger(),
		migrations: GetSQLiteMigrations(),
	}
}

func sqlitePlaceholder(int) string { return "?" }

// sqliteDSN adds the connection pragmas to path. They go in the DSN so that
// every pooled connection gets them, not only the one that happens to run a PRAGMA.
func sqliteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

// Connect establishes database connection
func (s *SQLiteStorage) Connect() error {
	// Ensure directory exists
	dir := filepath.Dir(s.config.ConnectionString)
	if dir != "." && dir != "" && s.config.ConnectionString != ":memory:" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase, "Failed to create database directory", err.Error())
		}
	}

	db, err := sql.Open("sqlite", sqliteDSN(s.config.ConnectionString))
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to open SQLite database", err.Error())
	}

	// Configure connection pool
	maxConns := s.config.MaxConnections
	if maxConns <= 0 || s.config.ConnectionString == ":memory:" {
		maxConns = 1
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)
	db.SetConnMaxIdleTime(s.config.MaxIdleTime)

	if err := db.Ping(); err != nil {
		db.Close()
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to open SQLite database", err.Error())
	}

	s.db = db
	s.logger.WithField("path", s.config.ConnectionString).Info("SQLite database connected")

	return nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		s.logger.Info("SQLite database connection closed")
		return err
	}
	return nil
}

// Ping checks database connectivity
func (s *SQLiteStorage) Ping() error {
	if s.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}
	return s.db.Ping()
}

// Migrate runs database migrations
func (s *SQLiteStorage) Migrate() error {
	if s.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}

	s.logger.Info("Starting database migrations")
	if err := applyMigrations(s.db, s.migrations, sqlitePlaceholder, s.logger); err != nil {
		return err
	}
	s.logger.Info("Database migrations completed")
	return nil
}

// InsertQRCode inserts a new record, or replaces the record with the same id
// when qr.ID is set. The stored id is returned and written back to qr.
func (s *SQLiteStorage) InsertQRCode(ctx context.Context, qr *models.QRCode) (int64, error) {
	if s.db == nil {
		return 0, utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}
	if err := prepareQRCode(qr); err != nil {
		return 0, err
	}

	var (
		result sql.Result
		err    error
	)
	if qr.ID == 0 {
		result, err = s.db.ExecContext(ctx,
			`INSERT INTO qr_codes (content, type, recorded_at, is_generated) VALUES (?, ?, ?, ?)`,
			qr.Content, string(qr.Type), utils.UnixMillis(qr.Timestamp), qr.IsGenerated)
	} else {
		result, err = s.db.ExecContext(ctx,
			`INSERT OR REPLACE INTO qr_codes (id, content, type, recorded_at, is_generated) VALUES (?, ?, ?, ?, ?)`,
			qr.ID, qr.Content, string(qr.Type), utils.UnixMillis(qr.Timestamp), qr.IsGenerated)
	}
	if err != nil {
		return 0, utils.NewAppError(utils.ErrCodeDatabase, "Failed to save QR code", err.Error())
	}

	id := qr.ID
	if id == 0 {
		id, err = result.LastInsertId()
		if err != nil {
			return 0, utils.NewAppError(utils.ErrCodeDatabase, "Failed to read inserted id", err.Error())
		}
	}

	qr.ID = id
	return id, nil
}

// GetQRCode returns a single record by id
func (s *SQLiteStorage) GetQRCode(ctx context.Context, id int64) (*models.QRCode, error) {
	if s.db == nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}

	row := s.db.QueryRowContext(ctx, "SELECT "+qrCodeColumns+" FROM qr_codes WHERE id = ?", id)
	qr, err := scanQRCode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, utils.NewAppError(utils.ErrCodeNotFound, "QR code not found", fmt.Sprintf("id=%d", id))
	}
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get QR code", err.Error())
	}
	return qr, nil
}

// GetQRCodes returns records matching filter, newest first
func (s *SQLiteStorage) GetQRCodes(ctx context.Context, filter models.QRCodeFilter) ([]*models.QRCode, error) {
	if s.db == nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}

	tail, args := filterQuery(filter, sqliteDialect)
	rows, err := s.db.QueryContext(ctx, "SELECT "+qrCodeColumns+" FROM qr_codes"+tail, args...)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to query QR codes", err.Error())
	}
	defer rows.Close()

	qrCodes := []*models.QRCode{}
	for rows.Next() {
		qr, err := scanQRCode(rows)
		if err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan QR code", err.Error())
		}
		qrCodes = append(qrCodes, qr)
	}
	if err := rows.Err(); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to iterate QR codes", err.Error())
	}

	return qrCodes, nil
}

// DeleteQRCode deletes one record by id
func (s *SQLiteStorage) DeleteQRCode(ctx context.Context, id int64) error {
	if s.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}

	result, err := s.db.ExecContext(ctx, "DELETE FROM qr_codes WHERE id = ?", id)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to delete QR code", err.Error())
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to read affected rows", err.Error())
	}
	if affected == 0 {
		return utils.NewAppError(utils.ErrCodeNotFound, "QR code not found", fmt.Sprintf("id=%d", id))
	}
	return nil
}

// DeleteAllQRCodes removes every record and returns how many were removed
func (s *SQLiteStorage) DeleteAllQRCodes(ctx context.Context) (int64, error) {
	if s.db == nil {
		return 0, utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}

	result, err := s.db.ExecContext(ctx, "DELETE FROM qr_codes")
	if err != nil {
		return 0, utils.NewAppError(utils.ErrCodeDatabase, "Failed to clear history", err.Error())
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, utils.NewAppError(utils.ErrCodeDatabase, "Failed to read affected rows", err.Error())
	}
	return affected, nil
}

// CountQRCodes returns the number of stored records
func (s *SQLiteStorage) CountQRCodes(ctx context.Context) (int64, error) {
	if s.db == nil {
		return 0, utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}

	var count int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM qr_codes").Scan(&count); err != nil {
		return 0, utils.NewAppError(utils.ErrCodeDatabase, "Failed to count QR codes", err.Error())
	}
	return count, nil
}

// GetStorageStats returns storage statistics
func (s *SQLiteStorage) GetStorageStats(ctx context.Context) (*StorageStats, error) {
	if s.db == nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}

	stats, err := collectStats(ctx, s.db, sqlitePlaceholder)
	if err != nil {
		return nil, err
	}

	// Database size
	var size int64
	if err := s.db.QueryRowContext(ctx,
		"SELECT page_count * page_size FROM pragma_page_count(), pragma_page_size()").Scan(&size); err == nil {
		stats.DatabaseSize = size
	}

	return stats, nil
}

// GetHealth returns storage health information
func (s *SQLiteStorage) GetHealth() *StorageHealth {
	health := &StorageHealth{
		StorageType: "sqlite",
		Healthy:     false,
		Details:     map[string]string{"connection_string": s.config.ConnectionString},
		LastPing:    time.Now(),
	}

	if err := s.Ping(); err != nil {
		health.Details["error"] = err.Error()
		return health
	}

	health.Healthy = true
	return health
}

// collectStats gathers the counters shared by every SQL backend
func collectStats(ctx context.Context, db *sql.DB, placeholder func(n int) string) (*StorageStats, error) {
	stats := &StorageStats{QRCodesByType: make(map[models.QRCodeType]int64)}

	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM qr_codes").Scan(&stats.TotalQRCodes); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to count QR codes", err.Error())
	}

	if err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM qr_codes WHERE is_generated = "+placeholder(1), true).Scan(&stats.GeneratedQRCodes); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to count generated QR codes", err.Error())
	}
	stats.ScannedQRCodes = stats.TotalQRCodes - stats.GeneratedQRCodes

	rows, err := db.QueryContext(ctx, "SELECT type, COUNT(*) FROM qr_codes GROUP BY type")
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to count QR codes by type", err.Error())
	}
	defer rows.Close()
	for rows.Next() {
		var qrType string
		var count int64
		if err := rows.Scan(&qrType, &count); err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan type count", err.Error())
		}
		stats.QRCodesByType[models.QRCodeType(qrType)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to iterate type counts", err.Error())
	}

	var oldest, latest sql.NullInt64
	if err := db.QueryRowContext(ctx, "SELECT MIN(recorded_at), MAX(recorded_at) FROM qr_codes").Scan(&oldest, &latest); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to read history range", err.Error())
	}
	if oldest.Valid {
		t := utils.FromUnixMillis(oldest.Int64)
		stats.OldestQRCode = &t
	}
	if latest.Valid {
		t := utils.FromUnixMillis(latest.Int64)
		stats.LatestQRCode = &t
	}

	return stats, nil
}
