package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"github.com/smartdevs17/qrcode-generator/internal/models"
	"github.com/smartdevs17/qrcode-generator/pkg/utils"
)

// PostgreSQLStorage implements Storage interface using PostgreSQL
type PostgreSQLStorage struct {
	db         *sql.DB
	config     *StorageConfig
	logger     *logrus.Logger
	migrations []*Migration
}

// NewPostgreSQLStorage creates a new PostgreSQL storage instance
func NewPostgreSQLStorage(config *StorageConfig) *PostgreSQLStorage {
	return &PostgreSQLStorage{
		config:     config,
		logger:     utils.GetLogger(),
		migrations: GetPostgresMigrations(),
	}
}

func postgresPlaceholder(n int) string { return fmt.Sprintf("$%d", n) }

// Connect establishes database connection
func (p *PostgreSQLStorage) Connect() error {
	db, err := sql.Open("postgres", p.config.ConnectionString)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to open PostgreSQL database", err.Error())
	}

	// Configure connection pool
	db.SetMaxOpenConns(p.config.MaxConnections)
	db.SetMaxIdleConns(p.config.MaxConnections / 2)
	db.SetConnMaxIdleTime(p.config.MaxIdleTime)

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to ping PostgreSQL database", err.Error())
	}

	p.db = db
	p.logger.Info("PostgreSQL database connected")

	return nil
}

// Close closes the database connection
func (p *PostgreSQLStorage) Close() error {
	if p.db != nil {
		err := p.db.Close()
		p.db = nil
		p.logger.Info("PostgreSQL database connection closed")
		return err
	}
	return nil
}

// Ping checks database connectivity
func (p *PostgreSQLStorage) Ping() error {
	if p.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}
	return p.db.Ping()
}

// Migrate runs database migrations
func (p *PostgreSQLStorage) Migrate() error {
	if p.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}

	p.logger.Info("Starting PostgreSQL migrations")
	if err := applyMigrations(p.db, p.migrations, postgresPlaceholder, p.logger); err != nil {
		return err
	}
	p.logger.Info("PostgreSQL migrations completed")
	return nil
}

// InsertQRCode inserts a new record, or replaces the record with the same id
// when qr.ID is set. The stored id is returned and written back to qr.
func (p *PostgreSQLStorage) InsertQRCode(ctx context.Context, qr *models.QRCode) (int64, error) {
	if p.db == nil {
		return 0, utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}
	if err := prepareQRCode(qr); err != nil {
		return 0, err
	}

	var id int64
	if qr.ID == 0 {
		err := p.db.QueryRowContext(ctx,
			`INSERT INTO qr_codes (content, type, recorded_at, is_generated) VALUES ($1, $2, $3, $4) RETURNING id`,
			qr.Content, string(qr.Type), utils.UnixMillis(qr.Timestamp), qr.IsGenerated).Scan(&id)
		if err != nil {
			return 0, utils.NewAppError(utils.ErrCodeDatabase, "Failed to save QR code", err.Error())
		}
		qr.ID = id
		return id, nil
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, utils.NewAppError(utils.ErrCodeDatabase, "Failed to begin transaction", err.Error())
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO qr_codes (id, content, type, recorded_at, is_generated)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			type = EXCLUDED.type,
			recorded_at = EXCLUDED.recorded_at,
			is_generated = EXCLUDED.is_generated
		RETURNING id`,
		qr.ID, qr.Content, string(qr.Type), utils.UnixMillis(qr.Timestamp), qr.IsGenerated).Scan(&id)
	if err != nil {
		return 0, utils.NewAppError(utils.ErrCodeDatabase, "Failed to save QR code", err.Error())
	}

	// Explicit ids bypass the sequence; move it past them so later inserts stay unique.
	if _, err := tx.ExecContext(ctx,
		`SELECT setval(pg_get_serial_sequence('qr_codes', 'id'), GREATEST((SELECT MAX(id) FROM qr_codes), 1))`); err != nil {
		return 0, utils.NewAppError(utils.ErrCodeDatabase, "Failed to advance id sequence", err.Error())
	}

	if err := tx.Commit(); err != nil {
		return 0, utils.NewAppError(utils.ErrCodeDatabase, "Failed to commit QR code", err.Error())
	}

	qr.ID = id
	return id, nil
}

// GetQRCode returns a single record by id
func (p *PostgreSQLStorage) GetQRCode(ctx context.Context, id int64) (*models.QRCode, error) {
	if p.db == nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}

	row := p.db.QueryRowContext(ctx, "SELECT "+qrCodeColumns+" FROM qr_codes WHERE id = $1", id)
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
func (p *PostgreSQLStorage) GetQRCodes(ctx context.Context, filter models.QRCodeFilter) ([]*models.QRCode, error) {
	if p.db == nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}

	tail, args := filterQuery(filter, postgresDialect)
	rows, err := p.db.QueryContext(ctx, "SELECT "+qrCodeColumns+" FROM qr_codes"+tail, args...)
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
func (p *PostgreSQLStorage) DeleteQRCode(ctx context.Context, id int64) error {
	if p.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}

	result, err := p.db.ExecContext(ctx, "DELETE FROM qr_codes WHERE id = $1", id)
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
func (p *PostgreSQLStorage) DeleteAllQRCodes(ctx context.Context) (int64, error) {
	if p.db == nil {
		return 0, utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}

	result, err := p.db.ExecContext(ctx, "DELETE FROM qr_codes")
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
func (p *PostgreSQLStorage) CountQRCodes(ctx context.Context) (int64, error) {
	if p.db == nil {
		return 0, utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}

	var count int64
	if err := p.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM qr_codes").Scan(&count); err != nil {
		return 0, utils.NewAppError(utils.ErrCodeDatabase, "Failed to count QR codes", err.Error())
	}
	return count, nil
}

// GetStorageStats returns storage statistics
func (p *PostgreSQLStorage) GetStorageStats(ctx context.Context) (*StorageStats, error) {
	if p.db == nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}

	stats, err := collectStats(ctx, p.db, postgresPlaceholder)
	if err != nil {
		return nil, err
	}

	var size int64
	if err := p.db.QueryRowContext(ctx, "SELECT pg_total_relation_size('qr_codes')").Scan(&size); err == nil {
		stats.DatabaseSize = size
	}

	return stats, nil
}

// GetHealth returns storage health information
func (p *PostgreSQLStorage) GetHealth() *StorageHealth {
	health := &StorageHealth{
		StorageType: "postgres",
		Healthy:     false,
		Details:     map[string]string{},
		LastPing:    time.Now(),
	}

	if err := p.Ping(); err != nil {
		health.Details["error"] = err.Error()
		return health
	}

	if p.db != nil {
		dbStats := p.db.Stats()
		health.Details["open_connections"] = fmt.Sprintf("%d", dbStats.OpenConnections)
		health.Details["in_use"] = fmt.Sprintf("%d", dbStats.InUse)
	}

	health.Healthy = true
	return health
}
