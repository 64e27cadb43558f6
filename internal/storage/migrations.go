package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/smartdevs17/qrcode-generator/pkg/utils"
)

// Migration represents a database migration
type Migration struct {
	ID          int       `db:"id"`
	Version     string    `db:"version"`
	Description string    `db:"description"`
	SQL         string    `db:"sql"`
	AppliedAt   time.Time `db:"applied_at"`
}

// GetSQLiteMigrations returns SQLite migration scripts
func GetSQLiteMigrations() []*Migration {
	return []*Migration{
		{
			Version:     "001",
			Description: "Create qr_codes table",
			SQL: `
				CREATE TABLE IF NOT EXISTS qr_codes (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					content TEXT NOT NULL,
					type TEXT NOT NULL DEFAULT 'text',
					recorded_at INTEGER NOT NULL,
					is_generated BOOLEAN NOT NULL DEFAULT 1
				);
			`,
		},
		{
			Version:     "002",
			Description: "Index qr_codes by recency and source",
			SQL: `
				CREATE INDEX IF NOT EXISTS idx_qr_codes_recorded_at ON qr_codes(recorded_at DESC, id DESC);
				CREATE INDEX IF NOT EXISTS idx_qr_codes_source ON qr_codes(is_generated, recorded_at DESC);
				CREATE INDEX IF NOT EXISTS idx_qr_codes_type ON qr_codes(type);
			`,
		},
	}
}

// GetPostgresMigrations returns PostgreSQL migration scripts
func GetPostgresMigrations() []*Migration {
	return []*Migration{
		{
			Version:     "001",
			Description: "Create qr_codes table",
			SQL: `
				CREATE TABLE IF NOT EXISTS qr_codes (
					id BIGSERIAL PRIMARY KEY,
					content TEXT NOT NULL,
					type VARCHAR(16) NOT NULL DEFAULT 'text',
					recorded_at BIGINT NOT NULL,
					is_generated BOOLEAN NOT NULL DEFAULT TRUE
				);
			`,
		},
		{
			Version:     "002",
			Description: "Index qr_codes by recency and source",
			SQL: `
				CREATE INDEX IF NOT EXISTS idx_qr_codes_recorded_at ON qr_codes(recorded_at DESC, id DESC);
				CREATE INDEX IF NOT EXISTS idx_qr_codes_source ON qr_codes(is_generated, recorded_at DESC);
				CREATE INDEX IF NOT EXISTS idx_qr_codes_type ON qr_codes(type);
			`,
		},
	}
}

const createMigrationTableSQL = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version VARCHAR(32) PRIMARY KEY,
		description TEXT NOT NULL,
		applied_at BIGINT NOT NULL
	)
`

// applyMigrations runs every migration whose version is not yet recorded in
// schema_migrations. placeholder renders the n-th bind marker for the driver.
func applyMigrations(db *sql.DB, migrations []*Migration, placeholder func(n int) string, logger *logrus.Logger) error {
	if _, err := db.Exec(createMigrationTableSQL); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to create migration table", err.Error())
	}

	applied := make(map[string]bool)
	rows, err := db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to read applied migrations", err.Error())
	}
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan migration version", err.Error())
		}
		applied[version] = true
	}
	rows.Close()

	record := fmt.Sprintf("INSERT INTO schema_migrations (version, description, applied_at) VALUES (%s, %s, %s)",
		placeholder(1), placeholder(2), placeholder(3))

	for _, migration := range migrations {
		if applied[migration.Version] {
			continue
		}

		logger.WithFields(logrus.Fields{
			"version":     migration.Version,
			"description": migration.Description,
		}).Info("Applying migration")

		tx, err := db.Begin()
		if err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase, "Failed to begin migration", err.Error())
		}

		if _, err := tx.Exec(migration.SQL); err != nil {
			tx.Rollback()
			return utils.NewAppError(utils.ErrCodeDatabase,
				fmt.Sprintf("Migration %s failed", migration.Version),
				err.Error())
		}

		if _, err := tx.Exec(record, migration.Version, migration.Description, utils.UnixMillis(time.Now())); err != nil {
			tx.Rollback()
			return utils.NewAppError(utils.ErrCodeDatabase,
				fmt.Sprintf("Failed to record migration %s", migration.Version),
				err.Error())
		}

		if err := tx.Commit(); err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase,
				fmt.Sprintf("Failed to commit migration %s", migration.Version),
				err.Error())
		}
	}

	return nil
}
