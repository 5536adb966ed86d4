package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/owie-project/owie-netd/internal/models"
)

const settingsSchema = `
    CREATE TABLE IF NOT EXISTS device_settings (
        id                      SMALLINT PRIMARY KEY CHECK (id = 1),
        ap_name                 VARCHAR(32) NOT NULL DEFAULT '',
        ap_password             VARCHAR(64) NOT NULL DEFAULT '',
        ap_self_password        VARCHAR(64) NOT NULL DEFAULT '',
        bms_serial              BIGINT NOT NULL DEFAULT 0,
        graceful_shutdown_count BIGINT NOT NULL DEFAULT 0,
        updated_at              TIMESTAMPTZ NOT NULL DEFAULT now()
    )`

// PostgresStore keeps Settings as a single row in PostgreSQL, for devices
// whose host already runs a database.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL store
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec(settingsSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create settings table: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// Load reads the settings row.
func (s *PostgresStore) Load(ctx context.Context) (*models.Settings, error) {
	query := `
        SELECT ap_name, ap_password, ap_self_password, bms_serial, graceful_shutdown_count
        FROM device_settings
        WHERE id = 1`

	var settings models.Settings
	err := s.db.QueryRowContext(ctx, query).Scan(
		&settings.APName, &settings.APPassword, &settings.APSelfPassword,
		&settings.BMSSerial, &settings.GracefulShutdownCount,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query settings: %w", err)
	}
	return &settings, nil
}

// Save upserts the settings row.
func (s *PostgresStore) Save(ctx context.Context, settings *models.Settings) error {
	if !settings.Fits() {
		return ErrInvalidData
	}

	query := `
        INSERT INTO device_settings (
            id, ap_name, ap_password, ap_self_password, bms_serial, graceful_shutdown_count, updated_at
        ) VALUES (1, $1, $2, $3, $4, $5, now())
        ON CONFLICT (id) DO UPDATE SET
            ap_name = EXCLUDED.ap_name,
            ap_password = EXCLUDED.ap_password,
            ap_self_password = EXCLUDED.ap_self_password,
            bms_serial = EXCLUDED.bms_serial,
            graceful_shutdown_count = EXCLUDED.graceful_shutdown_count,
            updated_at = EXCLUDED.updated_at`

	_, err := s.db.ExecContext(ctx, query,
		settings.APName, settings.APPassword, settings.APSelfPassword,
		int64(settings.BMSSerial), int64(settings.GracefulShutdownCount),
	)
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
