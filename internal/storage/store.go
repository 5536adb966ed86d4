package storage

import (
	"context"
	"errors"

	"github.com/owie-project/owie-netd/internal/models"
)

// Common errors
var (
	ErrNotFound    = errors.New("not found")
	ErrInvalidData = errors.New("invalid data")
)

// SettingsStore persists the device Settings record.
type SettingsStore interface {
	// Load returns ErrNotFound when nothing has been saved yet.
	Load(ctx context.Context) (*models.Settings, error)
	Save(ctx context.Context, settings *models.Settings) error

	// Close the store
	Close() error
}

// Open builds the store selected by driver ("file" or "postgres").
func Open(driver, path, dsn string) (SettingsStore, error) {
	switch driver {
	case "", "file":
		return NewFileStore(path), nil
	case "postgres":
		return NewPostgresStore(dsn)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
