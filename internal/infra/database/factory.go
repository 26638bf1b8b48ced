package database

import (
	"context"
	"fmt"

	"github.com/spf13/afero"

	"peakflow_reminder/internal/domain/notification"
	"peakflow_reminder/internal/domain/reminder"
	"peakflow_reminder/internal/infra/config"
)

var ErrUnknownStoreDriver = fmt.Errorf("unknown store driver")

// Store is everything the reminder core persists, behind one handle.
type Store interface {
	reminder.Repository
	reminder.HistoryRepository
	notification.PermissionRepository
	Close() error
}

// Open returns the store selected by cfg.StoreDriver.
func Open(ctx context.Context, cfg *config.AppConfig) (Store, error) {
	switch cfg.StoreDriver {
	case config.StoreFile:
		return NewFileReminderRepository(afero.NewOsFs(), cfg.DataDir)
	case config.StoreSQLite:
		db, err := NewSQLiteConnection(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return NewSQLiteReminderRepository(db), nil
	case config.StorePostgres:
		db, err := NewPostgresConnection(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return NewPostgresReminderRepository(db), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStoreDriver, cfg.StoreDriver)
	}
}
