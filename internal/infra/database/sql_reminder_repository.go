package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"peakflow_reminder/internal/domain/notification"
	"peakflow_reminder/internal/domain/reminder"
)

const activeIdentityKey = "active_identity"

// SQLReminderRepository stores reminder configs, history and notification
// permissions in SQLite or PostgreSQL.
type SQLReminderRepository struct {
	db      *sql.DB
	dialect Dialect
}

func NewSQLiteReminderRepository(db *sql.DB) *SQLReminderRepository {
	return &SQLReminderRepository{db: db, dialect: SQLite}
}

func NewPostgresReminderRepository(db *sql.DB) *SQLReminderRepository {
	return &SQLReminderRepository{db: db, dialect: Postgres}
}

func (r *SQLReminderRepository) Load(ctx context.Context, identity string) (reminder.Config, error) {
	query := r.dialect.Rebind(`SELECT enabled, hour, minute, frequency, target_value
               FROM reminder_configs WHERE identity = ?`)
	var (
		cfg  reminder.Config
		freq string
	)
	err := r.db.QueryRowContext(ctx, query, reminder.Key(identity)).
		Scan(&cfg.Enabled, &cfg.Hour, &cfg.Minute, &freq, &cfg.TargetValue)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return reminder.DefaultConfig(), nil
		}
		return reminder.Config{}, fmt.Errorf("error loading reminder config: %w", err)
	}
	if cfg.Frequency, err = reminder.ParseFrequency(freq); err != nil {
		return reminder.Config{}, fmt.Errorf("error loading reminder config: %w", err)
	}
	return cfg, nil
}

func (r *SQLReminderRepository) Save(ctx context.Context, identity string, cfg reminder.Config) error {
	query := r.dialect.Rebind(`INSERT INTO reminder_configs (identity, enabled, hour, minute, frequency, target_value, updated_at)
               VALUES (?, ?, ?, ?, ?, ?, ?)
               ON CONFLICT (identity) DO UPDATE SET
                   enabled      = excluded.enabled,
                   hour         = excluded.hour,
                   minute       = excluded.minute,
                   frequency    = excluded.frequency,
                   target_value = excluded.target_value,
                   updated_at   = excluded.updated_at`)
	_, err := r.db.ExecContext(ctx, query,
		reminder.Key(identity), cfg.Enabled, cfg.Hour, cfg.Minute, string(cfg.Frequency), cfg.TargetValue,
		time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("error saving reminder config: %w", err)
	}
	return nil
}

func (r *SQLReminderRepository) Clear(ctx context.Context, identity string) error {
	query := r.dialect.Rebind(`DELETE FROM reminder_configs WHERE identity = ?`)
	if _, err := r.db.ExecContext(ctx, query, reminder.Key(identity)); err != nil {
		return fmt.Errorf("error clearing reminder config: %w", err)
	}
	return nil
}

func (r *SQLReminderRepository) ListEnabled(ctx context.Context) ([]string, error) {
	query := r.dialect.Rebind(`SELECT identity FROM reminder_configs WHERE enabled = ? ORDER BY identity`)
	rows, err := r.db.QueryContext(ctx, query, true)
	if err != nil {
		return nil, fmt.Errorf("error listing enabled reminders: %w", err)
	}
	defer rows.Close()

	var identities []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("error scanning enabled reminder: %w", err)
		}
		identities = append(identities, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating enabled reminders: %w", err)
	}
	return identities, nil
}

func (r *SQLReminderRepository) ActiveIdentity(ctx context.Context) (string, bool, error) {
	query := r.dialect.Rebind(`SELECT value FROM reminder_state WHERE key = ?`)
	var identity string
	err := r.db.QueryRowContext(ctx, query, activeIdentityKey).Scan(&identity)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("error reading active identity: %w", err)
	}
	return identity, identity != "", nil
}

func (r *SQLReminderRepository) SetActiveIdentity(ctx context.Context, identity string) error {
	query := r.dialect.Rebind(`INSERT INTO reminder_state (key, value) VALUES (?, ?)
               ON CONFLICT (key) DO UPDATE SET value = excluded.value`)
	if _, err := r.db.ExecContext(ctx, query, activeIdentityKey, reminder.Key(identity)); err != nil {
		return fmt.Errorf("error storing active identity: %w", err)
	}
	return nil
}

func (r *SQLReminderRepository) AppendFired(ctx context.Context, ev reminder.FiredEvent) error {
	query := r.dialect.Rebind(`INSERT INTO fired_events (id, identity, fired_at, message) VALUES (?, ?, ?, ?)`)
	_, err := r.db.ExecContext(ctx, query, ev.ID, reminder.Key(ev.Identity), ev.Timestamp.UnixMilli(), ev.Message)
	if err != nil {
		return fmt.Errorf("error appending fired event: %w", err)
	}
	return nil
}

func (r *SQLReminderRepository) ListFired(ctx context.Context, identity string, limit int) ([]reminder.FiredEvent, error) {
	query := `SELECT id, identity, fired_at, message FROM fired_events
               WHERE identity = ? ORDER BY fired_at DESC, id DESC`
	args := []any{reminder.Key(identity)}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("error listing fired events: %w", err)
	}
	defer rows.Close()

	var events []reminder.FiredEvent
	for rows.Next() {
		var (
			ev      reminder.FiredEvent
			firedAt int64
		)
		if err := rows.Scan(&ev.ID, &ev.Identity, &firedAt, &ev.Message); err != nil {
			return nil, fmt.Errorf("error scanning fired event: %w", err)
		}
		ev.Timestamp = time.UnixMilli(firedAt)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating fired events: %w", err)
	}
	return events, nil
}

func (r *SQLReminderRepository) NotificationsAllowed(ctx context.Context, identity string) (bool, error) {
	query := r.dialect.Rebind(`SELECT allowed FROM notification_permissions WHERE identity = ?`)
	var allowed bool
	err := r.db.QueryRowContext(ctx, query, reminder.Key(identity)).Scan(&allowed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return true, nil
		}
		return false, fmt.Errorf("error reading notification permission: %w", err)
	}
	return allowed, nil
}

func (r *SQLReminderRepository) SetNotificationsAllowed(ctx context.Context, identity string, allowed bool) error {
	query := r.dialect.Rebind(`INSERT INTO notification_permissions (identity, allowed) VALUES (?, ?)
               ON CONFLICT (identity) DO UPDATE SET allowed = excluded.allowed`)
	if _, err := r.db.ExecContext(ctx, query, reminder.Key(identity), allowed); err != nil {
		return fmt.Errorf("error storing notification permission: %w", err)
	}
	return nil
}

// Close closes the underlying connection pool.
func (r *SQLReminderRepository) Close() error {
	return r.db.Close()
}

var _ reminder.Repository = (*SQLReminderRepository)(nil)
var _ reminder.HistoryRepository = (*SQLReminderRepository)(nil)
var _ notification.PermissionRepository = (*SQLReminderRepository)(nil)
