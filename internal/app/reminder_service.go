// internal/app/reminder_service.go
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"peakflow_reminder/internal/domain/notification"
	"peakflow_reminder/internal/domain/reminder"
	"peakflow_reminder/internal/domain/wakeup"
)

// Status is what the UI polls for one identity.
type Status struct {
	Identity             string
	Config               reminder.Config
	NextTrigger          time.Time // zero when nothing is armed
	Tier                 string
	Advisory             string
	NotificationsAllowed bool
}

// StatusSource exposes the scheduler state shown to the user.
type StatusSource interface {
	Scheduler
	Pending(identity string) (wakeup.Registration, bool)
	NextOccurrence(cfg reminder.Config) time.Time
	Advisory(identity string) string
}

// ReminderService is the UI-facing facade. Input validation is the caller's
// job; the service only persists and schedules.
type ReminderService struct {
	configs     reminder.Repository
	history     reminder.HistoryRepository
	permissions notification.PermissionRepository
	scheduler   StatusSource
	log         *logrus.Entry
}

func NewReminderService(
	configs reminder.Repository,
	history reminder.HistoryRepository,
	permissions notification.PermissionRepository,
	scheduler StatusSource,
	log *logrus.Entry,
) *ReminderService {
	return &ReminderService{
		configs:     configs,
		history:     history,
		permissions: permissions,
		scheduler:   scheduler,
		log:         log.WithField("component", "reminder_service"),
	}
}

// Save persists cfg for identity and arms it, or cancels when cfg is disabled.
func (s *ReminderService) Save(ctx context.Context, identity string, cfg reminder.Config) (Outcome, error) {
	key := reminder.Key(identity)
	if err := s.configs.Save(ctx, key, cfg); err != nil {
		return Outcome{}, fmt.Errorf("failed to save reminder config: %w", err)
	}
	if err := s.configs.SetActiveIdentity(ctx, key); err != nil {
		s.log.WithField("identity", key).Warnf("Failed to record active identity: %v", err)
	}
	s.log.WithFields(logrus.Fields{
		"identity":  key,
		"enabled":   cfg.Enabled,
		"time":      cfg.Clock(),
		"frequency": cfg.Frequency,
	}).Info("Reminder config saved")

	return s.scheduler.Schedule(ctx, key, cfg), nil
}

// Disable cancels the pending wake-up and clears the stored config. Once it
// returns no further reminder fires for identity.
func (s *ReminderService) Disable(ctx context.Context, identity string) error {
	key := reminder.Key(identity)
	s.scheduler.Cancel(ctx, key)
	if err := s.configs.Clear(ctx, key); err != nil {
		return fmt.Errorf("failed to clear reminder config: %w", err)
	}
	s.log.WithField("identity", key).Info("Reminder disabled")
	return nil
}

// Status returns the stored config together with the live scheduling state.
func (s *ReminderService) Status(ctx context.Context, identity string) (Status, error) {
	key := reminder.Key(identity)
	cfg, err := s.configs.Load(ctx, key)
	if err != nil {
		return Status{}, fmt.Errorf("failed to load reminder config: %w", err)
	}
	allowed, err := s.permissions.NotificationsAllowed(ctx, key)
	if err != nil {
		return Status{}, fmt.Errorf("failed to read notification permission: %w", err)
	}

	st := Status{Identity: key, Config: cfg, NotificationsAllowed: allowed}
	if !cfg.Enabled {
		return st, nil
	}
	if reg, ok := s.scheduler.Pending(key); ok {
		st.NextTrigger = reg.At
		st.Tier = reg.Tier.String()
	}
	st.Advisory = s.scheduler.Advisory(key)
	return st, nil
}

// Preview returns the first trigger instant cfg would get if saved now.
func (s *ReminderService) Preview(cfg reminder.Config) time.Time {
	return s.scheduler.NextOccurrence(cfg)
}

// History lists fired reminders, newest first.
func (s *ReminderService) History(ctx context.Context, identity string, limit int) ([]reminder.FiredEvent, error) {
	events, err := s.history.ListFired(ctx, reminder.Key(identity), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list reminder history: %w", err)
	}
	return events, nil
}

// SetNotificationsAllowed records the user's notification choice.
func (s *ReminderService) SetNotificationsAllowed(ctx context.Context, identity string, allowed bool) error {
	key := reminder.Key(identity)
	if err := s.permissions.SetNotificationsAllowed(ctx, key, allowed); err != nil {
		return fmt.Errorf("failed to store notification permission: %w", err)
	}
	s.log.WithFields(logrus.Fields{"identity": key, "allowed": allowed}).Info("Notification permission updated")
	return nil
}
