// internal/app/trigger_handler.go
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"peakflow_reminder/internal/domain/notification"
	"peakflow_reminder/internal/domain/reminder"
	"peakflow_reminder/internal/domain/wakeup"
)

// DefaultTriggerBudget bounds one run of the fire path.
const DefaultTriggerBudget = 5 * time.Second

const (
	NotificationTitle = "Peak flow reminder"
	notificationTag   = "pefr-reminder"
)

// Rearmer arms the occurrence after a delivery.
type Rearmer interface {
	ScheduleNext(ctx context.Context, d wakeup.Delivery, cfg reminder.Config) Outcome
}

// TriggerHandler runs when a wake-up fires: it shows the reminder, records
// it and arms the next occurrence. It assumes nothing is warm and reads all
// state from the stores.
type TriggerHandler struct {
	configs     reminder.Repository
	history     reminder.HistoryRepository
	permissions notification.PermissionRepository
	presenter   notification.Presenter
	rearmer     Rearmer
	tapTarget   string
	budget      time.Duration
	now         func() time.Time
	log         *logrus.Entry
}

func NewTriggerHandler(
	configs reminder.Repository,
	history reminder.HistoryRepository,
	permissions notification.PermissionRepository,
	presenter notification.Presenter,
	rearmer Rearmer,
	tapTarget string,
	budget time.Duration,
	log *logrus.Entry,
) *TriggerHandler {
	if budget <= 0 {
		budget = DefaultTriggerBudget
	}
	return &TriggerHandler{
		configs:     configs,
		history:     history,
		permissions: permissions,
		presenter:   presenter,
		rearmer:     rearmer,
		tapTarget:   tapTarget,
		budget:      budget,
		now:         time.Now,
		log:         log.WithField("component", "trigger_handler"),
	}
}

// OnFire is installed as the scheduler's fire handler. It never panics and
// never returns an error: failures are logged and the recurrence continues.
func (h *TriggerHandler) OnFire(ctx context.Context, d wakeup.Delivery) {
	ctx, cancel := context.WithTimeout(ctx, h.budget)
	defer cancel()

	identity := reminder.Key(d.Identity)
	logEntry := h.log.WithFields(logrus.Fields{
		"identity":      identity,
		"scheduled_for": d.ScheduledFor.Format(time.RFC3339),
		"tier":          d.Tier.String(),
		"immediate":     d.Immediate,
	})
	logEntry.Info("Reminder fired")

	if h.notificationsAllowed(ctx, identity, logEntry) {
		h.notify(ctx, identity, d, logEntry)
	} else {
		logEntry.Info("Notifications are disabled for this identity, skipping")
	}

	h.rearm(ctx, identity, d, logEntry)
}

func (h *TriggerHandler) notificationsAllowed(ctx context.Context, identity string, logEntry *logrus.Entry) bool {
	allowed, err := h.permissions.NotificationsAllowed(ctx, identity)
	if err != nil {
		logEntry.Warnf("Could not read notification permission, assuming allowed: %v", err)
		return true
	}
	return allowed
}

func (h *TriggerHandler) notify(ctx context.Context, identity string, d wakeup.Delivery, logEntry *logrus.Entry) {
	n := BuildNotification(identity, d.TargetValue, h.tapTarget)

	if err := h.presenter.Present(ctx, n); err != nil {
		if errors.Is(err, notification.ErrPermissionDenied) {
			logEntry.Warn("Notification permission was revoked, muting further reminders")
			if err := h.permissions.SetNotificationsAllowed(ctx, identity, false); err != nil {
				logEntry.Errorf("Failed to persist revoked notification permission: %v", err)
			}
			return
		}
		logEntry.Errorf("Failed to present reminder notification: %v", err)
		return
	}

	ev := reminder.FiredEvent{
		ID:        uuid.NewString(),
		Identity:  identity,
		Timestamp: h.now(),
		Message:   n.Body,
	}
	if err := h.history.AppendFired(ctx, ev); err != nil {
		logEntry.Errorf("Failed to append reminder history: %v", err)
	}
}

func (h *TriggerHandler) rearm(ctx context.Context, identity string, d wakeup.Delivery, logEntry *logrus.Entry) {
	cfg, err := h.configs.Load(ctx, identity)
	if err != nil {
		logEntry.Warnf("Could not reload reminder config, re-arming from the delivery: %v", err)
		cfg = reminder.Config{
			Enabled:     true,
			Hour:        d.Hour,
			Minute:      d.Minute,
			Frequency:   d.Frequency,
			TargetValue: d.TargetValue,
		}
	}
	if !cfg.Enabled {
		logEntry.Info("Reminder was disabled, not re-arming")
		return
	}

	out := h.rearmer.ScheduleNext(ctx, d, cfg)
	if out.Registered {
		logEntry.WithField("next_at", out.TriggerAt.Format(time.RFC3339)).Debug("Next occurrence armed")
	}
}

// BuildNotification renders the reminder shown to the user.
func BuildNotification(identity string, targetValue int, tapTarget string) notification.Notification {
	body := "Time to record your peak flow reading."
	if targetValue > 0 {
		body = fmt.Sprintf("Time to record your peak flow reading. Target: %d L/min.", targetValue)
	}
	return notification.Notification{
		Identity:   identity,
		Title:      NotificationTitle,
		Body:       body,
		TapTarget:  tapTarget,
		Priority:   notification.PriorityHigh,
		AutoCancel: true,
		Tag:        notificationTag,
	}
}
