// internal/infra/telegram/reminder_handlers.go
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"

	"peakflow_reminder/internal/app"
	"peakflow_reminder/internal/domain/reminder"
)

const defaultHistoryLimit = 10

// ReminderUI is the part of app.ReminderService the bot drives.
type ReminderUI interface {
	Save(ctx context.Context, identity string, cfg reminder.Config) (app.Outcome, error)
	Disable(ctx context.Context, identity string) error
	Status(ctx context.Context, identity string) (app.Status, error)
	History(ctx context.Context, identity string, limit int) ([]reminder.FiredEvent, error)
	SetNotificationsAllowed(ctx context.Context, identity string, allowed bool) error
}

const remindUsage = "Usage: /remind HH:MM [daily|weekly|monthly] [target]\nExample: /remind 08:00 daily 300"

// ParseRemindArgs turns the /remind arguments into an enabled config.
// Frequency defaults to daily; a bare number in its place is the target.
func ParseRemindArgs(args []string) (reminder.Config, error) {
	if len(args) == 0 || len(args) > 3 {
		return reminder.Config{}, fmt.Errorf("expected 1 to 3 arguments, got %d", len(args))
	}

	hour, minute, err := reminder.ParseClock(args[0])
	if err != nil {
		return reminder.Config{}, err
	}

	cfg := reminder.Config{Enabled: true, Hour: hour, Minute: minute, Frequency: reminder.FrequencyDaily}
	rest := args[1:]
	if len(rest) > 0 {
		if _, numErr := strconv.Atoi(rest[0]); numErr != nil {
			freq, err := reminder.ParseFrequency(rest[0])
			if err != nil {
				return reminder.Config{}, err
			}
			cfg.Frequency = freq
			rest = rest[1:]
		}
	}
	if len(rest) > 1 {
		return reminder.Config{}, fmt.Errorf("unexpected argument %q", rest[1])
	}
	if len(rest) == 1 {
		target, err := strconv.Atoi(rest[0])
		if err != nil || target < 0 {
			return reminder.Config{}, fmt.Errorf("target %q must be a non-negative number", rest[0])
		}
		cfg.TargetValue = target
	}
	return cfg, nil
}

// FormatOutcome is the reply to a successful /remind.
func FormatOutcome(cfg reminder.Config, out app.Outcome, loc *time.Location) string {
	var b strings.Builder
	switch {
	case out.Immediate:
		b.WriteString("Reminder saved. It was due right now, so it fired immediately.")
	case out.Registered:
		fmt.Fprintf(&b, "Reminder set: %s %s. Next: %s.",
			strings.ToLower(string(cfg.Frequency)), cfg.Clock(), out.TriggerAt.In(loc).Format("Mon 02 Jan 15:04"))
	default:
		b.WriteString("Reminder saved, but no wake-up could be registered. It will be retried on restart.")
	}
	if cfg.HasTarget() {
		fmt.Fprintf(&b, "\nTarget: %d L/min.", cfg.TargetValue)
	}
	if out.Advisory != "" {
		fmt.Fprintf(&b, "\nNote: %s.", out.Advisory)
	}
	return b.String()
}

// FormatStatus renders /remind_status.
func FormatStatus(st app.Status, loc *time.Location) string {
	if !st.Config.Enabled {
		return "No reminder is set. Use /remind to create one."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Reminder: %s at %s", strings.ToLower(string(st.Config.Frequency)), st.Config.Clock())
	if st.Config.HasTarget() {
		fmt.Fprintf(&b, ", target %d L/min", st.Config.TargetValue)
	}
	b.WriteString("\n")
	if st.NextTrigger.IsZero() {
		b.WriteString("Next: not armed\n")
	} else {
		fmt.Fprintf(&b, "Next: %s (%s)\n", st.NextTrigger.In(loc).Format("Mon 02 Jan 15:04"), st.Tier)
	}
	if !st.NotificationsAllowed {
		b.WriteString("Notifications are off. Use /notifications on to resume.\n")
	}
	if st.Advisory != "" {
		fmt.Fprintf(&b, "Note: %s.\n", st.Advisory)
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatHistory renders /history.
func FormatHistory(events []reminder.FiredEvent, loc *time.Location) string {
	if len(events) == 0 {
		return "No reminders have fired yet."
	}
	var b strings.Builder
	b.WriteString("Recent reminders:\n")
	for _, e := range events {
		fmt.Fprintf(&b, "%s  %s\n", e.Timestamp.In(loc).Format("2006-01-02 15:04"), e.Message)
	}
	return strings.TrimRight(b.String(), "\n")
}

func RegisterReminderHandlers(
	ctx context.Context,
	b *telebot.Bot,
	svc ReminderUI,
	loc func() *time.Location,
	baseLogger *logrus.Entry,
) {
	handlerLog := func(c telebot.Context, handler string) *logrus.Entry {
		return baseLogger.WithFields(logrus.Fields{
			"handler": handler,
			"chat_id": c.Chat().ID,
		})
	}

	b.Handle("/remind", func(c telebot.Context) error {
		handlerLogger := handlerLog(c, "/remind")
		args := c.Args()
		if len(args) == 0 {
			return c.Send(remindUsage)
		}

		cfg, err := ParseRemindArgs(args)
		if err != nil {
			handlerLogger.WithField("args", args).Warnf("Invalid /remind arguments: %v", err)
			return c.Send(fmt.Sprintf("Error: %s\n\n%s", err.Error(), remindUsage))
		}

		out, err := svc.Save(ctx, IdentityForChat(c.Chat().ID), cfg)
		if err != nil {
			handlerLogger.WithError(err).Error("Failed to save reminder")
			return c.Send("Could not save the reminder. Please try again later.")
		}
		handlerLogger.WithFields(logrus.Fields{
			"time":       cfg.Clock(),
			"frequency":  cfg.Frequency,
			"registered": out.Registered,
			"immediate":  out.Immediate,
		}).Info("Reminder saved from chat")
		return c.Send(FormatOutcome(cfg, out, loc()))
	})

	disable := func(c telebot.Context, handler string) error {
		if err := svc.Disable(ctx, IdentityForChat(c.Chat().ID)); err != nil {
			handlerLog(c, handler).WithError(err).Error("Failed to disable reminder")
			return err
		}
		handlerLog(c, handler).Info("Reminder disabled from chat")
		return nil
	}

	b.Handle("/remind_off", func(c telebot.Context) error {
		if err := disable(c, "/remind_off"); err != nil {
			return c.Send("Could not turn the reminder off. Please try again later.")
		}
		return c.Send("Reminder turned off.")
	})

	offBtn := (&telebot.ReplyMarkup{}).Data("Turn off reminders", remindOffUnique)
	b.Handle(&offBtn, func(c telebot.Context) error {
		if err := disable(c, "callback_remind_off"); err != nil {
			return c.Respond(&telebot.CallbackResponse{Text: "An error occurred."})
		}
		return c.Respond(&telebot.CallbackResponse{Text: "Reminders turned off."})
	})

	b.Handle("/remind_status", func(c telebot.Context) error {
		st, err := svc.Status(ctx, IdentityForChat(c.Chat().ID))
		if err != nil {
			handlerLog(c, "/remind_status").WithError(err).Error("Failed to load reminder status")
			return c.Send("Could not load the reminder status. Please try again later.")
		}
		return c.Send(FormatStatus(st, loc()))
	})

	b.Handle("/history", func(c telebot.Context) error {
		handlerLogger := handlerLog(c, "/history")
		limit := defaultHistoryLimit
		if args := c.Args(); len(args) > 0 {
			n, err := strconv.Atoi(args[0])
			if err != nil || n <= 0 {
				handlerLogger.WithField("arg", args[0]).Warn("Invalid history limit")
				return c.Send("Usage: /history [count]")
			}
			limit = n
		}
		events, err := svc.History(ctx, IdentityForChat(c.Chat().ID), limit)
		if err != nil {
			handlerLogger.WithError(err).Error("Failed to list reminder history")
			return c.Send("Could not load the history. Please try again later.")
		}
		return c.Send(FormatHistory(events, loc()))
	})

	b.Handle("/notifications", func(c telebot.Context) error {
		handlerLogger := handlerLog(c, "/notifications")
		args := c.Args()
		if len(args) != 1 {
			return c.Send("Usage: /notifications on|off")
		}
		var allowed bool
		switch strings.ToLower(args[0]) {
		case "on":
			allowed = true
		case "off":
			allowed = false
		default:
			return c.Send("Usage: /notifications on|off")
		}
		if err := svc.SetNotificationsAllowed(ctx, IdentityForChat(c.Chat().ID), allowed); err != nil {
			handlerLogger.WithError(err).Error("Failed to store notification permission")
			return c.Send("Could not update notifications. Please try again later.")
		}
		if allowed {
			return c.Send("Notifications are on.")
		}
		return c.Send("Notifications are off. The reminder stays scheduled but nothing is shown.")
	})
}

var _ ReminderUI = (*app.ReminderService)(nil)
