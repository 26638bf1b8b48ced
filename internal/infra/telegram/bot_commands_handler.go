// internal/infra/telegram/bot_commands_handler.go
package telegram

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// HelpText lists the reminder commands.
func HelpText() string {
	var helpText strings.Builder
	helpText.WriteString("Available commands:\n\n")
	helpText.WriteString("`/remind HH:MM [daily|weekly|monthly] [target]`\n - Remind me to record a peak flow reading. Saving again replaces the reminder.\n\n")
	helpText.WriteString("`/remind_off`\n - Turn the reminder off.\n\n")
	helpText.WriteString("`/remind_status`\n - Show the reminder and when it fires next.\n\n")
	helpText.WriteString("`/history [count]`\n - List reminders that fired recently.\n\n")
	helpText.WriteString("`/notifications on|off`\n - Pause or resume reminder messages without deleting the reminder.\n\n")
	helpText.WriteString("`/help`\n - Show this help message.")
	return helpText.String()
}

func RegisterBotCommands(
	ctx context.Context,
	b *telebot.Bot,
	svc ReminderUI,
	baseLogger *logrus.Entry, // For contextual logging
) {
	startHelpLogger := baseLogger.WithField("handler_group", "start_help")

	b.Handle("/start", func(c telebot.Context) error {
		chatID := c.Chat().ID
		logCtx := startHelpLogger.WithField("command", "/start").WithField("chat_id", chatID)
		logCtx.Info("Processing /start command")

		st, err := svc.Status(ctx, IdentityForChat(chatID))
		if err != nil {
			logCtx.WithError(err).Error("Error loading reminder status for /start command")
			return c.Send("An error occurred while loading your reminder. Please try again later.")
		}

		name := "there"
		if c.Sender() != nil && c.Sender().FirstName != "" {
			name = c.Sender().FirstName
		}
		if st.Config.Enabled {
			return c.Send(fmt.Sprintf("Hi %s! Your peak flow reminder is set for %s. Use /remind_status for details.", name, st.Config.Clock()))
		}
		return c.Send(fmt.Sprintf("Hi %s! I remind you to record your peak flow reading. Use /remind 08:00 to get started, or /help for all commands.", name))
	})

	b.Handle("/help", func(c telebot.Context) error {
		logCtx := startHelpLogger.WithField("command", "/help").WithField("chat_id", c.Chat().ID)
		logCtx.Info("Processing /help command")
		return c.Send(HelpText(), &telebot.SendOptions{ParseMode: telebot.ModeMarkdown})
	})
}
