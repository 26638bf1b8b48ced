package telegram

import (
	"context"

	"gopkg.in/telebot.v3"
)

// Client sends messages to a Telegram chat. It keeps the reminder core
// independent of the bot library.
type Client interface {
	SendMessage(ctx context.Context, chatID int64, text string, options *telebot.SendOptions) error
}
