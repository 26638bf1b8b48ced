// internal/infra/telegram/client.go
package telegram

import (
	"context"

	"gopkg.in/telebot.v3"

	domain "peakflow_reminder/internal/domain/telegram"
)

// TelebotAdapter implements the Client interface using the gopkg.in/telebot.v3 library.
type TelebotAdapter struct {
	bot *telebot.Bot
}

func NewTelebotAdapter(b *telebot.Bot) *TelebotAdapter {
	return &TelebotAdapter{bot: b}
}

// SendMessage sends text to chatID. telebot has no context support, so an
// expired ctx only prevents the request from starting.
func (tba *TelebotAdapter) SendMessage(ctx context.Context, chatID int64, text string, options *telebot.SendOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if options == nil {
		options = &telebot.SendOptions{}
	}

	_, err := tba.bot.Send(&telebot.Chat{ID: chatID}, text, options)
	return err
}

var _ domain.Client = (*TelebotAdapter)(nil)
