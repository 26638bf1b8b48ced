package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"

	"peakflow_reminder/internal/domain/notification"
	"peakflow_reminder/internal/domain/reminder"
	domain "peakflow_reminder/internal/domain/telegram"
)

var ErrUnroutableIdentity = fmt.Errorf("identity has no telegram chat")

// Unique part of the callback attached to every reminder message.
const remindOffUnique = "remind_off"

// Presenter delivers reminder notifications as Telegram messages. Identities
// are chat IDs; the device-default identity goes to defaultChatID.
type Presenter struct {
	client        domain.Client
	defaultChatID int64
	log           *logrus.Entry
}

func NewPresenter(client domain.Client, defaultChatID int64, log *logrus.Entry) *Presenter {
	return &Presenter{
		client:        client,
		defaultChatID: defaultChatID,
		log:           log.WithField("component", "telegram_presenter"),
	}
}

// IdentityForChat is the reminder identity owned by a Telegram chat.
func IdentityForChat(chatID int64) string {
	return strconv.FormatInt(chatID, 10)
}

func (p *Presenter) chatID(identity string) (int64, error) {
	key := reminder.Key(identity)
	if key == reminder.DefaultIdentity {
		if p.defaultChatID == 0 {
			return 0, fmt.Errorf("%w: %s (DEFAULT_CHAT_ID not set)", ErrUnroutableIdentity, key)
		}
		return p.defaultChatID, nil
	}
	id, err := strconv.ParseInt(key, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrUnroutableIdentity, key)
	}
	return id, nil
}

func (p *Presenter) Present(ctx context.Context, n notification.Notification) error {
	chatID, err := p.chatID(n.Identity)
	if err != nil {
		return err
	}

	opts := &telebot.SendOptions{
		ReplyMarkup:         reminderMarkup(n.TapTarget),
		ParseMode:           telebot.ModeDefault,
		DisableNotification: n.Priority != notification.PriorityHigh,
	}
	text := fmt.Sprintf("%s\n\n%s", n.Title, n.Body)

	err = p.client.SendMessage(ctx, chatID, text, opts)
	if err != nil {
		if isRecipientGone(err) {
			p.log.WithField("chat_id", chatID).Warnf("Chat no longer accepts messages: %v", err)
			return fmt.Errorf("%w: %v", notification.ErrPermissionDenied, err)
		}
		return fmt.Errorf("failed to send reminder to chat %d: %w", chatID, err)
	}
	p.log.WithField("chat_id", chatID).Debug("Reminder message sent")
	return nil
}

// reminderMarkup builds the inline keyboard under a reminder. Telegram only
// accepts http(s) and tg links on URL buttons; other tap targets are dropped.
func reminderMarkup(tapTarget string) *telebot.ReplyMarkup {
	markup := &telebot.ReplyMarkup{}
	row := []telebot.Btn{markup.Data("Turn off reminders", remindOffUnique)}
	if isLinkable(tapTarget) {
		row = append([]telebot.Btn{markup.URL("Open app", tapTarget)}, row...)
	}
	markup.Inline(markup.Row(row...))
	return markup
}

func isLinkable(target string) bool {
	lower := strings.ToLower(target)
	return strings.HasPrefix(lower, "https://") || strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "tg://")
}

func isRecipientGone(err error) bool {
	return errors.Is(err, telebot.ErrBlockedByUser) ||
		errors.Is(err, telebot.ErrUserIsDeactivated) ||
		errors.Is(err, telebot.ErrChatNotFound)
}

var _ notification.Presenter = (*Presenter)(nil)
