package push

import (
	"context"
	"fmt"
	"strings"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"

	"peakflow_reminder/internal/domain/notification"
	"peakflow_reminder/internal/domain/reminder"
)

const (
	topicPrefix = "pefr-"
	channelID   = "pefr_reminders"
)

// Sender is the subset of *messaging.Client used here.
type Sender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// FCMPresenter delivers reminders as Firebase Cloud Messaging pushes. Each
// identity is a topic the app subscribes to after sign-in.
type FCMPresenter struct {
	client Sender
	log    *logrus.Entry
}

// NewFCMClient builds a messaging client from a service-account file.
func NewFCMClient(ctx context.Context, credentialsPath string) (*messaging.Client, error) {
	opt := option.WithCredentialsFile(credentialsPath)
	app, err := firebase.NewApp(ctx, nil, opt)
	if err != nil {
		return nil, fmt.Errorf("error initializing Firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting Messaging client: %w", err)
	}
	return client, nil
}

func NewFCMPresenter(client Sender, log *logrus.Entry) *FCMPresenter {
	return &FCMPresenter{client: client, log: log.WithField("component", "fcm_presenter")}
}

// Topic maps an identity to its FCM topic. Characters FCM rejects become '_'.
func Topic(identity string) string {
	key := reminder.Key(identity)
	var b strings.Builder
	b.WriteString(topicPrefix)
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '-', r == '_', r == '.', r == '~', r == '%':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

func (p *FCMPresenter) Present(ctx context.Context, n notification.Notification) error {
	priority := messaging.PriorityDefault
	androidPriority := "normal"
	if n.Priority == notification.PriorityHigh {
		priority = messaging.PriorityHigh
		androidPriority = "high"
	}

	message := &messaging.Message{
		Topic: Topic(n.Identity),
		Notification: &messaging.Notification{
			Title: n.Title,
			Body:  n.Body,
		},
		Data: map[string]string{
			"type":       "pefr_reminder",
			"identity":   reminder.Key(n.Identity),
			"tap_target": n.TapTarget,
		},
		Android: &messaging.AndroidConfig{
			Priority: androidPriority,
			Notification: &messaging.AndroidNotification{
				Priority:     priority,
				ChannelID:    channelID,
				DefaultSound: true,
				ClickAction:  n.TapTarget,
				Tag:          n.Tag,
				Sticky:       !n.AutoCancel,
			},
		},
	}

	id, err := p.client.Send(ctx, message)
	if err != nil {
		if messaging.IsUnregistered(err) || messaging.IsSenderIDMismatch(err) {
			return fmt.Errorf("%w: %v", notification.ErrPermissionDenied, err)
		}
		return fmt.Errorf("error sending reminder push: %w", err)
	}
	p.log.WithFields(logrus.Fields{"topic": message.Topic, "message_id": id}).Debug("Reminder push sent")
	return nil
}

var _ notification.Presenter = (*FCMPresenter)(nil)
