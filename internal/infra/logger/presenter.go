package logger

import (
	"context"

	"github.com/sirupsen/logrus"

	"peakflow_reminder/internal/domain/notification"
)

// Presenter "shows" notifications by logging them. It is the default
// backend for headless hosts and local runs.
type Presenter struct {
	log *logrus.Entry
}

func NewPresenter(log *logrus.Entry) *Presenter {
	return &Presenter{log: log.WithField("component", "log_presenter")}
}

func (p *Presenter) Present(_ context.Context, n notification.Notification) error {
	p.log.WithFields(logrus.Fields{
		"identity":    n.Identity,
		"title":       n.Title,
		"tap_target":  n.TapTarget,
		"high":        n.Priority == notification.PriorityHigh,
		"auto_cancel": n.AutoCancel,
		"tag":         n.Tag,
	}).Info(n.Body)
	return nil
}

var _ notification.Presenter = (*Presenter)(nil)
