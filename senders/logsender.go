package senders

import (
	"context"

	"github.com/fiffu/repowatch/lib/models"
)

// logSender writes notifications to the application log. It is meant for
// development and for users without a mail setup.
type logSender struct {
	base
}

func (l *logSender) Send(ctx context.Context, notifier *models.Notifier, n *models.Notification) (string, error) {
	l.log.Sugar().Infow("Notification",
		"notification_id", n.ID,
		"subscriber_id", n.SubscriberID,
		"channel", notifier.PlatformIdentifier,
		"service", n.Service,
		"type", n.Type,
		"title", n.Title,
		"url", n.URL,
		"body", n.Body,
	)
	return n.ID, nil
}

func (l *logSender) SendVerification(ctx context.Context, notifier *models.Notifier, verifyURL string) (string, error) {
	l.log.Sugar().Infow("Verification requested", "channel", notifier.PlatformIdentifier, "verify_url", verifyURL)
	return "", nil
}
