package lib

import (
	"context"
	"fmt"

	"github.com/fiffu/repowatch/lib/models"
	"github.com/fiffu/repowatch/senders"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

type NotifierSource interface {
	VerifiedNotifiers(ctx context.Context, userID uint) ([]models.Notifier, error)
}

type publisher struct {
	log       *zap.Logger
	notifiers NotifierSource
	senders   senders.Registry
}

func NewPublisher(log *zap.Logger, notifiers NotifierSource, senders senders.Registry) Publisher {
	return &publisher{log, notifiers, senders}
}

// Publish sends n once on every verified notifier of its subscriber. Nothing
// is retried.
func (p *publisher) Publish(ctx context.Context, n *models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}

	notifiers, err := p.notifiers.VerifiedNotifiers(ctx, n.SubscriberID)
	if err != nil {
		return fmt.Errorf("find notifiers for user %d: %w", n.SubscriberID, err)
	}
	if len(notifiers) == 0 {
		p.log.Sugar().Infow("No verified notifier, dropping notification", "notification_id", n.ID, "subscriber_id", n.SubscriberID)
		return nil
	}

	var errs error
	for i := range notifiers {
		notifier := &notifiers[i]
		sender, ok := p.senders[notifier.Platform]
		if !ok {
			errs = multierr.Append(errs, fmt.Errorf("%w: %q", ErrUnsupportedPlatform, notifier.Platform))
			continue
		}

		id, err := sender.Send(ctx, notifier, n)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("send via %s: %w", notifier.Platform, err))
			continue
		}
		p.log.Sugar().Infow("Sent notification",
			"notification_id", n.ID,
			"platform", notifier.Platform,
			"message_id", id,
		)
	}
	return errs
}
