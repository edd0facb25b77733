package lib

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fiffu/repowatch/config"
	"github.com/fiffu/repowatch/lib/models"
	"github.com/fiffu/repowatch/lib/store"
	"github.com/fiffu/repowatch/senders"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const confirmationTTL = 3 * 24 * time.Hour

type onboardUser struct {
	cfg     *config.Config
	log     *zap.Logger
	store   *store.Store
	senders senders.Registry
}

// OnboardUser creates a user together with one notifier. Email notifiers
// stay unverified until the link sent to them is visited.
func (svc *onboardUser) OnboardUser(ctx context.Context, username, platform, identifier string) (*models.User, error) {
	platform = strings.ToLower(strings.TrimSpace(platform))
	sender, ok := svc.senders[platform]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedPlatform, platform)
	}

	user := &models.User{Username: username}
	if err := svc.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	notifier := &models.Notifier{
		UserID:             user.ID,
		Platform:           platform,
		PlatformIdentifier: identifier,
		Verified:           !senders.NeedsVerification(platform),
	}
	var confirm *models.NotifierConfirmation
	if !notifier.Verified {
		confirm = &models.NotifierConfirmation{
			Nonce:  uuid.NewString(),
			Expiry: time.Now().UTC().Add(confirmationTTL),
		}
	}
	if err := svc.store.CreateNotifier(ctx, notifier, confirm); err != nil {
		return nil, err
	}
	user.Notifiers = []models.Notifier{*notifier}

	if confirm != nil {
		if err := svc.sendVerification(ctx, sender, notifier, confirm.Nonce); err != nil {
			return nil, err
		}
	}
	svc.log.Sugar().Infof("Created user %v (%s) with %s notifier", user.ID, username, platform)
	return user, nil
}

func (svc *onboardUser) sendVerification(ctx context.Context, sender senders.Sender, notifier *models.Notifier, nonce string) error {
	url := fmt.Sprintf("%s/verify/%s", svc.cfg.ServerDNS, nonce)

	id, err := sender.SendVerification(ctx, notifier, url)
	if err != nil {
		svc.log.Sugar().Infow("Failed to send verification", "platform", notifier.Platform, "err", err)
	} else {
		svc.log.Sugar().Infow("Sent verification to "+notifier.PlatformIdentifier, "message_id", id)
	}
	return err
}
