package senders

import (
	"context"
	"net/http"

	"github.com/fiffu/repowatch/config"
	"github.com/fiffu/repowatch/lib/models"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	PlatformEmail   = "email"
	PlatformWebhook = "webhook"
	PlatformLog     = "log"
)

type Sender interface {
	Send(ctx context.Context, notifier *models.Notifier, n *models.Notification) (string, error)
	SendVerification(ctx context.Context, notifier *models.Notifier, verifyURL string) (string, error)
}

type Registry map[string]Sender

func NewSenderRegistry(lc fx.Lifecycle, log *zap.Logger, cfg *config.Config, transport http.RoundTripper) Registry {
	base := base{log, cfg, transport}
	return map[string]Sender{
		PlatformEmail:   &mailgunSender{base},
		PlatformWebhook: &webhookSender{base},
		PlatformLog:     &logSender{base},
	}
}

// NeedsVerification reports whether notifiers on platform must confirm a
// nonce before they receive anything.
func NeedsVerification(platform string) bool {
	return platform == PlatformEmail
}

type base struct {
	log       *zap.Logger
	cfg       *config.Config
	transport http.RoundTripper
}
