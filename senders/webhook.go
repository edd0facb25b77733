package senders

import (
	"context"

	"github.com/carlmjohnson/requests"
	"github.com/fiffu/repowatch/lib/models"
)

// webhookSender POSTs the notification as JSON to the notifier's URL.
type webhookSender struct {
	base
}

type verificationPayload struct {
	Type      string `json:"type"`
	VerifyURL string `json:"verify_url"`
}

func (w *webhookSender) Send(ctx context.Context, notifier *models.Notifier, n *models.Notification) (string, error) {
	return n.ID, w.post(ctx, notifier.PlatformIdentifier, n)
}

func (w *webhookSender) SendVerification(ctx context.Context, notifier *models.Notifier, verifyURL string) (string, error) {
	return "", w.post(ctx, notifier.PlatformIdentifier, verificationPayload{"verification", verifyURL})
}

func (w *webhookSender) post(ctx context.Context, url string, body any) error {
	if timeout := w.cfg.Fetch.Timeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	return requests.
		URL(url).
		Transport(w.transport).
		UserAgent(userAgent).
		BodyJSON(body).
		CheckStatus(200, 201, 202, 204).
		Fetch(ctx)
}

const userAgent = "repowatch/1.0"
