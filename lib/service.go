package lib

import (
	"context"
	"errors"
	"time"

	"github.com/fiffu/repowatch/config"
	"github.com/fiffu/repowatch/lib/dispatch"
	"github.com/fiffu/repowatch/lib/github"
	"github.com/fiffu/repowatch/lib/models"
	"github.com/fiffu/repowatch/lib/notify"
	"github.com/fiffu/repowatch/lib/router"
	"github.com/fiffu/repowatch/lib/statecache"
	"github.com/fiffu/repowatch/lib/store"
	"github.com/fiffu/repowatch/senders"
	"go.uber.org/zap"
)

var (
	ErrUnsupportedPlatform  = errors.New("unsupported notifier platform")
	ErrUnsupportedService   = errors.New("unsupported token service")
	ErrInvalidToken         = errors.New("token was rejected by the service")
	ErrNoVerifiedNotifier   = errors.New("unable to find verified notifier")
	ErrSubscriptionRejected = errors.New("subscription rejected")
)

type Service struct {
	cfg   *config.Config
	log   *zap.Logger
	store *store.Store

	*onboardUser
	*registerToken
	*subscribe
	*taskHandler
}

func NewService(
	cfg *config.Config,
	log *zap.Logger,
	st *store.Store,
	senders senders.Registry,
	gh *github.Client,
	r *router.Router,
	d *dispatch.Dispatcher,
	f *notify.Formatter,
	state *statecache.Cache,
) *Service {
	handler := &taskHandler{log, d, f, NewPublisher(log, st, senders), st}
	return &Service{
		cfg, log, st,
		&onboardUser{cfg, log, st, senders},
		&registerToken{log, st, gh},
		&subscribe{log, st, r, state, handler},
		handler,
	}
}

func (svc *Service) VerifyNotifier(ctx context.Context, nonce string) (bool, error) {
	return svc.store.ConfirmNotifier(ctx, nonce, time.Now().UTC())
}

func (svc *Service) FindUser(ctx context.Context, userID uint) (*models.User, error) {
	return svc.store.FindUser(ctx, userID)
}
