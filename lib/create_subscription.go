package lib

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/fiffu/repowatch/lib/dispatch"
	"github.com/fiffu/repowatch/lib/locator"
	"github.com/fiffu/repowatch/lib/models"
	"github.com/fiffu/repowatch/lib/router"
	"github.com/fiffu/repowatch/lib/statecache"
	"github.com/fiffu/repowatch/lib/store"
	"go.uber.org/zap"
)

type SubscriptionRequest struct {
	Service  string
	Method   string
	Query    string
	Describe string
	TokenID  uint
}

type subscribe struct {
	log     *zap.Logger
	store   *store.Store
	router  *router.Router
	state   *statecache.Cache
	handler *taskHandler
}

// CreateSubscription stores the subscription and processes it once right
// away. Subscriptions that fail routing or validation are deleted again and
// ErrSubscriptionRejected is returned.
func (svc *subscribe) CreateSubscription(ctx context.Context, userID uint, req SubscriptionRequest) (*models.Subscription, Outcome, error) {
	notifiers, err := svc.store.VerifiedNotifiers(ctx, userID)
	if err != nil {
		return nil, OutcomeFailed, err
	}
	if len(notifiers) == 0 {
		return nil, OutcomeRejected, ErrNoVerifiedNotifier
	}

	sub := &models.Subscription{
		UserID:   userID,
		Service:  strings.ToLower(strings.TrimSpace(req.Service)),
		Method:   strings.ToLower(strings.TrimSpace(req.Method)),
		Query:    strings.TrimSpace(req.Query),
		Describe: req.Describe,
	}
	if req.TokenID != 0 {
		sub.TokenID = sql.NullInt64{Int64: int64(req.TokenID), Valid: true}
	}
	if err := svc.store.CreateSubscription(ctx, sub); err != nil {
		return nil, OutcomeFailed, err
	}

	outcome, err := svc.OnSubscriptionCreated(ctx, sub)
	if outcome == OutcomeRejected {
		if derr := svc.store.DeleteSubscription(ctx, sub.ID); derr != nil {
			svc.log.Sugar().Errorw("Failed to delete rejected subscription", "subscription_id", sub.ID, "err", derr)
		}
		return nil, outcome, fmt.Errorf("%w: %w", ErrSubscriptionRejected, err)
	}

	svc.log.Sugar().Infow("Created subscription", "subscription_id", sub.ID, "outcome", outcome.String())
	return sub, outcome, nil
}

// OnSubscriptionCreated processes sub synchronously, outside the poller's
// schedule. The first run seeds the state cache without notifying.
func (svc *subscribe) OnSubscriptionCreated(ctx context.Context, sub *models.Subscription) (Outcome, error) {
	routed, err := svc.router.RouteOne(sub)
	if err != nil {
		return OutcomeRejected, err
	}
	return svc.handler.HandleTask(ctx, routed)
}

func (svc *subscribe) ListSubscriptions(ctx context.Context, userID uint) (models.Subscriptions, error) {
	return svc.store.ListSubscriptions(ctx, userID)
}

// DeleteSubscription removes the subscription and everything the state
// cache remembers about its resource, unless another subscription of the
// same user still tracks that resource.
func (svc *subscribe) DeleteSubscription(ctx context.Context, userID, subscriptionID uint) error {
	sub, err := svc.store.FindSubscription(ctx, userID, subscriptionID)
	if err != nil {
		return err
	}
	if err := svc.store.DeleteSubscription(ctx, sub.ID); err != nil {
		return err
	}

	loc, ok := svc.locate(sub)
	if !ok {
		return nil
	}
	shared, err := svc.sharesLocator(ctx, sub.UserID, loc)
	if err != nil {
		return fmt.Errorf("list remaining subscriptions: %w", err)
	}
	if shared {
		svc.log.Sugar().Infow("Deleted subscription, state kept for shared resource", "subscription_id", sub.ID, "locator", loc.String())
		return nil
	}
	n, err := svc.state.Clear(ctx, sub.UserID, loc)
	if err != nil {
		return fmt.Errorf("clear state for %s: %w", loc, err)
	}
	svc.log.Sugar().Infow("Deleted subscription", "subscription_id", sub.ID, "cleared_entries", n)
	return nil
}

func (svc *subscribe) sharesLocator(ctx context.Context, userID uint, loc locator.Locator) (bool, error) {
	remaining, err := svc.store.ListSubscriptions(ctx, userID)
	if err != nil {
		return false, err
	}
	for i := range remaining {
		if other, ok := svc.locate(&remaining[i]); ok && other == loc {
			return true, nil
		}
	}
	return false, nil
}

func (svc *subscribe) locate(sub *models.Subscription) (locator.Locator, bool) {
	routed, err := svc.router.RouteOne(sub)
	if err != nil {
		return locator.Locator{}, false
	}

	var loc locator.Locator
	switch t := routed.Task.(type) {
	case dispatch.GitHubTask:
		loc, err = locator.Parse(t.Kind, t.Query)
	case dispatch.StackOverflowTask:
		loc, err = locator.Parse(locator.Question, t.Link)
	default:
		return locator.Locator{}, false
	}
	return loc, err == nil
}
