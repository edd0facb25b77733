// Package router turns stored subscriptions into typed tasks.
package router

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fiffu/repowatch/lib/dispatch"
	"github.com/fiffu/repowatch/lib/locator"
	"github.com/fiffu/repowatch/lib/models"
	"go.uber.org/zap"
)

const (
	TopicGitHub        = "github_request"
	TopicStackOverflow = "stackoverflow"
)

var (
	ErrUnknownService = errors.New("unknown service")
	ErrUnknownMethod  = errors.New("unknown method")
)

type Routed struct {
	Topic string
	Task  dispatch.Task
}

type Router struct {
	log *zap.Logger
}

func New(log *zap.Logger) *Router {
	return &Router{log}
}

// Route maps each subscription independently. Subscriptions that cannot be
// mapped are logged and left out.
func (r *Router) Route(subs models.Subscriptions) []Routed {
	out := make([]Routed, 0, len(subs))
	for i := range subs {
		routed, err := r.safeRouteOne(&subs[i])
		if err != nil {
			r.log.Sugar().Warnw("Skipping subscription",
				"subscription_id", subs[i].ID,
				"service", subs[i].Service,
				"method", subs[i].Method,
				"err", err,
			)
			continue
		}
		out = append(out, routed)
	}
	return out
}

func (r *Router) safeRouteOne(sub *models.Subscription) (routed Routed, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic while routing: %v", p)
		}
	}()
	return r.RouteOne(sub)
}

func (r *Router) RouteOne(sub *models.Subscription) (Routed, error) {
	service := strings.ToLower(strings.TrimSpace(sub.Service))
	method := strings.ToLower(strings.TrimSpace(sub.Method))

	switch service {
	case "github":
		kind, ok := locator.KindFromMethod(method)
		if !ok {
			return Routed{}, fmt.Errorf("%w %q for github", ErrUnknownMethod, sub.Method)
		}
		task := dispatch.GitHubTask{
			SubscriptionID: sub.ID,
			SubscriberID:   sub.UserID,
			Kind:           kind,
			Query:          sub.Query,
		}
		if sub.TokenID.Valid {
			task.TokenID = uint(sub.TokenID.Int64)
		}
		return Routed{TopicGitHub, task}, nil

	case "stackoverflow":
		m := dispatch.StackOverflowMethod(method)
		if m != dispatch.NewComment && m != dispatch.NewAnswer {
			return Routed{}, fmt.Errorf("%w %q for stackoverflow", ErrUnknownMethod, sub.Method)
		}
		task := dispatch.StackOverflowTask{
			SubscriptionID: sub.ID,
			SubscriberID:   sub.UserID,
			Link:           sub.Query,
			Method:         m,
		}
		if sub.LastCheckAt.Valid {
			task.Since = sub.LastCheckAt.Time
		} else {
			task.Since = sub.CreatedAt
		}
		return Routed{TopicStackOverflow, task}, nil
	}

	return Routed{}, fmt.Errorf("%w %q", ErrUnknownService, sub.Service)
}
