package lib

import (
	"context"
	"time"

	"github.com/fiffu/repowatch/lib/dispatch"
	"github.com/fiffu/repowatch/lib/models"
	"github.com/fiffu/repowatch/lib/notify"
	"github.com/fiffu/repowatch/lib/processor"
	"github.com/fiffu/repowatch/lib/router"
	"go.uber.org/zap"
)

type Outcome int

const (
	OutcomeUnchanged Outcome = iota
	OutcomeNotified
	OutcomeRejected
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNotified:
		return "notified"
	case OutcomeRejected:
		return "rejected"
	case OutcomeFailed:
		return "failed"
	}
	return "unchanged"
}

type Dispatcher interface {
	Dispatch(ctx context.Context, task dispatch.Task) (processor.Result, error)
}

type Publisher interface {
	Publish(ctx context.Context, n *models.Notification) error
}

type Checkpointer interface {
	UpdateCheckpoint(ctx context.Context, subscriptionID uint, at time.Time) error
}

type taskHandler struct {
	log         *zap.Logger
	dispatcher  Dispatcher
	formatter   *notify.Formatter
	publisher   Publisher
	checkpoints Checkpointer
}

// HandleTask runs one task end to end: dispatch, format, publish and then
// checkpoint. Publishing happens after the state cache has already recorded
// the items as seen, so a failed publish loses that notification for good.
func (h *taskHandler) HandleTask(ctx context.Context, msg router.Routed) (Outcome, error) {
	task := msg.Task
	log := h.log.Sugar().With(
		"topic", msg.Topic,
		"subscription_id", task.Subscription(),
		"subscriber_id", task.Subscriber(),
	)

	res, err := h.dispatcher.Dispatch(ctx, task)
	if dispatch.IsRetryable(err) {
		log.Warnw("Remote failure, will retry on next poll", "err", err)
		return OutcomeFailed, err
	} else if err != nil {
		log.Infow("Rejected task", "target", task.Target(), "err", err)
		rejection := h.formatter.Reject(task, err)
		if perr := h.publisher.Publish(ctx, &rejection); perr != nil {
			log.Errorw("Failed to publish rejection", "err", perr)
		}
		return OutcomeRejected, err
	}

	outcome := OutcomeUnchanged
	if res.HasChanges() {
		outcome = OutcomeNotified
		for _, n := range h.formatter.Format(task.Subscriber(), res) {
			if err := h.publisher.Publish(ctx, &n); err != nil {
				log.Errorw("Failed to publish notification, it will not be resent", "title", n.Title, "err", err)
			}
		}
	}

	if at := res.Checkpoint(); !at.IsZero() {
		if err := h.checkpoints.UpdateCheckpoint(ctx, task.Subscription(), at); err != nil {
			log.Errorw("Failed to update checkpoint", "err", err)
		}
	}
	return outcome, nil
}

// Handle adapts HandleTask to the queue's handler signature.
func (h *taskHandler) Handle(ctx context.Context, msg router.Routed) {
	h.HandleTask(ctx, msg)
}
