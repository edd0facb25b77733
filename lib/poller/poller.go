// Package poller periodically re-checks every stored subscription.
package poller

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fiffu/repowatch/config"
	"github.com/fiffu/repowatch/lib/models"
	"github.com/fiffu/repowatch/lib/queue"
	"github.com/fiffu/repowatch/lib/router"
	"github.com/fiffu/repowatch/lib/statecache"
	"github.com/fiffu/repowatch/lib/store"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type SubscriptionSource interface {
	ForEachBatch(ctx context.Context, size int, fn func(models.Subscriptions) error) error
}

type Submitter interface {
	Submit(ctx context.Context, msg router.Routed) (<-chan struct{}, error)
}

type Purger interface {
	Purge(ctx context.Context, now time.Time) (int64, error)
}

type Poller struct {
	log    *zap.Logger
	subs   SubscriptionSource
	router *router.Router
	queue  Submitter
	state  Purger

	interval  time.Duration
	batchSize int

	running atomic.Bool
	wg      sync.WaitGroup
	cancel  context.CancelFunc
}

func NewPoller(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger, subs *store.Store, r *router.Router, q *queue.Queue, state *statecache.Cache) *Poller {
	p := New(log, subs, r, q, state, cfg.Poller.Interval, cfg.Poller.BatchSize)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			p.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Sugar().Info("Trying to stop poller")
			p.Stop()
			return nil
		},
	})

	return p
}

func New(log *zap.Logger, subs SubscriptionSource, r *router.Router, q Submitter, state Purger, interval time.Duration, batchSize int) *Poller {
	if batchSize < 1 {
		batchSize = 20
	}
	return &Poller{
		log:       log,
		subs:      subs,
		router:    r,
		queue:     q,
		state:     state,
		interval:  interval,
		batchSize: batchSize,
	}
}

func (p *Poller) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	c := wakeups(ctx, p.interval)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for t := range c {
			p.wg.Add(1)
			go func(t time.Time) {
				defer p.wg.Done()
				p.Trigger(ctx, t.UTC())
			}(t)
		}
	}()
}

// Stop cancels the running poll, if any, and waits for it to return.
func (p *Poller) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	p.log.Sugar().Info("Poller stopped")
}

// Trigger runs one poll unless another is already in flight, in which case
// it returns false immediately.
func (p *Poller) Trigger(ctx context.Context, batchStartTime time.Time) bool {
	if !p.running.CompareAndSwap(false, true) {
		p.log.Sugar().Infow("Previous poll still running, skipping", "tick", batchStartTime)
		return false
	}
	defer p.running.Store(false)

	p.poll(ctx, batchStartTime)
	return true
}

func (p *Poller) poll(ctx context.Context, batchStartTime time.Time) {
	m := &pollMetrics{}
	var pending []<-chan struct{}

	err := p.subs.ForEachBatch(ctx, p.batchSize, func(batch models.Subscriptions) error {
		batchMetrics, done, err := p.submitBatch(ctx, batch)
		m.Add(batchMetrics)
		pending = append(pending, done...)
		return err
	})
	if err != nil {
		p.log.Sugar().Errorw("Failed to enumerate subscriptions", "err", err)
	}

	p.await(ctx, pending)

	if m.selected > 0 {
		p.log.Sugar().Infow(fmt.Sprintf("Processed %d subscriptions", m.selected), m.logArgs()...)
	}

	p.purgeExpiredState(ctx, batchStartTime)

	elapsed := time.Now().UTC().Sub(batchStartTime)
	p.log.Sugar().Infow("Poll completed", "elapsed_msecs", int(elapsed.Milliseconds()))
}

func (p *Poller) submitBatch(ctx context.Context, batch models.Subscriptions) (*pollMetrics, []<-chan struct{}, error) {
	m := &pollMetrics{selected: len(batch)}

	routed := p.router.Route(batch)
	m.skipped = len(batch) - len(routed)

	done := make([]<-chan struct{}, 0, len(routed))
	for _, msg := range routed {
		d, err := p.queue.Submit(ctx, msg)
		if err != nil {
			m.errored++
			if ctx.Err() != nil {
				return m, done, err
			}
			p.log.Sugar().Warnw("Failed to submit task", "subscription_id", msg.Task.Subscription(), "err", err)
			continue
		}
		m.submitted++
		done = append(done, d)
	}
	return m, done, nil
}

func (p *Poller) await(ctx context.Context, pending []<-chan struct{}) {
	for _, done := range pending {
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
	}
}

func (p *Poller) purgeExpiredState(ctx context.Context, now time.Time) {
	n, err := p.state.Purge(ctx, now)
	if err != nil {
		p.log.Sugar().Errorf("purgeExpiredState error: %+v", err)
		return
	}
	if n > 0 {
		p.log.Sugar().Infof("Purged %d expired cache entries", n)
	}
}
