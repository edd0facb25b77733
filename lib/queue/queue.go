// Package queue delivers routed tasks to a handler on a fixed set of
// partitions. Tasks of one subscriber always land on the same partition and
// are handled in submission order.
package queue

import (
	"context"
	"errors"
	"sync"

	"github.com/fiffu/repowatch/lib/router"
	"go.uber.org/zap"
)

type Handler func(ctx context.Context, msg router.Routed)

var ErrClosed = errors.New("queue is closed")

type job struct {
	msg  router.Routed
	done chan struct{}
}

type Queue struct {
	log        *zap.Logger
	handler    Handler
	partitions []chan job

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func New(log *zap.Logger, handler Handler, partitions, depth int) *Queue {
	if partitions < 1 {
		partitions = 1
	}
	q := &Queue{log: log, handler: handler, partitions: make([]chan job, partitions)}
	for i := range q.partitions {
		q.partitions[i] = make(chan job, depth)
	}
	return q
}

// Start launches one worker per partition. Workers stop after Close once
// their partition is drained.
func (q *Queue) Start(ctx context.Context) {
	ctx, q.cancel = context.WithCancel(ctx)
	for i, ch := range q.partitions {
		q.wg.Add(1)
		go q.work(ctx, i, ch)
	}
}

func (q *Queue) work(ctx context.Context, partition int, ch <-chan job) {
	defer q.wg.Done()
	for j := range ch {
		q.handle(ctx, partition, j)
	}
}

func (q *Queue) handle(ctx context.Context, partition int, j job) {
	defer close(j.done)
	defer func() {
		if p := recover(); p != nil {
			q.log.Sugar().Errorw("Task handler panicked",
				"partition", partition,
				"topic", j.msg.Topic,
				"subscription_id", j.msg.Task.Subscription(),
				"panic", p,
			)
		}
	}()
	q.handler(ctx, j.msg)
}

// Submit enqueues msg, blocking while its partition is full. The returned
// channel is closed once the handler has returned.
func (q *Queue) Submit(ctx context.Context, msg router.Routed) (<-chan struct{}, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return nil, ErrClosed
	}

	j := job{msg, make(chan struct{})}
	ch := q.partitions[q.partitionOf(msg)]
	select {
	case ch <- j:
		return j.done, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *Queue) partitionOf(msg router.Routed) int {
	return int(msg.Task.Subscriber() % uint(len(q.partitions)))
}

// Close stops accepting tasks and waits for queued ones to be handled.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	for _, ch := range q.partitions {
		close(ch)
	}
	q.mu.Unlock()

	q.wg.Wait()
	if q.cancel != nil {
		q.cancel()
	}
}
