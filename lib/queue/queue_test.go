package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/fiffu/repowatch/lib/dispatch"
	"github.com/fiffu/repowatch/lib/router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func msg(subscriber, subscription uint) router.Routed {
	return router.Routed{
		Topic: router.TopicGitHub,
		Task:  dispatch.GitHubTask{SubscriberID: subscriber, SubscriptionID: subscription},
	}
}

func TestQueue_OrderWithinSubscriber(t *testing.T) {
	var (
		mu  sync.Mutex
		got = map[uint][]uint{}
	)
	q := New(zap.NewNop(), func(ctx context.Context, m router.Routed) {
		mu.Lock()
		defer mu.Unlock()
		got[m.Task.Subscriber()] = append(got[m.Task.Subscriber()], m.Task.Subscription())
	}, 3, 4)
	q.Start(context.Background())

	ctx := context.Background()
	for i := uint(1); i <= 10; i++ {
		for sub := uint(1); sub <= 4; sub++ {
			_, err := q.Submit(ctx, msg(sub, i))
			require.NoError(t, err)
		}
	}
	q.Close()

	for sub := uint(1); sub <= 4; sub++ {
		assert.Equal(t, []uint{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, got[sub])
	}
}

func TestQueue_DoneAfterHandled(t *testing.T) {
	handled := make(chan uint, 1)
	q := New(zap.NewNop(), func(ctx context.Context, m router.Routed) {
		handled <- m.Task.Subscription()
	}, 1, 1)
	q.Start(context.Background())
	defer q.Close()

	done, err := q.Submit(context.Background(), msg(1, 42))
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task was not handled")
	}
	assert.Equal(t, uint(42), <-handled)
}

func TestQueue_PanicDoesNotKillPartition(t *testing.T) {
	var calls sync.WaitGroup
	calls.Add(2)
	q := New(zap.NewNop(), func(ctx context.Context, m router.Routed) {
		defer calls.Done()
		if m.Task.Subscription() == 1 {
			panic("boom")
		}
	}, 1, 2)
	q.Start(context.Background())

	ctx := context.Background()
	first, err := q.Submit(ctx, msg(1, 1))
	require.NoError(t, err)
	second, err := q.Submit(ctx, msg(1, 2))
	require.NoError(t, err)

	<-first
	<-second
	calls.Wait()
	q.Close()
}

func TestQueue_SubmitAfterClose(t *testing.T) {
	q := New(zap.NewNop(), func(context.Context, router.Routed) {}, 2, 1)
	q.Start(context.Background())
	q.Close()

	_, err := q.Submit(context.Background(), msg(1, 1))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestQueue_SubmitRespectsContext(t *testing.T) {
	block := make(chan struct{})
	q := New(zap.NewNop(), func(context.Context, router.Routed) { <-block }, 1, 0)
	q.Start(context.Background())
	defer q.Close()
	defer close(block)

	_, err := q.Submit(context.Background(), msg(1, 1))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = q.Submit(ctx, msg(1, 2))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
