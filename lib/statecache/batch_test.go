package statecache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatch_WritesWaitForCommit(t *testing.T) {
	ctx := context.Background()
	cache := New(NewMemoryBackend(), time.Hour)
	comments := Key{SubscriberID: 1, Locator: issue, Collection: "comments"}
	events := Key{SubscriberID: 1, Locator: issue, Collection: "events"}

	b := cache.Batch(comments, events)
	require.NoError(t, b.Cache().SetMaxSeenID(ctx, comments, 101))

	id, ok, err := b.Cache().MaxSeenID(ctx, comments)
	require.NoError(t, err)
	assert.True(t, ok, "the batch reads its own writes")
	assert.Equal(t, int64(101), id)

	_, ok, err = cache.MaxSeenID(ctx, comments)
	require.NoError(t, err)
	assert.False(t, ok, "nothing reaches the backend before commit")

	require.NoError(t, b.Commit(ctx))
	b.Release()

	id, ok, err = cache.MaxSeenID(ctx, comments)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(101), id)
}

func TestBatch_ReleaseWithoutCommitDropsWrites(t *testing.T) {
	ctx := context.Background()
	cache := New(NewMemoryBackend(), time.Hour)
	k := Key{SubscriberID: 1, Locator: issue, Collection: "comments"}
	require.NoError(t, cache.SetMaxSeenID(ctx, k, 100))

	b := cache.Batch(k)
	require.NoError(t, b.Cache().SetMaxSeenID(ctx, k, 200))
	b.Release()

	id, _, err := cache.MaxSeenID(ctx, k)
	require.NoError(t, err)
	assert.Equal(t, int64(100), id)
}

func TestBatch_HoldsKeyLocks(t *testing.T) {
	cache := New(NewMemoryBackend(), time.Hour)
	k := Key{SubscriberID: 1, Locator: issue, Collection: "comments"}

	b := cache.Batch(k, k)
	acquired := make(chan struct{})
	go func() {
		unlock := cache.Lock(k)
		close(acquired)
		unlock()
	}()

	select {
	case <-acquired:
		t.Fatal("lock taken while the batch holds it")
	case <-time.After(50 * time.Millisecond):
	}

	b.Release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("lock not released with the batch")
	}
}
