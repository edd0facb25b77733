package store

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/fiffu/repowatch/lib/dispatch"
	"github.com/fiffu/repowatch/lib/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newStore(t *testing.T) *Store {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Notifier{},
		&models.NotifierConfirmation{},
		&models.Token{},
		&models.Subscription{},
	))
	return New(db)
}

func TestForEachBatch(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, s.CreateSubscription(ctx, &models.Subscription{UserID: 1, Service: "github", Method: "issue"}))
	}

	var sizes []int
	var ids []uint
	err := s.ForEachBatch(ctx, 2, func(batch models.Subscriptions) error {
		sizes = append(sizes, len(batch))
		for _, sub := range batch {
			ids = append(ids, sub.ID)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2, 1}, sizes)
	assert.Equal(t, []uint{1, 2, 3, 4, 5}, ids)
}

func TestForEachBatch_StopsOnError(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, s.CreateSubscription(ctx, &models.Subscription{UserID: 1}))
	}

	calls := 0
	err := s.ForEachBatch(ctx, 1, func(models.Subscriptions) error {
		calls++
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 1, calls)
}

func TestUpdateCheckpoint(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	sub := &models.Subscription{UserID: 1, Service: "stackoverflow", Method: "new_answer"}
	require.NoError(t, s.CreateSubscription(ctx, sub))

	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.UpdateCheckpoint(ctx, sub.ID, at))

	got, err := s.FindSubscription(ctx, 1, sub.ID)
	require.NoError(t, err)
	require.True(t, got.LastCheckAt.Valid)
	assert.True(t, at.Equal(got.LastCheckAt.Time))
}

func TestResolveCredential(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	token := &models.Token{UserID: 7, Service: "github", Value: "ghp_x"}
	require.NoError(t, s.CreateToken(ctx, token))

	cred, err := s.ResolveCredential(ctx, token.ID)
	require.NoError(t, err)
	assert.Equal(t, &dispatch.Credential{Value: "ghp_x", OwnerID: 7}, cred)

	_, err = s.ResolveCredential(ctx, 999)
	assert.ErrorIs(t, err, dispatch.ErrUnknownCredential)
}

func TestConfirmNotifier(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	user := &models.User{Username: "ann"}
	require.NoError(t, s.CreateUser(ctx, user))

	fresh := &models.Notifier{UserID: user.ID, Platform: "email", PlatformIdentifier: "ann@example.com"}
	require.NoError(t, s.CreateNotifier(ctx, fresh, &models.NotifierConfirmation{Nonce: "fresh", Expiry: now.Add(time.Hour)}))
	stale := &models.Notifier{UserID: user.ID, Platform: "email", PlatformIdentifier: "old@example.com"}
	require.NoError(t, s.CreateNotifier(ctx, stale, &models.NotifierConfirmation{Nonce: "stale", Expiry: now.Add(-time.Hour)}))

	ok, err := s.ConfirmNotifier(ctx, "stale", now)
	require.NoError(t, err)
	assert.False(t, ok, "expired nonce")

	ok, err = s.ConfirmNotifier(ctx, "nope", now)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.ConfirmNotifier(ctx, "fresh", now)
	require.NoError(t, err)
	assert.True(t, ok)

	verified, err := s.VerifiedNotifiers(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, verified, 1)
	assert.Equal(t, fresh.ID, verified[0].ID)
}

func TestDeleteSubscription(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	sub := &models.Subscription{UserID: 1, TokenID: sql.NullInt64{Int64: 3, Valid: true}}
	require.NoError(t, s.CreateSubscription(ctx, sub))

	require.NoError(t, s.DeleteSubscription(ctx, sub.ID))
	_, err := s.FindSubscription(ctx, 1, sub.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	calls := 0
	require.NoError(t, s.ForEachBatch(ctx, 10, func(models.Subscriptions) error { calls++; return nil }))
	assert.Zero(t, calls)
}

func TestListActive(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	keep := &models.Subscription{UserID: 1}
	gone := &models.Subscription{UserID: 2}
	require.NoError(t, s.CreateSubscription(ctx, keep))
	require.NoError(t, s.CreateSubscription(ctx, gone))
	require.NoError(t, s.DeleteSubscription(ctx, gone.ID))

	subs, err := s.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, keep.ID, subs[0].ID)
}
