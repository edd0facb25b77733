// Package store is the gorm-backed persistence for users, tokens and
// subscriptions.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/fiffu/repowatch/lib/dispatch"
	"github.com/fiffu/repowatch/lib/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrNotFound = errors.New("record not found")

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db}
}

func (s *Store) DB() *gorm.DB {
	return s.db
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// ForEachBatch walks all live subscriptions in id order, size at a time.
func (s *Store) ForEachBatch(ctx context.Context, size int, fn func(models.Subscriptions) error) error {
	var batch models.Subscriptions
	tx := s.db.WithContext(ctx).
		FindInBatches(&batch, size, func(tx *gorm.DB, _ int) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return fn(batch)
		})
	return tx.Error
}

func (s *Store) ListActive(ctx context.Context) (models.Subscriptions, error) {
	var subs models.Subscriptions
	tx := s.db.WithContext(ctx).Order("id").Find(&subs)
	return subs, tx.Error
}

func (s *Store) UpdateCheckpoint(ctx context.Context, subscriptionID uint, at time.Time) error {
	tx := s.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("id = ?", subscriptionID).
		Update("last_check_at", at.UTC())
	return tx.Error
}

func (s *Store) ResolveCredential(ctx context.Context, tokenID uint) (*dispatch.Credential, error) {
	token := models.Token{}
	tx := s.db.WithContext(ctx).Where("id = ?", tokenID).First(&token)
	if err := tx.Error; errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, dispatch.ErrUnknownCredential
	} else if err != nil {
		return nil, err
	}
	return &dispatch.Credential{Value: token.Value, OwnerID: token.UserID}, nil
}

func (s *Store) VerifiedNotifiers(ctx context.Context, userID uint) ([]models.Notifier, error) {
	var notifiers []models.Notifier
	tx := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Where("verified = ?", true).
		Find(&notifiers)
	return notifiers, tx.Error
}

func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	return s.db.WithContext(ctx).Clauses(clause.Returning{}).Create(user).Error
}

func (s *Store) CreateNotifier(ctx context.Context, notifier *models.Notifier, confirm *models.NotifierConfirmation) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Returning{}).Create(notifier).Error; err != nil {
			return err
		}
		if confirm == nil {
			return nil
		}
		confirm.NotifierID = notifier.ID
		return tx.Omit(clause.Associations).Create(confirm).Error
	})
}

// ConfirmNotifier marks the notifier behind nonce as verified. It returns
// false if the nonce is unknown or has expired.
func (s *Store) ConfirmNotifier(ctx context.Context, nonce string, now time.Time) (bool, error) {
	confirm := models.NotifierConfirmation{}
	tx := s.db.WithContext(ctx).Where("nonce = ?", nonce).First(&confirm)
	if err := tx.Error; errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	if now.After(confirm.Expiry) {
		return false, nil
	}

	tx = s.db.WithContext(ctx).Model(&models.Notifier{}).Where("id = ?", confirm.NotifierID).Update("verified", true)
	if err := tx.Error; err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) FindUser(ctx context.Context, userID uint) (*models.User, error) {
	user := &models.User{}
	tx := s.db.WithContext(ctx).Preload("Notifiers").Preload("Tokens").First(user, userID)
	if err := tx.Error; err != nil {
		return nil, notFound(err)
	}
	return user, nil
}

func (s *Store) CreateToken(ctx context.Context, token *models.Token) error {
	return s.db.WithContext(ctx).Clauses(clause.Returning{}).Create(token).Error
}

func (s *Store) CreateSubscription(ctx context.Context, sub *models.Subscription) error {
	return s.db.WithContext(ctx).Clauses(clause.Returning{}).Create(sub).Error
}

func (s *Store) FindSubscription(ctx context.Context, userID, subscriptionID uint) (*models.Subscription, error) {
	sub := &models.Subscription{}
	tx := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Where("id = ?", subscriptionID).
		First(sub)
	if err := tx.Error; err != nil {
		return nil, notFound(err)
	}
	return sub, nil
}

func (s *Store) ListSubscriptions(ctx context.Context, userID uint) (models.Subscriptions, error) {
	var subs models.Subscriptions
	tx := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("id").Find(&subs)
	return subs, tx.Error
}

// DeleteSubscription hard-deletes so rejected subscriptions never come back
// through the poller.
func (s *Store) DeleteSubscription(ctx context.Context, subscriptionID uint) error {
	return s.db.WithContext(ctx).Unscoped().Delete(&models.Subscription{}, subscriptionID).Error
}
