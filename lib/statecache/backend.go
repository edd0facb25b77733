package statecache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/fiffu/repowatch/lib/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Backend is a string key/value store with per-entry expiry. A lookup of a
// missing or expired key is reported through ok, never as an error.
type Backend interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	DeleteByPrefix(ctx context.Context, prefix string) (int64, error)
	Purge(ctx context.Context, now time.Time) (int64, error)
}

type SQLBackend struct {
	db  *gorm.DB
	now func() time.Time
}

func NewSQLBackend(db *gorm.DB) *SQLBackend {
	return &SQLBackend{db: db, now: time.Now}
}

func (b *SQLBackend) Get(ctx context.Context, key string) (string, bool, error) {
	var entries []models.CacheEntry
	tx := b.db.WithContext(ctx).
		Where("cache_key = ?", key).
		Where("expires_at > ?", b.now().UTC()).
		Limit(1).
		Find(&entries)
	if err := tx.Error; err != nil {
		return "", false, err
	}
	if len(entries) == 0 {
		return "", false, nil
	}
	return entries[0].Value, true, nil
}

func (b *SQLBackend) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	entry := models.CacheEntry{
		CacheKey:  key,
		Value:     value,
		ExpiresAt: b.now().UTC().Add(ttl),
	}
	tx := b.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "cache_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "expires_at"}),
		}).
		Create(&entry)
	return tx.Error
}

func (b *SQLBackend) DeleteByPrefix(ctx context.Context, prefix string) (int64, error) {
	tx := b.db.WithContext(ctx).
		Where(`cache_key LIKE ? ESCAPE '\'`, escapeLike(prefix)+"%").
		Delete(&models.CacheEntry{})
	return tx.RowsAffected, tx.Error
}

func (b *SQLBackend) Purge(ctx context.Context, now time.Time) (int64, error) {
	tx := b.db.WithContext(ctx).Delete(&models.CacheEntry{}, "expires_at <= ?", now.UTC())
	return tx.RowsAffected, tx.Error
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

type MemoryBackend struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: make(map[string]memoryEntry), now: time.Now}
}

func (b *MemoryBackend) Get(ctx context.Context, key string) (string, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.entries[key]
	if !ok || !entry.expiresAt.After(b.now()) {
		return "", false, nil
	}
	return entry.value, true, nil
}

func (b *MemoryBackend) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries[key] = memoryEntry{value, b.now().Add(ttl)}
	return nil
}

func (b *MemoryBackend) DeleteByPrefix(ctx context.Context, prefix string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var n int64
	for key := range b.entries {
		if strings.HasPrefix(key, prefix) {
			delete(b.entries, key)
			n++
		}
	}
	return n, nil
}

func (b *MemoryBackend) Purge(ctx context.Context, now time.Time) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var n int64
	for key, entry := range b.entries {
		if !entry.expiresAt.After(now) {
			delete(b.entries, key)
			n++
		}
	}
	return n, nil
}

// Len counts entries, expired or not.
func (b *MemoryBackend) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}
