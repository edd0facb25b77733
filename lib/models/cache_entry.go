package models

import "time"

// CacheEntry backs the state cache and the fetch cache when they run on the
// database.
type CacheEntry struct {
	CacheKey  string `gorm:"primaryKey"`
	Value     string
	ExpiresAt time.Time `gorm:"index"`
}
