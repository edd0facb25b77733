package models

import (
	"time"

	"gorm.io/gorm"
)

// Notifier is a destination a subscriber receives notifications on, e.g. an
// email address or a webhook URL.
type Notifier struct {
	gorm.Model
	UserID             uint `gorm:"index"`
	Verified           bool
	Platform           string
	PlatformIdentifier string
}

type NotifierConfirmation struct {
	NotifierID uint
	Nonce      string `gorm:"uniqueIndex"`
	Expiry     time.Time

	Notifier Notifier
}
