package models

import (
	"gorm.io/gorm"
)

type User struct {
	gorm.Model
	Username string `gorm:"unique"`

	Notifiers     []Notifier
	Tokens        []Token
	Subscriptions []Subscription
}
