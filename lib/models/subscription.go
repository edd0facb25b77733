package models

import (
	"database/sql"

	"gorm.io/gorm"
)

type Subscription struct {
	gorm.Model
	UserID      uint `gorm:"index"`
	TokenID     sql.NullInt64
	Service     string `gorm:"index:idx_service_method"`
	Method      string `gorm:"index:idx_service_method"`
	Query       string
	Describe    string
	LastCheckAt sql.NullTime
}

type Subscriptions []Subscription
