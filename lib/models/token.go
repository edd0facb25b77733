package models

import "gorm.io/gorm"

// Token is an API credential owned by a user. Value is never rendered back
// to clients.
type Token struct {
	gorm.Model
	UserID  uint `gorm:"index"`
	Service string
	Value   string
	Login   string
}
