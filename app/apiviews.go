package app

import (
	"database/sql"
	"time"

	"github.com/fiffu/repowatch/lib/models"
)

type UserView struct {
	ID        uint           `json:"id"`
	Username  string         `json:"username"`
	Notifiers []NotifierView `json:"notifiers"`
	Tokens    []TokenView    `json:"tokens"`
}

type NotifierView struct {
	ID         uint   `json:"id"`
	Platform   string `json:"platform"`
	Identifier string `json:"identifier"`
	Verified   bool   `json:"verified"`
}

// TokenView never carries the token value.
type TokenView struct {
	ID      uint   `json:"id"`
	Service string `json:"service"`
	Login   string `json:"login"`
}

type SubscriptionView struct {
	ID          uint    `json:"id"`
	UserID      uint    `json:"user_id"`
	TokenID     *int64  `json:"token_id"`
	Service     string  `json:"service"`
	Method      string  `json:"method"`
	Query       string  `json:"query"`
	Describe    string  `json:"describe"`
	LastCheckAt *string `json:"last_check_at"`
}

func (view UserView) From(entity models.User) UserView {
	return UserView{
		ID:        entity.ID,
		Username:  entity.Username,
		Notifiers: FromMany[models.Notifier, NotifierView](entity.Notifiers),
		Tokens:    FromMany[models.Token, TokenView](entity.Tokens),
	}
}

func (view NotifierView) From(entity models.Notifier) NotifierView {
	return NotifierView{
		ID:         entity.ID,
		Platform:   entity.Platform,
		Identifier: entity.PlatformIdentifier,
		Verified:   entity.Verified,
	}
}

func (view TokenView) From(entity models.Token) TokenView {
	return TokenView{
		ID:      entity.ID,
		Service: entity.Service,
		Login:   entity.Login,
	}
}

func (view SubscriptionView) From(entity models.Subscription) SubscriptionView {
	var tokenID *int64
	if entity.TokenID.Valid {
		tokenID = &entity.TokenID.Int64
	}
	return SubscriptionView{
		ID:          entity.ID,
		UserID:      entity.UserID,
		TokenID:     tokenID,
		Service:     entity.Service,
		Method:      entity.Method,
		Query:       entity.Query,
		Describe:    entity.Describe,
		LastCheckAt: isoformat(entity.LastCheckAt),
	}
}

type Fromable[Entity any, Repr any] interface {
	From(Entity) Repr
}

func FromMany[T any, U Fromable[T, U]](elems []T) []U {
	out := make([]U, len(elems))
	for i, t := range elems {
		var u U
		out[i] = u.From(t)
	}
	return out
}

func isoformat(t sql.NullTime) *string {
	if !t.Valid {
		return nil
	}
	s := t.Time.UTC().Format(time.RFC3339)
	return &s
}
