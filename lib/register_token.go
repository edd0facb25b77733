package lib

import (
	"context"
	"fmt"
	"strings"

	"github.com/fiffu/repowatch/lib/fetcher"
	"github.com/fiffu/repowatch/lib/github"
	"github.com/fiffu/repowatch/lib/models"
	"github.com/fiffu/repowatch/lib/store"
	"go.uber.org/zap"
)

type TokenValidator interface {
	AuthenticatedUser(ctx context.Context, token string) (*github.User, error)
}

type registerToken struct {
	log       *zap.Logger
	store     *store.Store
	validator TokenValidator
}

// RegisterToken stores a GitHub token for userID after checking it against
// the API. The returned token carries the login it authenticates as.
func (svc *registerToken) RegisterToken(ctx context.Context, userID uint, service, value string) (*models.Token, error) {
	service = strings.ToLower(strings.TrimSpace(service))
	if service != "github" {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedService, service)
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, fmt.Errorf("%w: empty token", ErrInvalidToken)
	}

	if _, err := svc.store.FindUser(ctx, userID); err != nil {
		return nil, err
	}

	ghUser, err := svc.validator.AuthenticatedUser(ctx, value)
	if fetcher.IsUnauthorized(err) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	} else if err != nil {
		return nil, err
	}

	token := &models.Token{UserID: userID, Service: service, Value: value, Login: ghUser.Login}
	if err := svc.store.CreateToken(ctx, token); err != nil {
		return nil, err
	}
	svc.log.Sugar().Infow("Registered token", "user_id", userID, "token_id", token.ID, "login", token.Login)
	return token, nil
}
