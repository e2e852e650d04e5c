package users

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
)

const maxPushTokenLength = 4096

type userRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	AddPushToken(ctx context.Context, userID uuid.UUID, token string) error
	RemovePushTokens(ctx context.Context, userID uuid.UUID, tokens []string) error
}

// Service covers the self-service user surface.
type Service interface {
	Me(ctx context.Context, userID uuid.UUID) (*UserDTO, error)
	RegisterPushToken(ctx context.Context, userID uuid.UUID, token string) error
	UnregisterPushToken(ctx context.Context, userID uuid.UUID, token string) error
}

type service struct {
	repo userRepository
}

func NewService(repo userRepository) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "users repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Me(ctx context.Context, userID uuid.UUID) (*UserDTO, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
	}
	return FromModel(user), nil
}

func (s *service) RegisterPushToken(ctx context.Context, userID uuid.UUID, token string) error {
	token, err := cleanToken(token)
	if err != nil {
		return err
	}
	if err := s.repo.AddPushToken(ctx, userID, token); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "register push token")
	}
	return nil
}

func (s *service) UnregisterPushToken(ctx context.Context, userID uuid.UUID, token string) error {
	token, err := cleanToken(token)
	if err != nil {
		return err
	}
	if err := s.repo.RemovePushTokens(ctx, userID, []string{token}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "remove push token")
	}
	return nil
}

func cleanToken(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", pkgerrors.Validation("invalid push token", pkgerrors.FieldErrors{{Field: "token", Message: "is required"}})
	}
	if len(token) > maxPushTokenLength {
		return "", pkgerrors.Validation("invalid push token", pkgerrors.FieldErrors{{Field: "token", Message: "is too long"}})
	}
	return token, nil
}
