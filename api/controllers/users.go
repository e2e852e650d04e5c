package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/api/responses"
	"github.com/angelmondragon/bazaar-backend/api/validators"
	"github.com/angelmondragon/bazaar-backend/internal/users"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
)

type userService interface {
	Me(ctx context.Context, userID uuid.UUID) (*users.UserDTO, error)
	RegisterPushToken(ctx context.Context, userID uuid.UUID, token string) error
	UnregisterPushToken(ctx context.Context, userID uuid.UUID, token string) error
}

type pushTokenRequest struct {
	Token string `json:"token" validate:"required,max=4096"`
}

func Me(svc userService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("user service"))
			return
		}
		userID, err := currentUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		user, err := svc.Me(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, user)
	}
}

// RegisterPushToken adds a device token; registering a known token is a no-op.
func RegisterPushToken(svc userService, logg *logger.Logger) http.HandlerFunc {
	return pushTokenHandler(svc, logg, true)
}

func UnregisterPushToken(svc userService, logg *logger.Logger) http.HandlerFunc {
	return pushTokenHandler(svc, logg, false)
}

func pushTokenHandler(svc userService, logg *logger.Logger, register bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("user service"))
			return
		}
		userID, err := currentUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req pushTokenRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if register {
			err = svc.RegisterPushToken(r.Context(), userID, req.Token)
		} else {
			err = svc.UnregisterPushToken(r.Context(), userID, req.Token)
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"registered": register})
	}
}
