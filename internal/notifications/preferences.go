package notifications

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
)

// DefaultChannels is used for any channel a user never configured.
var DefaultChannels = models.Channels{InApp: true, Email: false, Push: true}

// PreferenceDTO is the API shape of one (user, store) preference row after
// defaults are applied.
type PreferenceDTO struct {
	StoreID uuid.UUID `json:"store_id"`
	InApp   bool      `json:"in_app"`
	Email   bool      `json:"email"`
	Push    bool      `json:"push"`
}

// PreferenceInput carries a partial update; nil leaves the channel unchanged.
type PreferenceInput struct {
	InApp *bool `json:"in_app"`
	Email *bool `json:"email"`
	Push  *bool `json:"push"`
}

type preferenceReader interface {
	FindPreference(ctx context.Context, userID, storeID uuid.UUID) (*models.NotificationPreference, error)
}

// ResolveChannels reads the (user, store) row and falls back per channel.
func ResolveChannels(ctx context.Context, repo preferenceReader, userID, storeID uuid.UUID, fallback models.Channels) (models.Channels, error) {
	pref, err := repo.FindPreference(ctx, userID, storeID)
	if err != nil {
		return fallback, err
	}
	return applyPreference(pref, fallback), nil
}

func applyPreference(pref *models.NotificationPreference, fallback models.Channels) models.Channels {
	if pref == nil {
		return fallback
	}
	channels := fallback
	if pref.InApp != nil {
		channels.InApp = *pref.InApp
	}
	if pref.Email != nil {
		channels.Email = *pref.Email
	}
	if pref.Push != nil {
		channels.Push = *pref.Push
	}
	return channels
}

func (s *service) GetPreference(ctx context.Context, userID, storeID uuid.UUID) (*PreferenceDTO, error) {
	if userID == uuid.Nil || storeID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id and store id required")
	}
	channels, err := ResolveChannels(ctx, s.repo, userID, storeID, DefaultChannels)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load notification preference")
	}
	return toPreferenceDTO(storeID, channels), nil
}

func (s *service) UpsertPreference(ctx context.Context, userID, storeID uuid.UUID, input PreferenceInput) (*PreferenceDTO, error) {
	if userID == uuid.Nil || storeID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id and store id required")
	}

	var result *PreferenceDTO
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		existing, err := repo.FindPreference(ctx, userID, storeID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load notification preference")
		}
		pref := &models.NotificationPreference{UserID: userID, StoreID: storeID}
		if existing != nil {
			pref.InApp, pref.Email, pref.Push = existing.InApp, existing.Email, existing.Push
		}
		if input.InApp != nil {
			pref.InApp = input.InApp
		}
		if input.Email != nil {
			pref.Email = input.Email
		}
		if input.Push != nil {
			pref.Push = input.Push
		}
		if err := repo.UpsertPreference(ctx, pref); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save notification preference")
		}
		result = toPreferenceDTO(storeID, applyPreference(pref, DefaultChannels))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func toPreferenceDTO(storeID uuid.UUID, channels models.Channels) *PreferenceDTO {
	return &PreferenceDTO{
		StoreID: storeID,
		InApp:   channels.InApp,
		Email:   channels.Email,
		Push:    channels.Push,
	}
}
