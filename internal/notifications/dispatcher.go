package notifications

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/mailer"
	"github.com/angelmondragon/bazaar-backend/pkg/metrics"
	"github.com/angelmondragon/bazaar-backend/pkg/push"
	"github.com/angelmondragon/bazaar-backend/pkg/realtime"
)

// Payload describes one notification for one recipient. Channels is the
// snapshot taken when the event happened; it is stored on the row as-is.
type Payload struct {
	UserID    uuid.UUID
	StoreID   *uuid.UUID
	ListingID *uuid.UUID
	Type      enums.NotificationType
	Title     string
	Message   string
	Channels  models.Channels
	Metadata  models.NotificationMetadata
}

func (p Payload) validate() error {
	var fields pkgerrors.FieldErrors
	if p.UserID == uuid.Nil {
		fields = append(fields, pkgerrors.FieldError{Field: "user_id", Message: "is required"})
	}
	if !p.Type.IsValid() {
		fields = append(fields, pkgerrors.FieldError{Field: "type", Message: "is invalid"})
	}
	if strings.TrimSpace(p.Title) == "" {
		fields = append(fields, pkgerrors.FieldError{Field: "title", Message: "is required"})
	}
	if len(fields) > 0 {
		return pkgerrors.Validation("invalid notification", fields)
	}
	return nil
}

func (p Payload) model() models.Notification {
	return models.Notification{
		ID:        uuid.New(),
		UserID:    p.UserID,
		StoreID:   p.StoreID,
		ListingID: p.ListingID,
		Type:      p.Type,
		Title:     p.Title,
		Message:   p.Message,
		Channels:  datatypes.NewJSONType(p.Channels),
		Metadata:  datatypes.NewJSONType(p.Metadata),
	}
}

func (p Payload) pushMessage() push.Message {
	data := map[string]string{"type": string(p.Type)}
	if p.ListingID != nil {
		data["listingId"] = p.ListingID.String()
	}
	if p.Metadata.Slug != "" {
		data["slug"] = p.Metadata.Slug
	}
	return push.Message{
		Title:    p.Title,
		Body:     p.Message,
		ImageURL: p.Metadata.Image,
		Data:     data,
	}
}

// Dispatch delivers one notification. With in-app disabled no row is stored
// but email and push still go out. Delivery failures are logged and counted;
// only an invalid payload is returned as an error.
func (s *service) Dispatch(ctx context.Context, p Payload) (*NotificationDTO, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"user_id":           p.UserID.String(),
		"notification_type": string(p.Type),
	})

	var dto *NotificationDTO
	if p.Channels.InApp {
		row := p.model()
		if err := s.repo.Create(ctx, &row); err != nil {
			s.logg.Error(logCtx, "failed to persist notification", err)
			s.sideEffects.Failed(metrics.SideEffectInAppInsert)
		} else {
			dto = FromModel(&row)
			s.emitRealtime(logCtx, dto)
		}
	}

	if !p.Channels.Email && !p.Channels.Push {
		return dto, nil
	}

	user, err := s.users.FindByID(ctx, p.UserID)
	if err != nil {
		s.logg.Error(logCtx, "failed to load notification recipient", err)
		return dto, nil
	}
	if p.Channels.Email {
		s.sendEmail(logCtx, user, p)
	}
	if p.Channels.Push {
		s.sendPush(logCtx, []models.User{*user}, p.pushMessage())
	}
	return dto, nil
}

// UploadFailed tells the listing owner that queued images were dropped. The
// in-app row is always written; email and push follow the owner's preference.
func (s *service) UploadFailed(ctx context.Context, listing *models.Listing, reason string) error {
	if listing == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "listing required")
	}
	channels, err := ResolveChannels(ctx, s.repo, listing.UserID, listing.StoreID, DefaultChannels)
	if err != nil {
		s.logg.Error(ctx, "failed to resolve channels for upload failure", err)
	}
	channels.InApp = true

	storeID, listingID := listing.StoreID, listing.ID
	_, err = s.Dispatch(ctx, Payload{
		UserID:    listing.UserID,
		StoreID:   &storeID,
		ListingID: &listingID,
		Type:      enums.NotificationTypeUploadFailed,
		Title:     "Image upload failed",
		Message:   "We could not upload the images for your listing. Please add them again.",
		Channels:  channels,
		Metadata: models.NotificationMetadata{
			Slug:    listing.Slug,
			Summary: reason,
		},
	})
	return err
}

func (s *service) emitRealtime(ctx context.Context, dto *NotificationDTO) {
	if s.realtime == nil || dto == nil {
		return
	}
	room := realtime.UserRoom(dto.UserID.String())
	if err := s.realtime.Emit(ctx, room, realtime.EventNotificationNew, dto); err != nil {
		s.logg.Error(ctx, "failed to emit realtime notification", err)
		s.sideEffects.Failed(metrics.SideEffectRealtimeEmit)
	}
}

func (s *service) sendEmail(ctx context.Context, user *models.User, p Payload) bool {
	if s.mailer == nil || user == nil || strings.TrimSpace(user.Email) == "" {
		return false
	}
	email := mailer.Email{
		To:       user.Email,
		Subject:  p.Title,
		Title:    p.Title,
		Message:  p.Message,
		ImageURL: p.Metadata.Image,
	}
	if link := s.link(p); link != "" {
		email.CTALabel = "View listing"
		email.CTAURL = link
	}
	if err := s.mailer.Send(ctx, email); err != nil {
		s.logg.Error(s.logg.WithUserID(ctx, user.ID.String()), "failed to send notification email", err)
		s.sideEffects.Failed(metrics.SideEffectEmailSend)
		return false
	}
	return true
}

// sendPush sends one multicast to every token of every recipient and removes
// the tokens the provider reported as invalid from their owners. It returns
// the number of tokens targeted.
func (s *service) sendPush(ctx context.Context, recipients []models.User, msg push.Message) int {
	owners := make(map[string]uuid.UUID)
	tokens := make([]string, 0)
	for _, user := range recipients {
		for _, token := range user.PushTokens {
			if token == "" {
				continue
			}
			if _, seen := owners[token]; seen {
				continue
			}
			owners[token] = user.ID
			tokens = append(tokens, token)
		}
	}
	if len(tokens) == 0 {
		return 0
	}

	result, err := s.push.SendMulticast(ctx, tokens, msg)
	if err != nil {
		s.logg.Error(ctx, "failed to send push notification", err)
		s.sideEffects.Failed(metrics.SideEffectPushSend)
	}
	if result == nil || len(result.InvalidTokens) == 0 {
		return len(tokens)
	}

	stale := make(map[uuid.UUID][]string)
	for _, token := range result.InvalidTokens {
		owner, ok := owners[token]
		if !ok {
			continue
		}
		stale[owner] = append(stale[owner], token)
	}
	for userID, userTokens := range stale {
		if err := s.users.RemovePushTokens(ctx, userID, userTokens); err != nil {
			s.logg.Error(s.logg.WithUserID(ctx, userID.String()), "failed to remove invalid push tokens", err)
			s.sideEffects.Failed(metrics.SideEffectTokenCleanup)
		}
	}
	return len(tokens)
}

func (s *service) link(p Payload) string {
	if link := strings.TrimSpace(p.Metadata.Link); link != "" {
		if strings.HasPrefix(link, "http://") || strings.HasPrefix(link, "https://") {
			return link
		}
		return s.publicURL + "/" + strings.TrimLeft(link, "/")
	}
	switch {
	case p.Metadata.Slug != "":
		return s.publicURL + "/listings/" + p.Metadata.Slug
	case p.ListingID != nil:
		return s.publicURL + "/listings/" + p.ListingID.String()
	}
	return ""
}
