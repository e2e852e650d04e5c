package notifications

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/metrics"
)

// FanOutInput describes a freshly published listing.
type FanOutInput struct {
	ListingID       uuid.UUID
	StoreID         uuid.UUID
	OwnerID         uuid.UUID
	Slug            string
	Title           string
	Image           string
	ExtraRecipients []uuid.UUID
}

// FanOutResult counts what was attempted per channel.
type FanOutResult struct {
	Recipients int
	InApp      int
	Emailed    int
	PushTokens int
}

// FanOutNewListing notifies every follower of the store, plus the extra
// recipients, that a listing was published. The owner is never notified.
// In-app rows are written in one bulk insert; email and push are best-effort
// per recipient.
func (s *service) FanOutNewListing(ctx context.Context, input FanOutInput) (*FanOutResult, error) {
	if input.ListingID == uuid.Nil || input.StoreID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "listing id and store id required")
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"listing_id": input.ListingID.String(),
		"store_id":   input.StoreID.String(),
	})

	prefs, err := s.repo.ListPreferences(ctx, input.StoreID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load store followers")
	}

	byUser := make(map[uuid.UUID]*models.NotificationPreference, len(prefs))
	candidates := make([]uuid.UUID, 0, len(prefs)+len(input.ExtraRecipients))
	for i := range prefs {
		byUser[prefs[i].UserID] = &prefs[i]
		candidates = append(candidates, prefs[i].UserID)
	}
	candidates = append(candidates, input.ExtraRecipients...)
	recipients := recipientIDs(candidates, input.OwnerID)

	result := &FanOutResult{}
	if len(recipients) == 0 {
		return result, nil
	}

	users, err := s.users.FindByIDs(ctx, recipients)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load recipients")
	}

	template := newListingPayload(input)
	var (
		rows    []models.Notification
		emailTo []emailTarget
		pushTo  []models.User
	)
	for i := range users {
		user := users[i]
		if user.ID == input.OwnerID {
			continue
		}
		p := template
		p.UserID = user.ID
		p.Channels = applyPreference(byUser[user.ID], DefaultChannels)

		if p.Channels.InApp {
			rows = append(rows, p.model())
		}
		if p.Channels.Email {
			emailTo = append(emailTo, emailTarget{user: &users[i], payload: p})
		}
		if p.Channels.Push {
			pushTo = append(pushTo, user)
		}
		result.Recipients++
	}

	inserted, err := s.repo.BulkInsert(ctx, rows)
	if err != nil {
		failures := multierr.Errors(err)
		s.logg.Error(s.logg.WithField(logCtx, "failed_rows", len(failures)), "bulk notification insert partially failed", err)
		for range failures {
			s.sideEffects.Failed(metrics.SideEffectInAppInsert)
		}
	}
	result.InApp = len(inserted)
	for i := range inserted {
		s.emitRealtime(logCtx, FromModel(&inserted[i]))
	}

	for _, target := range emailTo {
		if s.sendEmail(logCtx, target.user, target.payload) {
			result.Emailed++
		}
	}

	result.PushTokens = s.sendPush(logCtx, pushTo, template.pushMessage())

	s.logg.Info(s.logg.WithFields(logCtx, map[string]any{
		"recipients":  result.Recipients,
		"in_app":      result.InApp,
		"emailed":     result.Emailed,
		"push_tokens": result.PushTokens,
	}), "listing fan-out complete")
	return result, nil
}

type emailTarget struct {
	user    *models.User
	payload Payload
}

func newListingPayload(input FanOutInput) Payload {
	storeID, listingID := input.StoreID, input.ListingID
	title := strings.TrimSpace(input.Title)
	message := "A store you follow published a new listing."
	if title != "" {
		message = fmt.Sprintf("A store you follow published %q.", title)
	}
	return Payload{
		StoreID:   &storeID,
		ListingID: &listingID,
		Type:      enums.NotificationTypeListingCreated,
		Title:     "New listing",
		Message:   message,
		Metadata: models.NotificationMetadata{
			Image:   input.Image,
			Slug:    input.Slug,
			Summary: title,
		},
	}
}

// recipientIDs de-duplicates ids, keeping first-seen order, and drops the owner.
func recipientIDs(ids []uuid.UUID, owner uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil || id == owner {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
