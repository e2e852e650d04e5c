package subscriptions

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
)

// MetadataUserID is the Stripe metadata key carrying the local user id.
const MetadataUserID = "user_id"

// UserIDFromMetadata extracts the user id attached at checkout.
func UserIDFromMetadata(metadata map[string]string) (uuid.UUID, error) {
	raw := strings.TrimSpace(metadata[MetadataUserID])
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "user_id metadata missing")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid user_id metadata")
	}
	return id, nil
}

// ApplyStripe copies the Stripe lifecycle onto target. Premium plans are
// always unlimited.
func ApplyStripe(target *models.Subscription, sub *stripe.Subscription) {
	target.Plan = enums.SubscriptionPlanPremium
	target.MaxListings = nil
	target.Status = enums.SubscriptionStatusFromStripe(string(sub.Status))
	if sub.ID != "" {
		id := sub.ID
		target.StripeSubscriptionID = &id
	}
	if sub.Customer != nil && sub.Customer.ID != "" {
		customer := sub.Customer.ID
		target.StripeCustomerID = &customer
	}

	start, end := period(sub)
	if !start.IsZero() {
		target.StartDate = start
	}
	if !end.IsZero() {
		target.EndDate = end
	}
	if sub.EndedAt > 0 {
		target.EndDate = time.Unix(sub.EndedAt, 0).UTC()
	}
}

func period(sub *stripe.Subscription) (time.Time, time.Time) {
	var start, end time.Time
	if sub.StartDate > 0 {
		start = time.Unix(sub.StartDate, 0).UTC()
	}
	if sub.Items == nil {
		return start, end
	}
	for _, item := range sub.Items.Data {
		if item == nil {
			continue
		}
		if item.CurrentPeriodStart > 0 && start.IsZero() {
			start = time.Unix(item.CurrentPeriodStart, 0).UTC()
		}
		if item.CurrentPeriodEnd > 0 {
			candidate := time.Unix(item.CurrentPeriodEnd, 0).UTC()
			if candidate.After(end) {
				end = candidate
			}
		}
	}
	return start, end
}
