package subscriptions

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
)

const (
	ReasonNoActiveSubscription = "No active subscription"
	ReasonTrialLimitReached    = "Trial listing limit reached"
)

// Eligibility is the outcome of the listing-creation gate.
type Eligibility struct {
	CanCreate bool   `json:"can_create"`
	Reason    string `json:"reason,omitempty"`
}

type SubscriptionDTO struct {
	ID            uuid.UUID                `json:"id"`
	Plan          enums.SubscriptionPlan   `json:"plan"`
	Status        enums.SubscriptionStatus `json:"status"`
	StartDate     time.Time                `json:"start_date"`
	EndDate       time.Time                `json:"end_date"`
	ListingsCount int                      `json:"listings_count"`
	MaxListings   *int                     `json:"max_listings"`
}

func FromModel(m *models.Subscription) *SubscriptionDTO {
	if m == nil {
		return nil
	}
	return &SubscriptionDTO{
		ID:            m.ID,
		Plan:          m.Plan,
		Status:        m.Status,
		StartDate:     m.StartDate,
		EndDate:       m.EndDate,
		ListingsCount: m.ListingsCount,
		MaxListings:   m.MaxListings,
	}
}
