package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/pkg/enums"
)

// Subscription is a user's listing entitlement. MaxListings is nil for
// unlimited plans.
type Subscription struct {
	ID                   uuid.UUID                `gorm:"type:uuid;primaryKey"`
	UserID               uuid.UUID                `gorm:"column:user_id;type:uuid;not null;index"`
	Plan                 enums.SubscriptionPlan   `gorm:"column:plan;type:text;not null"`
	Status               enums.SubscriptionStatus `gorm:"column:status;type:text;not null"`
	StartDate            time.Time                `gorm:"column:start_date;not null"`
	EndDate              time.Time                `gorm:"column:end_date;not null"`
	ListingsCount        int                      `gorm:"column:listings_count;not null;default:0"`
	MaxListings          *int                     `gorm:"column:max_listings"`
	StripeCustomerID     *string                  `gorm:"column:stripe_customer_id"`
	StripeSubscriptionID *string                  `gorm:"column:stripe_subscription_id;uniqueIndex"`
	CreatedAt            time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}

// IsActiveAt reports whether the subscription grants access at t.
func (s Subscription) IsActiveAt(t time.Time) bool {
	return s.Status == enums.SubscriptionStatusActive && s.EndDate.After(t)
}
