package enums

import (
	"fmt"
	"strings"
)

type SubscriptionPlan string

const (
	SubscriptionPlanTrial   SubscriptionPlan = "trial"
	SubscriptionPlanPremium SubscriptionPlan = "premium"
)

func (p SubscriptionPlan) IsValid() bool {
	return p == SubscriptionPlanTrial || p == SubscriptionPlanPremium
}

type SubscriptionStatus string

const (
	SubscriptionStatusActive     SubscriptionStatus = "active"
	SubscriptionStatusIncomplete SubscriptionStatus = "incomplete"
	SubscriptionStatusCancelled  SubscriptionStatus = "cancelled"
	SubscriptionStatusExpired    SubscriptionStatus = "expired"
)

var validSubscriptionStatuses = []SubscriptionStatus{
	SubscriptionStatusActive,
	SubscriptionStatusIncomplete,
	SubscriptionStatusCancelled,
	SubscriptionStatusExpired,
}

func (s SubscriptionStatus) IsValid() bool {
	for _, candidate := range validSubscriptionStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseSubscriptionStatus converts raw input into a SubscriptionStatus.
func ParseSubscriptionStatus(value string) (SubscriptionStatus, error) {
	for _, candidate := range validSubscriptionStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid subscription status %q", value)
}

// SubscriptionStatusFromStripe maps a payment-provider subscription status onto
// the local lifecycle.
func SubscriptionStatusFromStripe(status string) SubscriptionStatus {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "active", "trialing":
		return SubscriptionStatusActive
	case "canceled", "cancelled":
		return SubscriptionStatusCancelled
	case "incomplete_expired", "unpaid":
		return SubscriptionStatusExpired
	default:
		return SubscriptionStatusIncomplete
	}
}
