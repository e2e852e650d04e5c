package enums

import "fmt"

// NotificationType classifies notification records.
type NotificationType string

const (
	NotificationTypeListingCreated      NotificationType = "listing_created"
	NotificationTypeUploadFailed        NotificationType = "upload_failed"
	NotificationTypeSubscriptionUpdated NotificationType = "subscription_updated"
	NotificationTypeSystem              NotificationType = "system"
)

var validNotificationTypes = []NotificationType{
	NotificationTypeListingCreated,
	NotificationTypeUploadFailed,
	NotificationTypeSubscriptionUpdated,
	NotificationTypeSystem,
}

// IsValid checks whether the given type matches the canonical enum.
func (n NotificationType) IsValid() bool {
	for _, candidate := range validNotificationTypes {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationType converts raw strings into NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	for _, candidate := range validNotificationTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification type %q", value)
}
