package notifications

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
)

// NotificationDTO is the API and realtime shape of a notification.
type NotificationDTO struct {
	ID        uuid.UUID                   `json:"id"`
	UserID    uuid.UUID                   `json:"user_id"`
	StoreID   *uuid.UUID                  `json:"store_id,omitempty"`
	ListingID *uuid.UUID                  `json:"listing_id,omitempty"`
	Type      enums.NotificationType      `json:"type"`
	Title     string                      `json:"title"`
	Message   string                      `json:"message"`
	Channels  models.Channels             `json:"channels"`
	Metadata  models.NotificationMetadata `json:"metadata"`
	IsRead    bool                        `json:"is_read"`
	ReadAt    *time.Time                  `json:"read_at,omitempty"`
	CreatedAt time.Time                   `json:"created_at"`
}

func FromModel(m *models.Notification) *NotificationDTO {
	if m == nil {
		return nil
	}
	return &NotificationDTO{
		ID:        m.ID,
		UserID:    m.UserID,
		StoreID:   m.StoreID,
		ListingID: m.ListingID,
		Type:      m.Type,
		Title:     m.Title,
		Message:   m.Message,
		Channels:  m.Channels.Data(),
		Metadata:  m.Metadata.Data(),
		IsRead:    m.IsRead,
		ReadAt:    m.ReadAt,
		CreatedAt: m.CreatedAt,
	}
}
