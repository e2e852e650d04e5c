package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/angelmondragon/bazaar-backend/pkg/enums"
)

// Channels records which delivery channels applied when a notification was created.
type Channels struct {
	InApp bool `json:"inApp"`
	Email bool `json:"email"`
	Push  bool `json:"push"`
}

// NotificationMetadata carries rendering hints for clients and email templates.
type NotificationMetadata struct {
	Image   string `json:"image,omitempty"`
	Slug    string `json:"slug,omitempty"`
	Summary string `json:"summary,omitempty"`
	Link    string `json:"link,omitempty"`
}

// Notification is an in-app message addressed to one user.
type Notification struct {
	ID        uuid.UUID                                `gorm:"type:uuid;primaryKey"`
	UserID    uuid.UUID                                `gorm:"column:user_id;type:uuid;not null;index"`
	StoreID   *uuid.UUID                               `gorm:"column:store_id;type:uuid"`
	ListingID *uuid.UUID                               `gorm:"column:listing_id;type:uuid"`
	Type      enums.NotificationType                   `gorm:"column:type;type:text;not null"`
	Title     string                                   `gorm:"column:title;not null"`
	Message   string                                   `gorm:"column:message;not null"`
	Channels  datatypes.JSONType[Channels]             `gorm:"column:channels;type:jsonb;not null"`
	Metadata  datatypes.JSONType[NotificationMetadata] `gorm:"column:metadata;type:jsonb"`
	IsRead    bool                                     `gorm:"column:is_read;not null;default:false"`
	ReadAt    *time.Time                               `gorm:"column:read_at"`
	CreatedAt time.Time                                `gorm:"column:created_at;autoCreateTime"`
}

// NotificationPreference holds the per (user, store) channel switches. A nil
// column means "use the default".
type NotificationPreference struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID    uuid.UUID `gorm:"column:user_id;type:uuid;not null;uniqueIndex:notification_preferences_user_store_key"`
	StoreID   uuid.UUID `gorm:"column:store_id;type:uuid;not null;uniqueIndex:notification_preferences_user_store_key;index"`
	InApp     *bool     `gorm:"column:in_app"`
	Email     *bool     `gorm:"column:email"`
	Push      *bool     `gorm:"column:push"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
