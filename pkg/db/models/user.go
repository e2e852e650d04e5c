package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	dbtypes "github.com/angelmondragon/bazaar-backend/pkg/db/types"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
)

// User is the account identity. PushTokens is modified with atomic array
// updates only.
type User struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey"`
	Email      string         `gorm:"column:email;type:text;not null;uniqueIndex"`
	FirstName  string         `gorm:"column:first_name;not null"`
	LastName   string         `gorm:"column:last_name;not null"`
	Role       enums.UserRole `gorm:"column:role;type:text;not null;default:'user'"`
	PushTokens pq.StringArray `gorm:"column:push_tokens;type:text[];not null;default:'{}'"`
	CreatedAt  time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

// Profile holds the user's listing collections by vertical.
type Profile struct {
	ID           uuid.UUID         `gorm:"type:uuid;primaryKey"`
	UserID       uuid.UUID         `gorm:"column:user_id;type:uuid;not null;uniqueIndex"`
	Ads          dbtypes.UUIDArray `gorm:"column:ads;type:uuid[];not null;default:'{}'"`
	JobPosts     dbtypes.UUIDArray `gorm:"column:job_posts;type:uuid[];not null;default:'{}'"`
	Applications dbtypes.UUIDArray `gorm:"column:applications;type:uuid[];not null;default:'{}'"`
	CreatedAt    time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
