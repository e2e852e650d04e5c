package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	dbtypes "github.com/angelmondragon/bazaar-backend/pkg/db/types"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
)

// Listing is a store item validated against its leaf category's field schema.
// CategoryPath holds every ancestor id plus the owning category id.
type Listing struct {
	ID           uuid.UUID          `gorm:"type:uuid;primaryKey"`
	StoreID      uuid.UUID          `gorm:"column:store_id;type:uuid;not null;index"`
	CategoryID   uuid.UUID          `gorm:"column:category_id;type:uuid;not null;index"`
	UserID       uuid.UUID          `gorm:"column:user_id;type:uuid;not null;index"`
	CategoryPath dbtypes.UUIDArray  `gorm:"column:category_path;type:uuid[];not null"`
	Values       datatypes.JSON     `gorm:"column:values;type:jsonb;not null"`
	Slug         string             `gorm:"column:slug;not null;uniqueIndex"`
	UploadStatus enums.UploadStatus `gorm:"column:upload_status;type:text;not null;default:'none'"`
	UploadJobID  *string            `gorm:"column:upload_job_id"`
	UploadError  *string            `gorm:"column:upload_error"`
	IsActive     bool               `gorm:"column:is_active;not null;default:true"`
	CreatedAt    time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
