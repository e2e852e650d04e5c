package listings

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/internal/uploads"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	"github.com/angelmondragon/bazaar-backend/pkg/pagination"
)

// Actor is the caller performing a listing operation.
type Actor struct {
	UserID  uuid.UUID
	IsAdmin bool
}

// CreateInput carries everything needed to create a listing.
type CreateInput struct {
	StoreID          uuid.UUID
	CategoryID       uuid.UUID
	UserID           uuid.UUID
	Values           map[string]any
	Images           []uploads.Image
	FileFieldMapping map[int]string
	// NotifyUserIDs adds recipients to the store-wide new listing fan-out.
	NotifyUserIDs []uuid.UUID
	// Prepaid listings were paid for individually; the subscription gate is
	// neither consulted nor counted.
	Prepaid bool `json:"-"`
}

// UpdateInput carries changed values. Keys absent from Values are untouched.
type UpdateInput struct {
	ID               uuid.UUID
	Actor            Actor
	Values           map[string]any
	Images           []uploads.Image
	FileFieldMapping map[int]string
}

type ListingDTO struct {
	ID           uuid.UUID          `json:"id"`
	StoreID      uuid.UUID          `json:"store_id"`
	CategoryID   uuid.UUID          `json:"category_id"`
	UserID       uuid.UUID          `json:"user_id"`
	CategoryPath []uuid.UUID        `json:"category_path"`
	Values       json.RawMessage    `json:"values"`
	Slug         string             `json:"slug"`
	UploadStatus enums.UploadStatus `json:"upload_status"`
	UploadJobID  *string            `json:"upload_job_id,omitempty"`
	UploadError  *string            `json:"upload_error,omitempty"`
	IsActive     bool               `json:"is_active"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// UploadHandle is returned when images were queued; poll it by job id.
type UploadHandle struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

type ListResult struct {
	Items      []ListingDTO    `json:"items"`
	Pagination pagination.Meta `json:"pagination"`
}

func FromModel(m *models.Listing) *ListingDTO {
	if m == nil {
		return nil
	}
	values := json.RawMessage(m.Values)
	if len(values) == 0 {
		values = json.RawMessage("{}")
	}
	return &ListingDTO{
		ID:           m.ID,
		StoreID:      m.StoreID,
		CategoryID:   m.CategoryID,
		UserID:       m.UserID,
		CategoryPath: []uuid.UUID(m.CategoryPath),
		Values:       values,
		Slug:         m.Slug,
		UploadStatus: m.UploadStatus,
		UploadJobID:  m.UploadJobID,
		UploadError:  m.UploadError,
		IsActive:     m.IsActive,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}
