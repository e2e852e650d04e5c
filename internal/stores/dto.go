package stores

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
)

// StoreDTO exposes store data in API responses.
type StoreDTO struct {
	ID          uuid.UUID       `json:"id"`
	OwnerUserID uuid.UUID       `json:"owner_user_id"`
	Name        string          `json:"name"`
	Slug        string          `json:"slug"`
	Kind        enums.StoreKind `json:"kind"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// CreateInput holds creation-time data for a new store. Kind must be set
// explicitly.
type CreateInput struct {
	OwnerUserID uuid.UUID
	Name        string
	Slug        string
	Kind        enums.StoreKind
}

// FromModel maps the persisted store into a DTO.
func FromModel(m *models.Store) *StoreDTO {
	if m == nil {
		return nil
	}
	return &StoreDTO{
		ID:          m.ID,
		OwnerUserID: m.OwnerUserID,
		Name:        m.Name,
		Slug:        m.Slug,
		Kind:        m.Kind,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

// BackfillResult summarizes a kind backfill run.
type BackfillResult struct {
	Scanned      int                     `json:"scanned"`
	Reclassified map[enums.StoreKind]int `json:"reclassified"`
}
