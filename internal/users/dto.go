package users

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
)

// UserDTO is the transport shape of a user. Push tokens are reported as a
// count only.
type UserDTO struct {
	ID             uuid.UUID      `json:"id"`
	Email          string         `json:"email"`
	FirstName      string         `json:"first_name"`
	LastName       string         `json:"last_name"`
	Role           enums.UserRole `json:"role"`
	PushTokenCount int            `json:"push_token_count"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// FromModel converts the persisted user into its DTO.
func FromModel(m *models.User) *UserDTO {
	if m == nil {
		return nil
	}
	return &UserDTO{
		ID:             m.ID,
		Email:          m.Email,
		FirstName:      m.FirstName,
		LastName:       m.LastName,
		Role:           m.Role,
		PushTokenCount: len(m.PushTokens),
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

// DisplayName is the name used in notification copy.
func DisplayName(m *models.User) string {
	if m == nil {
		return ""
	}
	name := m.FirstName
	if m.LastName != "" {
		if name != "" {
			name += " "
		}
		name += m.LastName
	}
	if name == "" {
		return m.Email
	}
	return name
}
