package users

import (
	"context"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
)

// Repository exposes user-related persistence operations. Push tokens are
// only ever changed with single-statement array updates so concurrent writers
// do not clobber each other.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a users repo bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// FindByID loads a user by their UUID.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByIDs loads every user in ids; unknown ids are skipped.
func (r *Repository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var users []models.User
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

// AddPushToken registers token for the user unless it is already present.
func (r *Repository) AddPushToken(ctx context.Context, userID uuid.UUID, token string) error {
	res := r.db.WithContext(ctx).Exec(
		`UPDATE users
		    SET push_tokens = CASE WHEN ? = ANY(push_tokens) THEN push_tokens ELSE array_append(push_tokens, ?) END,
		        updated_at = now()
		  WHERE id = ?`,
		token, token, userID,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// RemovePushTokens drops exactly the given tokens from the user's list.
func (r *Repository) RemovePushTokens(ctx context.Context, userID uuid.UUID, tokens []string) error {
	if len(tokens) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Exec(
		`UPDATE users
		    SET push_tokens = COALESCE(
		          (SELECT array_agg(t ORDER BY ord) FROM unnest(push_tokens) WITH ORDINALITY AS u(t, ord) WHERE t <> ALL(?)),
		          '{}'),
		        updated_at = now()
		  WHERE id = ?`,
		pq.StringArray(tokens), userID,
	).Error
}
