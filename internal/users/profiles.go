package users

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
)

// ProfileCollection names the profile array a listing is filed into.
type ProfileCollection string

const (
	CollectionAds      ProfileCollection = "ads"
	CollectionJobPosts ProfileCollection = "job_posts"
)

// CollectionFor picks the collection a listing of kind joins.
func CollectionFor(kind enums.CategoryKind) ProfileCollection {
	if kind == enums.CategoryKindJob {
		return CollectionJobPosts
	}
	return CollectionAds
}

// Profiles maintains the per-user listing collections.
type Profiles interface {
	WithTx(tx *gorm.DB) Profiles
	Append(ctx context.Context, userID uuid.UUID, collection ProfileCollection, listingID uuid.UUID) error
	RemoveListing(ctx context.Context, ownerID, listingID uuid.UUID) error
}

type profileRepository struct {
	db *gorm.DB
}

func NewProfileRepository(db *gorm.DB) Profiles {
	return &profileRepository{db: db}
}

func (r *profileRepository) WithTx(tx *gorm.DB) Profiles {
	if tx == nil {
		return r
	}
	return &profileRepository{db: tx}
}

// Append files listingID into the user's collection, creating the profile
// row on first use.
func (r *profileRepository) Append(ctx context.Context, userID uuid.UUID, collection ProfileCollection, listingID uuid.UUID) error {
	if collection != CollectionAds && collection != CollectionJobPosts {
		return fmt.Errorf("unknown profile collection %q", collection)
	}
	profile := models.Profile{ID: uuid.New(), UserID: userID}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(&profile).Error; err != nil {
		return err
	}
	column := string(collection)
	return r.db.WithContext(ctx).Exec(
		`UPDATE profiles SET `+column+` = array_append(array_remove(`+column+`, ?::uuid), ?::uuid), updated_at = now() WHERE user_id = ?`,
		listingID, listingID, userID,
	).Error
}

// RemoveListing drops listingID from the owner's collections and pulls it out
// of every profile's applications.
func (r *profileRepository) RemoveListing(ctx context.Context, ownerID, listingID uuid.UUID) error {
	if err := r.db.WithContext(ctx).Exec(
		`UPDATE profiles
		    SET ads = array_remove(ads, ?::uuid),
		        job_posts = array_remove(job_posts, ?::uuid),
		        updated_at = now()
		  WHERE user_id = ?`,
		listingID, listingID, ownerID,
	).Error; err != nil {
		return err
	}
	return r.db.WithContext(ctx).Exec(
		`UPDATE profiles
		    SET applications = array_remove(applications, ?::uuid),
		        updated_at = now()
		  WHERE ? = ANY(applications)`,
		listingID, listingID,
	).Error
}
