package subscriptions

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
)

// Repository persists subscriptions.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindActive(ctx context.Context, userID uuid.UUID, now time.Time) (*models.Subscription, error)
	FindLatest(ctx context.Context, userID uuid.UUID) (*models.Subscription, error)
	HasTrial(ctx context.Context, userID uuid.UUID) (bool, error)
	FindByStripeID(ctx context.Context, stripeID string) (*models.Subscription, error)
	Create(ctx context.Context, sub *models.Subscription) error
	Save(ctx context.Context, sub *models.Subscription) error
	CancelOthers(ctx context.Context, userID, keepID uuid.UUID) error
	IncrementListings(ctx context.Context, id uuid.UUID) (bool, error)
	ExpireEnded(ctx context.Context, now time.Time) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds a subscriptions repo to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// FindActive returns the user's active subscription at now, or nil.
func (r *repository) FindActive(ctx context.Context, userID uuid.UUID, now time.Time) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ? AND end_date > ?", userID, enums.SubscriptionStatusActive, now).
		Order("end_date DESC").
		First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

// FindLatest returns the most recently created subscription for the user, or nil.
func (r *repository) FindLatest(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

// HasTrial reports whether the user ever held a trial.
func (r *repository) HasTrial(ctx context.Context, userID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("user_id = ? AND plan = ?", userID, enums.SubscriptionPlanTrial).
		Count(&count).Error
	return count > 0, err
}

// FindByStripeID loads a subscription by its Stripe id, locking it for update.
func (r *repository) FindByStripeID(ctx context.Context, stripeID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("stripe_subscription_id = ?", stripeID).
		First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

func (r *repository) Create(ctx context.Context, sub *models.Subscription) error {
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(sub).Error
}

func (r *repository) Save(ctx context.Context, sub *models.Subscription) error {
	return r.db.WithContext(ctx).Save(sub).Error
}

// CancelOthers cancels every active subscription of the user except keepID.
func (r *repository) CancelOthers(ctx context.Context, userID, keepID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("user_id = ? AND id <> ? AND status = ?", userID, keepID, enums.SubscriptionStatusActive).
		Update("status", enums.SubscriptionStatusCancelled).Error
}

// IncrementListings bumps the listing counter of subscription id unless the
// plan is capped and already full. It reports whether a slot was taken; the
// check and the bump are one statement so concurrent creates cannot both win.
func (r *repository) IncrementListings(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("id = ?", id).
		Where("plan = ? OR max_listings IS NULL OR listings_count < max_listings", enums.SubscriptionPlanPremium).
		UpdateColumn("listings_count", gorm.Expr("listings_count + 1"))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ExpireEnded marks active subscriptions whose end date has passed as expired.
func (r *repository) ExpireEnded(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("status = ? AND end_date <= ?", enums.SubscriptionStatusActive, now).
		Update("status", enums.SubscriptionStatusExpired)
	return res.RowsAffected, res.Error
}
