package subscriptions

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/db"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
)

const activeSubscriptionConstraint = "subscriptions_one_active_per_user"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service is the listing entitlement gate and subscription lifecycle.
type Service interface {
	CanCreateListing(ctx context.Context, userID uuid.UUID) (Eligibility, error)
	ReserveListing(ctx context.Context, tx *gorm.DB, userID uuid.UUID) error
	Current(ctx context.Context, userID uuid.UUID) (*SubscriptionDTO, error)
	StartTrial(ctx context.Context, userID uuid.UUID) (*SubscriptionDTO, error)
	SyncFromStripe(ctx context.Context, sub *stripe.Subscription) error
	MarkPaymentFailed(ctx context.Context, stripeSubscriptionID string) error
	ExpireEnded(ctx context.Context) (int64, error)
}

type ServiceParams struct {
	Repository       Repository
	TxRunner         txRunner
	Logger           *logger.Logger
	TrialMaxListings int
	TrialDays        int
	Clock            func() time.Time
}

type service struct {
	repo      Repository
	tx        txRunner
	logg      *logger.Logger
	trialMax  int
	trialDays int
	now       func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repository == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "subscriptions repository required")
	}
	if params.TxRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.TrialMaxListings <= 0 {
		params.TrialMaxListings = 1
	}
	if params.TrialDays <= 0 {
		params.TrialDays = 14
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	if params.Clock == nil {
		params.Clock = time.Now
	}
	return &service{
		repo:      params.Repository,
		tx:        params.TxRunner,
		logg:      params.Logger,
		trialMax:  params.TrialMaxListings,
		trialDays: params.TrialDays,
		now:       params.Clock,
	}, nil
}

func (s *service) CanCreateListing(ctx context.Context, userID uuid.UUID) (Eligibility, error) {
	sub, err := s.repo.FindActive(ctx, userID, s.now())
	if err != nil {
		return Eligibility{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	return evaluate(sub), nil
}

func evaluate(sub *models.Subscription) Eligibility {
	if sub == nil {
		return Eligibility{Reason: ReasonNoActiveSubscription}
	}
	if sub.Plan == enums.SubscriptionPlanPremium || sub.MaxListings == nil {
		return Eligibility{CanCreate: true}
	}
	if sub.ListingsCount >= *sub.MaxListings {
		return Eligibility{Reason: ReasonTrialLimitReached}
	}
	return Eligibility{CanCreate: true}
}

// ReserveListing takes one listing slot from the user's active subscription
// inside tx. A full trial returns Forbidden so the caller's insert rolls back.
func (s *service) ReserveListing(ctx context.Context, tx *gorm.DB, userID uuid.UUID) error {
	repo := s.repo.WithTx(tx)
	sub, err := repo.FindActive(ctx, userID, s.now())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	if sub == nil {
		return pkgerrors.New(pkgerrors.CodeForbidden, ReasonNoActiveSubscription)
	}
	reserved, err := repo.IncrementListings(ctx, sub.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "increment listings count")
	}
	if !reserved {
		return pkgerrors.New(pkgerrors.CodeForbidden, ReasonTrialLimitReached)
	}
	return nil
}

func (s *service) Current(ctx context.Context, userID uuid.UUID) (*SubscriptionDTO, error) {
	sub, err := s.repo.FindActive(ctx, userID, s.now())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	if sub == nil {
		sub, err = s.repo.FindLatest(ctx, userID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
		}
	}
	if sub == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
	}
	return FromModel(sub), nil
}

func (s *service) StartTrial(ctx context.Context, userID uuid.UUID) (*SubscriptionDTO, error) {
	now := s.now().UTC()
	active, err := s.repo.FindActive(ctx, userID, now)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	if active != nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "an active subscription already exists")
	}
	used, err := s.repo.HasTrial(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check trial history")
	}
	if used {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "trial already used")
	}

	maxListings := s.trialMax
	sub := &models.Subscription{
		UserID:      userID,
		Plan:        enums.SubscriptionPlanTrial,
		Status:      enums.SubscriptionStatusActive,
		StartDate:   now,
		EndDate:     now.AddDate(0, 0, s.trialDays),
		MaxListings: &maxListings,
	}
	if err := s.repo.Create(ctx, sub); err != nil {
		if db.IsUniqueViolation(err, activeSubscriptionConstraint) {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "an active subscription already exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create trial")
	}
	s.logg.Info(s.logg.WithUserID(ctx, userID.String()), "trial subscription started")
	return FromModel(sub), nil
}

// SyncFromStripe upserts the local row for a Stripe subscription. Activating
// a premium subscription cancels any other active row of the same user.
func (s *service) SyncFromStripe(ctx context.Context, stripeSub *stripe.Subscription) error {
	if stripeSub == nil || stripeSub.ID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe subscription required")
	}
	now := s.now().UTC()
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		store := s.repo.WithTx(tx)
		stored, err := store.FindByStripeID(ctx, stripeSub.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
		}

		if stored == nil {
			userID, err := UserIDFromMetadata(stripeSub.Metadata)
			if err != nil {
				return err
			}
			stored = &models.Subscription{ID: uuid.New(), UserID: userID, StartDate: now}
			ApplyStripe(stored, stripeSub)
			if stored.EndDate.IsZero() {
				stored.EndDate = stored.StartDate.AddDate(0, 1, 0)
			}
			if err := s.activate(ctx, store, stored); err != nil {
				return err
			}
			return store.Create(ctx, stored)
		}

		ApplyStripe(stored, stripeSub)
		if err := s.activate(ctx, store, stored); err != nil {
			return err
		}
		return store.Save(ctx, stored)
	})
}

func (s *service) activate(ctx context.Context, store Repository, sub *models.Subscription) error {
	if sub.Status != enums.SubscriptionStatusActive {
		return nil
	}
	if err := store.CancelOthers(ctx, sub.UserID, sub.ID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel superseded subscriptions")
	}
	return nil
}

func (s *service) MarkPaymentFailed(ctx context.Context, stripeSubscriptionID string) error {
	if stripeSubscriptionID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "subscription id missing")
	}
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		store := s.repo.WithTx(tx)
		stored, err := store.FindByStripeID(ctx, stripeSubscriptionID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
		}
		if stored == nil {
			s.logg.Warn(s.logg.WithField(ctx, "stripe_subscription_id", stripeSubscriptionID), "payment failed for unknown subscription")
			return nil
		}
		stored.Status = enums.SubscriptionStatusIncomplete
		return store.Save(ctx, stored)
	})
}

func (s *service) ExpireEnded(ctx context.Context) (int64, error) {
	count, err := s.repo.ExpireEnded(ctx, s.now().UTC())
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "expire subscriptions")
	}
	return count, nil
}
