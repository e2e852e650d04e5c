package subscriptions

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
)

var fixedNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type fakeRepo struct {
	subs []*models.Subscription
}

func (f *fakeRepo) WithTx(*gorm.DB) Repository { return f }

func (f *fakeRepo) FindActive(_ context.Context, userID uuid.UUID, now time.Time) (*models.Subscription, error) {
	for _, s := range f.subs {
		if s.UserID == userID && s.IsActiveAt(now) {
			return s, nil
		}
	}
	return nil, nil
}

func (f *fakeRepo) FindLatest(_ context.Context, userID uuid.UUID) (*models.Subscription, error) {
	for i := len(f.subs) - 1; i >= 0; i-- {
		if f.subs[i].UserID == userID {
			return f.subs[i], nil
		}
	}
	return nil, nil
}

func (f *fakeRepo) HasTrial(_ context.Context, userID uuid.UUID) (bool, error) {
	for _, s := range f.subs {
		if s.UserID == userID && s.Plan == enums.SubscriptionPlanTrial {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRepo) FindByStripeID(_ context.Context, stripeID string) (*models.Subscription, error) {
	for _, s := range f.subs {
		if s.StripeSubscriptionID != nil && *s.StripeSubscriptionID == stripeID {
			return s, nil
		}
	}
	return nil, nil
}

func (f *fakeRepo) Create(_ context.Context, sub *models.Subscription) error {
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	f.subs = append(f.subs, sub)
	return nil
}

func (f *fakeRepo) Save(context.Context, *models.Subscription) error { return nil }

func (f *fakeRepo) CancelOthers(_ context.Context, userID, keepID uuid.UUID) error {
	for _, s := range f.subs {
		if s.UserID == userID && s.ID != keepID && s.Status == enums.SubscriptionStatusActive {
			s.Status = enums.SubscriptionStatusCancelled
		}
	}
	return nil
}

func (f *fakeRepo) IncrementListings(_ context.Context, id uuid.UUID) (bool, error) {
	for _, s := range f.subs {
		if s.ID != id {
			continue
		}
		if s.Plan != enums.SubscriptionPlanPremium && s.MaxListings != nil && s.ListingsCount >= *s.MaxListings {
			return false, nil
		}
		s.ListingsCount++
		return true, nil
	}
	return false, nil
}

func (f *fakeRepo) ExpireEnded(_ context.Context, now time.Time) (int64, error) {
	var n int64
	for _, s := range f.subs {
		if s.Status == enums.SubscriptionStatusActive && !s.EndDate.After(now) {
			s.Status = enums.SubscriptionStatusExpired
			n++
		}
	}
	return n, nil
}

type fakeTx struct{}

func (fakeTx) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error { return fn(nil) }

func newTestService(t *testing.T, repo *fakeRepo) Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Repository:       repo,
		TxRunner:         fakeTx{},
		TrialMaxListings: 1,
		TrialDays:        14,
		Clock:            func() time.Time { return fixedNow },
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestCanCreateListingWithoutSubscription(t *testing.T) {
	svc := newTestService(t, &fakeRepo{})

	got, err := svc.CanCreateListing(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("eligibility: %v", err)
	}
	if got.CanCreate || got.Reason != ReasonNoActiveSubscription {
		t.Fatalf("unexpected eligibility %+v", got)
	}
}

func TestTrialAllowsExactlyOneListing(t *testing.T) {
	repo := &fakeRepo{}
	svc := newTestService(t, repo)
	ctx := context.Background()
	userID := uuid.New()

	if _, err := svc.StartTrial(ctx, userID); err != nil {
		t.Fatalf("start trial: %v", err)
	}
	first, err := svc.CanCreateListing(ctx, userID)
	if err != nil || !first.CanCreate {
		t.Fatalf("expected first listing allowed, got %+v err=%v", first, err)
	}
	if err := svc.ReserveListing(ctx, nil, userID); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	second, err := svc.CanCreateListing(ctx, userID)
	if err != nil {
		t.Fatalf("eligibility: %v", err)
	}
	if second.CanCreate || second.Reason != ReasonTrialLimitReached {
		t.Fatalf("expected trial limit, got %+v", second)
	}
}

func TestReserveListingRefusesFullTrial(t *testing.T) {
	userID := uuid.New()
	limit := 1
	repo := &fakeRepo{subs: []*models.Subscription{{
		ID:            uuid.New(),
		UserID:        userID,
		Plan:          enums.SubscriptionPlanTrial,
		Status:        enums.SubscriptionStatusActive,
		EndDate:       fixedNow.Add(24 * time.Hour),
		ListingsCount: 1,
		MaxListings:   &limit,
	}}}
	svc := newTestService(t, repo)

	err := svc.ReserveListing(context.Background(), nil, userID)
	if !pkgerrors.IsCode(err, pkgerrors.CodeForbidden) || pkgerrors.As(err).Message() != ReasonTrialLimitReached {
		t.Fatalf("expected trial limit error, got %v", err)
	}
	if repo.subs[0].ListingsCount != 1 {
		t.Fatalf("count must not move past the cap, got %d", repo.subs[0].ListingsCount)
	}
}

func TestReserveListingWithoutSubscription(t *testing.T) {
	svc := newTestService(t, &fakeRepo{})
	err := svc.ReserveListing(context.Background(), nil, uuid.New())
	if !pkgerrors.IsCode(err, pkgerrors.CodeForbidden) || pkgerrors.As(err).Message() != ReasonNoActiveSubscription {
		t.Fatalf("expected no-subscription error, got %v", err)
	}
}

func TestPremiumIsUnlimited(t *testing.T) {
	userID := uuid.New()
	repo := &fakeRepo{subs: []*models.Subscription{{
		ID:            uuid.New(),
		UserID:        userID,
		Plan:          enums.SubscriptionPlanPremium,
		Status:        enums.SubscriptionStatusActive,
		EndDate:       fixedNow.Add(24 * time.Hour),
		ListingsCount: 500,
	}}}
	svc := newTestService(t, repo)

	got, err := svc.CanCreateListing(context.Background(), userID)
	if err != nil || !got.CanCreate {
		t.Fatalf("expected premium allowed, got %+v err=%v", got, err)
	}
}

func TestExpiredSubscriptionIsIgnored(t *testing.T) {
	userID := uuid.New()
	repo := &fakeRepo{subs: []*models.Subscription{{
		ID:      uuid.New(),
		UserID:  userID,
		Plan:    enums.SubscriptionPlanPremium,
		Status:  enums.SubscriptionStatusActive,
		EndDate: fixedNow.Add(-time.Minute),
	}}}
	svc := newTestService(t, repo)

	got, _ := svc.CanCreateListing(context.Background(), userID)
	if got.CanCreate {
		t.Fatalf("expected lapsed subscription to block")
	}
	expired, err := svc.ExpireEnded(context.Background())
	if err != nil || expired != 1 {
		t.Fatalf("expected one expired, got %d err=%v", expired, err)
	}
}

func TestStartTrialOnlyOnce(t *testing.T) {
	repo := &fakeRepo{}
	svc := newTestService(t, repo)
	ctx := context.Background()
	userID := uuid.New()

	if _, err := svc.StartTrial(ctx, userID); err != nil {
		t.Fatalf("start trial: %v", err)
	}
	repo.subs[0].Status = enums.SubscriptionStatusExpired

	_, err := svc.StartTrial(ctx, userID)
	if !pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestSyncFromStripeActivatesPremium(t *testing.T) {
	repo := &fakeRepo{}
	svc := newTestService(t, repo)
	ctx := context.Background()
	userID := uuid.New()
	if _, err := svc.StartTrial(ctx, userID); err != nil {
		t.Fatalf("start trial: %v", err)
	}

	end := fixedNow.AddDate(0, 1, 0)
	err := svc.SyncFromStripe(ctx, &stripe.Subscription{
		ID:       "sub_123",
		Status:   stripe.SubscriptionStatusActive,
		Metadata: map[string]string{MetadataUserID: userID.String()},
		Customer: &stripe.Customer{ID: "cus_1"},
		Items: &stripe.SubscriptionItemList{Data: []*stripe.SubscriptionItem{{
			CurrentPeriodStart: fixedNow.Unix(),
			CurrentPeriodEnd:   end.Unix(),
		}}},
	})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if len(repo.subs) != 2 {
		t.Fatalf("expected premium row created, have %d", len(repo.subs))
	}
	if repo.subs[0].Status != enums.SubscriptionStatusCancelled {
		t.Fatalf("expected trial superseded, got %s", repo.subs[0].Status)
	}
	premium := repo.subs[1]
	if premium.Plan != enums.SubscriptionPlanPremium || premium.MaxListings != nil {
		t.Fatalf("unexpected premium row %+v", premium)
	}
	if !premium.EndDate.Equal(end) {
		t.Fatalf("expected end %v, got %v", end, premium.EndDate)
	}

	err = svc.SyncFromStripe(ctx, &stripe.Subscription{ID: "sub_123", Status: stripe.SubscriptionStatusCanceled})
	if err != nil {
		t.Fatalf("sync cancel: %v", err)
	}
	if premium.Status != enums.SubscriptionStatusCancelled {
		t.Fatalf("expected cancelled, got %s", premium.Status)
	}
}

func TestSyncFromStripeRequiresUserMetadata(t *testing.T) {
	svc := newTestService(t, &fakeRepo{})
	err := svc.SyncFromStripe(context.Background(), &stripe.Subscription{ID: "sub_x", Status: stripe.SubscriptionStatusActive})
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestMarkPaymentFailed(t *testing.T) {
	stripeID := "sub_9"
	repo := &fakeRepo{subs: []*models.Subscription{{
		ID:                   uuid.New(),
		UserID:               uuid.New(),
		Plan:                 enums.SubscriptionPlanPremium,
		Status:               enums.SubscriptionStatusActive,
		EndDate:              fixedNow.Add(time.Hour),
		StripeSubscriptionID: &stripeID,
	}}}
	svc := newTestService(t, repo)

	if err := svc.MarkPaymentFailed(context.Background(), stripeID); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if repo.subs[0].Status != enums.SubscriptionStatusIncomplete {
		t.Fatalf("expected incomplete, got %s", repo.subs[0].Status)
	}
	if err := svc.MarkPaymentFailed(context.Background(), "sub_unknown"); err != nil {
		t.Fatalf("unknown subscription should be ignored: %v", err)
	}
}
