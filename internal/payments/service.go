package payments

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/bazaar-backend/internal/listings"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
)

// MetadataListingReference ties a PaymentIntent to its listing draft.
const MetadataListingReference = "listing_reference"

type intentGateway interface {
	CreatePaymentIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (*stripe.PaymentIntent, error)
	RetrievePaymentIntent(ctx context.Context, id string) (*stripe.PaymentIntent, error)
}

type listingCreator interface {
	ValidateDraft(ctx context.Context, input listings.CreateInput) error
	CreateListing(ctx context.Context, input listings.CreateInput) (*listings.ListingDTO, *listings.UploadHandle, error)
	Get(ctx context.Context, idOrSlug string) (*listings.ListingDTO, error)
}

type draftStore interface {
	Save(ctx context.Context, draft *Draft) error
	Peek(ctx context.Context, reference string) (*Draft, error)
	Take(ctx context.Context, reference string) (*Draft, error)
	MarkConfirmed(ctx context.Context, reference string, listingID uuid.UUID) error
	Confirmed(ctx context.Context, reference string) (uuid.UUID, bool, error)
}

// Service sells single listings: a draft is validated and parked while the
// buyer pays, and becomes a listing once Stripe reports the intent succeeded.
type Service interface {
	CreateIntent(ctx context.Context, input listings.CreateInput) (*IntentResult, error)
	Confirm(ctx context.Context, userID uuid.UUID, reference string) (*ConfirmResult, error)
	ConfirmFromWebhook(ctx context.Context, intent *stripe.PaymentIntent) error
}

type ServiceParams struct {
	Drafts      draftStore
	Stripe      intentGateway
	Listings    listingCreator
	Logger      *logger.Logger
	AmountCents int64
	Currency    string
	DraftTTL    time.Duration
	Clock       func() time.Time
}

type service struct {
	drafts   draftStore
	stripe   intentGateway
	listings listingCreator
	logg     *logger.Logger
	amount   int64
	currency string
	ttl      time.Duration
	now      func() time.Time
}

type IntentResult struct {
	Reference    string    `json:"reference"`
	ClientSecret string    `json:"clientSecret"`
	Amount       int64     `json:"amount"`
	Currency     string    `json:"currency"`
	ExpiresAt    time.Time `json:"expires_at"`
}

type ConfirmResult struct {
	Listing          *listings.ListingDTO   `json:"listing"`
	Upload           *listings.UploadHandle `json:"upload,omitempty"`
	AlreadyConfirmed bool                   `json:"already_confirmed"`
}

func NewService(params ServiceParams) (Service, error) {
	if params.Drafts == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "draft store required")
	}
	if params.Stripe == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "stripe client required")
	}
	if params.Listings == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "listings service required")
	}
	if params.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "listing fee must be positive")
	}
	if strings.TrimSpace(params.Currency) == "" {
		params.Currency = "usd"
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	if params.Clock == nil {
		params.Clock = time.Now
	}
	return &service{
		drafts:   params.Drafts,
		stripe:   params.Stripe,
		listings: params.Listings,
		logg:     params.Logger,
		amount:   params.AmountCents,
		currency: strings.ToLower(params.Currency),
		ttl:      params.DraftTTL,
		now:      params.Clock,
	}, nil
}

func (s *service) CreateIntent(ctx context.Context, input listings.CreateInput) (*IntentResult, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user required")
	}
	if err := s.listings.ValidateDraft(ctx, input); err != nil {
		return nil, err
	}

	reference := uuid.NewString()
	intent, err := s.stripe.CreatePaymentIntent(ctx, s.amount, s.currency, map[string]string{
		MetadataListingReference: reference,
		"user_id":                input.UserID.String(),
		"store_id":               input.StoreID.String(),
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment intent")
	}

	now := s.now().UTC()
	draft := &Draft{
		Reference:        reference,
		PaymentIntentID:  intent.ID,
		UserID:           input.UserID,
		StoreID:          input.StoreID,
		CategoryID:       input.CategoryID,
		Values:           input.Values,
		Images:           input.Images,
		FileFieldMapping: input.FileFieldMapping,
		NotifyUserIDs:    input.NotifyUserIDs,
		CreatedAt:        now,
	}
	if err := s.drafts.Save(ctx, draft); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store listing draft")
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"reference":         reference,
		"payment_intent_id": intent.ID,
		"user_id":           input.UserID.String(),
	}), "listing payment intent created")

	return &IntentResult{
		Reference:    reference,
		ClientSecret: intent.ClientSecret,
		Amount:       s.amount,
		Currency:     s.currency,
		ExpiresAt:    now.Add(s.ttl),
	}, nil
}

func (s *service) Confirm(ctx context.Context, userID uuid.UUID, reference string) (*ConfirmResult, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, pkgerrors.Validation("invalid request", pkgerrors.FieldErrors{{Field: "reference", Message: "is required"}})
	}

	if existing, err := s.alreadyConfirmed(ctx, reference); err != nil || existing != nil {
		return existing, err
	}

	draft, err := s.drafts.Peek(ctx, reference)
	if errors.Is(err, ErrDraftNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "listing draft expired or not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load listing draft")
	}
	if draft.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "draft belongs to another user")
	}

	intent, err := s.stripe.RetrievePaymentIntent(ctx, draft.PaymentIntentID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment intent")
	}
	if err := verifyIntent(intent, reference); err != nil {
		return nil, err
	}
	return s.complete(ctx, reference)
}

// ConfirmFromWebhook finishes the draft named in a succeeded intent's
// metadata. Intents without a listing reference are ignored.
func (s *service) ConfirmFromWebhook(ctx context.Context, intent *stripe.PaymentIntent) error {
	if intent == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment intent required")
	}
	reference := strings.TrimSpace(intent.Metadata[MetadataListingReference])
	if reference == "" {
		return nil
	}
	if err := verifyIntent(intent, reference); err != nil {
		return err
	}
	if existing, err := s.alreadyConfirmed(ctx, reference); err != nil || existing != nil {
		return err
	}
	_, err := s.complete(ctx, reference)
	return err
}

func (s *service) complete(ctx context.Context, reference string) (*ConfirmResult, error) {
	ctx = s.logg.WithField(ctx, "reference", reference)

	draft, err := s.drafts.Take(ctx, reference)
	if errors.Is(err, ErrDraftNotFound) {
		if existing, lookupErr := s.alreadyConfirmed(ctx, reference); lookupErr != nil || existing != nil {
			return existing, lookupErr
		}
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "listing draft expired or not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim listing draft")
	}

	listing, upload, err := s.listings.CreateListing(ctx, listings.CreateInput{
		StoreID:          draft.StoreID,
		CategoryID:       draft.CategoryID,
		UserID:           draft.UserID,
		Values:           draft.Values,
		Images:           draft.Images,
		FileFieldMapping: draft.FileFieldMapping,
		NotifyUserIDs:    draft.NotifyUserIDs,
		Prepaid:          true,
	})
	if err != nil {
		if restoreErr := s.drafts.Save(ctx, draft); restoreErr != nil {
			s.logg.Error(ctx, "failed to restore listing draft after create failure", restoreErr)
		}
		return nil, err
	}

	if err := s.drafts.MarkConfirmed(ctx, reference, listing.ID); err != nil {
		s.logg.Error(ctx, "failed to record draft confirmation", err)
	}
	s.logg.Info(s.logg.WithField(ctx, "listing_id", listing.ID.String()), "paid listing created")
	return &ConfirmResult{Listing: listing, Upload: upload}, nil
}

func (s *service) alreadyConfirmed(ctx context.Context, reference string) (*ConfirmResult, error) {
	listingID, ok, err := s.drafts.Confirmed(ctx, reference)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load draft confirmation")
	}
	if !ok {
		return nil, nil
	}
	listing, err := s.listings.Get(ctx, listingID.String())
	if err != nil {
		return nil, err
	}
	return &ConfirmResult{Listing: listing, AlreadyConfirmed: true}, nil
}

func verifyIntent(intent *stripe.PaymentIntent, reference string) error {
	if intent == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "payment intent missing")
	}
	if intent.Metadata[MetadataListingReference] != reference {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment intent does not match this draft")
	}
	if intent.Status != stripe.PaymentIntentStatusSucceeded {
		return pkgerrors.New(pkgerrors.CodeConflict, "payment has not succeeded")
	}
	return nil
}
