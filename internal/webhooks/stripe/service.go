package stripewebhook

import (
	"context"
	"encoding/json"

	"github.com/stripe/stripe-go/v84"

	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
)

type subscriptionSyncer interface {
	SyncFromStripe(ctx context.Context, sub *stripe.Subscription) error
	MarkPaymentFailed(ctx context.Context, stripeSubscriptionID string) error
}

type paymentConfirmer interface {
	ConfirmFromWebhook(ctx context.Context, intent *stripe.PaymentIntent) error
}

type ServiceParams struct {
	Subscriptions subscriptionSyncer
	Payments      paymentConfirmer
	Logger        *logger.Logger
}

// Service routes verified Stripe events to the subscription gate and the
// listing payment flow.
type Service struct {
	subscriptions subscriptionSyncer
	payments      paymentConfirmer
	logg          *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Subscriptions == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "subscriptions service required")
	}
	if params.Payments == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payments service required")
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	return &Service{
		subscriptions: params.Subscriptions,
		payments:      params.Payments,
		logg:          params.Logger,
	}, nil
}

func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	switch event.Type {
	case stripe.EventTypeCustomerSubscriptionCreated,
		stripe.EventTypeCustomerSubscriptionUpdated,
		stripe.EventTypeCustomerSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode subscription event")
		}
		return s.subscriptions.SyncFromStripe(ctx, &sub)

	case stripe.EventTypeInvoicePaymentFailed:
		subscriptionID := invoiceSubscriptionID(event)
		if subscriptionID == "" {
			s.logg.Warn(ctx, "invoice.payment_failed without subscription")
			return nil
		}
		return s.subscriptions.MarkPaymentFailed(ctx, subscriptionID)

	case stripe.EventTypePaymentIntentSucceeded:
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payment intent event")
		}
		return s.payments.ConfirmFromWebhook(ctx, &intent)

	default:
		s.logg.Debug(ctx, "ignoring stripe event "+string(event.Type))
		return nil
	}
}

// invoiceSubscriptionID reads the subscription from the invoice parent
// details, falling back to the top-level field older API versions send.
func invoiceSubscriptionID(event *stripe.Event) string {
	if id := event.GetObjectValue("parent", "subscription_details", "subscription"); id != "" {
		return id
	}
	return event.GetObjectValue("subscription")
}
