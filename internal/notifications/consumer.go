package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox"
)

const listingNotificationConsumer = "listing-notifications"

type fanOuter interface {
	FanOutNewListing(ctx context.Context, input FanOutInput) (*FanOutResult, error)
}

type processedTracker interface {
	CheckAndMarkProcessed(ctx context.Context, consumer, eventID string) (bool, error)
	Release(ctx context.Context, consumer, eventID string) error
}

// Consumer turns listing.created domain events into store-wide fan-outs.
type Consumer struct {
	notifier     fanOuter
	subscription *pubsub.Subscriber
	idempotency  processedTracker
	logg         *logger.Logger
}

// NewConsumer builds a listing notification consumer.
func NewConsumer(notifier fanOuter, subscription *pubsub.Subscriber, tracker processedTracker, logg *logger.Logger) (*Consumer, error) {
	if notifier == nil {
		return nil, fmt.Errorf("notifications service required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("domain subscription required")
	}
	if tracker == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		notifier:     notifier,
		subscription: subscription,
		idempotency:  tracker,
		logg:         logg,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if c.handle(ctx, msg.ID, msg.Attributes["event_type"], msg.Data) {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

// handle processes one message body and reports whether it should be redelivered.
func (c *Consumer) handle(ctx context.Context, messageID, eventType string, body []byte) (retry bool) {
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": messageID,
		"event_type": eventType,
	})

	if eventType != string(enums.EventListingCreated) {
		c.logg.Info(logCtx, "skipping non-listing event")
		return false
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		return false
	}
	if _, err := uuid.Parse(envelope.EventID); err != nil {
		c.logg.Error(logCtx, "invalid event id", err)
		return false
	}

	already, err := c.idempotency.CheckAndMarkProcessed(ctx, listingNotificationConsumer, envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return true
	}
	if already {
		c.logg.Info(logCtx, "event already processed")
		return false
	}

	var payload outbox.ListingCreatedEvent
	if err := json.Unmarshal(envelope.Data, &payload); err != nil {
		c.logg.Error(logCtx, "failed to parse payload", err)
		return false
	}

	logCtx = c.logg.WithFields(logCtx, map[string]any{
		"listing_id": payload.ListingID.String(),
		"store_id":   payload.StoreID.String(),
	})

	_, err = c.notifier.FanOutNewListing(logCtx, FanOutInput{
		ListingID:       payload.ListingID,
		StoreID:         payload.StoreID,
		OwnerID:         payload.UserID,
		Slug:            payload.Slug,
		Title:           payload.Title,
		Image:           payload.Image,
		ExtraRecipients: payload.Recipients,
	})
	if err != nil {
		c.logg.Error(logCtx, "listing fan-out failed", err)
		_ = c.idempotency.Release(ctx, listingNotificationConsumer, envelope.EventID)
		return true
	}
	return false
}
