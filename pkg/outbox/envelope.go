package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ActorRef identifies who produced the event.
type ActorRef struct {
	UserID  uuid.UUID  `json:"userId"`
	StoreID *uuid.UUID `json:"storeId,omitempty"`
	Role    string     `json:"role,omitempty"`
}

// PayloadEnvelope is the stable message body stored in outbox_events and
// published verbatim.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// ListingCreatedEvent is the data of a listing.created envelope.
type ListingCreatedEvent struct {
	ListingID  uuid.UUID   `json:"listingId"`
	StoreID    uuid.UUID   `json:"storeId"`
	CategoryID uuid.UUID   `json:"categoryId"`
	UserID     uuid.UUID   `json:"userId"`
	Slug       string      `json:"slug"`
	Title      string      `json:"title"`
	Image      string      `json:"image,omitempty"`
	Recipients []uuid.UUID `json:"recipients,omitempty"`
}
