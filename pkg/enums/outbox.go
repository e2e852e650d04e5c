package enums

import "fmt"

// OutboxEventType names a domain event written to outbox_events.
type OutboxEventType string

const (
	EventListingCreated OutboxEventType = "listing.created"
)

// OutboxAggregateType names the entity a domain event is about.
type OutboxAggregateType string

const (
	AggregateListing OutboxAggregateType = "listing"
)

var validOutboxEventTypes = []OutboxEventType{
	EventListingCreated,
}

func (e OutboxEventType) String() string {
	return string(e)
}

func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid outbox event type %q", value)
}
