package models

import "time"

// EventType names lifecycle events published to subscribers.
type EventType string

const (
	EventCollectionRequested EventType = "collection.requested"
	EventCollectionAccepted  EventType = "collection.accepted"
	EventCollectionCompleted EventType = "collection.completed"
	EventCollectionVerified  EventType = "collection.verified"
	EventCollectionRejected  EventType = "collection.rejected"
	EventCollectionCancelled EventType = "collection.cancelled"
	EventWasteDeposited      EventType = "deposit.submitted"
	EventWasteVerified       EventType = "deposit.verified"
	EventRewardClaimed       EventType = "deposit.claimed"
	EventRatesUpdated        EventType = "rates.updated"
)

// LifecycleEvent is the envelope published for every committed transition.
type LifecycleEvent struct {
	ID         string                 `json:"id"`
	Type       EventType              `json:"type"`
	EntityID   int64                  `json:"entityId,omitempty"`
	Actor      string                 `json:"actor,omitempty"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
	OccurredAt time.Time              `json:"occurredAt"`
}
