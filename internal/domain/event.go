package domain

import "time"

// EventType labels an append-only message event.
type EventType string

const (
	EventQueued         EventType = "queued"
	EventSent           EventType = "sent"
	EventDelivered      EventType = "delivered"
	EventRead           EventType = "read"
	EventFailed         EventType = "failed"
	EventCancelled      EventType = "cancelled"
	EventRetryScheduled EventType = "retry_scheduled"
)

func (t EventType) String() string { return string(t) }

func (t EventType) IsValid() bool {
	switch t {
	case EventQueued, EventSent, EventDelivered, EventRead,
		EventFailed, EventCancelled, EventRetryScheduled:
		return true
	}
	return false
}

// MessageEvent is one append-only audit record for a message transition.
// Rows are written once and never updated or deleted; they provide a trail
// independent of the message's mutable status field.
type MessageEvent struct {
	ID        string
	MessageID string
	Type      EventType
	Payload   string
	CreatedAt time.Time
}
