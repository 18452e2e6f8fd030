package provider

import (
	"context"
	"time"

	"github.com/Sujay0610/ReviewReap/internal/domain"
)

const defaultSendTimeout = 10 * time.Second

// Sender is the outbound message delivery port. One implementation exists
// per channel; the dispatcher picks by the message's channel.
type Sender interface {
	Channel() domain.Channel
	Send(ctx context.Context, msg domain.Message, guest domain.Guest) (*SendResult, error)
}

// SendResult stores provider call metadata for audit and persistence.
type SendResult struct {
	ProviderMessageID string
	StatusCode        int
	Body              string
}

// EventKind classifies a provider webhook delivery callback.
type EventKind string

const (
	EventKindSent      EventKind = "sent"
	EventKindDelivered EventKind = "delivered"
	EventKindRead      EventKind = "read"
	EventKindFailed    EventKind = "failed"
	EventKindUnknown   EventKind = "unknown"
)

// StatusEvent is one provider-reported delivery status, normalized across
// providers so the reconciler does not care which webhook produced it.
// OccurredAt is zero when the provider did not report a timestamp.
type StatusEvent struct {
	Provider          string
	ProviderMessageID string
	Kind              EventKind
	Recipient         string
	Detail            string
	OccurredAt        time.Time
}
