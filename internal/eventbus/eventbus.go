package eventbus

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Sujay0610/ReviewReap/internal/domain"
)

// statusExchangeName is the fanout exchange carrying message status updates
// for downstream consumers (analytics, dashboards).
const statusExchangeName = "outreach.status"

// StatusUpdate is the broker payload emitted whenever a message changes
// delivery status.
type StatusUpdate struct {
	MessageID         string               `json:"messageId"`
	CampaignID        string               `json:"campaignId"`
	OrgID             string               `json:"orgId"`
	Status            domain.MessageStatus `json:"status"`
	ProviderMessageID string               `json:"providerMessageId,omitempty"`
	OccurredAt        time.Time            `json:"occurredAt"`
}

func (u StatusUpdate) Validate() error {
	if strings.TrimSpace(u.MessageID) == "" {
		return fmt.Errorf("messageId is required")
	}
	if !u.Status.IsValid() {
		return fmt.Errorf("invalid status %q", u.Status)
	}
	return nil
}

// Publisher publishes message status updates to the event bus.
type Publisher interface {
	Publish(ctx context.Context, update StatusUpdate) error
	Close() error
}

// NopPublisher drops every update. It stands in when no broker is configured
// so callers never need a nil check.
type NopPublisher struct{}

func NewNopPublisher() *NopPublisher { return &NopPublisher{} }

func (p *NopPublisher) Publish(context.Context, StatusUpdate) error { return nil }

func (p *NopPublisher) Close() error { return nil }
