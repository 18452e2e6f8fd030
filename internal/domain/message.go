package domain

import (
	"fmt"
	"strings"
	"time"
)

// MessageStatus represents the delivery lifecycle state of a message.
type MessageStatus string

const (
	MessageStatusPending   MessageStatus = "PENDING"
	MessageStatusQueued    MessageStatus = "QUEUED"
	MessageStatusSent      MessageStatus = "SENT"
	MessageStatusDelivered MessageStatus = "DELIVERED"
	MessageStatusRead      MessageStatus = "READ"
	MessageStatusFailed    MessageStatus = "FAILED"
	MessageStatusCancelled MessageStatus = "CANCELLED"
)

func (s MessageStatus) String() string { return string(s) }

func (s MessageStatus) IsValid() bool {
	switch s {
	case MessageStatusPending, MessageStatusQueued, MessageStatusSent,
		MessageStatusDelivered, MessageStatusRead, MessageStatusFailed, MessageStatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether the message accepts no further transitions.
// A FAILED or CANCELLED message never changes status again.
func (s MessageStatus) IsTerminal() bool {
	return s == MessageStatusFailed || s == MessageStatusCancelled
}

// CanTransitionTo encodes the forward-only message lifecycle. The only
// sanctioned loop is QUEUED -> QUEUED (a retry reschedule, which increments
// retry_count rather than regressing state).
func (s MessageStatus) CanTransitionTo(next MessageStatus) bool {
	if !s.IsValid() || !next.IsValid() {
		return false
	}

	switch s {
	case MessageStatusPending:
		return next == MessageStatusQueued || next == MessageStatusCancelled
	case MessageStatusQueued:
		return next == MessageStatusQueued || next == MessageStatusSent ||
			next == MessageStatusFailed || next == MessageStatusCancelled
	case MessageStatusSent:
		return next == MessageStatusDelivered || next == MessageStatusRead || next == MessageStatusFailed
	case MessageStatusDelivered:
		return next == MessageStatusRead || next == MessageStatusFailed
	}
	return false
}

func ParseMessageStatusFromString(s string) (MessageStatus, error) {
	st := MessageStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid message status %q", ErrValidation, s)
	}
	return st, nil
}

// Message is one per-guest instance of a campaign's content, tracked through
// its own delivery lifecycle. Content is computed once at creation and never
// regenerated. Timestamp fields are each set at most once.
type Message struct {
	ID            string
	OrgID         string
	CampaignID    string
	GuestID       string
	Channel       Channel
	Content       string
	Status        MessageStatus
	ProviderMsgID *string
	ScheduledAt   *time.Time
	RetryCount    int
	SentAt        *time.Time
	DeliveredAt   *time.Time
	ReadAt        *time.Time
	FailedAt      *time.Time
	ErrorMessage  *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (m *Message) Validate() error {
	if strings.TrimSpace(m.OrgID) == "" {
		return fmt.Errorf("%w: org id is required", ErrValidation)
	}
	if strings.TrimSpace(m.CampaignID) == "" {
		return fmt.Errorf("%w: campaign id is required", ErrValidation)
	}
	if strings.TrimSpace(m.GuestID) == "" {
		return fmt.Errorf("%w: guest id is required", ErrValidation)
	}
	if !m.Channel.IsValid() {
		return fmt.Errorf("%w: invalid channel %q", ErrValidation, m.Channel)
	}
	if m.Content == "" {
		return fmt.Errorf("%w: content is required", ErrValidation)
	}
	if !m.Status.IsValid() {
		return fmt.Errorf("%w: invalid message status %q", ErrValidation, m.Status)
	}
	if m.RetryCount < 0 {
		return fmt.Errorf("%w: retry count must be >= 0", ErrValidation)
	}
	return nil
}
