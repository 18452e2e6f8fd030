package domain

import (
	"fmt"
	"strings"
	"time"
)

// CampaignStatus represents the lifecycle state of a campaign.
type CampaignStatus string

const (
	CampaignStatusDraft     CampaignStatus = "DRAFT"
	CampaignStatusScheduled CampaignStatus = "SCHEDULED"
	CampaignStatusActive    CampaignStatus = "ACTIVE"
	CampaignStatusPaused    CampaignStatus = "PAUSED"
	CampaignStatusCompleted CampaignStatus = "COMPLETED"
	CampaignStatusCancelled CampaignStatus = "CANCELLED"
)

func (s CampaignStatus) String() string { return string(s) }

func (s CampaignStatus) IsValid() bool {
	switch s {
	case CampaignStatusDraft, CampaignStatusScheduled, CampaignStatusActive,
		CampaignStatusPaused, CampaignStatusCompleted, CampaignStatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether the campaign accepts no further transitions.
func (s CampaignStatus) IsTerminal() bool {
	return s == CampaignStatusCompleted || s == CampaignStatusCancelled
}

// CanTransitionTo reports whether the campaign state machine allows moving to next.
// Every non-terminal state may be cancelled directly.
func (s CampaignStatus) CanTransitionTo(next CampaignStatus) bool {
	if !s.IsValid() || !next.IsValid() {
		return false
	}

	switch next {
	case CampaignStatusCancelled:
		return !s.IsTerminal()
	case CampaignStatusScheduled:
		return s == CampaignStatusDraft
	case CampaignStatusActive:
		return s == CampaignStatusDraft || s == CampaignStatusScheduled || s == CampaignStatusPaused
	case CampaignStatusPaused:
		return s == CampaignStatusActive
	case CampaignStatusCompleted:
		return s == CampaignStatusActive
	}
	return false
}

func ParseCampaignStatusFromString(s string) (CampaignStatus, error) {
	st := CampaignStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid campaign status %q", ErrValidation, s)
	}
	return st, nil
}

// Channel represents the delivery channel of a campaign and of its messages.
type Channel string

const (
	ChannelWhatsApp Channel = "WHATSAPP"
	ChannelEmail    Channel = "EMAIL"
	ChannelBoth     Channel = "BOTH"
)

func (c Channel) String() string { return string(c) }

func (c Channel) IsValid() bool {
	switch c {
	case ChannelWhatsApp, ChannelEmail, ChannelBoth:
		return true
	}
	return false
}

func ParseChannelFromString(s string) (Channel, error) {
	ch := Channel(strings.ToUpper(strings.TrimSpace(s)))
	if !ch.IsValid() {
		return "", fmt.Errorf("%w: invalid channel %q", ErrValidation, s)
	}
	return ch, nil
}

// Campaign is a configured bulk-outreach unit. Its status is mutated only by
// the campaign service; messages and guests reference it by id.
type Campaign struct {
	ID              string
	OrgID           string
	Name            string
	Channel         Channel
	MessageTemplate string
	AIEnabled       bool
	DelayHours      int
	Status          CampaignStatus
	ScheduledAt     *time.Time
	StartedAt       *time.Time
	CompletedAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (c *Campaign) Validate() error {
	if strings.TrimSpace(c.OrgID) == "" {
		return fmt.Errorf("%w: org id is required", ErrValidation)
	}
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	if !c.Channel.IsValid() {
		return fmt.Errorf("%w: invalid channel %q", ErrValidation, c.Channel)
	}
	if !c.Status.IsValid() {
		return fmt.Errorf("%w: invalid campaign status %q", ErrValidation, c.Status)
	}
	if c.DelayHours < 0 {
		return fmt.Errorf("%w: delay hours must be >= 0", ErrValidation)
	}
	return nil
}
