package domain

import (
	"errors"
	"testing"
)

func TestParseCampaignStatusFromString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    CampaignStatus
		wantErr bool
	}{
		{name: "valid uppercase", input: "ACTIVE", want: CampaignStatusActive},
		{name: "valid lowercase with spaces", input: " paused ", want: CampaignStatusPaused},
		{name: "invalid", input: "running", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseCampaignStatusFromString(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrValidation) {
					t.Fatalf("ParseCampaignStatusFromString() error = %v, want ErrValidation", err)
				}
				return
			}

			if err != nil {
				t.Fatalf("ParseCampaignStatusFromString() unexpected error = %v", err)
			}
			if got != tt.want {
				t.Fatalf("ParseCampaignStatusFromString() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestParseChannelFromString(t *testing.T) {
	t.Parallel()

	got, err := ParseChannelFromString(" whatsapp ")
	if err != nil {
		t.Fatalf("ParseChannelFromString() unexpected error = %v", err)
	}
	if got != ChannelWhatsApp {
		t.Fatalf("ParseChannelFromString() = %s, want %s", got, ChannelWhatsApp)
	}

	_, err = ParseChannelFromString("fax")
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("ParseChannelFromString() error = %v, want ErrValidation", err)
	}
}

func TestCampaignStatusCanTransitionTo(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		from CampaignStatus
		to   CampaignStatus
		want bool
	}{
		{name: "draft to scheduled", from: CampaignStatusDraft, to: CampaignStatusScheduled, want: true},
		{name: "draft to active", from: CampaignStatusDraft, to: CampaignStatusActive, want: true},
		{name: "scheduled to active", from: CampaignStatusScheduled, to: CampaignStatusActive, want: true},
		{name: "active to paused", from: CampaignStatusActive, to: CampaignStatusPaused, want: true},
		{name: "paused to active", from: CampaignStatusPaused, to: CampaignStatusActive, want: true},
		{name: "active to completed", from: CampaignStatusActive, to: CampaignStatusCompleted, want: true},
		{name: "draft to cancelled", from: CampaignStatusDraft, to: CampaignStatusCancelled, want: true},
		{name: "paused to cancelled", from: CampaignStatusPaused, to: CampaignStatusCancelled, want: true},
		{name: "active to draft", from: CampaignStatusActive, to: CampaignStatusDraft, want: false},
		{name: "completed to cancelled", from: CampaignStatusCompleted, to: CampaignStatusCancelled, want: false},
		{name: "cancelled to active", from: CampaignStatusCancelled, to: CampaignStatusActive, want: false},
		{name: "paused to completed", from: CampaignStatusPaused, to: CampaignStatusCompleted, want: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
				t.Fatalf("%s -> %s = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestCampaignValidate(t *testing.T) {
	t.Parallel()

	valid := Campaign{
		OrgID:           "org-1",
		Name:            "post-stay review",
		Channel:         ChannelBoth,
		MessageTemplate: "thanks for staying",
		DelayHours:      24,
		Status:          CampaignStatusDraft,
	}

	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate() unexpected error = %v", err)
	}

	missingOrg := valid
	missingOrg.OrgID = " "
	if err := missingOrg.Validate(); !errors.Is(err, ErrValidation) {
		t.Fatalf("Validate() error = %v, want ErrValidation", err)
	}

	badChannel := valid
	badChannel.Channel = Channel("SMS")
	if err := badChannel.Validate(); !errors.Is(err, ErrValidation) {
		t.Fatalf("Validate() error = %v, want ErrValidation", err)
	}

	negativeDelay := valid
	negativeDelay.DelayHours = -1
	if err := negativeDelay.Validate(); !errors.Is(err, ErrValidation) {
		t.Fatalf("Validate() error = %v, want ErrValidation", err)
	}
}
