package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Sujay0610/ReviewReap/internal/domain"
	"github.com/Sujay0610/ReviewReap/internal/repository"
)

// Composer produces the outbound content for one guest at schedule time.
// The default implementation returns the campaign template verbatim;
// personalization (placeholder interpolation, AI rewriting) plugs in here.
type Composer interface {
	Compose(ctx context.Context, campaign domain.Campaign, guest domain.Guest) (string, error)
}

type TemplateComposer struct{}

func NewTemplateComposer() *TemplateComposer { return &TemplateComposer{} }

func (TemplateComposer) Compose(_ context.Context, campaign domain.Campaign, _ domain.Guest) (string, error) {
	return campaign.MessageTemplate, nil
}

// CampaignService drives the campaign state machine. Every operation is
// scoped to the calling organization; a campaign not visible under the org
// yields domain.ErrNotFound and a disallowed transition domain.ErrConflict.
type CampaignService struct {
	campaigns repository.CampaignRepository
	guests    repository.GuestRepository
	messages  repository.MessageRepository
	events    repository.EventRepository
	composer  Composer
	logger    *zap.Logger
	now       func() time.Time
}

type ScheduleResult struct {
	CampaignID      string
	Status          domain.CampaignStatus
	MessagesCreated int
}

type StartResult struct {
	CampaignID     string
	Status         domain.CampaignStatus
	MessagesQueued int
}

type StopResult struct {
	CampaignID        string
	Status            domain.CampaignStatus
	MessagesCancelled int
}

type StatusCount struct {
	Status domain.MessageStatus
	Count  int
}

type CampaignStats struct {
	CampaignID string
	Status     domain.CampaignStatus
	Total      int
	Counts     []StatusCount
}

func NewCampaignService(
	campaigns repository.CampaignRepository,
	guests repository.GuestRepository,
	messages repository.MessageRepository,
	events repository.EventRepository,
	composer Composer,
	logger *zap.Logger,
) (*CampaignService, error) {
	if composer == nil {
		composer = NewTemplateComposer()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &CampaignService{
		campaigns: campaigns,
		guests:    guests,
		messages:  messages,
		events:    events,
		composer:  composer,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// Schedule moves a DRAFT campaign to SCHEDULED and materializes one PENDING
// message per guest attached to the campaign. Content is composed once here
// and never regenerated; the per-guest send time is checkout date plus the
// campaign delay, or null for guests without a checkout date.
func (s *CampaignService) Schedule(ctx context.Context, orgID, campaignID string) (*ScheduleResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	orgID, campaignID, err := scopedIDs(orgID, campaignID)
	if err != nil {
		return nil, err
	}

	campaign, err := s.campaigns.GetByID(ctx, orgID, campaignID)
	if err != nil {
		return nil, err
	}

	guests, err := s.guests.ListByCampaign(ctx, orgID, campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to list campaign guests: %w", err)
	}

	// Compose and validate everything before touching the campaign row so a
	// bad template fails the whole operation instead of half of it.
	messages := make([]*domain.Message, 0, len(guests))
	for i := range guests {
		guest := guests[i]

		content, err := s.composer.Compose(ctx, *campaign, guest)
		if err != nil {
			return nil, fmt.Errorf("failed to compose message for guest %s: %w", guest.ID, err)
		}

		msg := &domain.Message{
			ID:          uuid.NewString(),
			OrgID:       orgID,
			CampaignID:  campaign.ID,
			GuestID:     guest.ID,
			Channel:     campaign.Channel,
			Content:     content,
			Status:      domain.MessageStatusPending,
			ScheduledAt: sendTimeFor(&guest, campaign.DelayHours),
		}
		if err := msg.Validate(); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}

	// The conditional DRAFT -> SCHEDULED transition is the idempotency guard:
	// a concurrent second schedule loses here and creates no messages.
	if err := s.campaigns.MarkScheduled(ctx, orgID, campaignID, s.now().UTC()); err != nil {
		return nil, err
	}

	if err := s.messages.CreateBatch(ctx, messages); err != nil {
		return nil, fmt.Errorf("failed to create campaign messages: %w", err)
	}

	s.logger.Info("campaign scheduled",
		zap.String("campaignId", campaign.ID),
		zap.String("orgId", orgID),
		zap.Int("messages", len(messages)),
	)

	return &ScheduleResult{
		CampaignID:      campaign.ID,
		Status:          domain.CampaignStatusScheduled,
		MessagesCreated: len(messages),
	}, nil
}

// Start activates a DRAFT or SCHEDULED campaign and promotes its PENDING
// messages to QUEUED. A second start loses the conditional transition and
// returns domain.ErrConflict without promoting anything twice.
func (s *CampaignService) Start(ctx context.Context, orgID, campaignID string) (*StartResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	orgID, campaignID, err := scopedIDs(orgID, campaignID)
	if err != nil {
		return nil, err
	}

	campaign, err := s.campaigns.GetByID(ctx, orgID, campaignID)
	if err != nil {
		return nil, err
	}

	if err := s.campaigns.MarkStarted(ctx, orgID, campaignID, s.now().UTC()); err != nil {
		return nil, err
	}

	promoted, err := s.messages.PromotePending(ctx, orgID, campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to promote pending messages: %w", err)
	}

	s.appendTransitionEvents(ctx, promoted, domain.EventQueued)

	s.logger.Info("campaign started",
		zap.String("campaignId", campaign.ID),
		zap.String("orgId", orgID),
		zap.Int("queued", len(promoted)),
	)

	return &StartResult{
		CampaignID:     campaign.ID,
		Status:         domain.CampaignStatusActive,
		MessagesQueued: len(promoted),
	}, nil
}

// Stop cancels a campaign in any non-terminal state and cancels its open
// (PENDING or QUEUED) messages. Messages already handed to a provider keep
// their state; in-flight sends are not retracted.
func (s *CampaignService) Stop(ctx context.Context, orgID, campaignID string) (*StopResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	orgID, campaignID, err := scopedIDs(orgID, campaignID)
	if err != nil {
		return nil, err
	}

	campaign, err := s.campaigns.GetByID(ctx, orgID, campaignID)
	if err != nil {
		return nil, err
	}

	if err := s.campaigns.MarkCancelled(ctx, orgID, campaignID, s.now().UTC()); err != nil {
		return nil, err
	}

	cancelled, err := s.messages.CancelOpen(ctx, orgID, campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel open messages: %w", err)
	}

	s.appendTransitionEvents(ctx, cancelled, domain.EventCancelled)

	s.logger.Info("campaign stopped",
		zap.String("campaignId", campaign.ID),
		zap.String("orgId", orgID),
		zap.Int("cancelled", len(cancelled)),
	)

	return &StopResult{
		CampaignID:        campaign.ID,
		Status:            domain.CampaignStatusCancelled,
		MessagesCancelled: len(cancelled),
	}, nil
}

// Pause suspends an ACTIVE campaign. Message rows are untouched; the
// dispatcher skips messages whose campaign is not ACTIVE.
func (s *CampaignService) Pause(ctx context.Context, orgID, campaignID string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	orgID, campaignID, err := scopedIDs(orgID, campaignID)
	if err != nil {
		return err
	}

	if _, err := s.campaigns.GetByID(ctx, orgID, campaignID); err != nil {
		return err
	}
	if err := s.campaigns.MarkPaused(ctx, orgID, campaignID); err != nil {
		return err
	}

	s.logger.Info("campaign paused",
		zap.String("campaignId", campaignID),
		zap.String("orgId", orgID),
	)
	return nil
}

func (s *CampaignService) Resume(ctx context.Context, orgID, campaignID string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	orgID, campaignID, err := scopedIDs(orgID, campaignID)
	if err != nil {
		return err
	}

	if _, err := s.campaigns.GetByID(ctx, orgID, campaignID); err != nil {
		return err
	}
	if err := s.campaigns.MarkResumed(ctx, orgID, campaignID); err != nil {
		return err
	}

	s.logger.Info("campaign resumed",
		zap.String("campaignId", campaignID),
		zap.String("orgId", orgID),
	)
	return nil
}

// Stats returns the campaign status plus its message counts grouped by
// delivery status.
func (s *CampaignService) Stats(ctx context.Context, orgID, campaignID string) (*CampaignStats, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	orgID, campaignID, err := scopedIDs(orgID, campaignID)
	if err != nil {
		return nil, err
	}

	campaign, err := s.campaigns.GetByID(ctx, orgID, campaignID)
	if err != nil {
		return nil, err
	}

	grouped, err := s.messages.CountByStatus(ctx, orgID, campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to count campaign messages: %w", err)
	}

	total := 0
	counts := make([]StatusCount, 0, len(grouped))
	for _, g := range grouped {
		total += g.Count
		counts = append(counts, StatusCount{Status: g.Status, Count: g.Count})
	}

	return &CampaignStats{
		CampaignID: campaign.ID,
		Status:     campaign.Status,
		Total:      total,
		Counts:     counts,
	}, nil
}

// CompleteIfDrained moves an ACTIVE campaign to COMPLETED once it has no
// PENDING or QUEUED messages left. The dispatcher calls this after every
// tick that touched the campaign; a campaign in any other state is left
// alone.
func (s *CampaignService) CompleteIfDrained(ctx context.Context, orgID, campaignID string) (bool, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	orgID, campaignID, err := scopedIDs(orgID, campaignID)
	if err != nil {
		return false, err
	}

	open, err := s.messages.CountOpen(ctx, orgID, campaignID)
	if err != nil {
		return false, fmt.Errorf("failed to count open messages: %w", err)
	}
	if open > 0 {
		return false, nil
	}

	err = s.campaigns.MarkCompleted(ctx, orgID, campaignID, s.now().UTC())
	if errors.Is(err, domain.ErrConflict) {
		// Not ACTIVE anymore (paused, cancelled, already completed).
		return false, nil
	}
	if err != nil {
		return false, err
	}

	s.logger.Info("campaign completed",
		zap.String("campaignId", campaignID),
		zap.String("orgId", orgID),
	)
	return true, nil
}

// ListMessages pages through a campaign's messages, newest first. The
// org+campaign scope on the query is the tenancy guard.
func (s *CampaignService) ListMessages(ctx context.Context, orgID, campaignID string, params repository.MessageListParams) ([]domain.Message, int64, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	orgID, campaignID, err := scopedIDs(orgID, campaignID)
	if err != nil {
		return nil, 0, err
	}
	return s.messages.ListByCampaign(ctx, orgID, campaignID, params)
}

// ListEvents returns a message's audit trail, newest first. Ownership is
// checked through the message lookup.
func (s *CampaignService) ListEvents(ctx context.Context, orgID, messageID string) ([]domain.MessageEvent, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	orgID = strings.TrimSpace(orgID)
	messageID = strings.TrimSpace(messageID)
	if orgID == "" {
		return nil, fmt.Errorf("%w: org id is required", domain.ErrValidation)
	}
	if messageID == "" {
		return nil, fmt.Errorf("%w: message id is required", domain.ErrValidation)
	}

	msg, err := s.messages.GetByID(ctx, orgID, messageID)
	if err != nil {
		return nil, err
	}

	return s.events.ListByMessage(ctx, msg.ID)
}

// appendTransitionEvents records one audit event per message after a bulk
// transition. The transition itself is the source of truth; an append
// failure is logged and does not undo it.
func (s *CampaignService) appendTransitionEvents(ctx context.Context, messageIDs []string, eventType domain.EventType) {
	if len(messageIDs) == 0 {
		return
	}

	now := s.now().UTC()
	events := make([]*domain.MessageEvent, 0, len(messageIDs))
	for _, id := range messageIDs {
		events = append(events, &domain.MessageEvent{
			ID:        uuid.NewString(),
			MessageID: id,
			Type:      eventType,
			CreatedAt: now,
		})
	}

	if err := s.events.AppendBatch(ctx, events); err != nil {
		s.logger.Error("failed to append message events",
			zap.String("event", eventType.String()),
			zap.Int("count", len(events)),
			zap.Error(err),
		)
	}
}

// sendTimeFor computes the earliest send time for a guest: checkout date
// plus the campaign delay. Guests without a checkout date are eligible as
// soon as their message is queued.
func sendTimeFor(guest *domain.Guest, delayHours int) *time.Time {
	if guest.CheckoutDate == nil {
		return nil
	}
	at := guest.CheckoutDate.Add(time.Duration(delayHours) * time.Hour).UTC()
	return &at
}

func scopedIDs(orgID, campaignID string) (string, string, error) {
	orgID = strings.TrimSpace(orgID)
	campaignID = strings.TrimSpace(campaignID)
	if orgID == "" {
		return "", "", fmt.Errorf("%w: org id is required", domain.ErrValidation)
	}
	if campaignID == "" {
		return "", "", fmt.Errorf("%w: campaign id is required", domain.ErrValidation)
	}
	return orgID, campaignID, nil
}
