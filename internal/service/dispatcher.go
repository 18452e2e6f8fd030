package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Sujay0610/ReviewReap/internal/domain"
	"github.com/Sujay0610/ReviewReap/internal/eventbus"
	"github.com/Sujay0610/ReviewReap/internal/observability"
	"github.com/Sujay0610/ReviewReap/internal/provider"
	"github.com/Sujay0610/ReviewReap/internal/ratelimit"
	"github.com/Sujay0610/ReviewReap/internal/repository"
)

const (
	defaultPollInterval = 10 * time.Second
	defaultBatchSize    = 10
)

// CampaignCompleter closes out campaigns the dispatcher has drained.
type CampaignCompleter interface {
	CompleteIfDrained(ctx context.Context, orgID, campaignID string) (bool, error)
}

// DispatcherParams collects the dispatcher's collaborators and tunables.
type DispatcherParams struct {
	Messages  repository.MessageRepository
	Campaigns repository.CampaignRepository
	Guests    repository.GuestRepository
	Events    repository.EventRepository
	WhatsApp  provider.Sender
	Email     provider.Sender
	Limiter   ratelimit.Limiter
	Completer CampaignCompleter
	Publisher eventbus.Publisher
	Logger    *zap.Logger

	// PollInterval is the wait between ticks; zero means 10s.
	PollInterval time.Duration
	// BatchSize caps the messages drained per tick; zero means 10.
	BatchSize int
	// InterSendDelay pauses between provider calls, independent of the rate
	// limiter; zero disables it.
	InterSendDelay time.Duration
}

// Dispatcher drains QUEUED messages on a polling loop and hands them to the
// channel providers. Start and Stop are idempotent and safe for concurrent
// callers; a single message's failure never terminates the loop.
type Dispatcher struct {
	messages  repository.MessageRepository
	campaigns repository.CampaignRepository
	guests    repository.GuestRepository
	events    repository.EventRepository
	whatsapp  provider.Sender
	email     provider.Sender
	limiter   ratelimit.Limiter
	completer CampaignCompleter
	publisher eventbus.Publisher
	retry     *RetryPolicy
	logger    *zap.Logger
	metrics   *observability.Metrics

	pollInterval   time.Duration
	batchSize      int
	interSendDelay time.Duration

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// DispatcherStatus is the operational snapshot served by the status endpoint.
type DispatcherStatus struct {
	Running             bool
	RateLimiterInWindow int
	RateLimiterMax      int
}

func NewDispatcher(params DispatcherParams) (*Dispatcher, error) {
	if params.Messages == nil || params.Campaigns == nil || params.Guests == nil || params.Events == nil {
		return nil, fmt.Errorf("dispatcher repositories are required")
	}
	if params.WhatsApp == nil || params.Email == nil {
		return nil, fmt.Errorf("dispatcher senders are required")
	}
	if params.Limiter == nil {
		return nil, fmt.Errorf("dispatcher rate limiter is required")
	}
	if params.Completer == nil {
		return nil, fmt.Errorf("dispatcher campaign completer is required")
	}
	if params.Publisher == nil {
		params.Publisher = eventbus.NewNopPublisher()
	}
	if params.Logger == nil {
		params.Logger = zap.NewNop()
	}
	if params.PollInterval <= 0 {
		params.PollInterval = defaultPollInterval
	}
	if params.BatchSize <= 0 {
		params.BatchSize = defaultBatchSize
	}
	if params.InterSendDelay < 0 {
		params.InterSendDelay = 0
	}

	return &Dispatcher{
		messages:       params.Messages,
		campaigns:      params.Campaigns,
		guests:         params.Guests,
		events:         params.Events,
		whatsapp:       params.WhatsApp,
		email:          params.Email,
		limiter:        params.Limiter,
		completer:      params.Completer,
		publisher:      params.Publisher,
		retry:          NewRetryPolicy(),
		logger:         params.Logger,
		pollInterval:   params.PollInterval,
		batchSize:      params.BatchSize,
		interSendDelay: params.InterSendDelay,
		now:            time.Now,
		sleep:          sleepWithContext,
	}, nil
}

func (d *Dispatcher) SetMetrics(metrics *observability.Metrics) {
	if d == nil {
		return
	}
	d.metrics = metrics
}

// Start launches the polling loop. Starting a running dispatcher is a no-op.
// The loop does not inherit the caller's context: an HTTP-triggered start
// must outlive its request, so only Stop ends the loop.
func (d *Dispatcher) Start(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return nil
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	d.running = true
	d.cancel = cancel
	d.done = done
	d.metrics.SetDispatcherRunning(true)

	go func() {
		defer close(done)
		d.run(loopCtx)
	}()

	d.logger.Info("dispatcher started",
		zap.Duration("pollInterval", d.pollInterval),
		zap.Int("batchSize", d.batchSize),
	)
	return nil
}

// Stop cancels the loop and waits for the in-flight tick to finish. Stopping
// a stopped dispatcher is a no-op.
func (d *Dispatcher) Stop(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	cancel := d.cancel
	done := d.done
	d.running = false
	d.cancel = nil
	d.done = nil
	d.mu.Unlock()

	cancel()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	d.metrics.SetDispatcherRunning(false)
	d.logger.Info("dispatcher stopped")
	return nil
}

func (d *Dispatcher) Status(ctx context.Context) (DispatcherStatus, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	d.mu.Lock()
	running := d.running
	d.mu.Unlock()

	inWindow, err := d.limiter.InWindow(ctx)
	if err != nil {
		return DispatcherStatus{}, fmt.Errorf("failed to read rate limiter window: %w", err)
	}

	return DispatcherStatus{
		Running:             running,
		RateLimiterInWindow: inWindow,
		RateLimiterMax:      d.limiter.Limit(),
	}, nil
}

func (d *Dispatcher) run(ctx context.Context) {
	// Run an initial tick so due messages do not wait for the first ticker
	// edge.
	if err := d.tick(ctx); err != nil && ctx.Err() == nil {
		d.logger.Error("dispatch tick failed", zap.Error(err))
	}

	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.tick(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				d.logger.Error("dispatch tick failed", zap.Error(err))
			}
		}
	}
}

// tick drains one batch of due messages. Per-message errors are logged and
// isolated; only the batch query itself is a tick error.
func (d *Dispatcher) tick(ctx context.Context) error {
	due, err := d.messages.ListDue(ctx, d.now().UTC(), d.batchSize)
	if err != nil {
		return fmt.Errorf("failed to list due messages: %w", err)
	}
	if len(due) == 0 {
		return nil
	}

	// Campaigns resolve once per tick; a batch is usually dominated by one.
	campaignCache := make(map[string]*domain.Campaign, 1)
	activeSeen := make(map[string]string, 1)

	for i := range due {
		if ctx.Err() != nil {
			return nil
		}
		msg := due[i]

		campaign, err := d.campaignFor(ctx, campaignCache, msg.OrgID, msg.CampaignID)
		if err != nil {
			d.logger.Error("failed to resolve campaign",
				zap.String("messageId", msg.ID),
				zap.String("campaignId", msg.CampaignID),
				zap.Error(err),
			)
			continue
		}
		if campaign == nil || campaign.Status != domain.CampaignStatusActive {
			// Paused, cancelled or missing campaigns leave their messages
			// untouched; they become due again when the campaign resumes.
			continue
		}
		activeSeen[campaign.ID] = campaign.OrgID

		if err := d.dispatch(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			d.logger.Error("failed to dispatch message",
				zap.String("messageId", msg.ID),
				zap.Error(err),
			)
		}

		if d.interSendDelay > 0 {
			if err := d.sleep(ctx, d.interSendDelay); err != nil {
				return nil
			}
		}
	}

	for campaignID, orgID := range activeSeen {
		if _, err := d.completer.CompleteIfDrained(ctx, orgID, campaignID); err != nil && ctx.Err() == nil {
			d.logger.Error("failed to check campaign completion",
				zap.String("campaignId", campaignID),
				zap.Error(err),
			)
		}
	}

	return nil
}

func (d *Dispatcher) campaignFor(ctx context.Context, cache map[string]*domain.Campaign, orgID, campaignID string) (*domain.Campaign, error) {
	if campaign, ok := cache[campaignID]; ok {
		return campaign, nil
	}

	campaign, err := d.campaigns.GetByID(ctx, orgID, campaignID)
	if errors.Is(err, domain.ErrNotFound) {
		cache[campaignID] = nil
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	cache[campaignID] = campaign
	return campaign, nil
}

// dispatch sends one QUEUED message through its channel's providers and
// persists the outcome.
func (d *Dispatcher) dispatch(ctx context.Context, msg domain.Message) error {
	channelName := strings.ToLower(msg.Channel.String())

	guest, err := d.guests.GetByID(ctx, msg.OrgID, msg.GuestID)
	if errors.Is(err, domain.ErrNotFound) {
		// Without a guest there is no destination; the message can never send.
		return d.failMessage(ctx, msg, channelName, "guest not found", "guest_not_found")
	}
	if err != nil {
		return fmt.Errorf("failed to resolve guest %s: %w", msg.GuestID, err)
	}

	senders, err := d.sendersFor(msg.Channel)
	if err != nil {
		return d.failMessage(ctx, msg, channelName, err.Error(), "invalid_channel")
	}

	if err := d.limiter.Acquire(ctx); err != nil {
		return fmt.Errorf("rate limiter acquire failed: %w", err)
	}

	sendStart := d.now()
	providerMsgID, sendErr := d.sendAll(ctx, senders, msg, *guest)
	d.metrics.ObserveMessageSendDuration(channelName, d.now().Sub(sendStart))

	if sendErr != nil {
		return d.handleSendFailure(ctx, msg, channelName, sendErr)
	}

	now := d.now().UTC()
	err = d.messages.MarkSent(ctx, msg.OrgID, msg.ID, providerMsgID, now)
	if errors.Is(err, domain.ErrConflict) {
		// The message left QUEUED while we were sending (campaign stopped).
		d.logger.Warn("message state changed during send",
			zap.String("messageId", msg.ID),
		)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to mark message sent: %w", err)
	}

	d.appendEvent(ctx, msg.ID, domain.EventSent, map[string]any{
		"providerMessageId": providerMsgID,
		"channel":           channelName,
	})
	d.metrics.IncMessageSent(channelName)
	publishStatusUpdate(ctx, d.publisher, d.logger, &msg, domain.MessageStatusSent, providerMsgID, now)

	d.logger.Info("message sent",
		zap.String("messageId", msg.ID),
		zap.String("campaignId", msg.CampaignID),
		zap.String("channel", channelName),
		zap.String("providerMessageId", providerMsgID),
	)
	return nil
}

func (d *Dispatcher) sendersFor(channel domain.Channel) ([]provider.Sender, error) {
	switch channel {
	case domain.ChannelWhatsApp:
		return []provider.Sender{d.whatsapp}, nil
	case domain.ChannelEmail:
		return []provider.Sender{d.email}, nil
	case domain.ChannelBoth:
		return []provider.Sender{d.whatsapp, d.email}, nil
	}
	return nil, fmt.Errorf("no sender for channel %q", channel)
}

// sendAll sends through every sender for the channel. BOTH requires each
// send to succeed; the stored provider id is the last non-empty one.
func (d *Dispatcher) sendAll(ctx context.Context, senders []provider.Sender, msg domain.Message, guest domain.Guest) (string, error) {
	var providerMsgID string
	for _, sender := range senders {
		result, err := sender.Send(ctx, msg, guest)
		if err != nil {
			return "", err
		}
		if result != nil && strings.TrimSpace(result.ProviderMessageID) != "" {
			providerMsgID = result.ProviderMessageID
		}
	}
	return providerMsgID, nil
}

// handleSendFailure routes a failed send to the retry policy or to terminal
// FAILED, depending on the error class and the retry budget.
func (d *Dispatcher) handleSendFailure(ctx context.Context, msg domain.Message, channelName string, sendErr error) error {
	cause := sendErr.Error()

	if !provider.IsTransient(sendErr) {
		return d.failMessage(ctx, msg, channelName, cause, "permanent_error")
	}
	if !d.retry.ShouldRetry(msg.RetryCount) {
		return d.failMessage(ctx, msg, channelName, "max retries exceeded", "retry_exhausted")
	}

	retryAt := d.now().UTC().Add(d.retry.Delay(msg.RetryCount))
	err := d.messages.Reschedule(ctx, msg.OrgID, msg.ID, msg.RetryCount, retryAt, cause)
	if errors.Is(err, domain.ErrConflict) {
		// Someone else already advanced the message; nothing to redo.
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to reschedule message: %w", err)
	}

	d.appendEvent(ctx, msg.ID, domain.EventRetryScheduled, map[string]any{
		"retryCount": msg.RetryCount + 1,
		"retryAt":    retryAt,
		"cause":      cause,
	})
	d.metrics.IncRetryScheduled(channelName)

	d.logger.Info("message retry scheduled",
		zap.String("messageId", msg.ID),
		zap.Int("retryCount", msg.RetryCount+1),
		zap.Time("retryAt", retryAt),
		zap.String("cause", cause),
	)
	return nil
}

func (d *Dispatcher) failMessage(ctx context.Context, msg domain.Message, channelName, cause, reason string) error {
	now := d.now().UTC()
	err := d.messages.MarkFailed(ctx, msg.OrgID, msg.ID,
		[]domain.MessageStatus{domain.MessageStatusQueued}, now, cause)
	if errors.Is(err, domain.ErrConflict) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to mark message failed: %w", err)
	}

	d.appendEvent(ctx, msg.ID, domain.EventFailed, map[string]any{
		"cause": cause,
	})
	d.metrics.IncMessageFailed(channelName, reason)
	publishStatusUpdate(ctx, d.publisher, d.logger, &msg, domain.MessageStatusFailed, "", now)

	d.logger.Warn("message failed",
		zap.String("messageId", msg.ID),
		zap.String("campaignId", msg.CampaignID),
		zap.String("cause", cause),
	)
	return nil
}

func (d *Dispatcher) appendEvent(ctx context.Context, messageID string, eventType domain.EventType, payload map[string]any) {
	event := &domain.MessageEvent{
		ID:        uuid.NewString(),
		MessageID: messageID,
		Type:      eventType,
		Payload:   marshalEventPayload(payload),
		CreatedAt: d.now().UTC(),
	}
	if err := d.events.Append(ctx, event); err != nil {
		d.logger.Error("failed to append message event",
			zap.String("messageId", messageID),
			zap.String("event", eventType.String()),
			zap.Error(err),
		)
	}
}

func marshalEventPayload(payload map[string]any) string {
	if len(payload) == 0 {
		return ""
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return ""
	}
	return string(raw)
}

// publishStatusUpdate emits a status change on the event bus. Bus failures
// are logged and never affect the dispatch outcome.
func publishStatusUpdate(
	ctx context.Context,
	publisher eventbus.Publisher,
	logger *zap.Logger,
	msg *domain.Message,
	status domain.MessageStatus,
	providerMsgID string,
	at time.Time,
) {
	if publisher == nil {
		return
	}

	update := eventbus.StatusUpdate{
		MessageID:         msg.ID,
		CampaignID:        msg.CampaignID,
		OrgID:             msg.OrgID,
		Status:            status,
		ProviderMessageID: providerMsgID,
		OccurredAt:        at,
	}
	if err := publisher.Publish(ctx, update); err != nil {
		logger.Warn("failed to publish status update",
			zap.String("messageId", msg.ID),
			zap.String("status", status.String()),
			zap.Error(err),
		)
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
