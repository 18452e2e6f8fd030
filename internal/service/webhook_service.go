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
	"github.com/Sujay0610/ReviewReap/internal/eventbus"
	"github.com/Sujay0610/ReviewReap/internal/observability"
	"github.com/Sujay0610/ReviewReap/internal/provider"
	"github.com/Sujay0610/ReviewReap/internal/repository"
)

// WebhookReconciler folds provider delivery callbacks into message state.
// Every transition is a conditional update, so duplicate and out-of-order
// webhooks are no-ops rather than regressions.
type WebhookReconciler struct {
	messages  repository.MessageRepository
	events    repository.EventRepository
	publisher eventbus.Publisher
	logger    *zap.Logger
	metrics   *observability.Metrics
	now       func() time.Time
}

func NewWebhookReconciler(
	messages repository.MessageRepository,
	events repository.EventRepository,
	publisher eventbus.Publisher,
	logger *zap.Logger,
) (*WebhookReconciler, error) {
	if publisher == nil {
		publisher = eventbus.NewNopPublisher()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &WebhookReconciler{
		messages:  messages,
		events:    events,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}, nil
}

func (r *WebhookReconciler) SetMetrics(metrics *observability.Metrics) {
	if r == nil {
		return
	}
	r.metrics = metrics
}

// Apply folds one provider status event into the owning message. Webhooks
// carry no org, so the lookup is by provider message id alone; all follow-up
// writes are scoped by the message's own org. Events for messages this engine
// never sent are dropped: providers also report traffic from other sources.
func (r *WebhookReconciler) Apply(ctx context.Context, event provider.StatusEvent) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(event.ProviderMessageID) == "" {
		return fmt.Errorf("%w: provider message id is required", domain.ErrValidation)
	}

	msg, err := r.messages.GetByProviderMessageID(ctx, event.ProviderMessageID)
	if errors.Is(err, domain.ErrNotFound) {
		r.logger.Warn("webhook for unknown message dropped",
			zap.String("provider", event.Provider),
			zap.String("providerMessageId", event.ProviderMessageID),
		)
		r.metrics.IncWebhookOrphan(event.Provider)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to look up message by provider id: %w", err)
	}

	at := event.OccurredAt
	if at.IsZero() {
		at = r.now().UTC()
	}

	var status domain.MessageStatus
	var eventType domain.EventType
	switch event.Kind {
	case provider.EventKindDelivered:
		err = r.messages.MarkDelivered(ctx, msg.OrgID, msg.ID, at)
		status, eventType = domain.MessageStatusDelivered, domain.EventDelivered
	case provider.EventKindRead:
		err = r.messages.MarkRead(ctx, msg.OrgID, msg.ID, at)
		status, eventType = domain.MessageStatusRead, domain.EventRead
	case provider.EventKindFailed:
		err = r.messages.MarkFailed(ctx, msg.OrgID, msg.ID,
			[]domain.MessageStatus{domain.MessageStatusSent, domain.MessageStatusDelivered},
			at, failureDetail(event))
		status, eventType = domain.MessageStatusFailed, domain.EventFailed
	default:
		// "sent" is recorded at dispatch time; anything else is a provider
		// status we do not track.
		r.logger.Debug("webhook event ignored",
			zap.String("provider", event.Provider),
			zap.String("kind", string(event.Kind)),
		)
		return nil
	}

	if errors.Is(err, domain.ErrConflict) {
		// Already applied, or the message moved past this state. The first
		// write won.
		r.logger.Debug("webhook event already applied",
			zap.String("messageId", msg.ID),
			zap.String("kind", string(event.Kind)),
		)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to apply %s webhook: %w", event.Kind, err)
	}

	r.appendEvent(ctx, msg.ID, eventType, map[string]any{
		"provider":          event.Provider,
		"providerMessageId": event.ProviderMessageID,
		"kind":              string(event.Kind),
		"recipient":         event.Recipient,
	})
	r.metrics.IncWebhookEvent(event.Provider, string(event.Kind))
	publishStatusUpdate(ctx, r.publisher, r.logger, msg, status, event.ProviderMessageID, at)

	r.logger.Info("webhook event applied",
		zap.String("messageId", msg.ID),
		zap.String("provider", event.Provider),
		zap.String("kind", string(event.Kind)),
	)
	return nil
}

func (r *WebhookReconciler) appendEvent(ctx context.Context, messageID string, eventType domain.EventType, payload map[string]any) {
	event := &domain.MessageEvent{
		ID:        uuid.NewString(),
		MessageID: messageID,
		Type:      eventType,
		Payload:   marshalEventPayload(payload),
		CreatedAt: r.now().UTC(),
	}
	if err := r.events.Append(ctx, event); err != nil {
		r.logger.Error("failed to append message event",
			zap.String("messageId", messageID),
			zap.String("event", eventType.String()),
			zap.Error(err),
		)
	}
}

func failureDetail(event provider.StatusEvent) string {
	if detail := strings.TrimSpace(event.Detail); detail != "" {
		return detail
	}
	return fmt.Sprintf("%s reported delivery failure", event.Provider)
}
