package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/Sujay0610/ReviewReap/internal/domain"
)

const defaultWhatsAppBaseURL = "https://graph.facebook.com/v18.0"

type whatsAppSendRequest struct {
	MessagingProduct string           `json:"messaging_product"`
	To               string           `json:"to"`
	Type             string           `json:"type"`
	Text             whatsAppSendText `json:"text"`
}

type whatsAppSendText struct {
	Body string `json:"body"`
}

type whatsAppSendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

var _ Sender = (*WhatsAppSender)(nil)

// WhatsAppSender sends text messages through the WhatsApp Cloud API.
// Credentials are swappable at runtime through Configure, so the sender is
// constructed once at startup and configured whenever the operator supplies
// or rotates a token.
type WhatsAppSender struct {
	client  *resty.Client
	baseURL string

	mu            sync.RWMutex
	accessToken   string
	phoneNumberID string
}

func NewWhatsAppSender() (*WhatsAppSender, error) {
	client := resty.New()
	client.SetTimeout(defaultSendTimeout)
	client.SetRetryCount(0)

	return NewWhatsAppSenderWithClient(defaultWhatsAppBaseURL, client)
}

func NewWhatsAppSenderWithClient(baseURL string, client *resty.Client) (*WhatsAppSender, error) {
	trimmedBaseURL := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmedBaseURL == "" {
		return nil, fmt.Errorf("whatsapp base url is required")
	}
	if _, err := url.ParseRequestURI(trimmedBaseURL); err != nil {
		return nil, fmt.Errorf("invalid whatsapp base url: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultSendTimeout)
	}
	client.SetRetryCount(0)

	return &WhatsAppSender{
		client:  client,
		baseURL: trimmedBaseURL,
	}, nil
}

func (p *WhatsAppSender) Channel() domain.Channel {
	return domain.ChannelWhatsApp
}

// Configure sets or rotates the Cloud API credentials.
func (p *WhatsAppSender) Configure(accessToken, phoneNumberID string) error {
	accessToken = strings.TrimSpace(accessToken)
	phoneNumberID = strings.TrimSpace(phoneNumberID)

	if accessToken == "" {
		return fmt.Errorf("%w: access token is required", domain.ErrValidation)
	}
	if phoneNumberID == "" {
		return fmt.Errorf("%w: phone number id is required", domain.ErrValidation)
	}

	p.mu.Lock()
	p.accessToken = accessToken
	p.phoneNumberID = phoneNumberID
	p.mu.Unlock()

	return nil
}

func (p *WhatsAppSender) Configured() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.accessToken != "" && p.phoneNumberID != ""
}

func (p *WhatsAppSender) Send(ctx context.Context, msg domain.Message, guest domain.Guest) (*SendResult, error) {
	if p == nil || p.client == nil {
		return nil, fmt.Errorf("whatsapp sender is not initialized")
	}

	p.mu.RLock()
	accessToken := p.accessToken
	phoneNumberID := p.phoneNumberID
	p.mu.RUnlock()

	if accessToken == "" || phoneNumberID == "" {
		return nil, fmt.Errorf("whatsapp: %w", ErrNotConfigured)
	}
	if !guest.HasPhone() {
		return nil, fmt.Errorf("whatsapp: %w: guest has no phone number", ErrMissingDestination)
	}

	reqBody := whatsAppSendRequest{
		MessagingProduct: "whatsapp",
		To:               strings.TrimSpace(*guest.Phone),
		Type:             "text",
		Text:             whatsAppSendText{Body: msg.Content},
	}

	var result whatsAppSendResponse
	response, err := p.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("Authorization", "Bearer "+accessToken).
		SetBody(reqBody).
		SetResult(&result).
		Post(fmt.Sprintf("%s/%s/messages", p.baseURL, phoneNumberID))
	if err != nil {
		return nil, &ProviderError{
			Message:   "whatsapp request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}
	if response == nil {
		return nil, &ProviderError{
			Message:   "whatsapp returned empty response",
			Transient: true,
		}
	}

	statusCode := response.StatusCode()
	responseBody := strings.TrimSpace(response.String())

	if statusCode < http.StatusOK || statusCode >= http.StatusMultipleChoices {
		return nil, &ProviderError{
			StatusCode: statusCode,
			Message:    providerErrorMessage("whatsapp", statusCode, responseBody),
			Transient:  isTransientHTTPStatus(statusCode),
		}
	}

	if len(result.Messages) == 0 || strings.TrimSpace(result.Messages[0].ID) == "" {
		return nil, &ProviderError{
			StatusCode: statusCode,
			Message:    "whatsapp response is missing a message id",
			Transient:  false,
		}
	}

	return &SendResult{
		ProviderMessageID: result.Messages[0].ID,
		StatusCode:        statusCode,
		Body:              responseBody,
	}, nil
}

type whatsAppWebhookPayload struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Statuses []struct {
					ID          string `json:"id"`
					Status      string `json:"status"`
					Timestamp   string `json:"timestamp"`
					RecipientID string `json:"recipient_id"`
				} `json:"statuses"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// ParseWhatsAppWebhook extracts delivery status events from a Cloud API
// webhook body. Payloads without status entries (inbound messages, template
// updates) yield an empty slice.
func ParseWhatsAppWebhook(body []byte) ([]StatusEvent, error) {
	var payload whatsAppWebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: undecodable whatsapp webhook: %v", domain.ErrValidation, err)
	}

	var events []StatusEvent
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			for _, status := range change.Value.Statuses {
				if strings.TrimSpace(status.ID) == "" {
					continue
				}
				events = append(events, StatusEvent{
					Provider:          "whatsapp",
					ProviderMessageID: status.ID,
					Kind:              whatsAppEventKind(status.Status),
					Recipient:         status.RecipientID,
					Detail:            status.Status,
					OccurredAt:        parseUnixSeconds(status.Timestamp),
				})
			}
		}
	}

	return events, nil
}

func whatsAppEventKind(status string) EventKind {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "sent":
		return EventKindSent
	case "delivered":
		return EventKindDelivered
	case "read":
		return EventKindRead
	case "failed":
		return EventKindFailed
	}
	return EventKindUnknown
}

func parseUnixSeconds(s string) time.Time {
	seconds, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(seconds, 0).UTC()
}
