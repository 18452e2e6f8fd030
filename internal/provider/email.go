package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/go-resty/resty/v2"

	"github.com/Sujay0610/ReviewReap/internal/domain"
)

const (
	defaultResendBaseURL = "https://api.resend.com"
	defaultEmailFrom     = "Review Request <noreply@reviewreap.io>"
)

type resendSendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
	Text    string   `json:"text"`
}

type resendSendResponse struct {
	ID string `json:"id"`
}

var _ Sender = (*EmailSender)(nil)

// EmailSender sends review-request emails through the Resend API.
// Credentials are swappable at runtime through Configure.
type EmailSender struct {
	client  *resty.Client
	baseURL string

	mu          sync.RWMutex
	apiKey      string
	fromAddress string
}

func NewEmailSender(fromAddress string) (*EmailSender, error) {
	client := resty.New()
	client.SetTimeout(defaultSendTimeout)
	client.SetRetryCount(0)

	return NewEmailSenderWithClient(defaultResendBaseURL, fromAddress, client)
}

func NewEmailSenderWithClient(baseURL, fromAddress string, client *resty.Client) (*EmailSender, error) {
	trimmedBaseURL := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmedBaseURL == "" {
		return nil, fmt.Errorf("resend base url is required")
	}
	if _, err := url.ParseRequestURI(trimmedBaseURL); err != nil {
		return nil, fmt.Errorf("invalid resend base url: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultSendTimeout)
	}
	client.SetRetryCount(0)

	fromAddress = strings.TrimSpace(fromAddress)
	if fromAddress == "" {
		fromAddress = defaultEmailFrom
	}

	return &EmailSender{
		client:      client,
		baseURL:     trimmedBaseURL,
		fromAddress: fromAddress,
	}, nil
}

func (p *EmailSender) Channel() domain.Channel {
	return domain.ChannelEmail
}

// Configure sets or rotates the API key. An empty fromAddress keeps the
// current sender address.
func (p *EmailSender) Configure(apiKey, fromAddress string) error {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return fmt.Errorf("%w: api key is required", domain.ErrValidation)
	}

	p.mu.Lock()
	p.apiKey = apiKey
	if from := strings.TrimSpace(fromAddress); from != "" {
		p.fromAddress = from
	}
	p.mu.Unlock()

	return nil
}

func (p *EmailSender) Configured() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.apiKey != ""
}

func (p *EmailSender) Send(ctx context.Context, msg domain.Message, guest domain.Guest) (*SendResult, error) {
	if p == nil || p.client == nil {
		return nil, fmt.Errorf("email sender is not initialized")
	}

	p.mu.RLock()
	apiKey := p.apiKey
	fromAddress := p.fromAddress
	p.mu.RUnlock()

	if apiKey == "" {
		return nil, fmt.Errorf("email: %w", ErrNotConfigured)
	}
	if !guest.HasEmail() {
		return nil, fmt.Errorf("email: %w: guest has no email address", ErrMissingDestination)
	}

	reqBody := resendSendRequest{
		From:    fromAddress,
		To:      []string{strings.TrimSpace(*guest.Email)},
		Subject: fmt.Sprintf("Thank you for staying with us, %s!", guest.Name),
		HTML:    fmt.Sprintf("<p>%s</p>", strings.ReplaceAll(msg.Content, "\n", "<br>")),
		Text:    msg.Content,
	}

	var result resendSendResponse
	response, err := p.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("Authorization", "Bearer "+apiKey).
		SetBody(reqBody).
		SetResult(&result).
		Post(p.baseURL + "/emails")
	if err != nil {
		return nil, &ProviderError{
			Message:   "resend request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}
	if response == nil {
		return nil, &ProviderError{
			Message:   "resend returned empty response",
			Transient: true,
		}
	}

	statusCode := response.StatusCode()
	responseBody := strings.TrimSpace(response.String())

	if statusCode < http.StatusOK || statusCode >= http.StatusMultipleChoices {
		return nil, &ProviderError{
			StatusCode: statusCode,
			Message:    providerErrorMessage("resend", statusCode, responseBody),
			Transient:  isTransientHTTPStatus(statusCode),
		}
	}

	if strings.TrimSpace(result.ID) == "" {
		return nil, &ProviderError{
			StatusCode: statusCode,
			Message:    "resend response is missing an email id",
			Transient:  false,
		}
	}

	return &SendResult{
		ProviderMessageID: result.ID,
		StatusCode:        statusCode,
		Body:              responseBody,
	}, nil
}

type resendWebhookPayload struct {
	Type string `json:"type"`
	Data struct {
		EmailID string `json:"email_id"`
	} `json:"data"`
}

// ParseEmailWebhook extracts the delivery status event from a Resend webhook
// body. Payloads without an email id yield an empty slice.
func ParseEmailWebhook(body []byte) ([]StatusEvent, error) {
	var payload resendWebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: undecodable email webhook: %v", domain.ErrValidation, err)
	}

	if strings.TrimSpace(payload.Data.EmailID) == "" {
		return nil, nil
	}

	return []StatusEvent{{
		Provider:          "email",
		ProviderMessageID: payload.Data.EmailID,
		Kind:              emailEventKind(payload.Type),
		Detail:            payload.Type,
	}}, nil
}

func emailEventKind(eventType string) EventKind {
	switch strings.ToLower(strings.TrimSpace(eventType)) {
	case "email.sent":
		return EventKindSent
	case "email.delivered":
		return EventKindDelivered
	case "email.opened":
		return EventKindRead
	case "email.bounced", "email.complained":
		return EventKindFailed
	}
	return EventKindUnknown
}
