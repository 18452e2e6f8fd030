package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/Sujay0610/ReviewReap/internal/domain"
)

func strPtr(s string) *string {
	return &s
}

func testGuest() domain.Guest {
	return domain.Guest{
		ID:    "3f5a7c1e-55f7-4b1a-9d41-0a51c1a8f001",
		OrgID: "9a1b2c3d-0000-4000-8000-000000000001",
		Name:  "Maya",
		Phone: strPtr("+14155550123"),
		Email: strPtr("maya@example.com"),
	}
}

func testMessage() domain.Message {
	return domain.Message{
		ID:         "7b9d2f4a-66e8-4c2b-8e52-1b62d2b9f002",
		OrgID:      "9a1b2c3d-0000-4000-8000-000000000001",
		CampaignID: "5c7e9a1b-77f9-4d3c-9f63-2c73e3caf003",
		GuestID:    "3f5a7c1e-55f7-4b1a-9d41-0a51c1a8f001",
		Channel:    domain.ChannelWhatsApp,
		Content:    "How was your stay?",
		Status:     domain.MessageStatusQueued,
	}
}

func TestWhatsAppSenderSendSuccess(t *testing.T) {
	t.Parallel()

	var gotBody whatsAppSendRequest
	var gotAuth string
	var gotPath string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")

		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("failed to decode request body: %v", err)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"messaging_product":"whatsapp","messages":[{"id":"wamid.abc123"}]}`))
	}))
	defer server.Close()

	sender, err := NewWhatsAppSenderWithClient(server.URL, resty.New())
	if err != nil {
		t.Fatalf("NewWhatsAppSenderWithClient() error = %v", err)
	}
	if err := sender.Configure("token-123", "phone-456"); err != nil {
		t.Fatalf("Configure() error = %v", err)
	}

	result, err := sender.Send(context.Background(), testMessage(), testGuest())
	if err != nil {
		t.Fatalf("Send() unexpected error: %v", err)
	}

	if result.ProviderMessageID != "wamid.abc123" {
		t.Fatalf("ProviderMessageID = %q, want %q", result.ProviderMessageID, "wamid.abc123")
	}
	if gotPath != "/phone-456/messages" {
		t.Fatalf("path = %q, want %q", gotPath, "/phone-456/messages")
	}
	if gotAuth != "Bearer token-123" {
		t.Fatalf("Authorization = %q, want %q", gotAuth, "Bearer token-123")
	}
	if gotBody.MessagingProduct != "whatsapp" {
		t.Fatalf("request.messaging_product = %q, want %q", gotBody.MessagingProduct, "whatsapp")
	}
	if gotBody.To != "+14155550123" {
		t.Fatalf("request.to = %q, want %q", gotBody.To, "+14155550123")
	}
	if gotBody.Type != "text" {
		t.Fatalf("request.type = %q, want %q", gotBody.Type, "text")
	}
	if gotBody.Text.Body != "How was your stay?" {
		t.Fatalf("request.text.body = %q, want %q", gotBody.Text.Body, "How was your stay?")
	}
}

func TestWhatsAppSenderSendStatusClassification(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name          string
		statusCode    int
		wantTransient bool
	}{
		{name: "too many requests is transient", statusCode: http.StatusTooManyRequests, wantTransient: true},
		{name: "bad request is permanent", statusCode: http.StatusBadRequest, wantTransient: false},
		{name: "unauthorized is permanent", statusCode: http.StatusUnauthorized, wantTransient: false},
		{name: "internal server error is transient", statusCode: http.StatusInternalServerError, wantTransient: true},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.statusCode)
				_, _ = w.Write([]byte("provider failed"))
			}))
			defer server.Close()

			sender, err := NewWhatsAppSenderWithClient(server.URL, resty.New())
			if err != nil {
				t.Fatalf("NewWhatsAppSenderWithClient() error = %v", err)
			}
			if err := sender.Configure("token-123", "phone-456"); err != nil {
				t.Fatalf("Configure() error = %v", err)
			}

			_, err = sender.Send(context.Background(), testMessage(), testGuest())
			if err == nil {
				t.Fatal("expected error")
			}

			if got := IsTransient(err); got != tc.wantTransient {
				t.Fatalf("IsTransient() = %v, want %v", got, tc.wantTransient)
			}

			var providerErr *ProviderError
			if !errors.As(err, &providerErr) {
				t.Fatalf("expected ProviderError, got %T", err)
			}
			if providerErr.StatusCode != tc.statusCode {
				t.Fatalf("ProviderError.StatusCode = %d, want %d", providerErr.StatusCode, tc.statusCode)
			}
		})
	}
}

func TestWhatsAppSenderSendUnconfigured(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sender, err := NewWhatsAppSenderWithClient(server.URL, resty.New())
	if err != nil {
		t.Fatalf("NewWhatsAppSenderWithClient() error = %v", err)
	}

	_, err = sender.Send(context.Background(), testMessage(), testGuest())
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("Send() error = %v, want %v", err, ErrNotConfigured)
	}
	if !IsTransient(err) {
		t.Fatal("IsTransient() = false, want true for unconfigured sender")
	}
	if calls.Load() != 0 {
		t.Fatalf("provider calls = %d, want 0", calls.Load())
	}
}

func TestWhatsAppSenderSendMissingPhone(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sender, err := NewWhatsAppSenderWithClient(server.URL, resty.New())
	if err != nil {
		t.Fatalf("NewWhatsAppSenderWithClient() error = %v", err)
	}
	if err := sender.Configure("token-123", "phone-456"); err != nil {
		t.Fatalf("Configure() error = %v", err)
	}

	guest := testGuest()
	guest.Phone = nil

	_, err = sender.Send(context.Background(), testMessage(), guest)
	if !errors.Is(err, ErrMissingDestination) {
		t.Fatalf("Send() error = %v, want %v", err, ErrMissingDestination)
	}
	if IsTransient(err) {
		t.Fatal("IsTransient() = true, want false for missing destination")
	}
	if calls.Load() != 0 {
		t.Fatalf("provider calls = %d, want 0", calls.Load())
	}
}

func TestWhatsAppSenderSendMissingMessageID(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"messaging_product":"whatsapp","messages":[]}`))
	}))
	defer server.Close()

	sender, err := NewWhatsAppSenderWithClient(server.URL, resty.New())
	if err != nil {
		t.Fatalf("NewWhatsAppSenderWithClient() error = %v", err)
	}
	if err := sender.Configure("token-123", "phone-456"); err != nil {
		t.Fatalf("Configure() error = %v", err)
	}

	_, err = sender.Send(context.Background(), testMessage(), testGuest())
	if err == nil {
		t.Fatal("expected error for missing message id")
	}
	if IsTransient(err) {
		t.Fatalf("IsTransient() = true, want false (err=%v)", err)
	}
}

func TestWhatsAppSenderSendTimeoutIsTransient(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"messages":[{"id":"wamid.late"}]}`))
	}))
	defer server.Close()

	client := resty.New()
	client.SetTimeout(30 * time.Millisecond)

	sender, err := NewWhatsAppSenderWithClient(server.URL, client)
	if err != nil {
		t.Fatalf("NewWhatsAppSenderWithClient() error = %v", err)
	}
	if err := sender.Configure("token-123", "phone-456"); err != nil {
		t.Fatalf("Configure() error = %v", err)
	}

	_, err = sender.Send(context.Background(), testMessage(), testGuest())
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !IsTransient(err) {
		t.Fatalf("IsTransient() = false, want true (err=%v)", err)
	}
}

func TestParseWhatsAppWebhook(t *testing.T) {
	t.Parallel()

	body := []byte(`{
		"object": "whatsapp_business_account",
		"entry": [{
			"id": "entry-1",
			"changes": [{
				"field": "messages",
				"value": {
					"statuses": [
						{"id": "wamid.a", "status": "delivered", "timestamp": "1700000000", "recipient_id": "14155550123"},
						{"id": "wamid.b", "status": "read", "timestamp": "1700000060", "recipient_id": "14155550123"},
						{"id": "wamid.c", "status": "warmup", "timestamp": "", "recipient_id": "14155550123"}
					]
				}
			}]
		}]
	}`)

	events, err := ParseWhatsAppWebhook(body)
	if err != nil {
		t.Fatalf("ParseWhatsAppWebhook() error = %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("len(events) = %d, want 3", len(events))
	}

	if events[0].ProviderMessageID != "wamid.a" {
		t.Fatalf("events[0].ProviderMessageID = %q, want %q", events[0].ProviderMessageID, "wamid.a")
	}
	if events[0].Kind != EventKindDelivered {
		t.Fatalf("events[0].Kind = %q, want %q", events[0].Kind, EventKindDelivered)
	}
	if want := time.Unix(1_700_000_000, 0).UTC(); !events[0].OccurredAt.Equal(want) {
		t.Fatalf("events[0].OccurredAt = %v, want %v", events[0].OccurredAt, want)
	}
	if events[0].Recipient != "14155550123" {
		t.Fatalf("events[0].Recipient = %q, want %q", events[0].Recipient, "14155550123")
	}
	if events[1].Kind != EventKindRead {
		t.Fatalf("events[1].Kind = %q, want %q", events[1].Kind, EventKindRead)
	}
	if events[2].Kind != EventKindUnknown {
		t.Fatalf("events[2].Kind = %q, want %q", events[2].Kind, EventKindUnknown)
	}
	if !events[2].OccurredAt.IsZero() {
		t.Fatalf("events[2].OccurredAt = %v, want zero", events[2].OccurredAt)
	}
}

func TestParseWhatsAppWebhookNoStatuses(t *testing.T) {
	t.Parallel()

	events, err := ParseWhatsAppWebhook([]byte(`{"entry":[{"changes":[{"value":{}}]}]}`))
	if err != nil {
		t.Fatalf("ParseWhatsAppWebhook() error = %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("len(events) = %d, want 0", len(events))
	}
}

func TestParseWhatsAppWebhookInvalidJSON(t *testing.T) {
	t.Parallel()

	_, err := ParseWhatsAppWebhook([]byte(`{not json`))
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("ParseWhatsAppWebhook() error = %v, want %v", err, domain.ErrValidation)
	}
}
