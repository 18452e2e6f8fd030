package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/Sujay0610/ReviewReap/internal/provider"
	"github.com/Sujay0610/ReviewReap/internal/service"
	"github.com/Sujay0610/ReviewReap/internal/transport"
)

func TestWebhookIntegration_WhatsAppVerification(t *testing.T) {
	t.Parallel()

	app := newWebhookTestApp(t, &stubReconciler{}, "secret-token")

	path := "/webhooks/whatsapp?hub.mode=subscribe&hub.verify_token=secret-token&hub.challenge=challenge-123"
	resp, body := performRequest(t, app, http.MethodGet, path, "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
	}
	if string(body) != "challenge-123" {
		t.Fatalf("body = %q, want the echoed challenge", string(body))
	}

	path = "/webhooks/whatsapp?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=challenge-123"
	resp, _ = performRequest(t, app, http.MethodGet, path, "")
	if resp.StatusCode != fiber.StatusForbidden {
		t.Fatalf("status = %d, want 403 for a bad verify token", resp.StatusCode)
	}

	path = "/webhooks/whatsapp?hub.mode=unsubscribe&hub.verify_token=secret-token&hub.challenge=challenge-123"
	resp, _ = performRequest(t, app, http.MethodGet, path, "")
	if resp.StatusCode != fiber.StatusForbidden {
		t.Fatalf("status = %d, want 403 for a non-subscribe mode", resp.StatusCode)
	}
}

func TestWebhookIntegration_VerificationWithoutConfiguredToken(t *testing.T) {
	t.Parallel()

	app := newWebhookTestApp(t, &stubReconciler{}, "")

	path := "/webhooks/whatsapp?hub.mode=subscribe&hub.verify_token=&hub.challenge=challenge-123"
	resp, _ := performRequest(t, app, http.MethodGet, path, "")
	if resp.StatusCode != fiber.StatusForbidden {
		t.Fatalf("status = %d, want 403 when no verify token is configured", resp.StatusCode)
	}
}

func TestWebhookIntegration_WhatsAppStatuses(t *testing.T) {
	t.Parallel()

	var applied []provider.StatusEvent
	reconciler := &stubReconciler{
		applyFn: func(ctx context.Context, event provider.StatusEvent) error {
			applied = append(applied, event)
			return nil
		},
	}

	app := newWebhookTestApp(t, reconciler, "secret-token")

	payload := `{"entry":[{"changes":[{"value":{"statuses":[` +
		`{"id":"wa-1","status":"delivered","timestamp":"1717320600","recipient_id":"14155550123"},` +
		`{"id":"wa-2","status":"read","timestamp":"1717320660","recipient_id":"14155550123"}` +
		`]}}]}]}`
	resp, body := performRequest(t, app, http.MethodPost, "/webhooks/whatsapp", payload)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
	}

	if len(applied) != 2 {
		t.Fatalf("applied events = %d, want 2", len(applied))
	}
	if applied[0].ProviderMessageID != "wa-1" || applied[0].Kind != provider.EventKindDelivered {
		t.Fatalf("first event = %+v, want wa-1/delivered", applied[0])
	}
	if applied[1].Kind != provider.EventKindRead {
		t.Fatalf("second event kind = %s, want read", applied[1].Kind)
	}
	if want := time.Unix(1717320600, 0).UTC(); !applied[0].OccurredAt.Equal(want) {
		t.Fatalf("occurredAt = %v, want %v", applied[0].OccurredAt, want)
	}

	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if parsed["received"] != float64(2) || parsed["applied"] != float64(2) {
		t.Fatalf("ack = %v, want received=2 applied=2", parsed)
	}

	resp, _ = performRequest(t, app, http.MethodPost, "/webhooks/whatsapp", `{"entry":`)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for an undecodable body", resp.StatusCode)
	}
}

func TestWebhookIntegration_ReconcileFailureStillAcks(t *testing.T) {
	t.Parallel()

	reconciler := &stubReconciler{
		applyFn: func(ctx context.Context, event provider.StatusEvent) error {
			if event.ProviderMessageID == "wa-broken" {
				return errors.New("store unavailable")
			}
			return nil
		},
	}

	app := newWebhookTestApp(t, reconciler, "secret-token")

	payload := `{"entry":[{"changes":[{"value":{"statuses":[` +
		`{"id":"wa-broken","status":"delivered","timestamp":"1717320600"},` +
		`{"id":"wa-ok","status":"delivered","timestamp":"1717320600"}` +
		`]}}]}]}`
	resp, body := performRequest(t, app, http.MethodPost, "/webhooks/whatsapp", payload)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200 so the provider does not redeliver, body=%s", resp.StatusCode, string(body))
	}

	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if parsed["received"] != float64(2) || parsed["applied"] != float64(1) {
		t.Fatalf("ack = %v, want received=2 applied=1", parsed)
	}
}

func TestWebhookIntegration_EmailStatuses(t *testing.T) {
	t.Parallel()

	var applied []provider.StatusEvent
	reconciler := &stubReconciler{
		applyFn: func(ctx context.Context, event provider.StatusEvent) error {
			applied = append(applied, event)
			return nil
		},
	}

	app := newWebhookTestApp(t, reconciler, "secret-token")

	resp, body := performRequest(t, app, http.MethodPost, "/webhooks/email",
		`{"type":"email.bounced","data":{"email_id":"em-9"}}`)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
	}
	if len(applied) != 1 {
		t.Fatalf("applied events = %d, want 1", len(applied))
	}
	if applied[0].Provider != "email" || applied[0].Kind != provider.EventKindFailed {
		t.Fatalf("event = %+v, want email/failed", applied[0])
	}

	resp, body = performRequest(t, app, http.MethodPost, "/webhooks/email",
		`{"type":"email.delivered","data":{}}`)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200 for a payload without an email id, body=%s", resp.StatusCode, string(body))
	}
	if len(applied) != 1 {
		t.Fatalf("applied events = %d, want still 1 (no id, nothing to apply)", len(applied))
	}
}

func TestDispatchIntegration_StatusAndLifecycle(t *testing.T) {
	t.Parallel()

	var started, stopped bool
	control := &stubDispatcherControl{
		statusFn: func(ctx context.Context) (service.DispatcherStatus, error) {
			return service.DispatcherStatus{
				Running:             true,
				RateLimiterInWindow: 7,
				RateLimiterMax:      80,
			}, nil
		},
		startFn: func(ctx context.Context) error { started = true; return nil },
		stopFn:  func(ctx context.Context) error { stopped = true; return nil },
	}

	app := newDispatchTestApp(t, control)

	resp, body := performRequest(t, app, http.MethodGet, "/v1/dispatcher/status", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
	}
	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if parsed["running"] != true || parsed["rateLimiterInWindow"] != float64(7) || parsed["rateLimiterMax"] != float64(80) {
		t.Fatalf("status body = %v, want running with window 7/80", parsed)
	}

	resp, _ = performRequest(t, app, http.MethodPost, "/v1/dispatcher/start", "")
	if resp.StatusCode != fiber.StatusOK || !started {
		t.Fatalf("start: status = %d, started = %v, want 200 and a start call", resp.StatusCode, started)
	}

	resp, _ = performRequest(t, app, http.MethodPost, "/v1/dispatcher/stop", "")
	if resp.StatusCode != fiber.StatusOK || !stopped {
		t.Fatalf("stop: status = %d, stopped = %v, want 200 and a stop call", resp.StatusCode, stopped)
	}
}

func TestDispatchIntegration_ConfigureProviders(t *testing.T) {
	t.Parallel()

	whatsapp, err := provider.NewWhatsAppSender()
	if err != nil {
		t.Fatalf("NewWhatsAppSender() error = %v", err)
	}
	email, err := provider.NewEmailSender("")
	if err != nil {
		t.Fatalf("NewEmailSender() error = %v", err)
	}

	app := fiber.New(fiber.Config{ErrorHandler: transport.ErrorHandler(zap.NewNop())})
	if err := RegisterDispatchRoutes(app, &stubDispatcherControl{}, whatsapp, email); err != nil {
		t.Fatalf("RegisterDispatchRoutes() error = %v", err)
	}

	resp, body := performRequest(t, app, http.MethodPost, "/v1/providers/whatsapp/configure",
		`{"accessToken":"tok-1","phoneNumberId":"555123"}`)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
	}
	if !whatsapp.Configured() {
		t.Fatal("whatsapp sender should report configured")
	}

	resp, _ = performRequest(t, app, http.MethodPost, "/v1/providers/whatsapp/configure",
		`{"phoneNumberId":"555123"}`)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for a missing access token", resp.StatusCode)
	}

	resp, body = performRequest(t, app, http.MethodPost, "/v1/providers/email/configure",
		`{"apiKey":"re_123","fromAddress":"Hotel <stay@example.com>"}`)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
	}
	if !email.Configured() {
		t.Fatal("email sender should report configured")
	}

	resp, _ = performRequest(t, app, http.MethodPost, "/v1/providers/email/configure", `{}`)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for a missing api key", resp.StatusCode)
	}
}

type stubReconciler struct {
	applyFn func(ctx context.Context, event provider.StatusEvent) error
}

var _ StatusReconciler = (*stubReconciler)(nil)

func (s *stubReconciler) Apply(ctx context.Context, event provider.StatusEvent) error {
	if s.applyFn != nil {
		return s.applyFn(ctx, event)
	}
	return nil
}

type stubDispatcherControl struct {
	startFn  func(ctx context.Context) error
	stopFn   func(ctx context.Context) error
	statusFn func(ctx context.Context) (service.DispatcherStatus, error)
}

var _ DispatcherControl = (*stubDispatcherControl)(nil)

func (s *stubDispatcherControl) Start(ctx context.Context) error {
	if s.startFn != nil {
		return s.startFn(ctx)
	}
	return nil
}

func (s *stubDispatcherControl) Stop(ctx context.Context) error {
	if s.stopFn != nil {
		return s.stopFn(ctx)
	}
	return nil
}

func (s *stubDispatcherControl) Status(ctx context.Context) (service.DispatcherStatus, error) {
	if s.statusFn != nil {
		return s.statusFn(ctx)
	}
	return service.DispatcherStatus{}, nil
}

func newWebhookTestApp(t *testing.T, reconciler StatusReconciler, verifyToken string) *fiber.App {
	t.Helper()

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(zap.NewNop()),
	})

	if err := RegisterWebhookRoutes(app, reconciler, verifyToken, zap.NewNop()); err != nil {
		t.Fatalf("RegisterWebhookRoutes() error = %v", err)
	}

	return app
}

func newDispatchTestApp(t *testing.T, control DispatcherControl) *fiber.App {
	t.Helper()

	whatsapp, err := provider.NewWhatsAppSender()
	if err != nil {
		t.Fatalf("NewWhatsAppSender() error = %v", err)
	}
	email, err := provider.NewEmailSender("")
	if err != nil {
		t.Fatalf("NewEmailSender() error = %v", err)
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(zap.NewNop()),
	})

	if err := RegisterDispatchRoutes(app, control, whatsapp, email); err != nil {
		t.Fatalf("RegisterDispatchRoutes() error = %v", err)
	}

	return app
}
