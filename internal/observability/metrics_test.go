package observability

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsCollectors(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()

	metrics.IncMessageSent("whatsapp")
	metrics.IncMessageSent("whatsapp")
	metrics.IncMessageSent("EMAIL")
	metrics.IncMessageFailed("email", "Provider Error")
	metrics.IncMessageFailed("email", "")
	metrics.IncRetryScheduled("whatsapp")
	metrics.IncWebhookEvent("whatsapp", "DELIVERED")
	metrics.IncWebhookOrphan("email")
	metrics.ObserveMessageSendDuration("whatsapp", 120*time.Millisecond)
	metrics.ObserveMessageSendDuration("whatsapp", -time.Second)

	if got := testutil.ToFloat64(metrics.messagesSentTotal.WithLabelValues("whatsapp")); got != 2 {
		t.Fatalf("messagesSentTotal[whatsapp] = %v, want 2", got)
	}
	if got := testutil.ToFloat64(metrics.messagesSentTotal.WithLabelValues("email")); got != 1 {
		t.Fatalf("messagesSentTotal[email] = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.messagesFailedTotal.WithLabelValues("email", "provider error")); got != 1 {
		t.Fatalf("messagesFailedTotal[email,provider error] = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.messagesFailedTotal.WithLabelValues("email", "unknown")); got != 1 {
		t.Fatalf("messagesFailedTotal[email,unknown] = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.retriesScheduledTotal.WithLabelValues("whatsapp")); got != 1 {
		t.Fatalf("retriesScheduledTotal[whatsapp] = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.webhookEventsTotal.WithLabelValues("whatsapp", "delivered")); got != 1 {
		t.Fatalf("webhookEventsTotal[whatsapp,delivered] = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.webhookOrphansTotal.WithLabelValues("email")); got != 1 {
		t.Fatalf("webhookOrphansTotal[email] = %v, want 1", got)
	}
}

func TestMetricsDispatcherRunningGauge(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()

	if got := testutil.ToFloat64(metrics.dispatcherRunning); got != 0 {
		t.Fatalf("dispatcherRunning = %v, want 0", got)
	}

	metrics.SetDispatcherRunning(true)
	if got := testutil.ToFloat64(metrics.dispatcherRunning); got != 1 {
		t.Fatalf("dispatcherRunning after start = %v, want 1", got)
	}

	metrics.SetDispatcherRunning(false)
	if got := testutil.ToFloat64(metrics.dispatcherRunning); got != 0 {
		t.Fatalf("dispatcherRunning after stop = %v, want 0", got)
	}
}

func TestMetricsNilReceiverIsSafe(t *testing.T) {
	t.Parallel()

	var metrics *Metrics

	metrics.IncMessageSent("whatsapp")
	metrics.IncMessageFailed("email", "boom")
	metrics.ObserveMessageSendDuration("email", time.Second)
	metrics.IncRetryScheduled("email")
	metrics.IncWebhookEvent("whatsapp", "read")
	metrics.IncWebhookOrphan("whatsapp")
	metrics.SetDispatcherRunning(true)

	if metrics.Handler() == nil {
		t.Fatal("Handler() = nil, want fallback handler")
	}
}

func TestMetricsHTTPMiddlewareRecordsRequest(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()

	app := fiber.New()
	app.Use(metrics.HTTPMiddleware())
	app.Get("/v1/campaigns/:campaignID/stats", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/v1/campaigns/abc/stats", nil))
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	counter := metrics.httpRequestsTotal.WithLabelValues("GET", "/v1/campaigns/:campaignID/stats", "200")
	if got := testutil.ToFloat64(counter); got != 1 {
		t.Fatalf("httpRequestsTotal = %v, want 1", got)
	}
}

func TestMetricsHTTPMiddlewareRecordsErrorStatus(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()

	app := fiber.New()
	app.Use(metrics.HTTPMiddleware())
	app.Post("/v1/campaigns/:campaignID/start", func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusConflict, "invalid transition")
	})

	resp, err := app.Test(httptest.NewRequest(fiber.MethodPost, "/v1/campaigns/abc/start", nil))
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	counter := metrics.httpRequestsTotal.WithLabelValues("POST", "/v1/campaigns/:campaignID/start", "409")
	if got := testutil.ToFloat64(counter); got != 1 {
		t.Fatalf("httpRequestsTotal = %v, want 1", got)
	}
}

func TestMetricsHTTPMiddlewareSkipsMetricsEndpoint(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()

	app := fiber.New()
	app.Use(metrics.HTTPMiddleware())
	app.Get("/metrics", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/metrics", nil))
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	counter := metrics.httpRequestsTotal.WithLabelValues("GET", "/metrics", "200")
	if got := testutil.ToFloat64(counter); got != 0 {
		t.Fatalf("httpRequestsTotal[/metrics] = %v, want 0", got)
	}
}

func TestStatusFromResult(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "fiber error", err: fiber.ErrTeapot, want: fiber.StatusTeapot},
		{name: "plain error", err: errors.New("boom"), want: fiber.StatusInternalServerError},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := statusFromResult(nil, tt.err); got != tt.want {
				t.Fatalf("statusFromResult() = %d, want %d", got, tt.want)
			}
		})
	}
}
