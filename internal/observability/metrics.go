package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics stores Prometheus collectors for the API and dispatcher flows.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal     *prometheus.CounterVec
	httpRequestDuration   *prometheus.HistogramVec
	messagesSentTotal     *prometheus.CounterVec
	messagesFailedTotal   *prometheus.CounterVec
	messageSendDuration   *prometheus.HistogramVec
	retriesScheduledTotal *prometheus.CounterVec
	webhookEventsTotal    *prometheus.CounterVec
	webhookOrphansTotal   *prometheus.CounterVec
	dispatcherRunning     prometheus.Gauge
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "reviewreap",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "reviewreap",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		messagesSentTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "reviewreap",
				Name:      "messages_sent_total",
				Help:      "Total number of messages accepted by a provider.",
			},
			[]string{"channel"},
		),
		messagesFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "reviewreap",
				Name:      "messages_failed_total",
				Help:      "Total number of messages that ended in failed state.",
			},
			[]string{"channel", "reason"},
		),
		messageSendDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "reviewreap",
				Name:      "message_send_duration_seconds",
				Help:      "Provider send duration in seconds grouped by channel.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"channel"},
		),
		retriesScheduledTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "reviewreap",
				Name:      "retries_scheduled_total",
				Help:      "Total number of messages rescheduled for retry.",
			},
			[]string{"channel"},
		),
		webhookEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "reviewreap",
				Name:      "webhook_events_total",
				Help:      "Total number of provider webhook status events applied.",
			},
			[]string{"provider", "kind"},
		),
		webhookOrphansTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "reviewreap",
				Name:      "webhook_orphans_total",
				Help:      "Total number of webhook events dropped because no message matched.",
			},
			[]string{"provider"},
		),
		dispatcherRunning: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "reviewreap",
				Name:      "dispatcher_running",
				Help:      "Whether the dispatch loop is running (1) or stopped (0).",
			},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.messagesSentTotal,
		m.messagesFailedTotal,
		m.messageSendDuration,
		m.retriesScheduledTotal,
		m.webhookEventsTotal,
		m.webhookOrphansTotal,
		m.dispatcherRunning,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := routePath(c)
		// Avoid self-scrape noise for request counters.
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

func (m *Metrics) IncMessageSent(channel string) {
	if m == nil {
		return
	}
	m.messagesSentTotal.WithLabelValues(normalizeChannel(channel)).Inc()
}

func (m *Metrics) IncMessageFailed(channel string, reason string) {
	if m == nil {
		return
	}
	reasonLabel := strings.TrimSpace(strings.ToLower(reason))
	if reasonLabel == "" {
		reasonLabel = "unknown"
	}
	m.messagesFailedTotal.WithLabelValues(normalizeChannel(channel), reasonLabel).Inc()
}

func (m *Metrics) ObserveMessageSendDuration(channel string, duration time.Duration) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.messageSendDuration.WithLabelValues(normalizeChannel(channel)).Observe(seconds)
}

func (m *Metrics) IncRetryScheduled(channel string) {
	if m == nil {
		return
	}
	m.retriesScheduledTotal.WithLabelValues(normalizeChannel(channel)).Inc()
}

func (m *Metrics) IncWebhookEvent(provider string, kind string) {
	if m == nil {
		return
	}
	m.webhookEventsTotal.WithLabelValues(normalizeLabel(provider), normalizeLabel(kind)).Inc()
}

func (m *Metrics) IncWebhookOrphan(provider string) {
	if m == nil {
		return
	}
	m.webhookOrphansTotal.WithLabelValues(normalizeLabel(provider)).Inc()
}

func (m *Metrics) SetDispatcherRunning(running bool) {
	if m == nil {
		return
	}
	if running {
		m.dispatcherRunning.Set(1)
		return
	}
	m.dispatcherRunning.Set(0)
}

func (m *Metrics) recordHTTPRequest(method string, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	methodLabel := strings.ToUpper(strings.TrimSpace(method))
	if methodLabel == "" {
		methodLabel = "UNKNOWN"
	}
	pathLabel := strings.TrimSpace(path)
	if pathLabel == "" {
		pathLabel = "unmatched"
	}

	m.httpRequestsTotal.WithLabelValues(methodLabel, pathLabel, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(methodLabel, pathLabel).Observe(duration.Seconds())
}

func routePath(c *fiber.Ctx) string {
	if c == nil {
		return "unmatched"
	}

	if route := c.Route(); route != nil {
		if path := strings.TrimSpace(route.Path); path != "" {
			return path
		}
	}
	return "unmatched"
}

func statusFromResult(c *fiber.Ctx, err error) int {
	if err != nil {
		if fiberErr, ok := err.(*fiber.Error); ok {
			return fiberErr.Code
		}
		return fiber.StatusInternalServerError
	}

	if c == nil {
		return fiber.StatusOK
	}

	status := c.Response().StatusCode()
	if status == 0 {
		return fiber.StatusOK
	}
	return status
}

func normalizeChannel(channel string) string {
	return normalizeLabel(channel)
}

func normalizeLabel(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
