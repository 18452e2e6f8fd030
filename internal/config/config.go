package config

import (
	"fmt"
	"strings"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

// Rate limiter backends.
const (
	RateLimitBackendMemory = "memory"
	RateLimitBackendRedis  = "redis"
)

type Config struct {
	DatabaseDSN string `env:"DATABASE_DSN,required=true"`
	RedisURL    string `env:"REDIS_URL,required=true"`
	RabbitMQURL string `env:"RABBITMQ_URL"`
	APIPort     int    `env:"API_PORT,default=8080"`
	LogLevel    string `env:"LOG_LEVEL,default=info"`

	RateLimitMaxRequests   int    `env:"RATE_LIMIT_MAX_REQUESTS,default=80"`
	RateLimitWindowSeconds int    `env:"RATE_LIMIT_WINDOW_SECONDS,default=60"`
	RateLimitBackend       string `env:"RATE_LIMIT_BACKEND,default=memory"`

	DispatchPollSeconds     int  `env:"DISPATCH_POLL_SECONDS,default=10"`
	DispatchBatchSize       int  `env:"DISPATCH_BATCH_SIZE,default=10"`
	DispatchSendDelayMillis int  `env:"DISPATCH_SEND_DELAY_MS,default=1000"`
	DispatcherAutoStart     bool `env:"DISPATCHER_AUTO_START,default=true"`

	WhatsAppAccessToken   string `env:"WHATSAPP_ACCESS_TOKEN"`
	WhatsAppPhoneNumberID string `env:"WHATSAPP_PHONE_NUMBER_ID"`
	WhatsAppVerifyToken   string `env:"WHATSAPP_VERIFY_TOKEN"`
	ResendAPIKey          string `env:"RESEND_API_KEY"`
	EmailFromAddress      string `env:"EMAIL_FROM_ADDRESS,default=Review Request <noreply@reviewreap.io>"`
}

func Load() (*Config, error) {
	// Best-effort .env load for local development; deployments set the environment.
	_ = godotenv.Load()

	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	backend := strings.ToLower(strings.TrimSpace(c.RateLimitBackend))
	switch backend {
	case RateLimitBackendMemory, RateLimitBackendRedis:
		c.RateLimitBackend = backend
	default:
		return fmt.Errorf("invalid RATE_LIMIT_BACKEND %q: must be %s or %s",
			c.RateLimitBackend, RateLimitBackendMemory, RateLimitBackendRedis)
	}

	if c.RateLimitMaxRequests < 1 {
		return fmt.Errorf("RATE_LIMIT_MAX_REQUESTS must be >= 1, got %d", c.RateLimitMaxRequests)
	}
	if c.RateLimitWindowSeconds < 1 {
		return fmt.Errorf("RATE_LIMIT_WINDOW_SECONDS must be >= 1, got %d", c.RateLimitWindowSeconds)
	}
	if c.DispatchPollSeconds < 1 {
		return fmt.Errorf("DISPATCH_POLL_SECONDS must be >= 1, got %d", c.DispatchPollSeconds)
	}
	if c.DispatchBatchSize < 1 {
		return fmt.Errorf("DISPATCH_BATCH_SIZE must be >= 1, got %d", c.DispatchBatchSize)
	}
	if c.DispatchSendDelayMillis < 0 {
		return fmt.Errorf("DISPATCH_SEND_DELAY_MS must be >= 0, got %d", c.DispatchSendDelayMillis)
	}

	return nil
}
