package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	recoverer "github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Sujay0610/ReviewReap/internal/config"
	"github.com/Sujay0610/ReviewReap/internal/eventbus"
	"github.com/Sujay0610/ReviewReap/internal/handler"
	"github.com/Sujay0610/ReviewReap/internal/infra/postgresql"
	"github.com/Sujay0610/ReviewReap/internal/infra/postgresql/migrations"
	infraredis "github.com/Sujay0610/ReviewReap/internal/infra/redis"
	"github.com/Sujay0610/ReviewReap/internal/observability"
	"github.com/Sujay0610/ReviewReap/internal/provider"
	"github.com/Sujay0610/ReviewReap/internal/ratelimit"
	"github.com/Sujay0610/ReviewReap/internal/repository"
	"github.com/Sujay0610/ReviewReap/internal/service"
	"github.com/Sujay0610/ReviewReap/internal/transport"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal("failed to initialize logger", zap.Error(err))
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("postgres initialization failed", zap.Error(err))
	}

	if err := migrations.Migrate(db); err != nil {
		logger.Fatal("database migrations failed", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("postgres underlying db init failed", zap.Error(err))
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	limiter, err := newRateLimiter(cfg, rdb)
	if err != nil {
		logger.Fatal("rate limiter initialization failed", zap.Error(err))
	}

	publisher, err := newStatusPublisher(cfg, logger)
	if err != nil {
		logger.Fatal("status publisher initialization failed", zap.Error(err))
	}
	defer publisher.Close() //nolint:errcheck

	whatsapp, err := provider.NewWhatsAppSender()
	if err != nil {
		logger.Fatal("whatsapp sender initialization failed", zap.Error(err))
	}
	if cfg.WhatsAppAccessToken != "" && cfg.WhatsAppPhoneNumberID != "" {
		if err := whatsapp.Configure(cfg.WhatsAppAccessToken, cfg.WhatsAppPhoneNumberID); err != nil {
			logger.Fatal("whatsapp configuration failed", zap.Error(err))
		}
	}

	email, err := provider.NewEmailSender(cfg.EmailFromAddress)
	if err != nil {
		logger.Fatal("email sender initialization failed", zap.Error(err))
	}
	if cfg.ResendAPIKey != "" {
		if err := email.Configure(cfg.ResendAPIKey, cfg.EmailFromAddress); err != nil {
			logger.Fatal("email configuration failed", zap.Error(err))
		}
	}

	campaigns := repository.NewGormCampaignRepo(db)
	guests := repository.NewGormGuestRepo(db)
	messages := repository.NewGormMessageRepo(db)
	events := repository.NewGormEventRepo(db)

	metrics := observability.NewMetrics()

	campaignService, err := service.NewCampaignService(campaigns, guests, messages, events, service.NewTemplateComposer(), logger)
	if err != nil {
		logger.Fatal("campaign service initialization failed", zap.Error(err))
	}

	dispatcher, err := service.NewDispatcher(service.DispatcherParams{
		Messages:       messages,
		Campaigns:      campaigns,
		Guests:         guests,
		Events:         events,
		WhatsApp:       whatsapp,
		Email:          email,
		Limiter:        limiter,
		Completer:      campaignService,
		Publisher:      publisher,
		Logger:         logger,
		PollInterval:   time.Duration(cfg.DispatchPollSeconds) * time.Second,
		BatchSize:      cfg.DispatchBatchSize,
		InterSendDelay: time.Duration(cfg.DispatchSendDelayMillis) * time.Millisecond,
	})
	if err != nil {
		logger.Fatal("dispatcher initialization failed", zap.Error(err))
	}
	dispatcher.SetMetrics(metrics)

	reconciler, err := service.NewWebhookReconciler(messages, events, publisher, logger)
	if err != nil {
		logger.Fatal("webhook reconciler initialization failed", zap.Error(err))
	}
	reconciler.SetMetrics(metrics)

	app := fiber.New(fiber.Config{
		AppName:      "reviewreap-outreach-engine",
		ErrorHandler: transport.ErrorHandler(logger),
	})
	app.Use(recoverer.New())
	app.Use(requestid.New())
	app.Use(metrics.HTTPMiddleware())

	handler.RegisterHealthRoutes(app, sqlDB, rdb)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
	if err := handler.RegisterCampaignRoutes(app, campaignService); err != nil {
		logger.Fatal("campaign routes registration failed", zap.Error(err))
	}
	if err := handler.RegisterDispatchRoutes(app, dispatcher, whatsapp, email); err != nil {
		logger.Fatal("dispatch routes registration failed", zap.Error(err))
	}
	if err := handler.RegisterWebhookRoutes(app, reconciler, cfg.WhatsAppVerifyToken, logger); err != nil {
		logger.Fatal("webhook routes registration failed", zap.Error(err))
	}

	if cfg.DispatcherAutoStart {
		if err := dispatcher.Start(ctx); err != nil {
			logger.Fatal("dispatcher start failed", zap.Error(err))
		}
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("reviewreap api listening",
			zap.Int("port", cfg.APIPort),
			zap.String("rateLimitBackend", cfg.RateLimitBackend),
			zap.Bool("dispatcherAutoStart", cfg.DispatcherAutoStart),
		)
		return app.Listen(fmt.Sprintf(":%d", cfg.APIPort))
	})

	g.Go(func() error {
		<-gCtx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := dispatcher.Stop(shutdownCtx); err != nil {
			logger.Warn("dispatcher did not stop cleanly", zap.Error(err))
		}
		return app.ShutdownWithContext(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal("reviewreap api exited", zap.Error(err))
	}
	logger.Info("reviewreap api stopped")
}

func newRateLimiter(cfg *config.Config, rdb *redis.Client) (ratelimit.Limiter, error) {
	window := time.Duration(cfg.RateLimitWindowSeconds) * time.Second

	if cfg.RateLimitBackend == config.RateLimitBackendRedis {
		return infraredis.NewRedisRateLimiter(rdb, cfg.RateLimitMaxRequests, window)
	}
	return ratelimit.NewSlidingWindowLimiter(cfg.RateLimitMaxRequests, window), nil
}

// newStatusPublisher wires the status bus, or a no-op publisher when no
// broker is configured.
func newStatusPublisher(cfg *config.Config, logger *zap.Logger) (eventbus.Publisher, error) {
	if strings.TrimSpace(cfg.RabbitMQURL) == "" {
		logger.Info("no rabbitmq url configured, status updates will not be published")
		return eventbus.NewNopPublisher(), nil
	}

	client, err := eventbus.NewRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq initialization failed: %w", err)
	}
	return eventbus.NewRabbitMQPublisher(client), nil
}
