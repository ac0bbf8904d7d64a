package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/enrollment-portal/internal/api/http"
	"github.com/spec-kit/enrollment-portal/internal/api/http/handlers"
	"github.com/spec-kit/enrollment-portal/internal/auth"
	"github.com/spec-kit/enrollment-portal/internal/cache"
	"github.com/spec-kit/enrollment-portal/internal/config"
	"github.com/spec-kit/enrollment-portal/internal/events"
	"github.com/spec-kit/enrollment-portal/internal/mail"
	"github.com/spec-kit/enrollment-portal/internal/observability"
	"github.com/spec-kit/enrollment-portal/internal/persistence"
	"github.com/spec-kit/enrollment-portal/internal/repository"
	"github.com/spec-kit/enrollment-portal/internal/service"
	"github.com/spec-kit/enrollment-portal/internal/storage"
	"github.com/spec-kit/enrollment-portal/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App.Env)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()
	if pg.Pool == nil {
		logger.Fatal("POSTGRES_DSN is required")
	}

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	metrics := observability.NewMetrics("enrollment")

	var cacheStore cache.Store
	if redis.Enabled() {
		cacheStore = cache.NewRedisStore(redis.Client, "enrollment:cache:")
	} else {
		cacheStore = cache.NewLocalStore(cfg.Cache.LocalSize, cfg.Cache.AnalyticsTTL())
	}
	aggregates := cache.New(cacheStore, cfg.Cache.AnalyticsTTL(), logger)

	var store storage.ObjectStore = storage.NewDisabledStore()
	if cfg.Storage.Enabled() {
		cld, err := storage.NewCloudinaryStore(cfg.Storage)
		if err != nil {
			logger.Fatal("failed to init object storage", zap.Error(err))
		}
		store = cld
	} else {
		logger.Warn("cloudinary credentials not provided; uploads are disabled")
	}

	mailer := mail.New(cfg.Mail, logger)
	dispatcher := events.NewInMemoryDispatcher(logger, metrics)

	pool := pg.PoolHandle()
	userRepo := repository.NewUserRepository(pool)
	documentRepo := repository.NewDocumentRepository(pool)
	paymentRepo := repository.NewPaymentRepository(pool)
	notificationRepo := repository.NewNotificationRepository(pool)
	cohortRepo := repository.NewCohortRepository(pool)
	settingRepo := repository.NewSettingRepository(pool)
	resetRepo := repository.NewPasswordResetRepository(pool)

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	hasher := auth.NewPasswordHasher(cfg.Auth.BcryptCost)

	progressService := service.NewProgressService(userRepo, documentRepo, dispatcher, logger)
	notificationService := service.NewNotificationService(notificationRepo, userRepo, mailer, logger)
	financeService, err := service.NewFinanceService(cfg.Finance, settingRepo, userRepo, paymentRepo, aggregates, logger)
	if err != nil {
		logger.Fatal("invalid finance configuration", zap.Error(err))
	}
	authService := service.NewAuthService(*cfg, service.AuthDependencies{
		UserRepo:          userRepo,
		PasswordResetRepo: resetRepo,
		Tokens:            tokens,
		Hasher:            hasher,
		Mailer:            mailer,
		Cache:             aggregates,
		Logger:            logger,
	})
	reviewService := service.NewReviewService(service.ReviewDependencies{
		Documents:  documentRepo,
		Payments:   paymentRepo,
		Users:      userRepo,
		Progress:   progressService,
		Store:      store,
		Dispatcher: dispatcher,
		Cache:      aggregates,
		Metrics:    metrics,
		Logger:     logger,
	})
	userAdminService := service.NewUserAdminService(service.UserAdminDependencies{
		Users:         userRepo,
		Documents:     documentRepo,
		Payments:      paymentRepo,
		Notifications: notificationRepo,
		Progress:      progressService,
		Finance:       financeService,
		Store:         store,
		Hasher:        hasher,
		Cache:         aggregates,
		Logger:        logger,
	})
	documentService := service.NewDocumentService(documentRepo, userRepo, progressService, store, aggregates, cfg.Storage.DocumentsFolder, logger)
	paymentService := service.NewPaymentService(paymentRepo, userRepo, progressService, store, aggregates, cfg.Storage.PaymentsFolder, logger)
	profileService := service.NewProfileService(userRepo, progressService, aggregates, logger)
	settingsService := service.NewSettingsService(settingRepo, financeService, aggregates)
	cohortService := service.NewCohortService(cohortRepo, aggregates)
	analyticsService := service.NewAnalyticsService(userRepo, documentRepo, paymentRepo, financeService, aggregates)
	reportService := service.NewReportService(userRepo, documentRepo, paymentRepo,
		time.Duration(cfg.Storage.TimeoutSeconds)*time.Second, logger)

	subscribers := []worker.Subscriber{notificationService}
	if cfg.Kafka.Enabled() {
		forwarder := events.NewKafkaForwarder(cfg.Kafka, logger)
		defer forwarder.Close() //nolint:errcheck
		subscribers = append(subscribers, forwarder)
	}
	worker.StartSubscribers(dispatcher, logger, subscribers...)

	var authLimit fiber.Handler
	limiter, err := httptransport.NewRateLimiter(cfg.RateLimit.Auth, cfg.RateLimit.Prefix, redis.Client)
	if err != nil {
		logger.Warn("auth rate limiting disabled", zap.String("rate", cfg.RateLimit.Auth), zap.Error(err))
	} else {
		authLimit = httptransport.RateLimit(limiter, logger)
	}

	readiness := map[string]handlers.Pinger{"postgres": pg, "redis": nil}
	if redis.Enabled() {
		readiness["redis"] = redis
	}

	app := fiber.New(fiber.Config{
		AppName:   cfg.App.Name,
		BodyLimit: cfg.App.UploadMaxBytes + 1024*1024,
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health: handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, readiness),
		Auth:   handlers.NewAuthHandler(authService, cfg.Auth.SessionCookieName, cfg.App.Env == "production"),
		Me: handlers.NewMeHandler(handlers.MeDependencies{
			Progress:       progressService,
			Profiles:       profileService,
			Documents:      documentService,
			Payments:       paymentService,
			Finance:        financeService,
			Notifications:  notificationService,
			Settings:       settingsService,
			UploadMaxBytes: int64(cfg.App.UploadMaxBytes),
		}),
		Admin: handlers.NewAdminHandler(handlers.AdminDependencies{
			Users:         userAdminService,
			Documents:     documentService,
			Payments:      paymentService,
			Reviews:       reviewService,
			Finance:       financeService,
			Analytics:     analyticsService,
			Cohorts:       cohortService,
			Settings:      settingsService,
			Notifications: notificationService,
		}),
		Reports:        handlers.NewReportHandler(reportService),
		AuthMiddleware: auth.NewAuthMiddleware(tokens, userRepo, cfg.Auth.SessionCookieName),
		Metrics:        metrics,
		AuthRateLimit:  authLimit,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("graceful shutdown", zap.Error(err))
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
