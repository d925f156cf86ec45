package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/marketfleet/courier/internal/api"
	"github.com/marketfleet/courier/internal/channel"
	"github.com/marketfleet/courier/internal/circuitbreaker"
	"github.com/marketfleet/courier/internal/config"
	"github.com/marketfleet/courier/internal/db"
	"github.com/marketfleet/courier/internal/metrics"
	"github.com/marketfleet/courier/internal/notify"
	"github.com/marketfleet/courier/internal/observ"
	"github.com/marketfleet/courier/internal/redis"
	"github.com/marketfleet/courier/internal/template"
	"github.com/marketfleet/courier/internal/worker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting courier gateway",
		zap.String("env", cfg.Env),
		zap.Int("port", cfg.Port),
	)

	ctx := context.Background()

	database, err := db.New(ctx, db.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		Database: cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	logger.Info("database connection established",
		zap.String("host", cfg.DBHost),
		zap.Int("port", cfg.DBPort),
		zap.String("database", cfg.DBName),
	)

	repo := db.NewRepository(database, logger)
	templateRepo := db.NewTemplateRepository(database, logger)

	// Redis backs idempotency, rate limits and frequency caps. The
	// service degrades gracefully without it.
	redisClient, err := redis.New(ctx, redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, logger)
	if err != nil {
		logger.Warn("redis unavailable, idempotency and rate limits disabled",
			zap.Error(err),
			zap.String("host", cfg.RedisHost),
		)
		redisClient = nil
	}

	var idempotencyService *redis.IdempotencyService
	var rateLimiter *redis.RateLimiter
	var freqCaps *redis.FrequencyCaps
	if redisClient != nil {
		idempotencyService = redis.NewIdempotencyService(redisClient, logger)
		rateLimiter = redis.NewRateLimiter(redisClient, logger, redis.RateLimitConfig{
			Limit:  cfg.RateLimitPerMinute,
			Window: 1 * time.Minute,
		})
		freqCaps = redis.NewFrequencyCaps(redisClient, logger)
		defer redisClient.Close()
	}

	breakers := circuitbreaker.NewRegistry(logger)

	// Email providers, primary first.
	var emailProviders []channel.EmailProvider
	emailProviders = append(emailProviders,
		channel.NewPostmarkProvider(cfg.PostmarkServerToken, cfg.PostmarkAccountToken, cfg.PostmarkFrom, logger))
	sesProvider, err := channel.NewSESProvider(ctx, cfg.AWSRegion, cfg.SESFromEmail, logger)
	if err != nil {
		logger.Warn("SES provider unavailable", zap.Error(err))
	} else {
		emailProviders = append(emailProviders, sesProvider)
	}
	emailProviders = append(emailProviders, channel.NewSMTPProvider(channel.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	}, logger))

	// SMS providers, primary first.
	var smsProviders []channel.SMSProvider
	smsProviders = append(smsProviders,
		channel.NewTwilioProvider(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFrom, logger))
	snsProvider, err := channel.NewSNSProvider(ctx, cfg.SNSRegion, cfg.SNSEnabled, logger)
	if err != nil {
		logger.Warn("SNS provider unavailable", zap.Error(err))
	} else {
		smsProviders = append(smsProviders, snsProvider)
	}

	pushAdapter, err := channel.NewPushAdapter(ctx, cfg.FCMCredentialsFile, cfg.FCMProjectID, breakers, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize FCM: %w", err)
	}

	registry := channel.NewRegistry(
		channel.NewEmailAdapter(breakers, logger, emailProviders...),
		channel.NewSMSAdapter(breakers, cfg.SMSDefaultCountry, logger, smsProviders...),
		pushAdapter,
		channel.NewInAppAdapter(logger),
	)

	var capper notify.FrequencyCapper
	if freqCaps != nil {
		capper = freqCaps
	}
	filter := notify.NewPreferenceFilter(repo, capper, logger)

	orchestrator := notify.NewOrchestrator(
		repo,
		templateRepo,
		template.NewRenderer(logger),
		filter,
		registry,
		cfg.DispatchParallel,
		logger,
	)
	inbox := notify.NewInbox(repo, logger)

	w := worker.New(repo, orchestrator, worker.Config{
		PollInterval: time.Duration(cfg.WorkerPollInterval) * time.Second,
		BatchSize:    cfg.WorkerBatchSize,
	}, logger)
	w.Start(context.Background())
	defer w.Stop()

	logger.Info("background worker started",
		zap.Int("poll_interval_seconds", cfg.WorkerPollInterval),
		zap.Int("batch_size", cfg.WorkerBatchSize),
	)

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration_ms", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	})

	handler := api.NewHandler(logger, orchestrator, inbox, repo, repo, templateRepo, breakers, idempotencyService)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(api.RateLimitMiddleware(rateLimiter, logger, api.ClientKeyFunc))

		r.Post("/notifications", handler.SendNotification)
		r.Post("/notifications/template", handler.SendFromTemplate)
		r.Post("/notifications/batch", handler.SendBatch)
		r.Get("/notifications/{id}", handler.GetNotification)
		r.Post("/notifications/{id}/cancel", handler.CancelNotification)
		r.Post("/notifications/{id}/delivered", handler.MarkDelivered)
		r.Post("/notifications/{id}/open", handler.TrackOpen)
		r.Post("/notifications/{id}/click", handler.TrackClick)

		r.Get("/inbox", handler.ListInbox)
		r.Get("/inbox/unread-count", handler.UnreadCount)
		r.Post("/inbox/read-all", handler.MarkAllRead)
		r.Post("/inbox/{id}/read", handler.MarkRead)
		r.Delete("/inbox/{id}", handler.DeleteInboxItem)

		r.Get("/preferences/{user_id}", handler.GetPreferences)
		r.Put("/preferences/{user_id}", handler.UpdatePreferences)

		r.Get("/templates", handler.ListTemplates)
		r.Put("/templates/{name}", handler.UpsertTemplate)

		r.Get("/admin/circuit-breakers", handler.ListCircuitBreakers)
		r.Post("/admin/circuit-breakers/{provider}/reset", handler.ResetCircuitBreaker)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := database.Health(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("database unavailable"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Handle("/metrics", metrics.Handler())

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			srv.Close()
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}

		logger.Info("server stopped gracefully")
	}

	return nil
}
