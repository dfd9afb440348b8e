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

	"github.com/thegoodtimes/pulse/internal/api"
	"github.com/thegoodtimes/pulse/internal/circuitbreaker"
	"github.com/thegoodtimes/pulse/internal/config"
	"github.com/thegoodtimes/pulse/internal/db"
	"github.com/thegoodtimes/pulse/internal/email"
	"github.com/thegoodtimes/pulse/internal/metrics"
	"github.com/thegoodtimes/pulse/internal/names"
	"github.com/thegoodtimes/pulse/internal/notify"
	"github.com/thegoodtimes/pulse/internal/observ"
	"github.com/thegoodtimes/pulse/internal/push"
	"github.com/thegoodtimes/pulse/internal/redis"
	"github.com/thegoodtimes/pulse/internal/sqs"
	"github.com/thegoodtimes/pulse/internal/worker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Setup logger
	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting pulse gateway",
		zap.String("env", cfg.Env),
		zap.Int("port", cfg.Port),
	)

	// Initialize database connection
	ctx := context.Background()
	dbConfig := db.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		Database: cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
	}

	database, err := db.New(ctx, dbConfig, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	logger.Info("database connection established",
		zap.String("host", cfg.DBHost),
		zap.Int("port", cfg.DBPort),
		zap.String("database", cfg.DBName),
	)

	// Initialize repository
	repo := db.NewRepository(database, logger)

	// Initialize Redis for the visit ledger, rate limiting and refresh
	// coalescing. The ledger is load-bearing: without it every event
	// falls back to the global last-checked timestamp.
	redisConfig := redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}

	redisClient, err := redis.New(ctx, redisConfig, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer redisClient.Close()

	ledger := redis.NewLedger(redisClient, logger)
	coalescer := redis.NewCoalescer(redisClient, logger,
		time.Duration(cfg.RefreshCoalesceWindow)*time.Second)
	rateLimiter := redis.NewRateLimiter(redisClient, logger, redis.RateLimitConfig{
		Limit:  300,             // screen focus refetches are frequent
		Window: 1 * time.Minute, // per minute per user
	})

	// Badge pusher: Expo behind a circuit breaker, or log-only in dev.
	var pusher notify.BadgePusher
	if cfg.Env == "development" {
		pusher = push.NewLogPusher(logger)
	} else {
		expo := push.NewExpoPusher(repo, logger, push.ExpoConfig{
			Endpoint: cfg.ExpoPushURL,
			Timeout:  time.Duration(cfg.ExpoTimeout) * time.Second,
		})
		breaker := circuitbreaker.New(circuitbreaker.DefaultConfig("expo"), logger)
		pusher = circuitbreaker.NewProtectedPusher(expo, breaker, logger)
	}

	// Aggregation service
	service := notify.NewService(repo, ledger, pusher, nil, logger)

	// Name resolver for personalized prompts
	resolver := names.NewResolver(repo, logger)

	// Email for birthday card publishing
	var emailer api.Emailer
	if cfg.ResendAPIKey != "" {
		emailer = email.New(email.Config{
			APIKey: cfg.ResendAPIKey,
			From:   cfg.EmailFrom,
		}, logger)
	} else {
		logger.Warn("RESEND_API_KEY not set, card ready email disabled")
	}

	// Badge refresh path: SQS queue with a consumer worker when
	// configured, otherwise in-process.
	var enqueuer api.RefreshEnqueuer
	if cfg.SQSQueueURL != "" {
		sqsCfg := sqs.Config{
			Region:   cfg.SQSRegion,
			QueueURL: cfg.SQSQueueURL,
		}

		producer, err := sqs.NewProducer(ctx, sqsCfg, logger)
		if err != nil {
			return fmt.Errorf("failed to create sqs producer: %w", err)
		}
		defer producer.Close()
		enqueuer = producer

		consumer, err := sqs.NewConsumer(ctx, sqsCfg, logger)
		if err != nil {
			return fmt.Errorf("failed to create sqs consumer: %w", err)
		}
		defer consumer.Close()

		w := worker.New(consumer, service, coalescer, worker.Config{}, logger)

		workerCtx, workerCancel := context.WithCancel(context.Background())
		defer workerCancel()
		go w.Start(workerCtx)

		logger.Info("badge refresh worker started", zap.String("queue_url", cfg.SQSQueueURL))
	} else {
		enqueuer = worker.NewInlineEnqueuer(service, coalescer, logger)
		logger.Info("SQS_QUEUE_URL not set, badge refresh runs in-process")
	}

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// Custom logging middleware
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

	// API routes
	handler := api.NewHandler(logger, service, ledger, enqueuer, repo, resolver, emailer, nil)
	r.Route("/v1", func(r chi.Router) {
		// Apply rate limiting to API routes
		r.Use(api.RateLimitMiddleware(rateLimiter, logger, api.UserKeyFunc))

		r.Get("/notifications", handler.ListNotifications)
		r.Post("/notifications/checked", handler.MarkNotificationsChecked)
		r.Post("/notifications/clear", handler.ClearNotifications)
		r.Get("/badge", handler.GetBadge)
		r.Post("/badge/refresh", handler.RefreshBadge)
		r.Post("/visits", handler.RecordVisit)
		r.Get("/groups/{groupID}/prompt", handler.GetGroupPrompt)
		r.Post("/birthday-cards/{id}/publish", handler.PublishBirthdayCard)
	})

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	// Prometheus metrics endpoint
	r.Handle("/metrics", metrics.Handler())

	// Setup HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	// Listen for shutdown signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Block until we receive a signal or server error
	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))

		// Give outstanding requests 10 seconds to complete
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
