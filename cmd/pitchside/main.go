package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/lalithlochan/pitchside/internal/api"
	"github.com/lalithlochan/pitchside/internal/circuitbreaker"
	"github.com/lalithlochan/pitchside/internal/config"
	"github.com/lalithlochan/pitchside/internal/db"
	"github.com/lalithlochan/pitchside/internal/delivery"
	"github.com/lalithlochan/pitchside/internal/job"
	"github.com/lalithlochan/pitchside/internal/metrics"
	"github.com/lalithlochan/pitchside/internal/observ"
	"github.com/lalithlochan/pitchside/internal/redis"
	"github.com/lalithlochan/pitchside/internal/scheduler"
	"github.com/lalithlochan/pitchside/internal/watchdog"
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

	logger.Info("starting pitchside",
		zap.String("env", cfg.Env),
		zap.Int("port", cfg.Port),
	)

	ctx := context.Background()

	// Job store: Postgres when configured, in-memory otherwise.
	var store job.Store
	var source scheduler.UserSource
	if cfg.DBHost != "" {
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

		store = db.NewStore(database, logger)
		source = db.NewUserSource(database, logger)
	} else {
		logger.Warn("no database configured, jobs will not survive restarts")
		store = job.NewMemoryStore()
		source = &scheduler.StaticSource{}
	}

	// Redis for generator dedup and API rate limiting. Optional.
	var guard scheduler.DedupGuard
	var rateLimiter *redis.RateLimiter
	redisClient, err := redis.New(ctx, redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, logger)
	if err != nil {
		logger.Warn("redis unavailable, dedup and rate limiting disabled",
			zap.Error(err),
			zap.String("host", cfg.RedisHost),
		)
	} else {
		guard = redis.NewDedupGuard(redisClient, logger)
		rateLimiter = redis.NewRateLimiter(redisClient, logger, redis.RateLimitConfig{
			Limit:  100,             // 100 requests
			Window: 1 * time.Minute, // per minute per client
		})
		defer redisClient.Close()
	}

	// Delivery transports. Each one sits behind its own circuit breaker so a
	// dead transport fails its jobs fast instead of stalling the tick.
	deliverers := []delivery.Deliverer{}

	if cfg.SNSTopicARN != "" {
		push, err := delivery.NewSNSDeliverer(ctx, delivery.SNSConfig{
			Region:   cfg.AWSRegion,
			TopicARN: cfg.SNSTopicARN,
		}, logger)
		if err != nil {
			logger.Warn("push deliverer unavailable", zap.Error(err))
		} else {
			deliverers = append(deliverers, protect(push, "push", logger))
		}
	}

	if cfg.SESFromEmail != "" {
		email, err := delivery.NewSESDeliverer(ctx, delivery.SESConfig{
			Region:    cfg.AWSRegion,
			FromEmail: cfg.SESFromEmail,
		}, logger)
		if err != nil {
			logger.Warn("email deliverer unavailable", zap.Error(err))
		} else {
			deliverers = append(deliverers, protect(email, "email", logger))
		}
	}

	if cfg.SQSQueueURL != "" {
		queue, err := delivery.NewQueueDeliverer(ctx, delivery.QueueConfig{
			Region:   cfg.AWSRegion,
			QueueURL: cfg.SQSQueueURL,
		}, logger)
		if err != nil {
			logger.Warn("queue deliverer unavailable", zap.Error(err))
		} else {
			deliverers = append(deliverers, protect(queue, "queue", logger))
		}
	}

	webhook := delivery.NewWebhookDeliverer(logger, delivery.WebhookConfig{
		DefaultTimeout: cfg.DeliveryTimeout,
	})
	deliverers = append(deliverers, protect(webhook, "webhook", logger))

	if len(deliverers) == 1 {
		// Only the webhook transport is live; log deliveries for everything
		// else instead of failing every push and email job.
		deliverers = append(deliverers, delivery.NewLogDeliverer(logger))
	}

	var deliverer delivery.Deliverer = delivery.NewMultiDeliverer(logger, deliverers...)
	deliverer = delivery.NewTimeoutDeliverer(deliverer, cfg.DeliveryTimeout)

	logger.Info("delivery transports initialized",
		zap.Bool("push_enabled", cfg.SNSTopicARN != ""),
		zap.Bool("email_enabled", cfg.SESFromEmail != ""),
		zap.Bool("queue_enabled", cfg.SQSQueueURL != ""),
	)

	// Scheduler
	sched := scheduler.New(store, deliverer, source, guard, scheduler.Config{
		DispatchInterval: cfg.DispatchInterval,
		AlertInterval:    cfg.AlertInterval,
		DailyTriggerAt:   cfg.DailyTriggerAt,
		DigestHour:       cfg.DigestHour,
		AlertLead:        cfg.AlertLead,
		AlertLookahead:   cfg.AlertLookahead,
		RetentionDays:    cfg.RetentionDays,
	}, logger)
	sched.Start()
	defer sched.Stop()

	// Watchdog for the prediction service. Optional.
	var wd *watchdog.Watchdog
	if cfg.PredictionURL != "" {
		probe := watchdog.NewHTTPProbe(cfg.PredictionURL, cfg.ProbeTimeout)

		var launcher watchdog.Launcher
		if cfg.PredictionCmd != "" {
			launcher, err = watchdog.NewExecLauncher(strings.Fields(cfg.PredictionCmd), "", logger)
			if err != nil {
				return fmt.Errorf("failed to create prediction launcher: %w", err)
			}
		} else {
			logger.Warn("no prediction command configured, watchdog will observe only")
			launcher = noopLauncher{}
		}

		wd = watchdog.New(probe, launcher, watchdog.Config{
			ProbeInterval:    cfg.ProbeInterval,
			ProbeTimeout:     cfg.ProbeTimeout,
			FailureThreshold: cfg.FailureThreshold,
			MaxRestarts:      cfg.MaxRestarts,
			RestartCooldown:  cfg.RestartCooldown,
			GracePeriod:      cfg.GracePeriod,
		}, logger)
		wd.Start()
		defer wd.Stop()
	}

	// Setup router
	r := chi.NewRouter()

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
	var wdService api.WatchdogService
	if wd != nil {
		wdService = wd
	}
	handler := api.NewHandler(logger, sched, wdService)

	r.Route("/v1", func(r chi.Router) {
		r.Use(api.RateLimitMiddleware(rateLimiter, logger, api.IPKeyFunc))

		r.Post("/notifications", handler.ScheduleNotification)
		r.Get("/notifications/pending", handler.ListPendingNotifications)
		r.Get("/scheduler/status", handler.SchedulerStatus)
		r.Get("/watchdog/health", handler.WatchdogHealth)
		r.Post("/maintenance/prune", handler.PruneNotifications)
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

// protect wraps a transport in its own circuit breaker.
func protect(d delivery.Deliverer, name string, logger *zap.Logger) delivery.Deliverer {
	breaker := circuitbreaker.New(circuitbreaker.DefaultConfig(name), logger)
	return circuitbreaker.NewProtectedDeliverer(d, breaker, logger)
}

// noopLauncher is used when supervision is probe-only: failures are counted
// and reported but nothing is relaunched.
type noopLauncher struct{}

func (noopLauncher) Launch(ctx context.Context) (watchdog.Handle, error) {
	return nil, fmt.Errorf("no prediction command configured")
}
