package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/lexiprep/lexiprep/internal/admin"
	"github.com/lexiprep/lexiprep/internal/ai"
	"github.com/lexiprep/lexiprep/internal/api"
	"github.com/lexiprep/lexiprep/internal/auth"
	"github.com/lexiprep/lexiprep/internal/config"
	"github.com/lexiprep/lexiprep/internal/database"
	"github.com/lexiprep/lexiprep/internal/middleware"
	inats "github.com/lexiprep/lexiprep/internal/nats"
	"github.com/lexiprep/lexiprep/internal/quota"
	iredis "github.com/lexiprep/lexiprep/internal/redis"
	"github.com/lexiprep/lexiprep/internal/server"
	"github.com/lexiprep/lexiprep/internal/usage"
	"github.com/lexiprep/lexiprep/internal/users"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.Log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// PostgreSQL
	pool, err := database.NewPostgresPool(ctx, cfg.DB)
	if err != nil {
		slog.Error("connecting to postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := database.RunMigrations(cfg.DB.DSN(), "migrations"); err != nil {
		slog.Error("running migrations", "error", err)
		os.Exit(1)
	}

	// Redis
	redisClient, err := iredis.NewClient(ctx, cfg.Redis)
	if err != nil {
		slog.Error("connecting to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	// NATS is optional. Without it, usage events are written to the
	// database synchronously.
	var natsClient *inats.Client
	var usagePublisher usage.EventPublisher
	if cfg.NATS.URL != "" {
		natsClient, err = inats.NewClient(ctx, cfg.NATS)
		if err != nil {
			slog.Error("connecting to NATS", "error", err)
			os.Exit(1)
		}
		defer natsClient.Close()
		usagePublisher = inats.NewPublisher(natsClient.JetStream())
	}

	// Quota
	policy := quota.NewPolicy(cfg.AI.FreeDailyLimit, cfg.AI.PremiumDailyLimit)
	clock := quota.SystemClock()
	quotaStore := quota.NewStore(pool)
	limiter := quota.NewLimiter(quotaStore, policy, clock)

	// Usage ledger and aggregation
	usageStore := usage.NewStore(pool)
	ledger := usage.NewLedger(usageStore, usagePublisher, clock, cfg.AI.UsageRetention)
	ledger.StartRetentionSweep(ctx, time.Hour)

	if natsClient != nil {
		consumer := usage.NewConsumer(usageStore, inats.NewConsumerManager(natsClient.JetStream()))
		go func() {
			if err := consumer.Start(ctx); err != nil {
				slog.Error("usage consumer stopped", "error", err)
			}
		}()
	}

	// Users
	userRepo := users.NewRepository(pool)
	userSvc := users.NewService(userRepo, policy, clock)
	aggregator := usage.NewAggregator(usageStore, userRepo, limiter, clock)

	// Auth
	jwtManager := auth.NewJWTManager(
		cfg.JWT.AccessSecret,
		cfg.JWT.RefreshSecret,
		cfg.JWT.AccessExpiry,
		cfg.JWT.RefreshExpiry,
	)
	authSvc := auth.NewService(jwtManager, redisClient)
	authHandler := auth.NewHandler(authSvc, userSvc)

	// AI
	geminiClient := ai.NewGeminiClient(
		cfg.AI.GeminiAPIKey,
		cfg.AI.GeminiModel,
		cfg.AI.Timeout,
		cfg.AI.MaxTokensPerRequest,
	)
	aiSvc := ai.NewService(geminiClient)
	aiHandler := ai.NewHandler(aiSvc, ledger, aggregator)

	burst := ai.NewBurstLimiter(redisClient, cfg.AI.BurstPerMinute)
	gate := ai.NewGate(limiter, burst, cfg.AI.QuotaWarnThreshold)

	// Admin
	adminHandler := admin.NewHandler(userSvc, limiter, aggregator)

	// Router
	router := api.NewRouter(pool, natsClient, api.RouterConfig{
		CORSAllowedOrigins: cfg.Server.CORSAllowedOrigins,
		AuthRateLimiter:    middleware.NewRateLimiter(redisClient, "auth", 10, 60).Middleware,
	}, api.HandlerSet{
		Register: authHandler.Register,
		Login:    authHandler.Login,
		Refresh:  authHandler.Refresh,
		Logout:   authHandler.Logout,

		EnhanceVocab:     aiHandler.EnhanceVocab,
		PracticeFeedback: aiHandler.PracticeFeedback,
		Suggestions:      aiHandler.Suggestions,
		UsageStats:       aiHandler.UsageStats,

		ListUsers:          adminHandler.ListUsers,
		UpdateSubscription: adminHandler.UpdateSubscription,
		UserAIUsage:        adminHandler.UserAIUsage,
		SystemStats:        adminHandler.SystemStats,

		AuthMiddleware:  auth.Middleware(authSvc),
		QuotaGate:       gate.Middleware,
		AdminMiddleware: auth.RequireRole(users.RoleAdmin),
	})

	// Start server
	srv := server.New(cfg.Server, router)
	if err := srv.Start(); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func setupLogger(cfg config.LogConfig) {
	var handler slog.Handler

	opts := &slog.HandlerOptions{}
	switch cfg.Level {
	case "debug":
		opts.Level = slog.LevelDebug
	case "info":
		opts.Level = slog.LevelInfo
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	default:
		opts.Level = slog.LevelInfo
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
