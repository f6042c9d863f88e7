package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/fleetquery/fleetquery/internal/api"
	"github.com/fleetquery/fleetquery/internal/askstore"
	"github.com/fleetquery/fleetquery/internal/auth"
	"github.com/fleetquery/fleetquery/internal/config"
	"github.com/fleetquery/fleetquery/internal/guard"
	"github.com/fleetquery/fleetquery/internal/nl2sql"
	"github.com/fleetquery/fleetquery/internal/observability"
	"github.com/fleetquery/fleetquery/internal/orchestrator"
	"github.com/fleetquery/fleetquery/internal/querycache"
	cachepostgres "github.com/fleetquery/fleetquery/internal/querycache/postgres"
	"github.com/fleetquery/fleetquery/internal/ratelimit"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadFromEnv("fleetquery-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)

	serviceDB, err := askstore.Open(context.Background(), askstore.DBConfig{
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		logger.Error("failed to open service db", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = serviceDB.Close() }()

	operationalDB := serviceDB
	if cfg.Operational.DSN != "" && cfg.Operational.DSN != cfg.Database.DSN {
		operationalDB, err = askstore.Open(context.Background(), askstore.DBConfig{DSN: cfg.Operational.DSN})
		if err != nil {
			logger.Error("failed to open operational db", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() { _ = operationalDB.Close() }()
	}

	policy, err := guard.NewPolicy(guard.Options{
		AllowedTables:  cfg.Guard.AllowedTables,
		MaxQueryLength: cfg.Guard.MaxQueryLength,
		MaxUnions:      cfg.Guard.MaxUnions,
		MaxParenDepth:  cfg.Guard.MaxParenDepth,
		MinSafetyScore: cfg.Guard.MinSafetyScore,
	})
	if err != nil {
		logger.Error("failed to build query policy", slog.Any("error", err))
		os.Exit(1)
	}

	var cacheStore querycache.Store
	switch cfg.Cache.Backend {
	case "postgres":
		cacheStore = cachepostgres.NewStore(serviceDB)
	default:
		cacheStore = querycache.NewMemoryStore()
	}
	cache := querycache.New(cacheStore, cfg.Cache.TTL, logger)

	var limitStore ratelimit.Store
	var redisClient *redis.Client
	switch cfg.RateLimit.Backend {
	case "redis":
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = redisClient.Close() }()
		limitStore = ratelimit.NewRedisStore(redisClient)
	default:
		limitStore = ratelimit.NewMemoryStore()
	}
	limiter := ratelimit.NewLimiter(limitStore, cfg.RateLimit.MaxRequests, cfg.RateLimit.Window)

	translator, answerer, err := buildTranslator(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize translator", slog.Any("error", err))
		os.Exit(1)
	}

	historyRepo := askstore.NewHistoryRepository(serviceDB)
	executor := askstore.NewExecutor(operationalDB, askstore.ExecutorConfig{
		QueryTimeout: cfg.Operational.QueryTimeout,
		MaxRows:      cfg.Operational.MaxRows,
	})

	service, err := orchestrator.NewService(orchestrator.Options{
		Policy:     policy,
		Limiter:    limiter,
		Cache:      cache,
		Translator: translator,
		Answerer:   answerer,
		Executor:   executor.RunSelect,
		History:    historyRepo,
		Tables:     cfg.Guard.AllowedTables,
		Logger:     logger,
	})
	if err != nil {
		logger.Error("failed to build orchestrator", slog.Any("error", err))
		os.Exit(1)
	}

	deps := api.Dependencies{
		Logger:            logger,
		Ask:               service,
		Cache:             cache,
		History:           historyRepo,
		Readiness:         api.CombineReadinessChecks(historyRepo.HealthCheck, api.CheckDatabaseDSN(cfg)),
		DependencyTimeout: time.Second,
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server", slog.String("addr", cfg.HTTP.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}

// buildTranslator wires the configured provider behind the retry/fallback
// decorator. The answerer is only available for providers that support it.
func buildTranslator(cfg config.Config, logger *slog.Logger) (nl2sql.Translator, nl2sql.Answerer, error) {
	resilientCfg := nl2sql.ResilientConfig{Timeout: cfg.AI.Timeout}

	switch cfg.AI.Provider {
	case "gemini":
		gemini, err := nl2sql.NewGeminiTranslator(context.Background(), nl2sql.GeminiConfig{
			APIKey:   cfg.AI.APIKey,
			Project:  cfg.AI.GeminiProject,
			Location: cfg.AI.GeminiLocation,
			Model:    cfg.AI.Model,
		})
		if err != nil {
			return nil, nil, err
		}
		return nl2sql.NewResilientTranslator(gemini, nil, resilientCfg, logger), gemini, nil
	default:
		openai, err := nl2sql.NewOpenAITranslator(nl2sql.OpenAIConfig{
			BaseURL:     cfg.AI.BaseURL,
			APIKey:      cfg.AI.APIKey,
			Model:       cfg.AI.Model,
			Temperature: cfg.AI.Temperature,
			Timeout:     cfg.AI.Timeout,
		})
		if err != nil {
			return nil, nil, err
		}

		var fallback nl2sql.Translator
		if cfg.AI.FallbackModel != "" {
			fallbackTranslator, err := nl2sql.NewOpenAITranslator(nl2sql.OpenAIConfig{
				BaseURL:     cfg.AI.BaseURL,
				APIKey:      cfg.AI.APIKey,
				Model:       cfg.AI.FallbackModel,
				Temperature: cfg.AI.Temperature,
				Timeout:     cfg.AI.Timeout,
			})
			if err != nil {
				return nil, nil, err
			}
			fallback = fallbackTranslator
		}
		return nl2sql.NewResilientTranslator(openai, fallback, resilientCfg, logger), openai, nil
	}
}
