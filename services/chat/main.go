// Copyright (C) 2025 Kubera Analytics (engineering@kuberahq.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// The chat service hosts Kubera's conversational stock research
// endpoint: a websocket chat backed by rate-limited admission, an
// agentic tool-calling loop against an OpenAI-compatible model, and
// per-conversation history.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/kuberahq/kubera/pkg/extensions"
	"github.com/kuberahq/kubera/pkg/logging"
	"github.com/kuberahq/kubera/services/chat/config"
	"github.com/kuberahq/kubera/services/chat/engine"
	"github.com/kuberahq/kubera/services/chat/handlers"
	"github.com/kuberahq/kubera/services/chat/history"
	"github.com/kuberahq/kubera/services/chat/ratelimit"
	"github.com/kuberahq/kubera/services/chat/routes"
	"github.com/kuberahq/kubera/services/chat/session"
	"github.com/kuberahq/kubera/services/chat/tools"
)

// initTracer wires OTLP trace export over gRPC and returns a shutdown
// function.
func initTracer(ctx context.Context, endpoint string) (func(context.Context) error, error) {
	conn, err := grpc.NewClient(endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	exporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("kubera-chat")))
	if err != nil {
		return nil, err
	}
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(sdktrace.NewBatchSpanProcessor(exporter)))
	otel.SetTracerProvider(provider)
	return provider.Shutdown, nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger, err := logging.New(logging.Config{
		Service: "chat",
		Level:   logging.Level(cfg.LogLevel),
	})
	if err != nil {
		slog.Error("failed to initialize logging", "error", err)
		os.Exit(1)
	}
	defer logger.Close()
	slog.SetDefault(logger.Logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.OTLPEndpoint != "" {
		shutdown, err := initTracer(ctx, cfg.OTLPEndpoint)
		if err != nil {
			logger.Error("failed to initialize tracing", "error", err)
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.Warn("trace exporter shutdown failed", "error", err)
			}
		}()
	}

	// Rate limit counters: Redis when configured, else process memory.
	var (
		counters      ratelimit.CounterStore
		conversations ratelimit.ConversationCounter
	)
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Error("redis unreachable", "addr", cfg.RedisAddr, "error", err)
			os.Exit(1)
		}
		defer client.Close()
		counters = ratelimit.NewRedisCounterStore(client)
		conversations = ratelimit.NewRedisConversationCounter(client)
		logger.Info("rate limit counters in redis", "addr", cfg.RedisAddr)
	} else {
		counters = ratelimit.NewMemoryCounterStore()
		conversations = ratelimit.NewMemoryConversationCounter()
		logger.Info("rate limit counters in process memory")
	}

	// History and violations: Postgres when configured. The Postgres
	// store also takes over conversation counts so turn persistence
	// and admission share one backend.
	var (
		store      history.Store
		violations interface {
			ratelimit.ViolationSink
			ratelimit.ViolationReader
		}
	)
	if cfg.PostgresDSN != "" {
		db, err := sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			logger.Error("failed to open postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		pg := history.NewPostgresStore(db)
		if err := pg.EnsureSchema(ctx); err != nil {
			logger.Error("failed to ensure postgres schema", "error", err)
			os.Exit(1)
		}
		store = pg
		violations = pg
		conversations = pg
		logger.Info("history persisted in postgres")
	} else {
		store = history.NewMemoryStore()
		violations = ratelimit.NewMemoryViolationLog(0)
		logger.Info("history kept in process memory")
	}

	policy := ratelimit.NewPolicyStore(ratelimit.DefaultLimits())
	limiter := ratelimit.NewService(counters, conversations, policy, violations, logger.Logger)

	registry := tools.NewRegistry()
	if err := tools.RegisterBuiltins(registry, tools.StaticMarketData{}); err != nil {
		logger.Error("failed to register tools", "error", err)
		os.Exit(1)
	}
	gateway := tools.NewGateway(registry, cfg.ToolCallTimeout, logger.Logger)

	apiKey := cfg.OpenAIAPIKey
	if apiKey == "" && cfg.OpenAIBaseURL != "" {
		// Local OpenAI-compatible servers ignore the key.
		apiKey = "local"
	}
	provider, err := engine.NewOpenAIProvider(apiKey, cfg.OpenAIModel, cfg.OpenAIBaseURL)
	if err != nil {
		logger.Error("failed to initialize model provider", "error", err)
		os.Exit(1)
	}

	eng := engine.New(provider, gateway, cfg.MaxIterations, cfg.SystemPrompt, logger.Logger)
	manager := session.NewManager()

	authProvider := &extensions.GuestProvider{AdminToken: cfg.AdminToken}

	router := gin.New()
	router.Use(gin.Recovery())
	routes.Setup(router, routes.Deps{
		Chat:         handlers.NewChatHandler(limiter, eng, manager, store, cfg.MaxHistoryTurns, logger.Logger),
		Health:       handlers.NewHealthHandler(manager),
		Admin:        handlers.NewAdminHandler(limiter, policy, violations, manager, logger.Logger),
		AuthProvider: authProvider,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("chat service listening",
			"port", cfg.Port,
			"model", cfg.OpenAIModel,
			"max_iterations", cfg.MaxIterations,
			"tools", registry.Names())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("chat service exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("chat service stopped")
}
