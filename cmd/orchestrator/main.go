package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/lessonforge/scribe/internal/config"
	"github.com/lessonforge/scribe/internal/executor"
	"github.com/lessonforge/scribe/internal/gateway"
	"github.com/lessonforge/scribe/internal/provider"
	"github.com/lessonforge/scribe/internal/ratelimit"
	"github.com/lessonforge/scribe/internal/registry"
	"github.com/lessonforge/scribe/internal/telemetry"
	"github.com/lessonforge/scribe/internal/usage"
	"github.com/lessonforge/scribe/internal/window"
)

var version = "dev"

func main() {
	configDir := flag.String("config", "configs", "path to configuration directory")
	flag.Parse()

	logger := newLogger(os.Getenv("SCRIBE_LOG_LEVEL"))
	slog.SetDefault(logger)

	loader := config.NewLoader(*configDir, logger)
	if err := loader.Load(); err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if err := loader.Watch(); err != nil {
		logger.Warn("failed to start config watcher", "error", err)
	}

	cfg := loader.Config()

	// Connect to PostgreSQL; the orchestrator runs without it, keeping
	// outcomes in memory only.
	var store usage.OutcomeStore
	dbPool, err := pgxpool.New(context.Background(), cfg.Database.DSN())
	if err != nil {
		logger.Warn("failed to create database pool (outcomes kept in memory)", "error", err)
	} else {
		defer dbPool.Close()
		if err := dbPool.Ping(context.Background()); err != nil {
			logger.Warn("database not reachable (outcomes kept in memory)", "error", err)
		} else {
			store = usage.NewPostgresStore(dbPool)
			logger.Info("database connected")
		}
	}

	// Connect to Redis; without it rate limits and budgets fail open.
	var rdb *redis.Client
	if len(cfg.Redis.Addresses) > 0 && cfg.Redis.Addresses[0] != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addresses[0],
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			logger.Warn("redis not reachable (rate limits and budgets disabled)", "error", err)
			rdb = nil
		} else {
			logger.Info("redis connected")
		}
	}

	tracker := usage.NewTracker(store, logger)
	metrics := telemetry.NewMetrics()
	limiter := ratelimit.NewLimiter(rdb)
	budget := ratelimit.NewBudgetTracker(rdb)

	buildExecutor := func() (*executor.Executor, *registry.Resolver, error) {
		reg, err := registry.New(loader.Providers())
		if err != nil {
			return nil, nil, err
		}
		resolver := registry.NewResolver(reg, loader.Aliases().Aliases)
		clients := provider.BuildFromConfig(loader.Providers(), loader.Config().Routing.DefaultTimeout)
		exec := executor.New(
			reg,
			resolver,
			window.NewManager(loader.Config().Routing.Window, logger),
			clients,
			tracker,
			executor.Options{
				Routing: loader.Config().Routing,
				Limiter: limiter,
				Budget:  budget,
				Metrics: metrics,
				Logger:  logger,
			},
		)
		return exec, resolver, nil
	}

	exec, resolver, err := buildExecutor()
	if err != nil {
		logger.Error("failed to build provider registry", "error", err)
		os.Exit(1)
	}

	var execRef atomic.Pointer[executor.Executor]
	var resolverRef atomic.Pointer[registry.Resolver]
	execRef.Store(exec)
	resolverRef.Store(resolver)

	loader.OnReload(func() {
		newExec, newResolver, err := buildExecutor()
		if err != nil {
			logger.Error("config reload rejected", "error", err)
			return
		}
		execRef.Store(newExec)
		resolverRef.Store(newResolver)
		logger.Info("provider registry reloaded")
	})

	handler := gateway.NewHandler(execRef.Load, resolverRef.Load, tracker)

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)

	r.Get("/scribe/v1/health", healthHandler)
	r.Post("/v1/generate", handler.Generate)
	r.Get("/v1/usage/report", handler.UsageReport)
	r.Get("/v1/aliases", handler.ListAliases)

	// Metrics on a separate port, never exposed with the API.
	if cfg.Telemetry.MetricsPort > 0 {
		go func() {
			addr := fmt.Sprintf(":%d", cfg.Telemetry.MetricsPort)
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			logger.Info("metrics server starting", "addr", addr)
			if err := http.ListenAndServe(addr, mux); err != nil {
				logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("orchestrator starting", "addr", addr, "version", version)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	logger.Info("orchestrator stopped")
}

func newLogger(level string) *slog.Logger {
	lvl := slog.LevelInfo
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"version": version,
	})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = generateRequestID()
		}
		w.Header().Set("X-Request-ID", reqID)
		ctx := context.WithValue(r.Context(), requestIDKey, reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type contextKey string

const requestIDKey contextKey = "request_id"

func generateRequestID() string {
	now := time.Now()
	b := make([]byte, 8)
	rand.Read(b)
	return fmt.Sprintf("req_%d_%s", now.UnixMilli(), hex.EncodeToString(b))
}
