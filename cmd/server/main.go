package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Harshitk-cp/speclens/internal/api"
	"github.com/Harshitk-cp/speclens/internal/buildconfig"
	"github.com/Harshitk-cp/speclens/internal/catalog"
	"github.com/Harshitk-cp/speclens/internal/config"
	"github.com/Harshitk-cp/speclens/internal/llm"
	"github.com/Harshitk-cp/speclens/internal/metrics"
	"github.com/Harshitk-cp/speclens/internal/store"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

func main() {
	if err := config.Load(); err != nil {
		panic(err)
	}

	logger := newLogger(config.LogLevel())
	defer func() { _ = logger.Sync() }()

	dbURL := config.DatabaseURL()
	if dbURL == "" {
		logger.Fatal("DATABASE_URL is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if config.AutoMigrate() {
		changed, err := store.Migrate(dbURL)
		if err != nil {
			logger.Fatal("failed to apply migrations", zap.Error(err))
		}
		logger.Info("migrations checked", zap.Bool("applied", changed))
	}

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		logger.Fatal("failed to ping database", zap.Error(err))
	}
	logger.Info("connected to database")

	registry := catalog.NewRegistry(config.DomainsPath(), logger)
	defer registry.Close()
	if err := registry.Init(ctx); err != nil {
		logger.Fatal("failed to discover domains", zap.String("path", config.DomainsPath()), zap.Error(err))
	}
	if err := registry.LoadAll(ctx); err != nil {
		// Broken domains stay listed with their errors; the rest still serve.
		logger.Warn("some domains failed to load", zap.Error(err))
	}
	logger.Info("domains discovered", zap.Strings("ids", registry.IDs()))

	if config.DomainWatch() {
		watcher, err := catalog.NewWatcher(registry, 250*time.Millisecond, logger)
		if err != nil {
			logger.Fatal("failed to create domain watcher", zap.Error(err))
		}
		watcher.OnInvalidate = metrics.CountDomainInvalidation
		if err := watcher.Start(ctx); err != nil {
			logger.Fatal("failed to start domain watcher", zap.Error(err))
		}
		defer func() { _ = watcher.Stop() }()
	}

	provider := config.LLMProvider()
	completion, err := llm.NewClient(provider, config.LLMAPIKey(), llm.Options{
		Model:       config.LLMModel(),
		BaseURL:     config.LLMBaseURL(),
		HTTPTimeout: config.LLMTimeout(),
	})
	if err != nil {
		logger.Fatal("LLM client initialization failed", zap.String("provider", provider), zap.Error(err))
	}
	logger.Info("LLM client initialized", zap.String("provider", provider))
	client := llm.NewGuardedClient(completion, config.LLMTimeout(), config.LLMMaxConcurrent(), logger)

	app, err := api.NewApp(ctx, pool, registry, client, logger)
	if err != nil {
		logger.Fatal("failed to build application", zap.Error(err))
	}

	addr := config.ServerAddr()
	srv := &http.Server{
		Addr:              addr,
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", addr), zap.String("version", buildconfig.Version()))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
		return
	}

	logger.Info("server stopped")
}

func newLogger(level string) *zap.Logger {
	cfg := zap.NewProductionConfig()
	if lvl, err := zap.ParseAtomicLevel(level); err == nil {
		cfg.Level = lvl
	}
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
