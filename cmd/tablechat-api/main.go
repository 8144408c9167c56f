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

	"github.com/tablechat/tablechat/internal/api"
	catalogpostgres "github.com/tablechat/tablechat/internal/catalog/postgres"
	"github.com/tablechat/tablechat/internal/config"
	"github.com/tablechat/tablechat/internal/observability"
	duckdbengine "github.com/tablechat/tablechat/internal/query/duckdb"
	"github.com/tablechat/tablechat/internal/session"
	s3store "github.com/tablechat/tablechat/internal/storage/s3"
	"github.com/tablechat/tablechat/internal/transcribe"
	"github.com/tablechat/tablechat/internal/translate"
)

func main() {
	cfg, err := config.LoadFromEnv("tablechat-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	catalogDB, err := catalogpostgres.Open(context.Background(), catalogpostgres.DBConfig{
		DSN:             cfg.Catalog.DSN,
		MaxOpenConns:    cfg.Catalog.MaxOpenConns,
		MaxIdleConns:    cfg.Catalog.MaxIdleConns,
		ConnMaxIdleTime: cfg.Catalog.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.Catalog.ConnMaxLifetime,
	})
	if err != nil {
		logger.Error("failed to open catalog db", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = catalogDB.Close() }()

	catalogRepo := catalogpostgres.NewRepository(catalogDB)
	objectStore, err := s3store.New(context.Background(), s3store.Config{
		Endpoint:         cfg.ObjectStore.Endpoint,
		Region:           cfg.ObjectStore.Region,
		Bucket:           cfg.ObjectStore.Bucket,
		AccessKeyID:      cfg.ObjectStore.AccessKeyID,
		SecretAccessKey:  cfg.ObjectStore.SecretAccessKey,
		UseSSL:           cfg.ObjectStore.UseSSL,
		Prefix:           cfg.ObjectStore.Prefix,
		AutoCreateBucket: cfg.ObjectStore.AutoCreateBucket,
	})
	if err != nil {
		logger.Error("failed to initialize object store", slog.Any("error", err))
		os.Exit(1)
	}

	var completer translate.Completer
	if cfg.AI.APIKey != "" {
		openAICompleter, err := translate.NewOpenAICompleter(translate.OpenAIConfig{
			BaseURL: cfg.AI.BaseURL,
			APIKey:  cfg.AI.APIKey,
			Model:   cfg.AI.Model,
			Timeout: cfg.AI.Timeout,
		})
		if err != nil {
			logger.Error("failed to initialize completer", slog.Any("error", err))
			os.Exit(1)
		}
		completer = openAICompleter
	} else {
		logger.Warn("ai api key not set; falling back to rule-based translation only")
	}

	var transcriber transcribe.Transcriber
	if cfg.Transcribe.APIKey != "" {
		httpTranscriber, err := transcribe.NewHTTPTranscriber(transcribe.Config{
			BaseURL: cfg.Transcribe.BaseURL,
			APIKey:  cfg.Transcribe.APIKey,
			Model:   cfg.Transcribe.Model,
			Timeout: cfg.Transcribe.Timeout,
		})
		if err != nil {
			logger.Error("failed to initialize transcriber", slog.Any("error", err))
			os.Exit(1)
		}
		transcriber = httpTranscriber
	} else {
		logger.Warn("transcribe api key not set; voice messages use the canned fallback query")
	}

	engine, err := session.NewEngine(session.Deps{
		Catalog:      catalogRepo,
		Store:        objectStore,
		Translator:   translate.NewTranslator(completer, logger, cfg.AI.Timeout, cfg.AI.MaxTokens, cfg.AI.Temperature),
		Completer:    completer,
		Transcriber:  transcriber,
		Executor:     duckdbengine.NewEngine(objectStore),
		Logger:       logger,
		QueryTimeout: cfg.Query.Timeout,
		MaxRows:      cfg.Query.MaxRows,
	})
	if err != nil {
		logger.Error("failed to initialize session engine", slog.Any("error", err))
		os.Exit(1)
	}

	deps := api.Dependencies{
		Logger: logger,
		Engine: engine,
		Readiness: api.CombineReadinessChecks(
			catalogRepo.HealthCheck,
			api.CheckObjectStoreConfig(cfg),
		),
		DependencyTimout: time.Second,
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
