// Package main provides the entry point for the ScholarVault API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/scholarvault/scholarvault-service/internal/auth"
	"github.com/scholarvault/scholarvault-service/internal/config"
	"github.com/scholarvault/scholarvault-service/internal/database"
	"github.com/scholarvault/scholarvault-service/internal/events"
	"github.com/scholarvault/scholarvault-service/internal/llm"
	"github.com/scholarvault/scholarvault-service/internal/metadata"
	"github.com/scholarvault/scholarvault-service/internal/observability"
	"github.com/scholarvault/scholarvault-service/internal/papersources/crossref"
	"github.com/scholarvault/scholarvault-service/internal/pdf"
	"github.com/scholarvault/scholarvault-service/internal/repository"
	"github.com/scholarvault/scholarvault-service/internal/server"
	httpserver "github.com/scholarvault/scholarvault-service/internal/server/http"
	"github.com/scholarvault/scholarvault-service/internal/storage"
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
		return fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
	})
	logger = logger.With().Str("component", "server").Logger()
	logger.Info().Msg("scholarvault server starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics(cfg.Metrics.Namespace)
	}

	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()
	logger.Info().Msg("database connection established")

	if cfg.Database.MigrationAutoRun {
		if err := migrate(db, cfg.Database.MigrationPath, logger); err != nil {
			return err
		}
	}

	files, err := storage.NewFileStore(cfg.Storage.UploadDir, cfg.Storage.PublicPrefix)
	if err != nil {
		return fmt.Errorf("create file store: %w", err)
	}

	tokens, err := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		return fmt.Errorf("create token issuer: %w", err)
	}

	publisher, err := newPublisher(cfg.Kafka, metrics, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close event publisher")
		}
	}()

	engine := newEngine(cfg, metrics, logger)
	if cfg.OpenAI.APIKey == "" {
		logger.Warn().Msg("OPENAI_API_KEY not set, completion extraction disabled")
	}

	httpSrv := httpserver.NewServer(httpserver.Config{
		Address:              cfg.Server.HTTPAddress(),
		ReadTimeout:          cfg.Server.ReadTimeout,
		WriteTimeout:         cfg.Server.WriteTimeout,
		IdleTimeout:          2 * time.Minute,
		MaxBodyBytes:         cfg.Server.MaxBodyBytes,
		CORSAllowedOrigins:   cfg.Server.CORSAllowedOrigins,
		MaxProfileImageBytes: cfg.Storage.MaxProfileImageBytes,
	}, httpserver.Deps{
		Users:       repository.NewPgUserRepository(db),
		Documents:   repository.NewPgDocumentRepository(db),
		Collections: repository.NewPgCollectionRepository(db),
		Enricher:    engine,
		Fetcher: pdf.NewFetcher(pdf.FetcherConfig{
			Timeout:              cfg.Importer.Timeout,
			MaxSize:              cfg.Server.MaxBodyBytes,
			AllowPrivateNetworks: cfg.Importer.AllowPrivateNetworks,
		}),
		Files:     files,
		Tokens:    tokens,
		Passwords: auth.NewPasswordHasher(cfg.Auth.BcryptCost),
		Health:    db,
		Publisher: publisher,
		Metrics:   metrics,
	}, logger)

	var healthSrv *server.HealthServer
	if cfg.Server.GRPCPort > 0 {
		healthSrv = server.NewHealthServer(server.Config{Address: cfg.Server.GRPCAddress()}, db, logger)
		go healthSrv.Watch(ctx)
	}

	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle(cfg.Metrics.Path, promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress(),
			Handler:      metricsMux,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		}
	}

	errCh := make(chan error, 3)

	go func() {
		if err := httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	if healthSrv != nil {
		go func() {
			if err := healthSrv.Start(); err != nil {
				errCh <- fmt.Errorf("gRPC server error: %w", err)
			}
		}()
	}

	if metricsServer != nil {
		go func() {
			logger.Info().Str("address", metricsServer.Addr).Msg("metrics server starting")
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server error: %w", err)
			}
		}()
	}

	readyLog := logger.Info().Str("http_address", cfg.Server.HTTPAddress())
	if healthSrv != nil {
		readyLog = readyLog.Str("grpc_address", cfg.Server.GRPCAddress())
	}
	if metricsServer != nil {
		readyLog = readyLog.Str("metrics_address", metricsServer.Addr)
	}
	readyLog.Msg("scholarvault is ready")

	select {
	case <-ctx.Done():
		logger.Info().Msg("received shutdown signal")
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
		return err
	}

	logger.Info().Msg("shutting down scholarvault")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	}

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("metrics server shutdown error")
		}
	}

	if healthSrv != nil {
		healthSrv.Shutdown(shutdownCtx)
	}

	logger.Info().Msg("scholarvault shutdown complete")
	return nil
}

func migrate(db *database.DB, path string, logger zerolog.Logger) error {
	migrator, err := database.NewMigrator(db, path, logger)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			logger.Error().Err(closeErr).Msg("failed to close migrator")
		}
	}()

	if err := migrator.Up(); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// newEngine assembles the metadata pipeline.
func newEngine(cfg *config.Config, metrics *observability.Metrics, logger zerolog.Logger) *metadata.Engine {
	registry := crossref.New(crossref.Config{
		BaseURL:    cfg.CrossRef.BaseURL,
		Mailto:     cfg.CrossRef.Mailto,
		Timeout:    cfg.CrossRef.Timeout,
		MaxRetries: cfg.CrossRef.MaxRetries,
		RateLimit:  cfg.CrossRef.RateLimit,
	}, metrics, logger)

	completer := llm.NewOpenAIClient(llm.OpenAIConfig{
		APIKey:     cfg.OpenAI.APIKey,
		Model:      cfg.OpenAI.Model,
		BaseURL:    cfg.OpenAI.BaseURL,
		Timeout:    cfg.OpenAI.Timeout,
		MaxRetries: cfg.OpenAI.MaxRetries,
	})

	return metadata.NewEngine(
		pdf.NewTextExtractor(cfg.OpenAI.ExcerptLength),
		registry,
		llm.NewRecordExtractor(completer, metrics, logger),
		metadata.WithMetrics(metrics),
		metadata.WithLogger(logger.With().Str("component", "metadata").Logger()),
	)
}

// newPublisher returns a Kafka publisher when enabled, otherwise a no-op.
func newPublisher(cfg config.KafkaConfig, metrics *observability.Metrics, logger zerolog.Logger) (events.Publisher, error) {
	if !cfg.Enabled {
		return events.NoopPublisher{}, nil
	}

	pub, err := events.NewKafkaPublisher(events.Config{
		Brokers:      cfg.Brokers,
		Topic:        cfg.Topic,
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
	}, metrics, logger)
	if err != nil {
		return nil, fmt.Errorf("create event publisher: %w", err)
	}
	logger.Info().Strs("brokers", cfg.Brokers).Str("topic", cfg.Topic).Msg("kafka event publisher enabled")
	return pub, nil
}
