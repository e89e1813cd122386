package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/phrazzld/mediagate/internal/auth"
	"github.com/phrazzld/mediagate/internal/await"
	"github.com/phrazzld/mediagate/internal/config"
	"github.com/phrazzld/mediagate/internal/platform/gemini"
	"github.com/phrazzld/mediagate/internal/platform/postgres"
	"github.com/phrazzld/mediagate/internal/platform/soniox"
	"github.com/phrazzld/mediagate/internal/provider"
	"github.com/phrazzld/mediagate/internal/quota"
	"github.com/phrazzld/mediagate/internal/service"
	"github.com/phrazzld/mediagate/internal/store"
)

// application holds all the shared application dependencies to simplify
// management and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB

	taskStore store.TaskStore

	jwtService     auth.JWTService
	quotaGate      *quota.Gate
	providers      *provider.Registry
	signals        *await.Registry
	taskService    service.TaskService
	webhookService service.WebhookService
	monitor        *service.Monitor
}

// newApplication creates a new application instance with all dependencies
// initialized. Core dependencies like configuration, logger and database
// connection must be established before application initialization.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *sql.DB) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
		db:     db,
	}

	var err error
	app.jwtService, err = auth.NewJWTService(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize JWT service: %w", err)
	}
	logger.Info("JWT authentication service initialized",
		"token_lifetime_minutes", cfg.Auth.TokenLifetimeMinutes)

	app.taskStore = postgres.NewPostgresTaskStore(db)

	app.quotaGate = quota.NewGate(cfg.Quota, logger.With("component", "quota_gate"))

	app.providers, err = buildProviderRegistry(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build provider registry: %w", err)
	}

	app.signals = await.NewRegistry()

	app.taskService, err = service.NewTaskService(
		app.taskStore,
		app.quotaGate,
		app.providers,
		app.signals,
		cfg.Task,
		cfg.Server.PublicBaseURL,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create task service: %w", err)
	}

	app.webhookService, err = service.NewWebhookService(
		app.taskStore,
		app.providers,
		app.taskService,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create webhook service: %w", err)
	}

	app.monitor = service.NewMonitor(app.taskStore, service.MonitorConfig{
		StuckTaskAge:  cfg.Task.StuckTaskAge,
		CheckInterval: cfg.Task.StuckTaskCheckInterval,
	}, logger)
	app.monitor.Start()

	logger.Info("Application initialized successfully")
	return app, nil
}

// buildProviderRegistry constructs every configured provider adapter and
// registers them under their task kinds.
func buildProviderRegistry(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*provider.Registry, error) {
	geminiClient, err := gemini.NewClient(
		ctx,
		cfg.Providers.Gemini,
		logger.With("component", "gemini_client"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Gemini client: %w", err)
	}

	ocrAdapter, err := gemini.NewOCRAdapter(geminiClient)
	if err != nil {
		return nil, fmt.Errorf("failed to create OCR adapter: %w", err)
	}

	translateAdapter, err := gemini.NewTranslateAdapter(geminiClient, cfg.Providers.Gemini.TargetLanguage)
	if err != nil {
		return nil, fmt.Errorf("failed to create translate adapter: %w", err)
	}

	transcribeAdapter, err := soniox.NewAdapter(
		cfg.Providers.Soniox,
		logger.With("component", "soniox_adapter"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create transcription adapter: %w", err)
	}

	return provider.NewRegistry(ocrAdapter, translateAdapter, transcribeAdapter)
}

// Run starts the application server, handling lifecycle and cleanup.
func (app *application) Run(ctx context.Context) error {
	router := app.setupRouter()

	if err := app.startHTTPServer(ctx, router); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// cleanup handles graceful shutdown of application resources.
func (app *application) cleanup() {
	if app.monitor != nil {
		app.monitor.Stop()
	}

	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("Error closing database connection", "error", err)
		}
	}

	app.logger.Info("Application shutdown completed")
}
