package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/adscript-api/internal/config"
	"github.com/phrazzld/adscript-api/internal/events"
	"github.com/phrazzld/adscript-api/internal/job"
	"github.com/phrazzld/adscript-api/internal/platform/n8n"
	"github.com/phrazzld/adscript-api/internal/platform/postgres"
	"github.com/phrazzld/adscript-api/internal/platform/slack"
	"github.com/phrazzld/adscript-api/internal/service"
	"github.com/phrazzld/adscript-api/internal/service/auth"
	"github.com/phrazzld/adscript-api/internal/store"
)

// jobTimeoutMargin is added to the n8n request timeout so a dispatch attempt
// can record its failure after the HTTP client gives up.
const jobTimeoutMargin = 30 * time.Second

// application holds all the shared application dependencies to simplify management
// and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB

	taskStore store.AdScriptTaskStore
	userStore store.UserStore
	jobStore  job.Store

	jwtService       auth.JWTService
	passwordVerifier auth.PasswordVerifier
	adScriptService  service.AdScriptService
	userService      service.UserService

	eventEmitter *events.InMemoryEventEmitter
	dispatcher   *n8n.Client
	notifier     *slack.Notifier
	jobRunner    *job.Runner
}

// newApplication creates a new application instance with all dependencies initialized.
// The database connection must already be established.
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

	app.passwordVerifier = auth.NewBcryptVerifier()

	app.taskStore = postgres.NewPostgresAdScriptTaskStore(db, logger)
	app.userStore = postgres.NewPostgresUserStore(db, cfg.Auth.BCryptCost, logger)
	app.jobStore = postgres.NewPostgresJobStore(db, logger)

	app.eventEmitter = events.NewInMemoryEventEmitter(logger)

	app.adScriptService, err = service.NewAdScriptService(app.taskStore, app.eventEmitter, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create ad script service: %w", err)
	}
	app.userService = service.NewUserService(app.userStore, app.passwordVerifier, logger)

	app.dispatcher = n8n.NewClient(n8n.Config{
		WebhookURL: cfg.N8N.WebhookURL,
		APIKey:     cfg.N8N.APIKey,
		Timeout:    cfg.N8N.Timeout(),
	}, logger)
	if !app.dispatcher.Configured() {
		logger.Warn("n8n webhook URL is not configured, new tasks will fail on dispatch")
	}

	app.notifier = slack.NewNotifier(slack.Config{
		WebhookURL: cfg.Slack.WebhookURL,
		BaseURL:    cfg.App.BaseURL,
		Timeout:    cfg.Slack.Timeout(),
	}, logger)

	app.jobRunner, err = setupJobRunner(ctx, app)
	if err != nil {
		return nil, fmt.Errorf("failed to setup job runner: %w", err)
	}

	logger.Info("Application initialized successfully")
	return app, nil
}

// setupJobRunner builds the dispatch pipeline, subscribes it and the Slack
// notifier to task events, and starts the runner.
func setupJobRunner(ctx context.Context, app *application) (*job.Runner, error) {
	runner := job.NewRunner(app.jobStore, job.RunnerConfig{
		WorkerCount:           app.config.Job.WorkerCount,
		QueueSize:             app.config.Job.QueueSize,
		MaxAttempts:           app.config.N8N.Retry.MaxAttempts,
		RetryDelay:            app.config.N8N.Retry.Delay(),
		JobTimeout:            app.config.N8N.Timeout() + jobTimeoutMargin,
		StuckJobAge:           time.Duration(app.config.Job.StuckJobAgeMinutes) * time.Minute,
		StuckJobCheckInterval: time.Minute,
	}, app.logger)

	factory := job.NewDispatchJobFactory(
		app.adScriptService,
		app.dispatcher,
		app.eventEmitter,
		app.config.App.BaseURL,
		app.logger,
	)
	runner.RegisterFactory(factory)

	app.eventEmitter.RegisterHandler(job.NewDispatchEventHandler(factory, runner, app.logger))
	app.eventEmitter.RegisterHandler(app.notifier)

	if err := runner.Start(); err != nil {
		return nil, fmt.Errorf("failed to start job runner: %w", err)
	}

	app.logger.InfoContext(ctx, "job runner started",
		"worker_count", app.config.Job.WorkerCount,
		"max_attempts", app.config.N8N.Retry.MaxAttempts)
	return runner, nil
}

// Run serves HTTP until ctx is done, then releases all resources.
func (app *application) Run(ctx context.Context) error {
	router := app.setupRouter()

	if err := app.startHTTPServer(ctx, router); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// cleanup handles graceful shutdown of application resources.
func (app *application) cleanup() {
	if app.jobRunner != nil {
		app.jobRunner.Stop()
	}

	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("Error closing database connection", "error", err)
		}
	}

	app.logger.Info("Application shutdown completed")
}
