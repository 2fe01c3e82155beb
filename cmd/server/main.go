// Package main is the entry point for the adscript-api server. It accepts ad
// script rewrite tasks, dispatches them to an n8n workflow in the background
// and records the results n8n posts back.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver
	"github.com/phrazzld/adscript-api/internal/config"
	"github.com/phrazzld/adscript-api/internal/platform/logger"
)

func main() {
	migrateCmd := flag.String("migrate", "",
		"Run database migrations: up, down, status, version, reset or create")
	migrationName := flag.String("name", "", "Name of the migration to create (with -migrate=create)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLogger, err := logger.Setup(cfg.Server)
	if err != nil {
		log.Fatalf("Failed to set up logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *migrateCmd != "" {
		if err := runMigrations(ctx, cfg, appLogger, *migrateCmd, *migrationName); err != nil {
			appLogger.Error("migration failed", "command", *migrateCmd, "error", err)
			os.Exit(1)
		}
		return
	}

	if err := run(ctx, cfg, appLogger); err != nil {
		appLogger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

// run connects to the database, wires the application and serves until ctx is done.
func run(ctx context.Context, cfg *config.Config, appLogger *slog.Logger) error {
	appLogger.Info("server configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"n8n_configured", cfg.N8N.WebhookURL != "",
		"slack_configured", cfg.Slack.WebhookURL != "")

	db, err := setupDatabase(ctx, cfg.Database, appLogger)
	if err != nil {
		return err
	}

	app, err := newApplication(ctx, cfg, appLogger, db)
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	return app.Run(ctx)
}

// setupDatabase opens the connection pool and verifies it with a ping.
func setupDatabase(ctx context.Context, cfg config.DatabaseConfig, appLogger *slog.Logger) (*sql.DB, error) {
	db, err := sql.Open("pgx", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	appLogger.Info("database connection established",
		"max_open_conns", cfg.MaxOpenConns,
		"max_idle_conns", cfg.MaxIdleConns)
	return db, nil
}
