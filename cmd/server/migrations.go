package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/phrazzld/adscript-api/internal/config"
	"github.com/phrazzld/adscript-api/internal/platform/postgres"
	"github.com/pressly/goose/v3"
)

// migrationSourceDir is where new migrations are written, relative to the repository root.
const migrationSourceDir = "internal/platform/postgres/" + postgres.MigrationsDir

var (
	// ErrUnknownMigrationCommand is returned for an unsupported -migrate value.
	ErrUnknownMigrationCommand = errors.New("unknown migration command")

	// ErrMigrationNameRequired is returned when -migrate=create has no -name.
	ErrMigrationNameRequired = errors.New("migration name is required for create")
)

// runMigrations executes a goose command against the configured database.
// Supported commands are up, down, status, version, reset and create.
func runMigrations(ctx context.Context, cfg *config.Config, logger *slog.Logger, command, name string) error {
	logger = logger.With("component", "migrations", "command", command)

	switch command {
	case "create":
		return createMigration(logger, name)
	case "up", "down", "status", "version", "reset":
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMigrationCommand, command)
	}

	db, err := sql.Open("pgx", cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			logger.Error("failed to close database connection", "error", closeErr)
		}
	}()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	if err := postgres.ConfigureGoose(logger); err != nil {
		return err
	}

	logger.Info("running migration command")
	switch command {
	case "up":
		err = goose.UpContext(ctx, db, postgres.MigrationsDir)
	case "down":
		err = goose.DownContext(ctx, db, postgres.MigrationsDir)
	case "status":
		err = goose.StatusContext(ctx, db, postgres.MigrationsDir)
	case "reset":
		err = goose.ResetContext(ctx, db, postgres.MigrationsDir)
	case "version":
		var version int64
		version, err = goose.GetDBVersionContext(ctx, db)
		if err == nil {
			logger.Info("current database version", "version", version)
		}
	}
	if err != nil {
		return fmt.Errorf("migration %s failed: %w", command, err)
	}

	logger.Info("migration command completed")
	return nil
}

// createMigration writes a new timestamped SQL migration. It needs no database.
func createMigration(logger *slog.Logger, name string) error {
	if name == "" {
		return ErrMigrationNameRequired
	}

	goose.SetBaseFS(nil)
	if err := goose.Create(nil, migrationSourceDir, name, "sql"); err != nil {
		return fmt.Errorf("failed to create migration: %w", err)
	}

	logger.Info("migration created", "name", name, "dir", migrationSourceDir)
	return nil
}
