package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"

	"github.com/pressly/goose/v3"
)

// MigrationsDir is the migrations directory inside Migrations, and the
// source directory new migrations are created in relative to this package.
const MigrationsDir = "migrations"

// MigrationTableName is the goose version table.
const MigrationTableName = "schema_migrations"

// Migrations holds the SQL migrations compiled into the binary.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// slogGooseLogger adapts slog to goose's logger interface.
type slogGooseLogger struct {
	logger *slog.Logger
}

func (l *slogGooseLogger) Printf(format string, v ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, v...))
}

func (l *slogGooseLogger) Fatalf(format string, v ...interface{}) {
	// goose calls Fatalf only from its CLI helpers, which are not used here
	l.logger.Error(fmt.Sprintf(format, v...))
}

// ConfigureGoose points goose at the embedded migrations. It mutates goose's
// package-level state, so callers must not run migrations concurrently.
func ConfigureGoose(logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	goose.SetBaseFS(Migrations)
	goose.SetLogger(&slogGooseLogger{logger: logger.With("component", "migrations")})
	goose.SetTableName(MigrationTableName)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}
	return nil
}

// MigrateUp applies all pending embedded migrations.
func MigrateUp(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	if err := ConfigureGoose(logger); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, db, MigrationsDir); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}
