package testdb

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver
	"github.com/phrazzld/adscript-api/internal/platform/postgres"
	"github.com/stretchr/testify/require"
)

// TestTimeout defines a default timeout for test database operations.
const TestTimeout = 5 * time.Second

// Environment variables consulted for the test database URL, in order.
const (
	EnvTestDatabaseURL = "ADSCRIPT_TEST_DATABASE_URL"
	EnvDatabaseURL     = "DATABASE_URL"
)

var (
	migrateOnce sync.Once
	migrateErr  error
)

// GetTestDatabaseURL returns the first non-empty database URL from the environment.
func GetTestDatabaseURL() string {
	for _, key := range []string{EnvTestDatabaseURL, EnvDatabaseURL} {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return ""
}

// ShouldSkipDatabaseTest reports whether no test database is configured.
func ShouldSkipDatabaseTest() bool {
	return GetTestDatabaseURL() == ""
}

// GetTestDBWithT opens a connection to the test database, applies migrations
// once per process and closes the connection when the test ends. The test is
// skipped if no database is configured.
func GetTestDBWithT(t *testing.T) *sql.DB {
	t.Helper()

	dbURL := GetTestDatabaseURL()
	if dbURL == "" {
		t.Skip(EnvTestDatabaseURL + " not set - skipping integration test")
	}

	db, err := sql.Open("pgx", dbURL)
	require.NoError(t, err, "failed to open test database")
	t.Cleanup(func() { _ = db.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), TestTimeout)
	defer cancel()
	require.NoError(t, db.PingContext(ctx), "failed to ping test database")

	migrateOnce.Do(func() {
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		migrateErr = postgres.MigrateUp(context.Background(), db, logger)
	})
	require.NoError(t, migrateErr, "failed to migrate test database")

	return db
}
