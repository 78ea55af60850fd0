// Package testdb provides helpers for integration tests that need a real
// Postgres database. Tests that use it skip unless DATABASE_URL is set.
//
// Each test runs inside a transaction that is rolled back when the test
// finishes, so tests do not see each other's rows:
//
//	db := testdb.Open(t)
//	testdb.WithTx(t, db, func(t *testing.T, tx *sql.Tx) {
//		s := postgres.NewPostgresUserStore(tx, bcrypt.MinCost, slog.Default())
//		...
//	})
package testdb

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver
	"github.com/stretchr/testify/require"

	"github.com/dingsen2/micronutrient-radar/internal/platform/postgres"
)

// TestTimeout bounds the connection check and migration run.
const TestTimeout = 30 * time.Second

// DatabaseURLEnv names the variable holding the test database URL.
const DatabaseURLEnv = "DATABASE_URL"

var (
	migrateOnce sync.Once
	migrateErr  error
)

// DatabaseURL returns the test database URL, or "" when none is configured.
func DatabaseURL() string {
	return os.Getenv(DatabaseURLEnv)
}

// Open connects to the test database, applies the embedded migrations once
// per test binary and closes the pool when t finishes. It skips t when
// DATABASE_URL is not set.
func Open(t *testing.T) *sql.DB {
	t.Helper()

	url := DatabaseURL()
	if url == "" {
		t.Skip(DatabaseURLEnv + " not set - skipping integration test")
	}

	db, err := sql.Open("pgx", url)
	require.NoError(t, err, "failed to open database connection")
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	t.Cleanup(func() { _ = db.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), TestTimeout)
	defer cancel()
	require.NoError(t, db.PingContext(ctx), "database ping failed")

	migrateOnce.Do(func() {
		quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
		migrateErr = postgres.Migrate(ctx, db, "up", quiet)
	})
	require.NoError(t, migrateErr, "failed to apply migrations")

	return db
}

// WithTx runs fn inside a transaction that is always rolled back.
func WithTx(t *testing.T, db *sql.DB, fn func(t *testing.T, tx *sql.Tx)) {
	t.Helper()

	tx, err := db.BeginTx(context.Background(), nil)
	require.NoError(t, err, "failed to begin transaction")
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			t.Logf("failed to roll back test transaction: %v", err)
		}
	}()

	fn(t, tx)
}
