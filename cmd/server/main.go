// Package main implements the entry point for the micronutrient radar API
// server, which accepts food photos, receipts and manual meal entries and
// aggregates their estimated micronutrients into weekly ledgers.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/dingsen2/micronutrient-radar/internal/config"
	"github.com/dingsen2/micronutrient-radar/internal/platform/logger"
	"github.com/dingsen2/micronutrient-radar/internal/platform/postgres"
)

func main() {
	migrateCmd := flag.String("migrate", "",
		"run a database migration command ("+strings.Join(postgres.MigrationCommands, "|")+") and exit")
	flag.Parse()

	if err := run(*migrateCmd); err != nil {
		slog.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

// run loads configuration, sets up logging and the database, then either
// runs a migration command or serves until SIGINT/SIGTERM.
func run(migrateCmd string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.Setup(cfg.Server)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}
	log.Info("server configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"storage_backend", cfg.Storage.Backend,
		"redis_cache", cfg.Cache.RedisURL != "",
		"skip_auth", cfg.Auth.SkipAuth)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := openDatabase(ctx, cfg.Database, log)
	if err != nil {
		return err
	}

	if migrateCmd != "" {
		defer func() { _ = db.Close() }()
		return postgres.Migrate(ctx, db, migrateCmd, log)
	}

	app, err := newApplication(ctx, cfg, log, db)
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	return app.Run(ctx)
}
