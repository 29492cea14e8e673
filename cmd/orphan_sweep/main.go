package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"chunkdrive/internal/config"
	"chunkdrive/internal/database"
	"chunkdrive/internal/domain/file"
	"chunkdrive/internal/modules/deletion"
	"chunkdrive/internal/pkg/logging"
	"chunkdrive/internal/transport"

	"github.com/spf13/pflag"
)

// Exit codes: 0 ledger drained, 1 sweep could not run, 2 some deletes failed.
func main() {
	limit := pflag.Int("limit", 1000, "maximum ledger entries to process")
	pflag.Parse()

	config.LoadDotEnv()
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	os.Exit(run(cfg, *limit, logging.New(cfg.LogLevel, cfg.LogFormat)))
}

func run(cfg *config.Config, limit int, logger *slog.Logger) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.Error("db connect failed", slog.String("error", err.Error()))
		return 1
	}
	defer database.Close(db)

	store, err := transport.Open(ctx, cfg.Transport, logger)
	if err != nil {
		logger.Error("transport open failed", slog.String("error", err.Error()))
		return 1
	}
	defer store.Close()

	result, err := deletion.NewSweeper(file.NewOrphanLedger(db), store, logger).RunOnce(ctx, limit)
	if err != nil {
		logger.Error("orphan sweep failed", slog.String("error", err.Error()))
		return 1
	}
	if result.Failed > 0 {
		return 2
	}
	return 0
}
