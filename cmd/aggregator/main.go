package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/tradegate/tradegate/configs"
	"github.com/tradegate/tradegate/internal/aggregator"
	"github.com/tradegate/tradegate/internal/storage"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	cfg := configs.AppLoad()

	store, err := storage.NewClickHouseStore(cfg.MarketDataDSN)
	if err != nil {
		logger.Error("Failed to connect to ClickHouse", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	reader := configs.GetKafkaReader(&cfg.KafkaTicks)
	defer reader.Close()

	agg := aggregator.New(reader, store, logger, cfg.Aggregator, cfg.Bars)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Aggregator started")
	if err := agg.Start(ctx); err != nil {
		logger.Error("Aggregator stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("Aggregator shutdown complete")
}
