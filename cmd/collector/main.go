package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/tradegate/tradegate/configs"
	"github.com/tradegate/tradegate/internal/channel"
	"github.com/tradegate/tradegate/internal/orchestrator"
	"github.com/tradegate/tradegate/internal/storage"
)

func main() {
	logger := channel.NewLogger()
	cfg := configs.AppLoad()

	store, err := storage.NewClickHouseStore(cfg.MarketDataDSN)
	if err != nil {
		logger.Fatalf("Failed to connect to ClickHouse: %v", err)
	}
	defer store.Close()

	writer := configs.GetKafkaWriter(&cfg.KafkaMarketData)
	publisher := orchestrator.NewKafkaPublisher(writer)
	defer publisher.Close()

	channels := []channel.Connector{
		channel.NewBinance(logger),
		channel.NewOKX(logger),
		channel.NewCoinbase(logger),
		channel.NewKraken(logger),
	}

	orch := orchestrator.New(channels, store, publisher, cfg.Orchestrator, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Collector started")
	orch.Run(ctx)
	logger.Info("Collector shutdown complete")
}
