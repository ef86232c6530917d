package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/tradegate/tradegate/configs"
	"github.com/tradegate/tradegate/internal/stream"
)

// defaultStreamSymbols covers the highest-volume pairs when STREAM_SYMBOLS
// is not set.
var defaultStreamSymbols = []string{
	"BTCUSDT", "ETHUSDT", "SOLUSDT", "XRPUSDT", "ADAUSDT",
	"DOGEUSDT", "LINKUSDT", "DOTUSDT", "LTCUSDT", "AVAXUSDT",
}

func main() {
	logger := stream.NewLogger()
	cfg := configs.AppLoad()

	symbols := defaultStreamSymbols
	if raw := os.Getenv("STREAM_SYMBOLS"); raw != "" {
		symbols = strings.Split(raw, ",")
	}

	writer := configs.GetKafkaWriter(&cfg.KafkaTicks)
	defer writer.Close()

	streamer := stream.NewBinanceStreamer(symbols, writer, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Streamer started")
	streamer.Run(ctx)
	logger.Info("Streamer shutdown complete")
}
