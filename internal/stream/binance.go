package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tradegate/tradegate/internal/models"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

const binanceStreamURL = "wss://stream.binance.com:9443/stream"

// binanceTrade is one event from a combined @trade stream.
type binanceTrade struct {
	Stream string `json:"stream"`
	Data   struct {
		EventType    string `json:"e"`
		Symbol       string `json:"s"`
		TradeID      int64  `json:"t"`
		Price        string `json:"p"`
		Quantity     string `json:"q"`
		TradeTime    int64  `json:"T"`
		IsBuyerMaker bool   `json:"m"`
	} `json:"data"`
}

// BinanceStreamer subscribes to Binance trade streams and publishes
// normalized ticks to Kafka, keyed by symbol so one symbol's ticks land
// on one partition in order.
type BinanceStreamer struct {
	symbols []string
	writer  *kafka.Writer
	logger  *logrus.Logger
}

// NewBinanceStreamer builds a streamer for the given symbols.
func NewBinanceStreamer(symbols []string, writer *kafka.Writer, logger *logrus.Logger) *BinanceStreamer {
	return &BinanceStreamer{symbols: symbols, writer: writer, logger: logger}
}

// Run blocks until the context is cancelled, keeping one websocket
// worker alive per chunk of symbols.
func (s *BinanceStreamer) Run(ctx context.Context) {
	chunks := chunkSymbols(s.symbols, maxStreamsPerConnection)
	s.logger.WithFields(logrus.Fields{
		"symbols": len(s.symbols),
		"workers": len(chunks),
	}).Info("Starting Binance trade streamer")

	var wg sync.WaitGroup
	for i, chunk := range chunks {
		worker := &socketWorker{
			url:       combinedStreamURL(chunk),
			logger:    s.logger,
			onMessage: s.handleMessage,
		}
		wg.Add(1)
		go worker.run(ctx, fmt.Sprintf("binance-%d", i), &wg)
	}
	wg.Wait()
}

// handleMessage converts one trade event into a tick and publishes it.
func (s *BinanceStreamer) handleMessage(raw []byte) error {
	var event binanceTrade
	if err := json.Unmarshal(raw, &event); err != nil {
		return fmt.Errorf("decoding trade event: %w", err)
	}
	if event.Data.EventType != "trade" {
		return nil
	}

	price, err := strconv.ParseFloat(event.Data.Price, 64)
	if err != nil {
		return fmt.Errorf("parsing price %q: %w", event.Data.Price, err)
	}
	volume, err := strconv.ParseFloat(event.Data.Quantity, 64)
	if err != nil {
		return fmt.Errorf("parsing quantity %q: %w", event.Data.Quantity, err)
	}

	// m is true when the buyer is the maker, so the taker sold
	side := "buy"
	if event.Data.IsBuyerMaker {
		side = "sell"
	}

	tick := models.Tick{
		ID:          strconv.FormatInt(event.Data.TradeID, 10),
		Source:      "binance",
		Symbol:      event.Data.Symbol,
		Side:        side,
		Price:       price,
		Volume:      volume,
		QuoteVolume: price * volume,
		EventTime:   time.UnixMilli(event.Data.TradeTime).UTC(),
	}

	value, err := json.Marshal(tick)
	if err != nil {
		return fmt.Errorf("encoding tick: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err = s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(tick.Symbol),
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("publishing tick for %s: %w", tick.Symbol, err)
	}
	return nil
}

// combinedStreamURL builds a combined-stream endpoint for one chunk,
// e.g. .../stream?streams=btcusdt@trade/ethusdt@trade.
func combinedStreamURL(symbols []string) string {
	streams := make([]string, len(symbols))
	for i, symbol := range symbols {
		streams[i] = strings.ToLower(symbol) + "@trade"
	}
	return binanceStreamURL + "?streams=" + strings.Join(streams, "/")
}
