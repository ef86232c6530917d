// Package storage provides database storage implementations for market data
// and derived bar series.
package storage

import (
	"context"
	"time"

	"github.com/tradegate/tradegate/internal/models"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// MarketStore defines the interface for persisting market data and bars.
// Implementations must be safe for concurrent use.
type MarketStore interface {
	// InsertMarketData inserts a batch of OHLCV records and returns the
	// number of records persisted.
	InsertMarketData(ctx context.Context, records []*models.MarketData) (int, error)

	// InsertTickBars inserts a batch of completed tick bars.
	InsertTickBars(ctx context.Context, bars []*models.TickBar) error

	// InsertRangeBars inserts a batch of completed range bars.
	InsertRangeBars(ctx context.Context, bars []*models.RangeBar) error

	// InsertRenkoBricks inserts a batch of completed renko bricks.
	InsertRenkoBricks(ctx context.Context, bricks []*models.RenkoBrick) error

	// Close releases database connection resources.
	Close() error
}

// clickhouseStore implements MarketStore using the native ClickHouse driver.
// Uses batch inserts for high-throughput data ingestion.
type clickhouseStore struct {
	conn driver.Conn
}

// NewClickHouseStore creates a new ClickHouse storage connection.
// It parses the DSN, opens a connection, and verifies connectivity with a ping.
// Returns an error if connection cannot be established within 5 seconds.
func NewClickHouseStore(dsn string) (MarketStore, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, err
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, err
	}

	// Test connection with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Ping(ctx); err != nil {
		return nil, err
	}

	return &clickhouseStore{conn: conn}, nil
}

// InsertMarketData inserts records using ClickHouse batch insert.
// The market_data table uses a ReplacingMergeTree keyed on
// (timestamp, symbol, source), so re-fetched candles collapse to the
// latest version instead of duplicating.
func (s *clickhouseStore) InsertMarketData(ctx context.Context, records []*models.MarketData) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO market_data (
			timestamp, symbol, source,
			open, high, low, close, volume, quote_volume,
			trades_count, vwap, inserted_at
		)
	`)
	if err != nil {
		return 0, err
	}

	now := time.Now()
	for _, r := range records {
		err := batch.Append(
			r.Timestamp,
			r.Symbol,
			r.Source,
			r.Open,
			r.High,
			r.Low,
			r.Close,
			r.Volume,
			r.QuoteVolume,
			r.TradesCount,
			r.VWAP,
			now,
		)
		if err != nil {
			return 0, err
		}
	}

	if err := batch.Send(); err != nil {
		return 0, err
	}
	return len(records), nil
}

// InsertTickBars inserts tick bar rows using ClickHouse batch insert.
func (s *clickhouseStore) InsertTickBars(ctx context.Context, bars []*models.TickBar) error {
	if len(bars) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO tick_bar (
			timestamp, symbol, source,
			open, high, low, close, volume, quote_volume,
			tick_size, tick_count, buy_ticks, sell_ticks,
			buy_volume, sell_volume, inserted_at
		)
	`)
	if err != nil {
		return err
	}

	now := time.Now()
	for _, b := range bars {
		err := batch.Append(
			b.Timestamp,
			b.Symbol,
			b.Source,
			b.Open.InexactFloat64(),
			b.High.InexactFloat64(),
			b.Low.InexactFloat64(),
			b.Close.InexactFloat64(),
			b.Volume.InexactFloat64(),
			b.QuoteVolume.InexactFloat64(),
			int32(b.TickSize),
			int32(b.TickCount),
			int32(b.BuyTicks),
			int32(b.SellTicks),
			b.BuyVolume.InexactFloat64(),
			b.SellVolume.InexactFloat64(),
			now,
		)
		if err != nil {
			return err
		}
	}

	return batch.Send()
}

// InsertRangeBars inserts range bar rows using ClickHouse batch insert.
func (s *clickhouseStore) InsertRangeBars(ctx context.Context, bars []*models.RangeBar) error {
	if len(bars) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO range_bar (
			timestamp, symbol, source,
			open, high, low, close, volume, quote_volume,
			range_threshold, tick_count, duration_ms, inserted_at
		)
	`)
	if err != nil {
		return err
	}

	now := time.Now()
	for _, b := range bars {
		err := batch.Append(
			b.Timestamp,
			b.Symbol,
			b.Source,
			b.Open.InexactFloat64(),
			b.High.InexactFloat64(),
			b.Low.InexactFloat64(),
			b.Close.InexactFloat64(),
			b.Volume.InexactFloat64(),
			b.QuoteVolume.InexactFloat64(),
			b.RangeThreshold.InexactFloat64(),
			int32(b.TickCount),
			b.Duration.Milliseconds(),
			now,
		)
		if err != nil {
			return err
		}
	}

	return batch.Send()
}

// InsertRenkoBricks inserts renko brick rows using ClickHouse batch insert.
func (s *clickhouseStore) InsertRenkoBricks(ctx context.Context, bricks []*models.RenkoBrick) error {
	if len(bricks) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO renko_brick (
			timestamp, symbol, source,
			open, high, low, close, volume, quote_volume,
			brick_size, is_up_brick, is_reversal,
			source_data_points, sizing_method, inserted_at
		)
	`)
	if err != nil {
		return err
	}

	now := time.Now()
	for _, b := range bricks {
		err := batch.Append(
			b.Timestamp,
			b.Symbol,
			b.Source,
			b.Open.InexactFloat64(),
			b.High.InexactFloat64(),
			b.Low.InexactFloat64(),
			b.Close.InexactFloat64(),
			b.Volume.InexactFloat64(),
			b.QuoteVolume.InexactFloat64(),
			b.BrickSize.InexactFloat64(),
			b.IsUpBrick,
			b.IsReversal,
			int32(b.SourceDataPoints),
			string(b.SizingMethod),
			now,
		)
		if err != nil {
			return err
		}
	}

	return batch.Send()
}

// Close closes the ClickHouse connection.
func (s *clickhouseStore) Close() error {
	return s.conn.Close()
}
