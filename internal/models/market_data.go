// Package models defines the domain models shared across the application.
package models

import "time"

// MarketData represents a single OHLCV record fetched from an exchange
// channel. This is the canonical format used for storage and Kafka
// transport, normalized from exchange-specific kline formats.
type MarketData struct {
	// Timestamp is the open time of the candle.
	Timestamp time.Time `json:"timestamp"`

	// Symbol is the trading pair in the venue's native format
	// (e.g. "BTCUSDT", "BTC-USD").
	Symbol string `json:"symbol"`

	// Source is the exchange name (e.g. "binance", "kraken").
	Source string `json:"source"`

	// Open is the opening price of the candle.
	Open float64 `json:"open"`

	// High is the highest price during the candle period.
	High float64 `json:"high"`

	// Low is the lowest price during the candle period.
	Low float64 `json:"low"`

	// Close is the closing price of the candle.
	Close float64 `json:"close"`

	// Volume is the base-asset volume during the candle period.
	Volume float64 `json:"volume"`

	// QuoteVolume is the quote-asset volume, when the venue reports it.
	QuoteVolume float64 `json:"quote_volume"`

	// TradesCount is the number of trades in the candle, when reported.
	TradesCount int64 `json:"trades_count"`

	// VWAP is the volume weighted average price, computed at ingest time.
	VWAP float64 `json:"vwap"`

	// InsertedAt is when the record was inserted into our database.
	InsertedAt time.Time `json:"inserted_at"`
}

// Valid reports whether the record satisfies basic OHLC consistency:
// low <= open/close <= high and non-negative volume. Records failing
// validation are dropped before persistence.
func (m *MarketData) Valid() bool {
	if m.Symbol == "" || m.Source == "" || m.Timestamp.IsZero() {
		return false
	}
	if m.High < m.Low {
		return false
	}
	if m.Open < m.Low || m.Open > m.High {
		return false
	}
	if m.Close < m.Low || m.Close > m.High {
		return false
	}
	return m.Volume >= 0
}

// ComputeVWAP returns quote volume over base volume, falling back to the
// typical price (H+L+C)/3 when the venue does not report quote volume.
func (m *MarketData) ComputeVWAP() float64 {
	if m.QuoteVolume > 0 && m.Volume > 0 {
		return m.QuoteVolume / m.Volume
	}
	return (m.High + m.Low + m.Close) / 3
}

// Tick represents a single trade event streamed from an exchange
// websocket feed. Ticks are the input to the tick/range/renko builders.
type Tick struct {
	// ID is a venue trade id, or a hash when the venue does not assign one.
	ID string `json:"id"`

	// Source is the exchange name.
	Source string `json:"source"`

	// Symbol is the trading pair.
	Symbol string `json:"symbol"`

	// Side is "buy" or "sell" (taker side), empty when unknown.
	Side string `json:"side"`

	// Price is the trade price.
	Price float64 `json:"price"`

	// Volume is the base-asset amount.
	Volume float64 `json:"volume"`

	// QuoteVolume is price * volume.
	QuoteVolume float64 `json:"quote_volume"`

	// EventTime is the venue-reported trade time.
	EventTime time.Time `json:"event_time"`
}
