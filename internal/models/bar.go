package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Bar holds the fields shared by every derived bar type. Timestamp is the
// bar close time. A bar is immutable once emitted by its builder.
type Bar struct {
	// Symbol is the trading pair the bar was built for.
	Symbol string `json:"symbol"`

	// Timestamp is the close time of the bar.
	Timestamp time.Time `json:"timestamp"`

	// Open is the first price folded into the bar.
	Open decimal.Decimal `json:"open"`

	// High is the highest price folded into the bar.
	High decimal.Decimal `json:"high"`

	// Low is the lowest price folded into the bar.
	Low decimal.Decimal `json:"low"`

	// Close is the last price folded into the bar.
	Close decimal.Decimal `json:"close"`

	// Volume is the accumulated base-asset volume.
	Volume decimal.Decimal `json:"volume"`

	// QuoteVolume is the accumulated quote-asset volume.
	QuoteVolume decimal.Decimal `json:"quote_volume"`

	// Source is the originating exchange/venue.
	Source string `json:"source"`
}

// TickBar is a bar that closes after a fixed number of ticks.
type TickBar struct {
	Bar

	// TickSize is the configured number of ticks per bar.
	TickSize int `json:"tick_size"`

	// TickCount is the number of ticks folded into this bar. Equals
	// TickSize for full bars, less for force-completed partials.
	TickCount int `json:"tick_count"`

	// BuyTicks and SellTicks split TickCount by taker side.
	BuyTicks  int `json:"buy_ticks"`
	SellTicks int `json:"sell_ticks"`

	// BuyVolume and SellVolume split Volume by taker side.
	BuyVolume  decimal.Decimal `json:"buy_volume"`
	SellVolume decimal.Decimal `json:"sell_volume"`
}

// RangeBar is a bar that closes once price has travelled a fixed range.
type RangeBar struct {
	Bar

	// RangeThreshold is the configured minimum high-low span.
	RangeThreshold decimal.Decimal `json:"range_threshold"`

	// TickCount is the number of price updates folded into this bar.
	TickCount int `json:"tick_count"`

	// Duration is the wall time between the first and last update.
	Duration time.Duration `json:"duration"`
}

// RenkoSizingMethod selects how the renko brick size is derived.
type RenkoSizingMethod string

const (
	// RenkoSizingFixed uses a constant brick size.
	RenkoSizingFixed RenkoSizingMethod = "fixed"

	// RenkoSizingATR derives the brick size from the average true range
	// over a trailing period.
	RenkoSizingATR RenkoSizingMethod = "atr"

	// RenkoSizingPercent derives the brick size from a percentage of the
	// current price.
	RenkoSizingPercent RenkoSizingMethod = "percent"
)

// RenkoBrick is a fixed-size price movement brick. High and Low equal the
// brick's open and close ends per direction.
type RenkoBrick struct {
	Bar

	// BrickSize is the price span of the brick.
	BrickSize decimal.Decimal `json:"brick_size"`

	// IsUpBrick is true when Close > Open.
	IsUpBrick bool `json:"is_up_brick"`

	// IsReversal is true when this brick's direction differs from the
	// immediately preceding brick.
	IsReversal bool `json:"is_reversal"`

	// SourceDataPoints is the number of price updates that fed the brick.
	SourceDataPoints int `json:"source_data_points"`

	// SizingMethod records how BrickSize was derived.
	SizingMethod RenkoSizingMethod `json:"sizing_method"`
}
