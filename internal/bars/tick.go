package bars

import (
	"fmt"
	"time"

	"github.com/tradegate/tradegate/internal/models"

	"github.com/shopspring/decimal"
)

// TickBarBuilder folds incoming ticks into bars of exactly tickSize
// ticks. A bar completes the instant the tickSize-th tick arrives, so at
// most one bar is emitted per call.
type TickBarBuilder struct {
	symbol   string
	source   string
	tickSize int

	open, high, low, close decimal.Decimal
	volume, quoteVolume    decimal.Decimal
	buyVolume, sellVolume  decimal.Decimal
	tickCount              int
	buyTicks, sellTicks    int
	lastTime               time.Time
}

// NewTickBarBuilder creates a builder for one symbol.
func NewTickBarBuilder(symbol, source string, tickSize int) (*TickBarBuilder, error) {
	if tickSize <= 0 {
		return nil, fmt.Errorf("%w: tick size must be positive, got %d", ErrInvalidConfiguration, tickSize)
	}
	return &TickBarBuilder{symbol: symbol, source: source, tickSize: tickSize}, nil
}

// ProcessPrice folds one tick into the current bar. Side is the taker
// side ("buy" or "sell"), empty when unknown. Returns the completed bar
// when this tick is the tickSize-th since the last reset, nil otherwise.
func (b *TickBarBuilder) ProcessPrice(price, volume, quoteVolume decimal.Decimal, ts time.Time, side string) []*models.TickBar {
	if b.tickCount == 0 {
		b.open = price
		b.high = price
		b.low = price
	} else {
		if price.GreaterThan(b.high) {
			b.high = price
		}
		if price.LessThan(b.low) {
			b.low = price
		}
	}
	b.close = price
	b.volume = b.volume.Add(volume)
	b.quoteVolume = b.quoteVolume.Add(quoteVolume)
	b.tickCount++
	b.lastTime = ts

	switch side {
	case "buy":
		b.buyTicks++
		b.buyVolume = b.buyVolume.Add(volume)
	case "sell":
		b.sellTicks++
		b.sellVolume = b.sellVolume.Add(volume)
	}

	if b.tickCount < b.tickSize {
		return nil
	}
	return []*models.TickBar{b.emit()}
}

// ForceComplete emits the current partial bar, e.g. at session close.
// It is the only way to flush a non-full bar. Returns nil when no ticks
// are pending.
func (b *TickBarBuilder) ForceComplete() *models.TickBar {
	if b.tickCount == 0 {
		return nil
	}
	return b.emit()
}

// emit snapshots the accumulator into an immutable bar and resets it.
func (b *TickBarBuilder) emit() *models.TickBar {
	bar := &models.TickBar{
		Bar: models.Bar{
			Symbol:      b.symbol,
			Timestamp:   b.lastTime,
			Open:        b.open,
			High:        b.high,
			Low:         b.low,
			Close:       b.close,
			Volume:      b.volume,
			QuoteVolume: b.quoteVolume,
			Source:      b.source,
		},
		TickSize:   b.tickSize,
		TickCount:  b.tickCount,
		BuyTicks:   b.buyTicks,
		SellTicks:  b.sellTicks,
		BuyVolume:  b.buyVolume,
		SellVolume: b.sellVolume,
	}
	b.reset()
	return bar
}

// reset clears the accumulator. Volume and tick counts never survive a
// reset boundary.
func (b *TickBarBuilder) reset() {
	b.open = decimal.Zero
	b.high = decimal.Zero
	b.low = decimal.Zero
	b.close = decimal.Zero
	b.volume = decimal.Zero
	b.quoteVolume = decimal.Zero
	b.buyVolume = decimal.Zero
	b.sellVolume = decimal.Zero
	b.tickCount = 0
	b.buyTicks = 0
	b.sellTicks = 0
	b.lastTime = time.Time{}
}
