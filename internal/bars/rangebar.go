package bars

import (
	"fmt"
	"time"

	"github.com/tradegate/tradegate/internal/models"

	"github.com/shopspring/decimal"
)

// RangeBarBuilder folds incoming prices into bars that complete once the
// high-low span since the bar's first tick reaches the configured
// threshold. The threshold check runs once per incoming price, so at
// most one bar is emitted per call.
type RangeBarBuilder struct {
	symbol    string
	source    string
	threshold decimal.Decimal

	open, high, low, close decimal.Decimal
	volume, quoteVolume    decimal.Decimal
	tickCount              int
	firstTime, lastTime    time.Time
}

// NewRangeBarBuilder creates a builder for one symbol.
func NewRangeBarBuilder(symbol, source string, threshold decimal.Decimal) (*RangeBarBuilder, error) {
	if threshold.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: range threshold must be positive, got %s", ErrInvalidConfiguration, threshold)
	}
	return &RangeBarBuilder{symbol: symbol, source: source, threshold: threshold}, nil
}

// ProcessPrice folds one price update into the current bar and returns
// the completed bar once high-low first reaches the threshold, nil
// otherwise.
func (b *RangeBarBuilder) ProcessPrice(price, volume, quoteVolume decimal.Decimal, ts time.Time, side string) []*models.RangeBar {
	if b.tickCount == 0 {
		b.open = price
		b.high = price
		b.low = price
		b.firstTime = ts
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

	if b.high.Sub(b.low).LessThan(b.threshold) {
		return nil
	}
	return []*models.RangeBar{b.emit()}
}

// ForceComplete emits the current partial bar. Returns nil when no
// updates are pending.
func (b *RangeBarBuilder) ForceComplete() *models.RangeBar {
	if b.tickCount == 0 {
		return nil
	}
	return b.emit()
}

func (b *RangeBarBuilder) emit() *models.RangeBar {
	bar := &models.RangeBar{
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
		RangeThreshold: b.threshold,
		TickCount:      b.tickCount,
		Duration:       b.lastTime.Sub(b.firstTime),
	}
	b.reset()
	return bar
}

func (b *RangeBarBuilder) reset() {
	b.open = decimal.Zero
	b.high = decimal.Zero
	b.low = decimal.Zero
	b.close = decimal.Zero
	b.volume = decimal.Zero
	b.quoteVolume = decimal.Zero
	b.tickCount = 0
	b.firstTime = time.Time{}
	b.lastTime = time.Time{}
}
