package bars

import (
	"fmt"
	"time"

	"github.com/tradegate/tradegate/internal/models"

	"github.com/shopspring/decimal"
)

// BrickSizer derives the renko brick size for the next brick. The bool
// result is false while the sizer is not ready (e.g. ATR warming up);
// no bricks form until it is.
type BrickSizer interface {
	BrickSize(price decimal.Decimal) (decimal.Decimal, bool)
	Method() models.RenkoSizingMethod
}

// FixedSizing uses a constant brick size.
type FixedSizing struct {
	Size decimal.Decimal
}

// NewFixedSizing validates and creates a fixed sizer.
func NewFixedSizing(size decimal.Decimal) (FixedSizing, error) {
	if size.LessThanOrEqual(decimal.Zero) {
		return FixedSizing{}, fmt.Errorf("%w: brick size must be positive, got %s", ErrInvalidConfiguration, size)
	}
	return FixedSizing{Size: size}, nil
}

func (s FixedSizing) BrickSize(decimal.Decimal) (decimal.Decimal, bool) { return s.Size, true }
func (s FixedSizing) Method() models.RenkoSizingMethod                  { return models.RenkoSizingFixed }

// PercentSizing derives the brick size as a percentage of the current
// brick open.
type PercentSizing struct {
	Percent decimal.Decimal
}

// NewPercentSizing validates and creates a percent-of-price sizer.
func NewPercentSizing(percent decimal.Decimal) (PercentSizing, error) {
	if percent.LessThanOrEqual(decimal.Zero) {
		return PercentSizing{}, fmt.Errorf("%w: percent must be positive, got %s", ErrInvalidConfiguration, percent)
	}
	return PercentSizing{Percent: percent}, nil
}

func (s PercentSizing) BrickSize(price decimal.Decimal) (decimal.Decimal, bool) {
	size := price.Mul(s.Percent).Div(decimal.NewFromInt(100))
	return size, size.GreaterThan(decimal.Zero)
}
func (s PercentSizing) Method() models.RenkoSizingMethod { return models.RenkoSizingPercent }

// ATRSizing derives the brick size from an ATR calculator fed with
// candles by the caller. Not ready until a full trailing period has been
// observed.
type ATRSizing struct {
	Calc *ATR
}

func (s ATRSizing) BrickSize(decimal.Decimal) (decimal.Decimal, bool) {
	if !s.Calc.Ready() {
		return decimal.Zero, false
	}
	v := s.Calc.Value()
	return v, v.GreaterThan(decimal.Zero)
}
func (s ATRSizing) Method() models.RenkoSizingMethod { return models.RenkoSizingATR }

// RenkoBuilder folds incoming prices into fixed-size bricks. A single
// price update may close multiple bricks when it gaps across several
// brick sizes; the builder loops, emitting one brick per increment
// crossed, chaining each brick's open to the previous close.
type RenkoBuilder struct {
	symbol string
	source string
	sizer  BrickSizer

	anchor    decimal.Decimal
	hasAnchor bool

	volume, quoteVolume decimal.Decimal
	points              int

	// lastDirUp is meaningful only once hasPriorBrick is true. The
	// explicit flag keeps reversal detection independent of the point
	// counter: a brick formed from a single extreme tick still reverses.
	lastDirUp     bool
	hasPriorBrick bool
}

// NewRenkoBuilder creates a builder for one symbol with the given sizer.
func NewRenkoBuilder(symbol, source string, sizer BrickSizer) (*RenkoBuilder, error) {
	if sizer == nil {
		return nil, fmt.Errorf("%w: brick sizer is required", ErrInvalidConfiguration)
	}
	return &RenkoBuilder{symbol: symbol, source: source, sizer: sizer}, nil
}

// ProcessPrice folds one price update and returns the bricks it closed,
// oldest first. The first update only anchors the chart. Accumulated
// volume, quote volume and point count go to the first brick closed by a
// call; the accumulator resets on each emission, never on a no-op call.
func (b *RenkoBuilder) ProcessPrice(price, volume, quoteVolume decimal.Decimal, ts time.Time, side string) []*models.RenkoBrick {
	b.volume = b.volume.Add(volume)
	b.quoteVolume = b.quoteVolume.Add(quoteVolume)
	b.points++

	if !b.hasAnchor {
		b.anchor = price
		b.hasAnchor = true
		return nil
	}

	var out []*models.RenkoBrick
	for {
		size, ok := b.sizer.BrickSize(b.anchor)
		if !ok || size.LessThanOrEqual(decimal.Zero) {
			break
		}
		if price.GreaterThanOrEqual(b.anchor.Add(size)) {
			out = append(out, b.emit(b.anchor.Add(size), size, true, ts))
		} else if price.LessThanOrEqual(b.anchor.Sub(size)) {
			out = append(out, b.emit(b.anchor.Sub(size), size, false, ts))
		} else {
			break
		}
	}
	return out
}

// emit closes one brick ending at close, advances the anchor and resets
// the accumulator.
func (b *RenkoBuilder) emit(close, size decimal.Decimal, up bool, ts time.Time) *models.RenkoBrick {
	open := b.anchor
	high, low := open, close
	if up {
		high, low = close, open
	}

	brick := &models.RenkoBrick{
		Bar: models.Bar{
			Symbol:      b.symbol,
			Timestamp:   ts,
			Open:        open,
			High:        high,
			Low:         low,
			Close:       close,
			Volume:      b.volume,
			QuoteVolume: b.quoteVolume,
			Source:      b.source,
		},
		BrickSize:        size,
		IsUpBrick:        up,
		IsReversal:       b.hasPriorBrick && up != b.lastDirUp,
		SourceDataPoints: b.points,
		SizingMethod:     b.sizer.Method(),
	}

	b.anchor = close
	b.lastDirUp = up
	b.hasPriorBrick = true
	b.volume = decimal.Zero
	b.quoteVolume = decimal.Zero
	b.points = 0
	return brick
}
