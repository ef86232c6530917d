package bars

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ATR computes the average true range over a trailing period using a
// simple moving average of true ranges. True range is
// max(high-low, |high-prevClose|, |low-prevClose|).
type ATR struct {
	period     int
	ranges     []decimal.Decimal
	next       int
	count      int
	prevClose  decimal.Decimal
	hasPrev    bool
}

// NewATR creates an ATR calculator with the given trailing period.
func NewATR(period int) (*ATR, error) {
	if period <= 0 {
		return nil, fmt.Errorf("%w: ATR period must be positive, got %d", ErrInvalidConfiguration, period)
	}
	return &ATR{
		period: period,
		ranges: make([]decimal.Decimal, period),
	}, nil
}

// Update folds one candle into the trailing window.
func (a *ATR) Update(high, low, close decimal.Decimal) {
	tr := high.Sub(low)
	if a.hasPrev {
		if hc := high.Sub(a.prevClose).Abs(); hc.GreaterThan(tr) {
			tr = hc
		}
		if lc := low.Sub(a.prevClose).Abs(); lc.GreaterThan(tr) {
			tr = lc
		}
	}
	a.prevClose = close
	a.hasPrev = true

	a.ranges[a.next] = tr
	a.next = (a.next + 1) % a.period
	if a.count < a.period {
		a.count++
	}
}

// Ready reports whether a full trailing period has been observed.
func (a *ATR) Ready() bool {
	return a.count == a.period
}

// Value returns the current average true range. Zero until Ready.
func (a *ATR) Value() decimal.Decimal {
	if a.count == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for i := 0; i < a.count; i++ {
		sum = sum.Add(a.ranges[i])
	}
	return sum.Div(decimal.NewFromInt(int64(a.count)))
}
