package bars

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFixedRenko(t *testing.T, size string) *RenkoBuilder {
	t.Helper()
	sizer, err := NewFixedSizing(d(size))
	require.NoError(t, err)
	b, err := NewRenkoBuilder("BTCUSDT", "binance", sizer)
	require.NoError(t, err)
	return b
}

func TestRenkoFirstUpdateOnlyAnchors(t *testing.T) {
	b := newFixedRenko(t, "50")
	assert.Nil(t, b.ProcessPrice(d("10000"), d("1"), d("10000"), time.Now(), ""))
}

func TestRenkoSingleBrickUpAndDown(t *testing.T) {
	b := newFixedRenko(t, "50")
	ts := time.Now().UTC()

	b.ProcessPrice(d("10000"), d("1"), d("10000"), ts, "")
	bricks := b.ProcessPrice(d("10050"), d("1"), d("10050"), ts, "")
	require.Len(t, bricks, 1)
	assert.True(t, bricks[0].Open.Equal(d("10000")))
	assert.True(t, bricks[0].Close.Equal(d("10050")))
	assert.True(t, bricks[0].IsUpBrick)
	assert.False(t, bricks[0].IsReversal)

	bricks = b.ProcessPrice(d("10000"), d("1"), d("10000"), ts, "")
	require.Len(t, bricks, 1)
	assert.True(t, bricks[0].Open.Equal(d("10050")))
	assert.True(t, bricks[0].Close.Equal(d("10000")))
	assert.False(t, bricks[0].IsUpBrick)
	assert.True(t, bricks[0].IsReversal, "direction change must flag a reversal")
}

func TestRenkoGapEmitsChainedBricks(t *testing.T) {
	b := newFixedRenko(t, "50")
	ts := time.Now().UTC()

	b.ProcessPrice(d("10000"), d("1"), d("10000"), ts, "")
	// one jump across four brick sizes
	bricks := b.ProcessPrice(d("10210"), d("8"), d("81680"), ts, "")
	require.Len(t, bricks, 4)

	for i, brick := range bricks {
		assert.True(t, brick.IsUpBrick, "brick %d", i)
		assert.True(t, brick.Close.Sub(brick.Open).Equal(d("50")), "brick %d span", i)
		if i > 0 {
			assert.True(t, brick.Open.Equal(bricks[i-1].Close), "brick %d must open at previous close", i)
		}
	}
	assert.True(t, bricks[0].Open.Equal(d("10000")))
	assert.True(t, bricks[3].Close.Equal(d("10200")))

	// accumulated volume goes to the first brick of the burst
	assert.True(t, bricks[0].Volume.Equal(d("9")))
	for _, brick := range bricks[1:] {
		assert.True(t, brick.Volume.IsZero())
		assert.Zero(t, brick.SourceDataPoints)
	}
}

func TestRenkoNoBricksInsideBand(t *testing.T) {
	b := newFixedRenko(t, "50")
	ts := time.Now().UTC()

	b.ProcessPrice(d("10000"), d("1"), d("10000"), ts, "")
	assert.Nil(t, b.ProcessPrice(d("10049"), d("1"), d("10049"), ts, ""))
	assert.Nil(t, b.ProcessPrice(d("9951"), d("1"), d("9951"), ts, ""))
}

func TestRenkoVolumeConservation(t *testing.T) {
	b := newFixedRenko(t, "10")
	ts := time.Now().UTC()

	prices := []string{"100", "104", "115", "142", "138", "120", "95", "99", "131"}
	total := decimal.Zero
	emitted := decimal.Zero
	for _, p := range prices {
		total = total.Add(d("3"))
		for _, brick := range b.ProcessPrice(d(p), d("3"), d(p).Mul(d("3")), ts, "") {
			emitted = emitted.Add(brick.Volume)
		}
	}
	// the tail accumulator is the only volume not yet assigned
	assert.True(t, emitted.Add(b.volume).Equal(total), "emitted %s + pending %s, fed %s", emitted, b.volume, total)
}

func TestRenkoPercentSizing(t *testing.T) {
	sizer, err := NewPercentSizing(d("1"))
	require.NoError(t, err)
	b, err := NewRenkoBuilder("ETHUSDT", "okx", sizer)
	require.NoError(t, err)

	ts := time.Now().UTC()
	b.ProcessPrice(d("1000"), d("1"), d("1000"), ts, "")

	// 1% of the 1000 anchor is a 10-wide brick
	assert.Nil(t, b.ProcessPrice(d("1009"), d("1"), d("1009"), ts, ""))
	bricks := b.ProcessPrice(d("1010"), d("1"), d("1010"), ts, "")
	require.Len(t, bricks, 1)
	assert.True(t, bricks[0].Close.Equal(d("1010")))
	assert.Equal(t, "percent", string(bricks[0].SizingMethod))
}

func TestRenkoATRSizingWarmsUp(t *testing.T) {
	atr, err := NewATR(3)
	require.NoError(t, err)
	b, err := NewRenkoBuilder("BTCUSDT", "binance", ATRSizing{Calc: atr})
	require.NoError(t, err)

	ts := time.Now().UTC()
	b.ProcessPrice(d("100"), d("1"), d("100"), ts, "")

	// no bricks while the ATR has not seen a full period
	assert.Nil(t, b.ProcessPrice(d("140"), d("1"), d("140"), ts, ""))

	atr.Update(d("105"), d("95"), d("100")) // TR 10
	atr.Update(d("108"), d("98"), d("104")) // TR 10
	assert.Nil(t, b.ProcessPrice(d("140"), d("1"), d("140"), ts, ""))

	atr.Update(d("110"), d("100"), d("106")) // TR 10, ATR ready at 10
	require.True(t, atr.Ready())
	bricks := b.ProcessPrice(d("140"), d("1"), d("140"), ts, "")
	require.Len(t, bricks, 4)
	assert.Equal(t, "atr", string(bricks[0].SizingMethod))
	assert.True(t, bricks[0].BrickSize.Equal(d("10")))
}

func TestRenkoRejectsInvalidConfiguration(t *testing.T) {
	_, err := NewFixedSizing(decimal.Zero)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)

	_, err = NewPercentSizing(d("-0.5"))
	assert.ErrorIs(t, err, ErrInvalidConfiguration)

	_, err = NewRenkoBuilder("BTCUSDT", "binance", nil)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}

func TestATRValue(t *testing.T) {
	atr, err := NewATR(2)
	require.NoError(t, err)
	assert.False(t, atr.Ready())

	atr.Update(d("110"), d("100"), d("105")) // first candle, TR = high-low = 10
	assert.False(t, atr.Ready())

	atr.Update(d("120"), d("108"), d("115")) // TR = max(12, |120-105|, |108-105|) = 15
	require.True(t, atr.Ready())
	assert.True(t, atr.Value().Equal(d("12.5")), "got %s", atr.Value())

	atr.Update(d("116"), d("106"), d("110")) // TR = max(10, 1, 9) = 10, window {15,10}
	assert.True(t, atr.Value().Equal(d("12.5")))
}

func TestATRRejectsInvalidPeriod(t *testing.T) {
	_, err := NewATR(0)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}
