package aggregator

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/tradegate/tradegate/configs"
	"github.com/tradegate/tradegate/internal/models"
)

type fakeStore struct {
	mu          sync.Mutex
	tickBars    []*models.TickBar
	rangeBars   []*models.RangeBar
	renkoBricks []*models.RenkoBrick
}

func (s *fakeStore) InsertMarketData(_ context.Context, records []*models.MarketData) (int, error) {
	return len(records), nil
}

func (s *fakeStore) InsertTickBars(_ context.Context, bars []*models.TickBar) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickBars = append(s.tickBars, bars...)
	return nil
}

func (s *fakeStore) InsertRangeBars(_ context.Context, bars []*models.RangeBar) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rangeBars = append(s.rangeBars, bars...)
	return nil
}

func (s *fakeStore) InsertRenkoBricks(_ context.Context, bricks []*models.RenkoBrick) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.renkoBricks = append(s.renkoBricks, bricks...)
	return nil
}

func (s *fakeStore) Close() error { return nil }

func testAggregator(store *fakeStore) *Aggregator {
	return New(nil, store, slog.Default(), configs.AggregatorConfig{
		Workers:      4,
		BatchSize:    10,
		BatchTimeout: time.Second,
	}, configs.BarConfig{
		TickSize:       5,
		RangeThreshold: 50,
		RenkoBrickSize: 100,
		RenkoSizing:    "fixed",
		RenkoATRPeriod: 14,
		RenkoPercent:   0.5,
	})
}

func TestRouteIndexIsStablePerSymbol(t *testing.T) {
	symbols := []string{"BTCUSDT", "ETHUSDT", "SOLUSDT", "XRPUSDT", "ADAUSDT"}
	for _, symbol := range symbols {
		first := routeIndex(symbol, 4)
		for i := 0; i < 100; i++ {
			if got := routeIndex(symbol, 4); got != first {
				t.Fatalf("routeIndex(%q) not stable: %d then %d", symbol, first, got)
			}
		}
		if first < 0 || first >= 4 {
			t.Fatalf("routeIndex(%q) = %d, out of range", symbol, first)
		}
	}
}

func TestProcessTickEmitsTickBars(t *testing.T) {
	store := &fakeStore{}
	a := testAggregator(store)

	builders := make(map[string]*symbolBuilders)
	sb, err := a.buildersFor(builders, "BTCUSDT", "binance")
	if err != nil {
		t.Fatalf("buildersFor: %v", err)
	}

	var pending batch
	ts := time.Now().UTC()
	for i := 0; i < 5; i++ {
		a.processTick(sb, models.Tick{
			Symbol:      "BTCUSDT",
			Source:      "binance",
			Side:        "buy",
			Price:       43000,
			Volume:      1,
			QuoteVolume: 43000,
			EventTime:   ts,
		}, &pending)
	}

	if len(pending.tickBars) != 1 {
		t.Fatalf("got %d tick bars after 5 ticks with tickSize=5, want 1", len(pending.tickBars))
	}
	if pending.tickBars[0].TickCount != 5 {
		t.Errorf("TickCount = %d, want 5", pending.tickBars[0].TickCount)
	}
	if len(pending.rangeBars) != 0 {
		t.Errorf("flat prices must not complete a range bar, got %d", len(pending.rangeBars))
	}
}

func TestProcessTickEmitsRenkoBricksOnGap(t *testing.T) {
	store := &fakeStore{}
	a := testAggregator(store)

	builders := make(map[string]*symbolBuilders)
	sb, err := a.buildersFor(builders, "BTCUSDT", "binance")
	if err != nil {
		t.Fatalf("buildersFor: %v", err)
	}

	var pending batch
	ts := time.Now().UTC()
	a.processTick(sb, models.Tick{Symbol: "BTCUSDT", Price: 43000, Volume: 1, EventTime: ts}, &pending)
	a.processTick(sb, models.Tick{Symbol: "BTCUSDT", Price: 43310, Volume: 1, EventTime: ts}, &pending)

	// 310 points up from the anchor crosses three 100-point bricks
	if len(pending.renkoBricks) != 3 {
		t.Fatalf("got %d renko bricks, want 3", len(pending.renkoBricks))
	}
}

func TestBuildersForReusesSymbolState(t *testing.T) {
	store := &fakeStore{}
	a := testAggregator(store)

	builders := make(map[string]*symbolBuilders)
	first, err := a.buildersFor(builders, "BTCUSDT", "binance")
	if err != nil {
		t.Fatalf("buildersFor: %v", err)
	}
	second, err := a.buildersFor(builders, "BTCUSDT", "binance")
	if err != nil {
		t.Fatalf("buildersFor: %v", err)
	}
	if first != second {
		t.Error("same symbol must reuse the same builder set")
	}
}

func TestBuildersForRejectsUnknownSizing(t *testing.T) {
	store := &fakeStore{}
	a := testAggregator(store)
	a.bars.RenkoSizing = "fibonacci"

	if _, err := a.buildersFor(make(map[string]*symbolBuilders), "BTCUSDT", "binance"); err == nil {
		t.Error("expected error for unknown renko sizing strategy")
	}
}
