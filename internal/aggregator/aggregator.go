// Package aggregator consumes the tick stream from Kafka and folds it
// into tick, range and renko bars. Ticks are sharded to workers by
// symbol hash so every event for one symbol reaches the same worker:
// the builders are single-writer by design and carry no internal
// locking.
package aggregator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/tradegate/tradegate/configs"
	"github.com/tradegate/tradegate/internal/bars"
	"github.com/tradegate/tradegate/internal/models"
	"github.com/tradegate/tradegate/internal/storage"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
)

// Aggregator runs the consume-shard-aggregate-persist pipeline. The
// pipeline is at-least-once: offsets commit once a tick is handed to its
// worker, and every builder restarts from empty state.
type Aggregator struct {
	reader *kafka.Reader
	store  storage.MarketStore
	logger *slog.Logger
	cfg    configs.AggregatorConfig
	bars   configs.BarConfig
}

// New creates an aggregator reading ticks from reader and persisting
// completed bars through store.
func New(reader *kafka.Reader, store storage.MarketStore, logger *slog.Logger, cfg configs.AggregatorConfig, barsCfg configs.BarConfig) *Aggregator {
	return &Aggregator{
		reader: reader,
		store:  store,
		logger: logger,
		cfg:    cfg,
		bars:   barsCfg,
	}
}

// Start runs until the context is cancelled.
func (a *Aggregator) Start(ctx context.Context) error {
	a.logger.Info("starting bar aggregator",
		"workers", a.cfg.Workers,
		"batch_size", a.cfg.BatchSize,
	)

	inputs := make([]chan models.Tick, a.cfg.Workers)
	var wg sync.WaitGroup
	for i := range inputs {
		inputs[i] = make(chan models.Tick, 256)
		wg.Add(1)
		go a.worker(ctx, i, inputs[i], &wg)
	}
	defer func() {
		for _, in := range inputs {
			close(in)
		}
		wg.Wait()
	}()

	for {
		m, err := a.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			a.logger.Error("Kafka fetch error", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		var tick models.Tick
		if err := json.Unmarshal(m.Value, &tick); err != nil {
			a.logger.Debug("dropping unparseable tick", "error", err)
			continue
		}
		if tick.Symbol == "" || tick.Price <= 0 {
			continue
		}

		select {
		case inputs[routeIndex(tick.Symbol, len(inputs))] <- tick:
		case <-ctx.Done():
			return nil
		}

		if err := a.reader.CommitMessages(ctx, m); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Warn("failed to commit offset", "error", err)
		}
	}
}

// routeIndex maps a symbol to a worker. The mapping is stable, so one
// symbol's ticks never split across workers.
func routeIndex(symbol string, workers int) int {
	h := fnv.New32a()
	h.Write([]byte(symbol))
	return int(h.Sum32() % uint32(workers))
}

// symbolBuilders is one symbol's aggregation state, owned by exactly
// one worker.
type symbolBuilders struct {
	tick  *bars.TickBarBuilder
	rng   *bars.RangeBarBuilder
	renko *bars.RenkoBuilder
	atr   *bars.ATR
}

// batch collects completed bars between flushes.
type batch struct {
	tickBars    []*models.TickBar
	rangeBars   []*models.RangeBar
	renkoBricks []*models.RenkoBrick
}

func (b *batch) size() int {
	return len(b.tickBars) + len(b.rangeBars) + len(b.renkoBricks)
}

func (b *batch) reset() {
	b.tickBars = b.tickBars[:0]
	b.rangeBars = b.rangeBars[:0]
	b.renkoBricks = b.renkoBricks[:0]
}

func (a *Aggregator) worker(ctx context.Context, id int, in <-chan models.Tick, wg *sync.WaitGroup) {
	defer wg.Done()

	builders := make(map[string]*symbolBuilders)
	var pending batch

	ticker := time.NewTicker(a.cfg.BatchTimeout)
	defer ticker.Stop()

	flush := func() {
		if pending.size() == 0 {
			return
		}
		flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if len(pending.tickBars) > 0 {
			if err := a.store.InsertTickBars(flushCtx, pending.tickBars); err != nil {
				a.logger.Error("tick bar insert failed", "worker", id, "error", err, "count", len(pending.tickBars))
			}
		}
		if len(pending.rangeBars) > 0 {
			if err := a.store.InsertRangeBars(flushCtx, pending.rangeBars); err != nil {
				a.logger.Error("range bar insert failed", "worker", id, "error", err, "count", len(pending.rangeBars))
			}
		}
		if len(pending.renkoBricks) > 0 {
			if err := a.store.InsertRenkoBricks(flushCtx, pending.renkoBricks); err != nil {
				a.logger.Error("renko brick insert failed", "worker", id, "error", err, "count", len(pending.renkoBricks))
			}
		}
		a.logger.Debug("flushed bars", "worker", id, "count", pending.size())
		pending.reset()
	}
	defer flush()

	for {
		select {
		case tick, ok := <-in:
			if !ok {
				return
			}
			sb, err := a.buildersFor(builders, tick.Symbol, tick.Source)
			if err != nil {
				a.logger.Error("builder setup failed", "symbol", tick.Symbol, "error", err)
				continue
			}
			a.processTick(sb, tick, &pending)
			if pending.size() >= a.cfg.BatchSize {
				flush()
				ticker.Reset(a.cfg.BatchTimeout)
			}

		case <-ticker.C:
			flush()

		case <-ctx.Done():
			return
		}
	}
}

// buildersFor lazily creates the per-symbol builder set.
func (a *Aggregator) buildersFor(builders map[string]*symbolBuilders, symbol, source string) (*symbolBuilders, error) {
	if sb, ok := builders[symbol]; ok {
		return sb, nil
	}

	tick, err := bars.NewTickBarBuilder(symbol, source, a.bars.TickSize)
	if err != nil {
		return nil, err
	}
	rng, err := bars.NewRangeBarBuilder(symbol, source, decimal.NewFromFloat(a.bars.RangeThreshold))
	if err != nil {
		return nil, err
	}

	sb := &symbolBuilders{tick: tick, rng: rng}

	var sizer bars.BrickSizer
	switch a.bars.RenkoSizing {
	case string(models.RenkoSizingATR):
		atr, err := bars.NewATR(a.bars.RenkoATRPeriod)
		if err != nil {
			return nil, err
		}
		sb.atr = atr
		sizer = bars.ATRSizing{Calc: atr}
	case string(models.RenkoSizingPercent):
		sizer, err = bars.NewPercentSizing(decimal.NewFromFloat(a.bars.RenkoPercent))
		if err != nil {
			return nil, err
		}
	case string(models.RenkoSizingFixed):
		sizer, err = bars.NewFixedSizing(decimal.NewFromFloat(a.bars.RenkoBrickSize))
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown renko sizing %q", a.bars.RenkoSizing)
	}

	renko, err := bars.NewRenkoBuilder(symbol, source, sizer)
	if err != nil {
		return nil, err
	}
	sb.renko = renko

	builders[symbol] = sb
	return sb, nil
}

// processTick folds one tick into every builder for its symbol and
// collects completed bars.
func (a *Aggregator) processTick(sb *symbolBuilders, tick models.Tick, pending *batch) {
	price := decimal.NewFromFloat(tick.Price)
	volume := decimal.NewFromFloat(tick.Volume)
	quoteVolume := decimal.NewFromFloat(tick.QuoteVolume)

	pending.tickBars = append(pending.tickBars, sb.tick.ProcessPrice(price, volume, quoteVolume, tick.EventTime, tick.Side)...)
	pending.rangeBars = append(pending.rangeBars, sb.rng.ProcessPrice(price, volume, quoteVolume, tick.EventTime, tick.Side)...)

	if sb.atr != nil {
		// tick-level true range degrades to |price - prevPrice|
		sb.atr.Update(price, price, price)
	}
	pending.renkoBricks = append(pending.renkoBricks, sb.renko.ProcessPrice(price, volume, quoteVolume, tick.EventTime, tick.Side)...)
}
