// Package orchestrator runs the periodic market data collection cycle:
// fan out one fetch per registered channel, fan in all results, persist
// successful batches and publish them for downstream aggregation.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/tradegate/tradegate/configs"
	"github.com/tradegate/tradegate/internal/channel"
	"github.com/tradegate/tradegate/internal/models"
	"github.com/tradegate/tradegate/internal/storage"

	"github.com/sirupsen/logrus"
)

// Publisher forwards fetched records to downstream consumers. A nil
// publisher disables publication; persistence still happens.
type Publisher interface {
	Publish(ctx context.Context, records []*models.MarketData) error
}

// ChannelResult is the outcome of one channel's fetch within a cycle.
// A failed channel reports zero records and carries the error; it never
// aborts the cycle.
type ChannelResult struct {
	Channel string
	Records int
	Success bool
	Err     error
}

// Orchestrator coordinates N independent exchange channels on a fixed
// period. One exchange's outage never blocks or corrupts collection from
// the others.
type Orchestrator struct {
	channels  []channel.Connector
	store     storage.MarketStore
	publisher Publisher
	cfg       configs.OrchestratorConfig
	logger    *logrus.Logger
}

// New creates an orchestrator over the given channels.
func New(channels []channel.Connector, store storage.MarketStore, publisher Publisher, cfg configs.OrchestratorConfig, logger *logrus.Logger) *Orchestrator {
	return &Orchestrator{
		channels:  channels,
		store:     store,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run starts all channels, then executes collection cycles on the
// configured period until the context is cancelled. The first cycle is
// delayed by the startle delay so collaborators can finish initializing.
// On shutdown every channel is stopped concurrently; individual stop
// failures are logged and tolerated.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.startAll(ctx)
	defer o.stopAll()

	o.logger.Infof("Orchestrator started: %d channels, interval %v, startle delay %v",
		len(o.channels), o.cfg.FetchInterval, o.cfg.StartleDelay)

	select {
	case <-ctx.Done():
		return nil
	case <-time.After(o.cfg.StartleDelay):
	}

	ticker := time.NewTicker(o.cfg.FetchInterval)
	defer ticker.Stop()

	o.Collect(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			o.Collect(ctx)
		}
	}
}

// Collect runs one collection cycle: concurrent fetch from every channel,
// join on all of them regardless of individual failure, persist and
// publish the successes. Returns the per-channel results.
func (o *Orchestrator) Collect(ctx context.Context) []ChannelResult {
	start := time.Now()
	results := make([]ChannelResult, len(o.channels))

	var wg sync.WaitGroup
	for i, ch := range o.channels {
		wg.Add(1)
		go func(i int, ch channel.Connector) {
			defer wg.Done()
			results[i] = o.collectChannel(ctx, ch)
		}(i, ch)
	}
	wg.Wait()

	totalSaved := 0
	succeeded := 0
	var failedNames []string
	for _, r := range results {
		if r.Success {
			succeeded++
			totalSaved += r.Records
		} else {
			failedNames = append(failedNames, r.Channel)
		}
	}

	if len(failedNames) > 0 {
		o.logger.Warnf("Cycle done in %v: %d records saved, %d/%d channels ok, failed: %v",
			time.Since(start), totalSaved, succeeded, len(o.channels), failedNames)
	} else {
		o.logger.Infof("Cycle done in %v: %d records saved, %d/%d channels ok",
			time.Since(start), totalSaved, succeeded, len(o.channels))
	}
	return results
}

// collectChannel fetches, persists and publishes one channel's data.
// Every failure is contained here and reported as a result, never as a
// panic or an error crossing into the fan-in.
func (o *Orchestrator) collectChannel(ctx context.Context, ch channel.Connector) ChannelResult {
	records, err := ch.FetchData(ctx, nil, o.cfg.Interval, o.cfg.Limit)
	if err != nil {
		o.logger.Errorf("[%s] fetch failed: %v", ch.Name(), err)
		return ChannelResult{Channel: ch.Name(), Success: false, Err: err}
	}

	// An empty fetch is a success with zero records, not a failure.
	if len(records) == 0 {
		return ChannelResult{Channel: ch.Name(), Success: true}
	}

	saved, err := o.store.InsertMarketData(ctx, records)
	if err != nil {
		o.logger.Errorf("[%s] persist failed: %v", ch.Name(), err)
		return ChannelResult{Channel: ch.Name(), Success: false, Err: err}
	}

	if o.publisher != nil {
		if err := o.publisher.Publish(ctx, records); err != nil {
			// Persistence already succeeded; publication failure is
			// logged but does not fail the channel.
			o.logger.Warnf("[%s] publish failed: %v", ch.Name(), err)
		}
	}

	return ChannelResult{Channel: ch.Name(), Records: saved, Success: true}
}

// startAll starts every channel concurrently. A channel that fails to
// start stays registered; its fetches will fail until the venue recovers.
func (o *Orchestrator) startAll(ctx context.Context) {
	var wg sync.WaitGroup
	for _, ch := range o.channels {
		wg.Add(1)
		go func(ch channel.Connector) {
			defer wg.Done()
			if err := ch.Start(ctx); err != nil {
				o.logger.Errorf("[%s] start failed: %v", ch.Name(), err)
			}
		}(ch)
	}
	wg.Wait()
}

// stopAll stops every channel concurrently, tolerating individual
// failures by logging and continuing.
func (o *Orchestrator) stopAll() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	for _, ch := range o.channels {
		wg.Add(1)
		go func(ch channel.Connector) {
			defer wg.Done()
			if err := ch.Stop(ctx); err != nil {
				o.logger.Errorf("[%s] stop failed: %v", ch.Name(), err)
			}
		}(ch)
	}
	wg.Wait()
	o.logger.Info("All channels stopped")
}
