// Package channel provides per-exchange market data connectors.
// Each connector owns its venue's symbol formatting, interval mapping,
// pagination and rate-limit compliance, and normalizes responses into
// models.MarketData records.
package channel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/tradegate/tradegate/internal/models"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	// RequestTimeout bounds a single venue HTTP request.
	RequestTimeout = 10 * time.Second

	// ConnectTimeout bounds the connectivity probe issued by Start.
	ConnectTimeout = 5 * time.Second
)

// ErrDataUnavailable reports that a channel's upstream venue is
// unreachable or returned an unusable response. A fetch failure is
// transient and does not flip the channel's connected flag.
var ErrDataUnavailable = errors.New("market data unavailable")

// Connector is the contract every exchange market-data channel implements.
//
// Start and Stop are idempotent: starting a started connector or stopping
// a stopped one is a no-op, not an error.
type Connector interface {
	// Name returns the venue name ("binance", "kraken", ...).
	Name() string

	// Start probes the venue and marks the connector connected.
	Start(ctx context.Context) error

	// Stop tears down the subscription state.
	Stop(ctx context.Context) error

	// FetchData returns the most recent limit OHLCV records per requested
	// symbol, or the connector's default symbol set when symbols is empty.
	// Failures wrap ErrDataUnavailable.
	FetchData(ctx context.Context, symbols []string, interval string, limit int) ([]*models.MarketData, error)

	// Health returns a snapshot of the connector's connection state.
	Health() Health
}

// Health is a point-in-time snapshot of a connector's connection state,
// read by the orchestrator for health reporting.
type Health struct {
	IsConnected           bool
	SubscribedSymbols     []string
	LastDataReceivedAt    time.Time
	TotalMessagesReceived int64
}

// NewLogger builds the logger used by the channel and orchestrator layer.
func NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.InfoLevel)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	return logger
}

// baseConnector carries the state and plumbing shared by every venue
// connector: HTTP client, venue rate limiter, logger and health counters.
// Connection state is mutated only by the owning connector's own
// operations.
type baseConnector struct {
	name    string
	client  *http.Client
	limiter *rate.Limiter
	logger  *logrus.Logger

	mu                sync.Mutex
	started           bool
	subscribedSymbols []string
	lastReceivedAt    time.Time
	totalReceived     int64
}

func newBaseConnector(name string, requestsPerSecond float64, logger *logrus.Logger) baseConnector {
	return baseConnector{
		name:    name,
		client:  &http.Client{Timeout: RequestTimeout},
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
		logger:  logger,
	}
}

func (b *baseConnector) Name() string { return b.name }

func (b *baseConnector) Health() Health {
	b.mu.Lock()
	defer b.mu.Unlock()
	symbols := make([]string, len(b.subscribedSymbols))
	copy(symbols, b.subscribedSymbols)
	return Health{
		IsConnected:           b.started,
		SubscribedSymbols:     symbols,
		LastDataReceivedAt:    b.lastReceivedAt,
		TotalMessagesReceived: b.totalReceived,
	}
}

// start transitions to started after a successful probe of probeURL.
// Already-started connectors return immediately.
func (b *baseConnector) start(ctx context.Context, probeURL string) error {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return nil
	}
	b.mu.Unlock()

	probeCtx, cancel := context.WithTimeout(ctx, ConnectTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, probeURL, nil)
	if err != nil {
		return err
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s connectivity probe: %w", b.name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s connectivity probe: HTTP %d", b.name, resp.StatusCode)
	}

	b.mu.Lock()
	b.started = true
	b.mu.Unlock()
	b.logger.Infof("[%s] channel started", b.name)
	return nil
}

func (b *baseConnector) stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.started {
		return
	}
	b.started = false
	b.subscribedSymbols = nil
	b.logger.Infof("[%s] channel stopped", b.name)
}

// markReceived records a successful fetch in the health counters.
func (b *baseConnector) markReceived(symbols []string, records int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribedSymbols = symbols
	b.lastReceivedAt = time.Now()
	b.totalReceived += int64(records)
}

// getJSON performs a rate-limited GET and returns the response body.
// Non-200 responses and transport failures wrap ErrDataUnavailable.
func (b *baseConnector) getJSON(ctx context.Context, url string) ([]byte, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDataUnavailable, b.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w: %s: venue rate limit exceeded", ErrDataUnavailable, b.name)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s: HTTP %d", ErrDataUnavailable, b.name, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDataUnavailable, b.name, err)
	}
	return body, nil
}
