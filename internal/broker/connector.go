package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitedConnector tracks one broker's session state and throttles
// outbound requests. Throttling combines a minimum interval between
// dispatches with a cap on in-flight requests; it delays, never drops.
type RateLimitedConnector struct {
	limiter *rate.Limiter
	slots   chan struct{}

	mu              sync.Mutex
	connected       bool
	lastRequestTime time.Time
}

// NewRateLimitedConnector builds a connector enforcing minInterval
// between requests and at most maxConcurrency in flight.
func NewRateLimitedConnector(minInterval time.Duration, maxConcurrency int) (*RateLimitedConnector, error) {
	if minInterval <= 0 {
		return nil, fmt.Errorf("min interval must be positive, got %s", minInterval)
	}
	if maxConcurrency <= 0 {
		return nil, fmt.Errorf("max concurrency must be positive, got %d", maxConcurrency)
	}
	return &RateLimitedConnector{
		limiter: rate.NewLimiter(rate.Every(minInterval), 1),
		slots:   make(chan struct{}, maxConcurrency),
	}, nil
}

// Connect marks the session established. Idempotent.
func (c *RateLimitedConnector) Connect() {
	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()
}

// Disconnect marks the session closed. In-flight requests finish.
func (c *RateLimitedConnector) Disconnect() {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
}

// IsConnected reports the session state.
func (c *RateLimitedConnector) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// EnsureConnected fails with ErrNotConnected when no session exists.
func (c *RateLimitedConnector) EnsureConnected() error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// LastRequestTime returns the admission time of the most recent request.
func (c *RateLimitedConnector) LastRequestTime() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastRequestTime
}

// Throttle blocks until a concurrency slot is free and the minimum
// interval since the last admission has elapsed, then records the
// admission time. The returned release func must be called when the
// request completes. A cancelled wait returns ctx.Err() and holds no
// slot.
func (c *RateLimitedConnector) Throttle(ctx context.Context) (release func(), err error) {
	select {
	case c.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if err := c.limiter.Wait(ctx); err != nil {
		<-c.slots
		return nil, err
	}

	c.mu.Lock()
	c.lastRequestTime = time.Now()
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { <-c.slots })
	}, nil
}
