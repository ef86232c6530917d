package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/tradegate/tradegate/internal/models"

	"github.com/sirupsen/logrus"
)

const coinbaseBaseURL = "https://api.exchange.coinbase.com"

var coinbaseDefaultSymbols = []string{
	"BTC-USD", "ETH-USD", "SOL-USD", "ADA-USD", "DOGE-USD",
}

// coinbaseGranularities are the candle widths in seconds the venue accepts.
var coinbaseGranularities = []int{60, 300, 900, 3600, 21600, 86400}

// coinbaseIntervalSeconds translates common interval codes to granularity
// seconds. Unknown intervals snap to the nearest valid granularity.
var coinbaseIntervalSeconds = map[string]int{
	"1m":  60,
	"5m":  300,
	"15m": 900,
	"1h":  3600,
	"6h":  21600,
	"1d":  86400,
}

// Coinbase fetches OHLCV candles from the Coinbase Exchange REST API.
// Public endpoints allow 10 requests per second.
type Coinbase struct {
	baseConnector
	baseURL string
}

// NewCoinbase creates a Coinbase market data connector.
func NewCoinbase(logger *logrus.Logger) *Coinbase {
	return &Coinbase{
		baseConnector: newBaseConnector("coinbase", 8, logger),
		baseURL:       coinbaseBaseURL,
	}
}

// Start probes /time and marks the connector connected.
func (c *Coinbase) Start(ctx context.Context) error {
	return c.start(ctx, c.baseURL+"/time")
}

// Stop tears down the subscription state.
func (c *Coinbase) Stop(ctx context.Context) error {
	c.stop()
	return nil
}

// FetchData fetches candles per product. The venue returns at most 300
// candles per request; the window is derived from granularity * limit.
func (c *Coinbase) FetchData(ctx context.Context, symbols []string, interval string, limit int) ([]*models.MarketData, error) {
	if len(symbols) == 0 {
		symbols = coinbaseDefaultSymbols
	}
	if limit <= 0 || limit > 300 {
		limit = 100
	}
	granularity := snapGranularity(coinbaseIntervalSeconds[interval])

	all := make([]*models.MarketData, 0, len(symbols)*limit)
	for _, symbol := range symbols {
		end := time.Now().UTC()
		start := end.Add(-time.Duration(granularity*limit) * time.Second)

		query := url.Values{}
		query.Set("granularity", strconv.Itoa(granularity))
		query.Set("start", start.Format(time.RFC3339))
		query.Set("end", end.Format(time.RFC3339))

		body, err := c.getJSON(ctx, c.baseURL+"/products/"+symbol+"/candles?"+query.Encode())
		if err != nil {
			return nil, err
		}

		records, err := c.parseCandles(symbol, body)
		if err != nil {
			return nil, fmt.Errorf("%w: coinbase: %v", ErrDataUnavailable, err)
		}
		all = append(all, records...)
	}

	c.markReceived(symbols, len(all))
	c.logger.Infof("[coinbase] fetched %d candles from %d products", len(all), len(symbols))
	return all, nil
}

// parseCandles decodes the Coinbase candle format:
// [[time, low, high, open, close, volume], ...] with numeric fields.
func (c *Coinbase) parseCandles(symbol string, body []byte) ([]*models.MarketData, error) {
	var raw [][]float64
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}

	records := make([]*models.MarketData, 0, len(raw))
	for _, row := range raw {
		if len(row) < 6 {
			continue
		}
		rec := &models.MarketData{
			Timestamp: time.Unix(int64(row[0]), 0),
			Symbol:    symbol,
			Source:    "coinbase",
			Low:       row[1],
			High:      row[2],
			Open:      row[3],
			Close:     row[4],
			Volume:    row[5],
		}
		rec.VWAP = rec.ComputeVWAP()
		if !rec.Valid() {
			c.logger.Warnf("[coinbase] dropping invalid candle for %s at %v", symbol, rec.Timestamp)
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// snapGranularity returns the nearest granularity the venue accepts.
func snapGranularity(seconds int) int {
	if seconds == 0 {
		return 60
	}
	best := coinbaseGranularities[0]
	for _, g := range coinbaseGranularities {
		if abs(g-seconds) < abs(best-seconds) {
			best = g
		}
	}
	return best
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
