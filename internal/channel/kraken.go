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

const krakenBaseURL = "https://api.kraken.com"

// Kraken uses its own pair naming (XXBTZUSD for BTC/USD).
var krakenDefaultSymbols = []string{
	"XXBTZUSD", "XETHZUSD", "SOLUSD", "ADAUSD", "XDGUSD",
}

// krakenValidIntervals are the OHLC frame widths in minutes the venue accepts.
var krakenValidIntervals = []int{1, 5, 15, 30, 60, 240, 1440, 10080, 21600}

var krakenIntervalMinutes = map[string]int{
	"1m":  1,
	"5m":  5,
	"15m": 15,
	"30m": 30,
	"1h":  60,
	"4h":  240,
	"1d":  1440,
}

// Kraken fetches OHLC data from the Kraken public REST API.
// Public endpoints are limited to roughly 1 request per second.
type Kraken struct {
	baseConnector
	baseURL string
}

// NewKraken creates a Kraken market data connector.
func NewKraken(logger *logrus.Logger) *Kraken {
	return &Kraken{
		baseConnector: newBaseConnector("kraken", 1, logger),
		baseURL:       krakenBaseURL,
	}
}

// Start probes /0/public/Time and marks the connector connected.
func (c *Kraken) Start(ctx context.Context) error {
	return c.start(ctx, c.baseURL+"/0/public/Time")
}

// Stop tears down the subscription state.
func (c *Kraken) Stop(ctx context.Context) error {
	c.stop()
	return nil
}

// FetchData fetches OHLC frames per pair. Kraken returns up to 720 frames
// per request and ignores limit; excess frames are trimmed client-side.
func (c *Kraken) FetchData(ctx context.Context, symbols []string, interval string, limit int) ([]*models.MarketData, error) {
	if len(symbols) == 0 {
		symbols = krakenDefaultSymbols
	}
	if limit <= 0 {
		limit = 100
	}
	minutes := snapKrakenInterval(krakenIntervalMinutes[interval])

	all := make([]*models.MarketData, 0, len(symbols)*limit)
	for _, symbol := range symbols {
		query := url.Values{}
		query.Set("pair", symbol)
		query.Set("interval", strconv.Itoa(minutes))

		body, err := c.getJSON(ctx, c.baseURL+"/0/public/OHLC?"+query.Encode())
		if err != nil {
			return nil, err
		}

		records, err := c.parseOHLC(symbol, body, limit)
		if err != nil {
			return nil, fmt.Errorf("%w: kraken: %v", ErrDataUnavailable, err)
		}
		all = append(all, records...)
	}

	c.markReceived(symbols, len(all))
	c.logger.Infof("[kraken] fetched %d frames from %d pairs", len(all), len(symbols))
	return all, nil
}

// krakenResponse is the Kraken envelope: an error list plus a result map
// keyed by pair name, each row being
// [time, "open", "high", "low", "close", "vwap", "volume", count].
type krakenResponse struct {
	Error  []string                   `json:"error"`
	Result map[string]json.RawMessage `json:"result"`
}

func (c *Kraken) parseOHLC(symbol string, body []byte, limit int) ([]*models.MarketData, error) {
	var resp krakenResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	if len(resp.Error) > 0 {
		return nil, fmt.Errorf("venue error: %v", resp.Error)
	}

	var rows [][]any
	for key, raw := range resp.Result {
		if key == "last" {
			continue
		}
		if err := json.Unmarshal(raw, &rows); err != nil {
			return nil, err
		}
		break
	}

	// Kraken returns oldest-first; keep only the most recent limit frames.
	if len(rows) > limit {
		rows = rows[len(rows)-limit:]
	}

	records := make([]*models.MarketData, 0, len(rows))
	for _, row := range rows {
		if len(row) < 8 {
			continue
		}
		ts, ok := row[0].(float64)
		if !ok {
			continue
		}
		rec := &models.MarketData{
			Timestamp: time.Unix(int64(ts), 0),
			Symbol:    symbol,
			Source:    "kraken",
			Open:      klineFloat(row[1]),
			High:      klineFloat(row[2]),
			Low:       klineFloat(row[3]),
			Close:     klineFloat(row[4]),
			VWAP:      klineFloat(row[5]),
			Volume:    klineFloat(row[6]),
		}
		if trades, ok := row[7].(float64); ok {
			rec.TradesCount = int64(trades)
		}
		if rec.VWAP == 0 {
			rec.VWAP = rec.ComputeVWAP()
		}
		if !rec.Valid() {
			c.logger.Warnf("[kraken] dropping invalid frame for %s at %v", symbol, rec.Timestamp)
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// snapKrakenInterval returns the nearest frame width the venue accepts.
func snapKrakenInterval(minutes int) int {
	if minutes == 0 {
		return 1
	}
	best := krakenValidIntervals[0]
	for _, v := range krakenValidIntervals {
		if abs(v-minutes) < abs(best-minutes) {
			best = v
		}
	}
	return best
}
