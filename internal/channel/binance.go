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

const binanceBaseURL = "https://api.binance.com"

// binanceDefaultSymbols is the symbol set used when a fetch does not name
// any symbols explicitly.
var binanceDefaultSymbols = []string{
	"BTCUSDT", "ETHUSDT", "BNBUSDT", "SOLUSDT", "ADAUSDT",
	"XRPUSDT", "DOGEUSDT", "DOTUSDT", "MATICUSDT", "AVAXUSDT",
}

// Binance fetches OHLCV klines from the Binance REST API.
// Venue limit is 1200 request weight per minute; klines cost 1-2 each,
// so 10 req/s stays well clear of it.
type Binance struct {
	baseConnector
	baseURL string
}

// NewBinance creates a Binance market data connector.
func NewBinance(logger *logrus.Logger) *Binance {
	return &Binance{
		baseConnector: newBaseConnector("binance", 10, logger),
		baseURL:       binanceBaseURL,
	}
}

// Start probes /api/v3/ping and marks the connector connected.
func (c *Binance) Start(ctx context.Context) error {
	return c.start(ctx, c.baseURL+"/api/v3/ping")
}

// Stop tears down the subscription state.
func (c *Binance) Stop(ctx context.Context) error {
	c.stop()
	return nil
}

// FetchData fetches klines for each symbol. Interval uses Binance codes
// directly (1m, 5m, 15m, 1h, 4h, 1d); limit is capped at 1000 by the venue.
func (c *Binance) FetchData(ctx context.Context, symbols []string, interval string, limit int) ([]*models.MarketData, error) {
	if len(symbols) == 0 {
		symbols = binanceDefaultSymbols
	}
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	all := make([]*models.MarketData, 0, len(symbols)*limit)
	for _, symbol := range symbols {
		query := url.Values{}
		query.Set("symbol", symbol)
		query.Set("interval", interval)
		query.Set("limit", strconv.Itoa(limit))

		body, err := c.getJSON(ctx, c.baseURL+"/api/v3/klines?"+query.Encode())
		if err != nil {
			return nil, err
		}

		records, err := c.parseKlines(symbol, body)
		if err != nil {
			return nil, fmt.Errorf("%w: binance: %v", ErrDataUnavailable, err)
		}
		all = append(all, records...)
	}

	c.markReceived(symbols, len(all))
	c.logger.Infof("[binance] fetched %d klines from %d symbols", len(all), len(symbols))
	return all, nil
}

// parseKlines decodes the Binance kline array-of-arrays format:
// [openTime, "open", "high", "low", "close", "volume", closeTime,
// "quoteVolume", trades, ...].
func (c *Binance) parseKlines(symbol string, body []byte) ([]*models.MarketData, error) {
	var raw [][]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}

	records := make([]*models.MarketData, 0, len(raw))
	for _, k := range raw {
		if len(k) < 9 {
			continue
		}
		openTime, ok := k[0].(float64)
		if !ok {
			continue
		}
		rec := &models.MarketData{
			Timestamp:   time.UnixMilli(int64(openTime)),
			Symbol:      symbol,
			Source:      "binance",
			Open:        klineFloat(k[1]),
			High:        klineFloat(k[2]),
			Low:         klineFloat(k[3]),
			Close:       klineFloat(k[4]),
			Volume:      klineFloat(k[5]),
			QuoteVolume: klineFloat(k[7]),
		}
		if trades, ok := k[8].(float64); ok {
			rec.TradesCount = int64(trades)
		}
		rec.VWAP = rec.ComputeVWAP()
		if !rec.Valid() {
			c.logger.Warnf("[binance] dropping invalid kline for %s at %v", symbol, rec.Timestamp)
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// klineFloat converts Binance's string-encoded numerics, tolerating the
// occasional plain number.
func klineFloat(v any) float64 {
	switch t := v.(type) {
	case string:
		f, _ := strconv.ParseFloat(t, 64)
		return f
	case float64:
		return t
	default:
		return 0
	}
}
