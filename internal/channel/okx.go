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

const okxBaseURL = "https://www.okx.com"

var okxDefaultSymbols = []string{
	"BTC-USDT", "ETH-USDT", "SOL-USDT", "XRP-USDT", "ADA-USDT",
}

// okxIntervalMap translates common interval codes to OKX bar codes, which
// use uppercase suffixes for hour and day bars.
var okxIntervalMap = map[string]string{
	"1m":  "1m",
	"5m":  "5m",
	"15m": "15m",
	"1h":  "1H",
	"4h":  "4H",
	"1d":  "1D",
}

// OKX fetches OHLCV candles from the OKX REST API.
// Venue limit is 20 requests per 2 seconds for the candles endpoint.
type OKX struct {
	baseConnector
	baseURL string
}

// NewOKX creates an OKX market data connector.
func NewOKX(logger *logrus.Logger) *OKX {
	return &OKX{
		baseConnector: newBaseConnector("okx", 8, logger),
		baseURL:       okxBaseURL,
	}
}

// Start probes /api/v5/public/time and marks the connector connected.
func (c *OKX) Start(ctx context.Context) error {
	return c.start(ctx, c.baseURL+"/api/v5/public/time")
}

// Stop tears down the subscription state.
func (c *OKX) Stop(ctx context.Context) error {
	c.stop()
	return nil
}

// FetchData fetches candles for each instrument. Unknown intervals fall
// back to 1m; limit is capped at 300 by the venue.
func (c *OKX) FetchData(ctx context.Context, symbols []string, interval string, limit int) ([]*models.MarketData, error) {
	if len(symbols) == 0 {
		symbols = okxDefaultSymbols
	}
	if limit <= 0 || limit > 300 {
		limit = 100
	}
	bar, ok := okxIntervalMap[interval]
	if !ok {
		bar = "1m"
	}

	all := make([]*models.MarketData, 0, len(symbols)*limit)
	for _, symbol := range symbols {
		query := url.Values{}
		query.Set("instId", symbol)
		query.Set("bar", bar)
		query.Set("limit", strconv.Itoa(limit))

		body, err := c.getJSON(ctx, c.baseURL+"/api/v5/market/candles?"+query.Encode())
		if err != nil {
			return nil, err
		}

		records, err := c.parseCandles(symbol, body)
		if err != nil {
			return nil, fmt.Errorf("%w: okx: %v", ErrDataUnavailable, err)
		}
		all = append(all, records...)
	}

	c.markReceived(symbols, len(all))
	c.logger.Infof("[okx] fetched %d candles from %d symbols", len(all), len(symbols))
	return all, nil
}

// okxResponse is the OKX envelope: code "0" on success, data rows of
// string-encoded fields [ts, o, h, l, c, vol, volCcy, volCcyQuote, confirm].
type okxResponse struct {
	Code string     `json:"code"`
	Msg  string     `json:"msg"`
	Data [][]string `json:"data"`
}

func (c *OKX) parseCandles(symbol string, body []byte) ([]*models.MarketData, error) {
	var resp okxResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	if resp.Code != "0" {
		return nil, fmt.Errorf("venue error code %s: %s", resp.Code, resp.Msg)
	}

	records := make([]*models.MarketData, 0, len(resp.Data))
	for _, row := range resp.Data {
		if len(row) < 7 {
			continue
		}
		ts, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			continue
		}
		rec := &models.MarketData{
			Timestamp:   time.UnixMilli(ts),
			Symbol:      symbol,
			Source:      "okx",
			Open:        parseFloat(row[1]),
			High:        parseFloat(row[2]),
			Low:         parseFloat(row[3]),
			Close:       parseFloat(row[4]),
			Volume:      parseFloat(row[5]),
			QuoteVolume: parseFloat(row[6]),
		}
		rec.VWAP = rec.ComputeVWAP()
		if !rec.Valid() {
			c.logger.Warnf("[okx] dropping invalid candle for %s at %v", symbol, rec.Timestamp)
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
