package broker

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/tradegate/tradegate/configs"
	"github.com/tradegate/tradegate/internal/models"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	bybitAPIURL       = "https://api.bybit.com"
	bybitTestnetURL   = "https://api-testnet.bybit.com"
	bybitRecvWindow   = "5000"
	bybitSpotCategory = "spot"
)

// BybitGateway places orders on Bybit's v5 unified API. Private calls
// sign timestamp+key+recvWindow+payload with HMAC-SHA256 into the
// X-BAPI-SIGN header.
type BybitGateway struct {
	name      string
	baseURL   string
	apiKey    string
	apiSecret string
	client    *http.Client
	connector *RateLimitedConnector
	logger    *logrus.Logger
}

// NewBybitGateway builds a gateway from per-venue settings.
func NewBybitGateway(cfg configs.BrokerConfig, logger *logrus.Logger) (*BybitGateway, error) {
	connector, err := NewRateLimitedConnector(cfg.MinInterval, cfg.MaxConcurrency)
	if err != nil {
		return nil, err
	}
	baseURL := bybitAPIURL
	if cfg.Testnet {
		baseURL = bybitTestnetURL
	}
	return &BybitGateway{
		name:      "bybit",
		baseURL:   baseURL,
		apiKey:    cfg.APIKey,
		apiSecret: cfg.APISecret,
		client:    &http.Client{Timeout: 10 * time.Second},
		connector: connector,
		logger:    logger,
	}, nil
}

func (g *BybitGateway) Name() string { return g.name }

func (g *BybitGateway) Connect(ctx context.Context) error {
	if g.connector.IsConnected() {
		return nil
	}
	if _, err := g.request(ctx, http.MethodGet, "/v5/market/time", "", false); err != nil {
		return err
	}
	g.connector.Connect()
	g.logger.WithField("broker", g.name).Info("Broker connected")
	return nil
}

func (g *BybitGateway) Disconnect(ctx context.Context) error {
	g.connector.Disconnect()
	g.logger.WithField("broker", g.name).Info("Broker disconnected")
	return nil
}

func (g *BybitGateway) PlaceOrder(ctx context.Context, order *models.Order) (*models.Order, error) {
	if order.ClientOrderID == "" {
		return nil, fmt.Errorf("place order: client order id is required")
	}
	if err := g.connector.EnsureConnected(); err != nil {
		return nil, err
	}

	payload := map[string]string{
		"category":    bybitSpotCategory,
		"symbol":      order.Symbol,
		"side":        bybitSide(order.Side),
		"orderType":   bybitOrderType(order.Type),
		"qty":         order.Quantity.String(),
		"orderLinkId": order.ClientOrderID,
	}
	if order.Type == models.OrderTypeLimit || order.Type == models.OrderTypeStopLimit {
		payload["price"] = order.Price.String()
		payload["timeInForce"] = "GTC"
	}
	if order.Type == models.OrderTypeStopLimit {
		payload["triggerPrice"] = order.StopPrice.String()
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding order: %w", err)
	}

	result, err := g.request(ctx, http.MethodPost, "/v5/order/create", string(body), true)
	if err != nil {
		return nil, err
	}

	var ack struct {
		OrderID string `json:"orderId"`
	}
	if err := json.Unmarshal(result, &ack); err != nil {
		return nil, fmt.Errorf("%w: decoding order ack: %v", ErrBrokerUnavailable, err)
	}

	order.ExchangeOrderID = ack.OrderID
	order.Status = models.OrderStatusOpen
	order.UpdatedAt = time.Now().UTC()

	g.logger.WithFields(logrus.Fields{
		"broker":          g.name,
		"symbol":          order.Symbol,
		"client_order_id": order.ClientOrderID,
		"status":          order.Status,
	}).Info("Order placed")
	return order, nil
}

func (g *BybitGateway) CancelOrder(ctx context.Context, symbol, clientOrderID string) error {
	if err := g.connector.EnsureConnected(); err != nil {
		return err
	}
	payload, err := json.Marshal(map[string]string{
		"category":    bybitSpotCategory,
		"symbol":      symbol,
		"orderLinkId": clientOrderID,
	})
	if err != nil {
		return fmt.Errorf("encoding cancel: %w", err)
	}
	_, err = g.request(ctx, http.MethodPost, "/v5/order/cancel", string(payload), true)
	return err
}

func (g *BybitGateway) GetBalance(ctx context.Context) ([]models.Balance, error) {
	if err := g.connector.EnsureConnected(); err != nil {
		return nil, err
	}
	result, err := g.request(ctx, http.MethodGet, "/v5/account/wallet-balance?accountType=UNIFIED", "accountType=UNIFIED", true)
	if err != nil {
		return nil, err
	}

	var wallet struct {
		List []struct {
			Coin []struct {
				Coin   string `json:"coin"`
				Free   string `json:"availableToWithdraw"`
				Locked string `json:"locked"`
			} `json:"coin"`
		} `json:"list"`
	}
	if err := json.Unmarshal(result, &wallet); err != nil {
		return nil, fmt.Errorf("%w: decoding wallet: %v", ErrBrokerUnavailable, err)
	}

	now := time.Now().UTC()
	var balances []models.Balance
	for _, account := range wallet.List {
		for _, c := range account.Coin {
			free, err1 := decimal.NewFromString(c.Free)
			locked, err2 := decimal.NewFromString(c.Locked)
			if err1 != nil || err2 != nil {
				continue
			}
			balances = append(balances, models.Balance{
				Asset:     c.Coin,
				Free:      free,
				Locked:    locked,
				UpdatedAt: now,
			})
		}
	}
	return balances, nil
}

func (g *BybitGateway) GetPositions(ctx context.Context) ([]models.Position, error) {
	if err := g.connector.EnsureConnected(); err != nil {
		return nil, err
	}
	query := "category=linear&settleCoin=USDT"
	result, err := g.request(ctx, http.MethodGet, "/v5/position/list?"+query, query, true)
	if err != nil {
		return nil, err
	}

	var page struct {
		List []struct {
			Symbol        string `json:"symbol"`
			Side          string `json:"side"`
			Size          string `json:"size"`
			AvgPrice      string `json:"avgPrice"`
			UnrealisedPnl string `json:"unrealisedPnl"`
		} `json:"list"`
	}
	if err := json.Unmarshal(result, &page); err != nil {
		return nil, fmt.Errorf("%w: decoding positions: %v", ErrBrokerUnavailable, err)
	}

	var positions []models.Position
	for _, p := range page.List {
		size, err := decimal.NewFromString(p.Size)
		if err != nil || size.IsZero() {
			continue
		}
		entry, _ := decimal.NewFromString(p.AvgPrice)
		pnl, _ := decimal.NewFromString(p.UnrealisedPnl)
		side := models.OrderSideBuy
		if p.Side == "Sell" {
			side = models.OrderSideSell
		}
		positions = append(positions, models.Position{
			Symbol:        p.Symbol,
			Side:          side,
			Size:          size,
			EntryPrice:    entry,
			UnrealizedPnL: pnl,
		})
	}
	return positions, nil
}

func (g *BybitGateway) GetMarketPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if err := g.connector.EnsureConnected(); err != nil {
		return decimal.Zero, err
	}
	query := url.Values{}
	query.Set("category", bybitSpotCategory)
	query.Set("symbol", symbol)
	result, err := g.request(ctx, http.MethodGet, "/v5/market/tickers?"+query.Encode(), "", false)
	if err != nil {
		return decimal.Zero, err
	}

	var tickers struct {
		List []struct {
			LastPrice string `json:"lastPrice"`
		} `json:"list"`
	}
	if err := json.Unmarshal(result, &tickers); err != nil {
		return decimal.Zero, fmt.Errorf("%w: decoding tickers: %v", ErrBrokerUnavailable, err)
	}
	if len(tickers.List) == 0 {
		return decimal.Zero, fmt.Errorf("%w: no ticker for %s", ErrBrokerUnavailable, symbol)
	}
	return decimal.NewFromString(tickers.List[0].LastPrice)
}

// request dispatches one throttled call and unwraps the v5 envelope.
// payload is the signed portion: the JSON body for POST, the raw query
// string for GET.
func (g *BybitGateway) request(ctx context.Context, method, path, payload string, signed bool) (json.RawMessage, error) {
	release, err := g.connector.Throttle(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	var bodyReader io.Reader
	if method == http.MethodPost {
		bodyReader = bytes.NewBufferString(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBrokerUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	if signed {
		ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
		mac := hmac.New(sha256.New, []byte(g.apiSecret))
		mac.Write([]byte(ts + g.apiKey + bybitRecvWindow + payload))
		req.Header.Set("X-BAPI-API-KEY", g.apiKey)
		req.Header.Set("X-BAPI-TIMESTAMP", ts)
		req.Header.Set("X-BAPI-RECV-WINDOW", bybitRecvWindow)
		req.Header.Set("X-BAPI-SIGN", hex.EncodeToString(mac.Sum(nil)))
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBrokerUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrBrokerUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s %s returned status %d", ErrBrokerUnavailable, method, path, resp.StatusCode)
	}

	var envelope struct {
		RetCode int             `json:"retCode"`
		RetMsg  string          `json:"retMsg"`
		Result  json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("%w: decoding envelope: %v", ErrBrokerUnavailable, err)
	}
	if envelope.RetCode != 0 {
		return nil, fmt.Errorf("%w: venue error %d: %s", ErrBrokerUnavailable, envelope.RetCode, envelope.RetMsg)
	}
	return envelope.Result, nil
}

func bybitSide(side models.OrderSide) string {
	if side == models.OrderSideSell {
		return "Sell"
	}
	return "Buy"
}

func bybitOrderType(t models.OrderType) string {
	if t == models.OrderTypeMarket {
		return "Market"
	}
	return "Limit"
}
