package broker

import (
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
	binanceAPIURL     = "https://api.binance.com"
	binanceTestnetURL = "https://testnet.binance.vision"
)

// BinanceGateway places spot orders on Binance through signed REST
// calls. All private endpoints sign the query string with HMAC-SHA256.
type BinanceGateway struct {
	name      string
	baseURL   string
	apiKey    string
	apiSecret string
	client    *http.Client
	connector *RateLimitedConnector
	logger    *logrus.Logger
}

// NewBinanceGateway builds a gateway from per-venue settings. The
// credentials are held in memory only and never logged.
func NewBinanceGateway(cfg configs.BrokerConfig, logger *logrus.Logger) (*BinanceGateway, error) {
	connector, err := NewRateLimitedConnector(cfg.MinInterval, cfg.MaxConcurrency)
	if err != nil {
		return nil, err
	}
	baseURL := binanceAPIURL
	if cfg.Testnet {
		baseURL = binanceTestnetURL
	}
	return &BinanceGateway{
		name:      "binance",
		baseURL:   baseURL,
		apiKey:    cfg.APIKey,
		apiSecret: cfg.APISecret,
		client:    &http.Client{Timeout: 10 * time.Second},
		connector: connector,
		logger:    logger,
	}, nil
}

func (g *BinanceGateway) Name() string { return g.name }

// Connect probes the venue and establishes the session.
func (g *BinanceGateway) Connect(ctx context.Context) error {
	if g.connector.IsConnected() {
		return nil
	}
	if _, err := g.public(ctx, "/api/v3/ping", nil); err != nil {
		return err
	}
	g.connector.Connect()
	g.logger.WithField("broker", g.name).Info("Broker connected")
	return nil
}

// Disconnect closes the session. In-flight requests finish normally.
func (g *BinanceGateway) Disconnect(ctx context.Context) error {
	g.connector.Disconnect()
	g.logger.WithField("broker", g.name).Info("Broker disconnected")
	return nil
}

// PlaceOrder submits the order and folds the venue acknowledgment back
// into it. The order must already carry a ClientOrderID.
func (g *BinanceGateway) PlaceOrder(ctx context.Context, order *models.Order) (*models.Order, error) {
	if order.ClientOrderID == "" {
		return nil, fmt.Errorf("place order: client order id is required")
	}

	params := url.Values{}
	params.Set("symbol", order.Symbol)
	params.Set("side", binanceSide(order.Side))
	params.Set("type", binanceOrderType(order.Type))
	params.Set("quantity", order.Quantity.String())
	params.Set("newClientOrderId", order.ClientOrderID)
	if order.Type == models.OrderTypeLimit || order.Type == models.OrderTypeStopLimit {
		params.Set("price", order.Price.String())
		params.Set("timeInForce", "GTC")
	}
	if order.Type == models.OrderTypeStopLimit {
		params.Set("stopPrice", order.StopPrice.String())
	}

	body, err := g.signed(ctx, http.MethodPost, "/api/v3/order", params)
	if err != nil {
		return nil, err
	}

	var ack struct {
		OrderID     int64  `json:"orderId"`
		Status      string `json:"status"`
		ExecutedQty string `json:"executedQty"`
	}
	if err := json.Unmarshal(body, &ack); err != nil {
		return nil, fmt.Errorf("%w: decoding order ack: %v", ErrBrokerUnavailable, err)
	}

	order.ExchangeOrderID = strconv.FormatInt(ack.OrderID, 10)
	order.Status = binanceStatus(ack.Status)
	if filled, err := decimal.NewFromString(ack.ExecutedQty); err == nil {
		order.FilledQuantity = filled
	}
	order.UpdatedAt = time.Now().UTC()

	g.logger.WithFields(logrus.Fields{
		"broker":          g.name,
		"symbol":          order.Symbol,
		"client_order_id": order.ClientOrderID,
		"status":          order.Status,
	}).Info("Order placed")
	return order, nil
}

// CancelOrder cancels by the caller-assigned client order id.
func (g *BinanceGateway) CancelOrder(ctx context.Context, symbol, clientOrderID string) error {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("origClientOrderId", clientOrderID)
	_, err := g.signed(ctx, http.MethodDelete, "/api/v3/order", params)
	return err
}

// GetBalance returns non-zero spot balances.
func (g *BinanceGateway) GetBalance(ctx context.Context) ([]models.Balance, error) {
	body, err := g.signed(ctx, http.MethodGet, "/api/v3/account", url.Values{})
	if err != nil {
		return nil, err
	}

	var account struct {
		Balances []struct {
			Asset  string `json:"asset"`
			Free   string `json:"free"`
			Locked string `json:"locked"`
		} `json:"balances"`
	}
	if err := json.Unmarshal(body, &account); err != nil {
		return nil, fmt.Errorf("%w: decoding account: %v", ErrBrokerUnavailable, err)
	}

	now := time.Now().UTC()
	balances := make([]models.Balance, 0, len(account.Balances))
	for _, b := range account.Balances {
		free, err1 := decimal.NewFromString(b.Free)
		locked, err2 := decimal.NewFromString(b.Locked)
		if err1 != nil || err2 != nil {
			continue
		}
		if free.IsZero() && locked.IsZero() {
			continue
		}
		balances = append(balances, models.Balance{
			Asset:     b.Asset,
			Free:      free,
			Locked:    locked,
			UpdatedAt: now,
		})
	}
	return balances, nil
}

// GetPositions returns no rows: the spot account carries holdings, not
// margin positions. Holdings are visible through GetBalance.
func (g *BinanceGateway) GetPositions(ctx context.Context) ([]models.Position, error) {
	if err := g.connector.EnsureConnected(); err != nil {
		return nil, err
	}
	return []models.Position{}, nil
}

// GetMarketPrice returns the last traded price for a symbol.
func (g *BinanceGateway) GetMarketPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if err := g.connector.EnsureConnected(); err != nil {
		return decimal.Zero, err
	}
	params := url.Values{}
	params.Set("symbol", symbol)
	body, err := g.public(ctx, "/api/v3/ticker/price", params)
	if err != nil {
		return decimal.Zero, err
	}

	var ticker struct {
		Price string `json:"price"`
	}
	if err := json.Unmarshal(body, &ticker); err != nil {
		return decimal.Zero, fmt.Errorf("%w: decoding ticker: %v", ErrBrokerUnavailable, err)
	}
	return decimal.NewFromString(ticker.Price)
}

// signed dispatches a throttled, HMAC-signed request to a private
// endpoint.
func (g *BinanceGateway) signed(ctx context.Context, method, path string, params url.Values) ([]byte, error) {
	if err := g.connector.EnsureConnected(); err != nil {
		return nil, err
	}
	release, err := g.connector.Throttle(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	query := params.Encode()
	mac := hmac.New(sha256.New, []byte(g.apiSecret))
	mac.Write([]byte(query))
	query += "&signature=" + hex.EncodeToString(mac.Sum(nil))

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path+"?"+query, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBrokerUnavailable, err)
	}
	req.Header.Set("X-MBX-APIKEY", g.apiKey)
	return g.do(req)
}

// public dispatches a throttled request to an unauthenticated endpoint.
func (g *BinanceGateway) public(ctx context.Context, path string, params url.Values) ([]byte, error) {
	release, err := g.connector.Throttle(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	endpoint := g.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBrokerUnavailable, err)
	}
	return g.do(req)
}

func (g *BinanceGateway) do(req *http.Request) ([]byte, error) {
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBrokerUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrBrokerUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s %s returned status %d", ErrBrokerUnavailable, req.Method, req.URL.Path, resp.StatusCode)
	}
	return body, nil
}

func binanceSide(side models.OrderSide) string {
	if side == models.OrderSideSell {
		return "SELL"
	}
	return "BUY"
}

func binanceOrderType(t models.OrderType) string {
	switch t {
	case models.OrderTypeLimit:
		return "LIMIT"
	case models.OrderTypeStopLimit:
		return "STOP_LOSS_LIMIT"
	default:
		return "MARKET"
	}
}

func binanceStatus(s string) models.OrderStatus {
	switch s {
	case "NEW":
		return models.OrderStatusOpen
	case "PARTIALLY_FILLED":
		return models.OrderStatusPartiallyFilled
	case "FILLED":
		return models.OrderStatusFilled
	case "CANCELED":
		return models.OrderStatusCancelled
	case "REJECTED":
		return models.OrderStatusRejected
	case "EXPIRED":
		return models.OrderStatusExpired
	default:
		return models.OrderStatusPending
	}
}
