package broker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tradegate/tradegate/configs"
	"github.com/tradegate/tradegate/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBrokerConfig() configs.BrokerConfig {
	return configs.BrokerConfig{
		APIKey:         "test-key",
		APISecret:      "test-secret",
		MinInterval:    time.Millisecond,
		MaxConcurrency: 4,
	}
}

func testOrder() *models.Order {
	return &models.Order{
		ClientOrderID: "tg_1767225600000_0123456789abcdef0123456789abcdef",
		Symbol:        "BTCUSDT",
		Exchange:      "binance",
		Side:          models.OrderSideBuy,
		Type:          models.OrderTypeLimit,
		Status:        models.OrderStatusPending,
		Quantity:      decimal.RequireFromString("0.5"),
		Price:         decimal.RequireFromString("43000"),
	}
}

func TestBinancePlaceOrderSignsAndParsesAck(t *testing.T) {
	var gotKey, gotClientID, gotSignature string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v3/ping":
			w.Write([]byte("{}"))
		case "/api/v3/order":
			gotKey = r.Header.Get("X-MBX-APIKEY")
			gotClientID = r.URL.Query().Get("newClientOrderId")
			gotSignature = r.URL.Query().Get("signature")
			json.NewEncoder(w).Encode(map[string]any{
				"orderId":     12345,
				"status":      "NEW",
				"executedQty": "0",
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	g, err := NewBinanceGateway(testBrokerConfig(), NewLogger())
	require.NoError(t, err)
	g.baseURL = server.URL

	ctx := context.Background()
	require.NoError(t, g.Connect(ctx))

	order := testOrder()
	placed, err := g.PlaceOrder(ctx, order)
	require.NoError(t, err)

	assert.Equal(t, "test-key", gotKey)
	assert.Equal(t, order.ClientOrderID, gotClientID)
	assert.Len(t, gotSignature, 64, "expected hex HMAC-SHA256 signature")
	assert.Equal(t, "12345", placed.ExchangeOrderID)
	assert.Equal(t, models.OrderStatusOpen, placed.Status)
}

func TestBinancePlaceOrderRequiresClientOrderID(t *testing.T) {
	g, err := NewBinanceGateway(testBrokerConfig(), NewLogger())
	require.NoError(t, err)

	order := testOrder()
	order.ClientOrderID = ""
	_, err = g.PlaceOrder(context.Background(), order)
	assert.Error(t, err)
}

func TestBinanceOperationsRequireConnect(t *testing.T) {
	g, err := NewBinanceGateway(testBrokerConfig(), NewLogger())
	require.NoError(t, err)

	ctx := context.Background()
	_, err = g.PlaceOrder(ctx, testOrder())
	assert.ErrorIs(t, err, ErrNotConnected)

	_, err = g.GetBalance(ctx)
	assert.ErrorIs(t, err, ErrNotConnected)

	_, err = g.GetMarketPrice(ctx, "BTCUSDT")
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestBinanceTransportFailureIsBrokerUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("{}"))
	}))

	g, err := NewBinanceGateway(testBrokerConfig(), NewLogger())
	require.NoError(t, err)
	g.baseURL = server.URL

	ctx := context.Background()
	require.NoError(t, g.Connect(ctx))

	// venue goes dark after the session is up
	server.Close()
	_, err = g.PlaceOrder(ctx, testOrder())
	assert.ErrorIs(t, err, ErrBrokerUnavailable)
	assert.True(t, g.connector.IsConnected(), "transport failure must not tear down the session")
}

func TestBinanceGetBalanceFiltersZeroRows(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v3/ping":
			w.Write([]byte("{}"))
		case "/api/v3/account":
			json.NewEncoder(w).Encode(map[string]any{
				"balances": []map[string]string{
					{"asset": "BTC", "free": "0.5", "locked": "0.1"},
					{"asset": "ETH", "free": "0", "locked": "0"},
					{"asset": "USDT", "free": "1000", "locked": "0"},
				},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	g, err := NewBinanceGateway(testBrokerConfig(), NewLogger())
	require.NoError(t, err)
	g.baseURL = server.URL

	ctx := context.Background()
	require.NoError(t, g.Connect(ctx))

	balances, err := g.GetBalance(ctx)
	require.NoError(t, err)
	require.Len(t, balances, 2)
	assert.Equal(t, "BTC", balances[0].Asset)
	assert.True(t, balances[0].Free.Equal(decimal.RequireFromString("0.5")))
	assert.Equal(t, "USDT", balances[1].Asset)
}

func TestBybitPlaceOrderSignsHeaders(t *testing.T) {
	var gotHeaders http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v5/market/time":
			json.NewEncoder(w).Encode(map[string]any{"retCode": 0, "result": map[string]any{}})
		case "/v5/order/create":
			gotHeaders = r.Header.Clone()
			json.NewEncoder(w).Encode(map[string]any{
				"retCode": 0,
				"result":  map[string]string{"orderId": "bybit-789"},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	g, err := NewBybitGateway(testBrokerConfig(), NewLogger())
	require.NoError(t, err)
	g.baseURL = server.URL

	ctx := context.Background()
	require.NoError(t, g.Connect(ctx))

	placed, err := g.PlaceOrder(ctx, testOrder())
	require.NoError(t, err)

	assert.Equal(t, "test-key", gotHeaders.Get("X-BAPI-API-KEY"))
	assert.NotEmpty(t, gotHeaders.Get("X-BAPI-TIMESTAMP"))
	assert.Len(t, gotHeaders.Get("X-BAPI-SIGN"), 64)
	assert.Equal(t, "bybit-789", placed.ExchangeOrderID)
	assert.Equal(t, models.OrderStatusOpen, placed.Status)
}

func TestBybitVenueErrorIsBrokerUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v5/market/time" {
			json.NewEncoder(w).Encode(map[string]any{"retCode": 0, "result": map[string]any{}})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"retCode": 10004,
			"retMsg":  "error sign",
		})
	}))
	defer server.Close()

	g, err := NewBybitGateway(testBrokerConfig(), NewLogger())
	require.NoError(t, err)
	g.baseURL = server.URL

	ctx := context.Background()
	require.NoError(t, g.Connect(ctx))

	_, err = g.PlaceOrder(ctx, testOrder())
	assert.ErrorIs(t, err, ErrBrokerUnavailable)
}

func TestBybitGetPositionsSkipsFlatRows(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v5/market/time":
			json.NewEncoder(w).Encode(map[string]any{"retCode": 0, "result": map[string]any{}})
		case "/v5/position/list":
			json.NewEncoder(w).Encode(map[string]any{
				"retCode": 0,
				"result": map[string]any{
					"list": []map[string]string{
						{"symbol": "BTCUSDT", "side": "Buy", "size": "0.2", "avgPrice": "42000", "unrealisedPnl": "150"},
						{"symbol": "ETHUSDT", "side": "None", "size": "0", "avgPrice": "0", "unrealisedPnl": "0"},
					},
				},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	g, err := NewBybitGateway(testBrokerConfig(), NewLogger())
	require.NoError(t, err)
	g.baseURL = server.URL

	ctx := context.Background()
	require.NoError(t, g.Connect(ctx))

	positions, err := g.GetPositions(ctx)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, "BTCUSDT", positions[0].Symbol)
	assert.Equal(t, models.OrderSideBuy, positions[0].Side)
	assert.True(t, positions[0].UnrealizedPnL.Equal(decimal.RequireFromString("150")))
}

func TestConnectIsIdempotent(t *testing.T) {
	var pings int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v3/ping" {
			pings++
		}
		w.Write([]byte("{}"))
	}))
	defer server.Close()

	g, err := NewBinanceGateway(testBrokerConfig(), NewLogger())
	require.NoError(t, err)
	g.baseURL = server.URL

	ctx := context.Background()
	require.NoError(t, g.Connect(ctx))
	require.NoError(t, g.Connect(ctx))
	require.NoError(t, g.Connect(ctx))
	assert.Equal(t, 1, pings)
}
