package channel

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

const binanceKlines = `[
 [1700000000000,"35000.1","35100.5","34900.2","35050.0","12.5",1700000059999,"437512.5",42,"6.2","217000.0","0"],
 [1700000060000,"35050.0","35200.0","35000.0","35150.0","8.1",1700000119999,"284715.0",30,"4.0","140600.0","0"]
]`

func newBinanceTestServer(t *testing.T, klinesBody string, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v3/ping":
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("{}"))
		case "/api/v3/klines":
			w.WriteHeader(status)
			w.Write([]byte(klinesBody))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestBinanceFetchData(t *testing.T) {
	srv := newBinanceTestServer(t, binanceKlines, http.StatusOK)
	defer srv.Close()

	c := NewBinance(NewLogger())
	c.baseURL = srv.URL

	ctx := context.Background()
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	records, err := c.FetchData(ctx, []string{"BTCUSDT"}, "1m", 2)
	if err != nil {
		t.Fatalf("FetchData failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}

	first := records[0]
	if first.Symbol != "BTCUSDT" || first.Source != "binance" {
		t.Errorf("Unexpected identity: %s/%s", first.Source, first.Symbol)
	}
	if first.Open != 35000.1 || first.High != 35100.5 || first.Low != 34900.2 || first.Close != 35050.0 {
		t.Errorf("Unexpected OHLC: %+v", first)
	}
	if first.TradesCount != 42 {
		t.Errorf("Expected 42 trades, got %d", first.TradesCount)
	}
	if first.VWAP == 0 {
		t.Error("Expected VWAP to be computed")
	}

	health := c.Health()
	if !health.IsConnected {
		t.Error("Expected connector to be connected")
	}
	if health.TotalMessagesReceived != 2 {
		t.Errorf("Expected 2 messages received, got %d", health.TotalMessagesReceived)
	}
}

func TestBinanceFetchDataDropsInvalidRows(t *testing.T) {
	// High below low fails OHLC validation.
	invalid := `[[1700000000000,"100","90","95","98","1",1700000059999,"98",1,"0","0","0"]]`
	srv := newBinanceTestServer(t, invalid, http.StatusOK)
	defer srv.Close()

	c := NewBinance(NewLogger())
	c.baseURL = srv.URL

	records, err := c.FetchData(context.Background(), []string{"BTCUSDT"}, "1m", 1)
	if err != nil {
		t.Fatalf("FetchData failed: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("Expected invalid rows to be dropped, got %d", len(records))
	}
}

func TestBinanceFetchFailureLeavesConnectionState(t *testing.T) {
	srv := newBinanceTestServer(t, `{"msg":"down"}`, http.StatusServiceUnavailable)
	defer srv.Close()

	c := NewBinance(NewLogger())
	c.baseURL = srv.URL

	ctx := context.Background()
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	_, err := c.FetchData(ctx, []string{"BTCUSDT"}, "1m", 1)
	if !errors.Is(err, ErrDataUnavailable) {
		t.Fatalf("Expected ErrDataUnavailable, got %v", err)
	}

	// A transient fetch failure must not imply disconnection.
	if !c.Health().IsConnected {
		t.Error("Expected connector to remain connected after fetch failure")
	}
}

func TestBinanceStartIsIdempotent(t *testing.T) {
	probes := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v3/ping" {
			probes++
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("{}"))
	}))
	defer srv.Close()

	c := NewBinance(NewLogger())
	c.baseURL = srv.URL

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := c.Start(ctx); err != nil {
			t.Fatalf("Start %d failed: %v", i, err)
		}
	}
	if probes != 1 {
		t.Errorf("Expected 1 probe, got %d", probes)
	}

	if err := c.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := c.Stop(ctx); err != nil {
		t.Fatalf("Second Stop failed: %v", err)
	}
	if c.Health().IsConnected {
		t.Error("Expected connector to be disconnected after Stop")
	}
}

func TestBinanceDefaultSymbols(t *testing.T) {
	requested := make(map[string]bool)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v3/klines" {
			requested[r.URL.Query().Get("symbol")] = true
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("[]"))
	}))
	defer srv.Close()

	c := NewBinance(NewLogger())
	c.baseURL = srv.URL

	if _, err := c.FetchData(context.Background(), nil, "1m", 10); err != nil {
		t.Fatalf("FetchData failed: %v", err)
	}
	if len(requested) != len(binanceDefaultSymbols) {
		t.Errorf("Expected %d default symbols requested, got %d", len(binanceDefaultSymbols), len(requested))
	}
}
