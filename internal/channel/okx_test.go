package channel

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

const okxCandles = `{
 "code": "0",
 "msg": "",
 "data": [
  ["1700000000000","35000.1","35100.5","34900.2","35050.0","12.5","437512.5","437512.5","1"],
  ["1700000060000","35050.0","35200.0","35000.0","35150.0","8.1","284715.0","284715.0","1"]
 ]
}`

func TestOKXFetchData(t *testing.T) {
	var gotBar string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v5/public/time":
			w.Write([]byte(`{"code":"0","data":[{"ts":"1700000000000"}]}`))
		case "/api/v5/market/candles":
			gotBar = r.URL.Query().Get("bar")
			w.Write([]byte(okxCandles))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewOKX(NewLogger())
	c.baseURL = srv.URL

	records, err := c.FetchData(context.Background(), []string{"BTC-USDT"}, "1h", 2)
	if err != nil {
		t.Fatalf("FetchData failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}
	if gotBar != "1H" {
		t.Errorf("Expected interval mapped to 1H, got %q", gotBar)
	}
	if records[0].QuoteVolume != 437512.5 {
		t.Errorf("Unexpected quote volume: %v", records[0].QuoteVolume)
	}
}

func TestOKXVenueErrorCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"51001","msg":"Instrument ID does not exist","data":[]}`))
	}))
	defer srv.Close()

	c := NewOKX(NewLogger())
	c.baseURL = srv.URL

	if _, err := c.FetchData(context.Background(), []string{"BOGUS-USDT"}, "1m", 1); err == nil {
		t.Fatal("Expected error for non-zero venue code")
	}
}
