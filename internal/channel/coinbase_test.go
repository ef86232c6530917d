package channel

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCoinbaseFetchData(t *testing.T) {
	var gotGranularity string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/time":
			w.Write([]byte(`{"iso":"2023-11-14T22:13:20Z","epoch":1700000000}`))
		case "/products/BTC-USD/candles":
			gotGranularity = r.URL.Query().Get("granularity")
			w.Write([]byte(`[[1700000060,35000.0,35200.0,35050.0,35150.0,8.1],[1700000000,34900.2,35100.5,35000.1,35050.0,12.5]]`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewCoinbase(NewLogger())
	c.baseURL = srv.URL

	records, err := c.FetchData(context.Background(), []string{"BTC-USD"}, "5m", 2)
	if err != nil {
		t.Fatalf("FetchData failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}
	if gotGranularity != "300" {
		t.Errorf("Expected granularity 300, got %q", gotGranularity)
	}
	// Coinbase rows are [time, low, high, open, close, volume].
	if records[0].Low != 35000.0 || records[0].High != 35200.0 || records[0].Open != 35050.0 || records[0].Close != 35150.0 {
		t.Errorf("Unexpected OHLC mapping: %+v", records[0])
	}
}

func TestSnapGranularity(t *testing.T) {
	tests := []struct {
		name    string
		seconds int
		want    int
	}{
		{"zero defaults to 1m", 0, 60},
		{"exact", 3600, 3600},
		{"snaps to nearest", 400, 300},
		{"snaps to day", 50000, 21600},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := snapGranularity(tt.seconds); got != tt.want {
				t.Errorf("Expected %d, got %d", tt.want, got)
			}
		})
	}
}
