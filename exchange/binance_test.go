package exchange

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/marketlake/lake/errs"
)

func TestFetchOHLCVDecodesKlines(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[[0,"1.0","1.5","0.5","1.2","100.0",59999,"0","1","0","0","0"]]`)
	}))
	defer srv.Close()

	c := NewBinanceConnector(BinanceConfig{BaseURL: srv.URL, RPS: 1000})
	points, err := c.FetchOHLCV(context.Background(), "SPOT", "BTCUSDT", "1m", 0, 10)
	if err != nil {
		t.Fatalf("FetchOHLCV: %v", err)
	}
	if len(points) != 1 {
		t.Fatalf("expected 1 point, got %d", len(points))
	}
	p := points[0]
	if p.Ts != 0 || p.Close == nil || *p.Close != 1.2 {
		t.Fatalf("unexpected point: %+v", p)
	}
}

// S4 — rate-limit backoff: the connector retries 429s up to the budget and
// eventually succeeds, having actually waited out each Retry-After.
func TestGetJSONRetriesOn429ThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n <= 3 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `[]`)
	}))
	defer srv.Close()

	c := NewBinanceConnector(BinanceConfig{BaseURL: srv.URL, RPS: 1000})
	points, err := c.FetchOHLCV(context.Background(), "SPOT", "BTCUSDT", "1m", 0, 10)
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if len(points) != 0 {
		t.Fatalf("expected empty batch, got %d", len(points))
	}
	if atomic.LoadInt32(&calls) != 4 {
		t.Fatalf("expected 4 calls (3 failures + success), got %d", calls)
	}
}

func TestGetJSONBannedOn418(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer srv.Close()

	c := NewBinanceConnector(BinanceConfig{BaseURL: srv.URL, RPS: 1000})
	_, err := c.FetchOHLCV(context.Background(), "SPOT", "BTCUSDT", "1m", 0, 10)
	if err == nil {
		t.Fatal("expected an error")
	}
	if !errors.Is(err, errs.ErrBanned) {
		t.Fatalf("expected ErrBanned, got %v", err)
	}
}

func TestGetJSONRateLimitedAfterBudgetExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewBinanceConnector(BinanceConfig{BaseURL: srv.URL, RPS: 1000})
	_, err := c.FetchOHLCV(context.Background(), "SPOT", "BTCUSDT", "1m", 0, 10)
	if !errors.Is(err, errs.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestRegistryUnknownExchange(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Get("kraken"); !errors.Is(err, errs.ErrUnknownExchange) {
		t.Fatalf("expected ErrUnknownExchange, got %v", err)
	}
	r.Register(NewBinanceConnector(BinanceConfig{}))
	got, err := r.Get("binance")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name() != "BINANCE" {
		t.Fatalf("unexpected connector: %v", got.Name())
	}
}

func TestProbeListingDateBinarySearches(t *testing.T) {
	const listedAt = int64(1_600_000_000_000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		since, _ := strconv.ParseInt(r.URL.Query().Get("startTime"), 10, 64)
		if since >= listedAt {
			fmt.Fprintf(w, `[[%d,"1","1","1","1","1",0,"0","1","0","0","0"]]`, since)
			return
		}
		fmt.Fprint(w, `[]`)
	}))
	defer srv.Close()

	c := NewBinanceConnector(BinanceConfig{BaseURL: srv.URL, RPS: 1000})
	got, err := c.ProbeListingDate(context.Background(), "SPOT", "BTCUSDT")
	if err != nil {
		t.Fatalf("ProbeListingDate: %v", err)
	}
	const dayMs = 86_400_000
	if got < listedAt || got > listedAt+dayMs {
		t.Fatalf("ProbeListingDate = %d, want within a day of %d", got, listedAt)
	}
}

