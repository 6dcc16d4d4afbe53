package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/marketlake/lake/columnar"
	"github.com/marketlake/lake/errs"
	"github.com/marketlake/lake/observability"
)

const binanceDefaultBaseURL = "https://api.binance.com"

// BinanceConfig configures a Binance-style REST connector.
type BinanceConfig struct {
	BaseURL      string
	Timeout      time.Duration
	RPS          float64 // outbound requests per second, pre-emptive pacing
	DefaultLimit int
}

// BinanceConnector implements Connector against the Binance klines /
// funding-rate REST API shape. It is the lake's reference connector; other
// exchanges follow the same construction and retry idiom with their own
// response decoding.
type BinanceConnector struct {
	cfg     BinanceConfig
	client  *http.Client
	limiter *rate.Limiter
	metrics *observability.Metrics

	listingMu    sync.Mutex
	listingCache map[string]int64
}

// SetMetrics attaches a metrics sink recording rate-limit sleeps. Optional;
// a nil or never-called SetMetrics leaves the connector unmetered.
func (c *BinanceConnector) SetMetrics(m *observability.Metrics) { c.metrics = m }

// NewBinanceConnector builds a connector with a pooled HTTP client
// (mirrors the teacher's per-provider transport tuning) and a token-bucket
// limiter pacing outbound requests ahead of the exchange's own 429s.
func NewBinanceConnector(cfg BinanceConfig) *BinanceConnector {
	if cfg.BaseURL == "" {
		cfg.BaseURL = binanceDefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.DefaultLimit == 0 {
		cfg.DefaultLimit = 1000
	}
	if cfg.RPS == 0 {
		cfg.RPS = 10
	}
	transport := &http.Transport{
		MaxIdleConns:        50,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
	return &BinanceConnector{
		cfg:          cfg,
		client:       &http.Client{Transport: transport, Timeout: cfg.Timeout},
		limiter:      rate.NewLimiter(rate.Limit(cfg.RPS), int(cfg.RPS)+1),
		listingCache: make(map[string]int64),
	}
}

func (c *BinanceConnector) Name() string { return "BINANCE" }

func (c *BinanceConnector) Markets() []string { return []string{"SPOT", "FUTURES"} }

func (c *BinanceConnector) Symbols(ctx context.Context, market string) ([]string, error) {
	path := "/api/v3/exchangeInfo"
	if market == "FUTURES" {
		path = "/fapi/v1/exchangeInfo"
	}
	var out struct {
		Symbols []struct {
			Symbol string `json:"symbol"`
		} `json:"symbols"`
	}
	if err := c.getJSON(ctx, path, nil, &out); err != nil {
		return nil, err
	}
	symbols := make([]string, 0, len(out.Symbols))
	for _, s := range out.Symbols {
		symbols = append(symbols, s.Symbol)
	}
	return symbols, nil
}

// binanceKlineLimit caps a single request the way Binance's own API does.
const binanceKlineLimit = 1000

func (c *BinanceConnector) FetchOHLCV(ctx context.Context, market, symbol, period string, sinceMs int64, limit int) ([]columnar.Point, error) {
	if limit <= 0 || limit > binanceKlineLimit {
		limit = c.cfg.DefaultLimit
	}
	path := "/api/v3/klines"
	if market == "FUTURES" {
		path = "/fapi/v1/klines"
	}
	q := map[string]string{
		"symbol":    symbol,
		"interval":  period,
		"startTime": strconv.FormatInt(sinceMs, 10),
		"limit":     strconv.Itoa(limit),
	}
	var raw [][]json.RawMessage
	if err := c.getJSON(ctx, path, q, &raw); err != nil {
		return nil, err
	}

	points := make([]columnar.Point, 0, len(raw))
	for _, k := range raw {
		if len(k) < 6 {
			continue
		}
		var ts int64
		var open, high, low, closeP, volume string
		if err := json.Unmarshal(k[0], &ts); err != nil {
			return nil, errs.Wrap(errs.ErrSchemaMismatch, "kline ts: %v", err)
		}
		_ = json.Unmarshal(k[1], &open)
		_ = json.Unmarshal(k[2], &high)
		_ = json.Unmarshal(k[3], &low)
		_ = json.Unmarshal(k[4], &closeP)
		_ = json.Unmarshal(k[5], &volume)
		points = append(points, columnar.Point{
			Ts:     ts,
			Open:   parsePtr(open),
			High:   parsePtr(high),
			Low:    parsePtr(low),
			Close:  parsePtr(closeP),
			Volume: parsePtr(volume),
		})
	}
	return points, nil
}

func (c *BinanceConnector) FetchFunding(ctx context.Context, market, symbol string, sinceMs int64) ([]columnar.Point, error) {
	q := map[string]string{
		"symbol":    symbol,
		"startTime": strconv.FormatInt(sinceMs, 10),
		"limit":     "1000",
	}
	var raw []struct {
		Symbol      string `json:"symbol"`
		FundingRate string `json:"fundingRate"`
		FundingTime int64  `json:"fundingTime"`
		MarkPrice   string `json:"markPrice,omitempty"`
	}
	if err := c.getJSON(ctx, "/fapi/v1/fundingRate", q, &raw); err != nil {
		return nil, err
	}
	points := make([]columnar.Point, 0, len(raw))
	for _, f := range raw {
		p := columnar.Point{Ts: f.FundingTime, FundingRate: parsePtr(f.FundingRate)}
		if f.MarkPrice != "" {
			p.Extra = map[string]any{"mark_price": f.MarkPrice}
		}
		points = append(points, p)
	}
	return points, nil
}

// ProbeListingDate binary-searches for the earliest day with any data for
// market/symbol. The result only ever changes if Binance backfills history
// for a symbol (never observed in practice), so it's cached per identity —
// a full-history ingest would otherwise re-run the binary search from
// 2017-01-01 on every resume.
func (c *BinanceConnector) ProbeListingDate(ctx context.Context, market, symbol string) (int64, error) {
	key := market + ":" + symbol

	c.listingMu.Lock()
	if ts, ok := c.listingCache[key]; ok {
		c.listingMu.Unlock()
		return ts, nil
	}
	c.listingMu.Unlock()

	lo := int64(1_483_228_800_000) // 2017-01-01, before any Binance symbol listed
	hi := time.Now().UTC().UnixMilli()
	ts, err := probeListingDate(ctx, lo, hi, func(ctx context.Context, ts int64) (bool, error) {
		points, err := c.FetchOHLCV(ctx, market, symbol, "1d", ts, 1)
		if err != nil {
			return false, err
		}
		return len(points) > 0, nil
	})
	if err != nil {
		return 0, err
	}

	c.listingMu.Lock()
	c.listingCache[key] = ts
	c.listingMu.Unlock()
	return ts, nil
}

// getJSON issues a rate-limited GET with the exchange's documented retry
// policy: on 429, sleep min(30s, Retry-After) and retry up to 5 times; on
// 418 (IP ban) fail immediately with Banned; a 6th consecutive 429 raises
// RateLimited.
func (c *BinanceConnector) getJSON(ctx context.Context, path string, query map[string]string, out any) error {
	const maxRetries = 5
	url := c.cfg.BaseURL + path
	if len(query) > 0 {
		url += "?" + encodeQuery(query)
	}

	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		resp, err := c.client.Do(req)
		if err != nil {
			return errs.Wrap(errs.ErrNetworkTimeout, "%s: %v", path, err)
		}

		switch resp.StatusCode {
		case http.StatusOK:
			defer resp.Body.Close()
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return fmt.Errorf("decode %s: %w", path, err)
			}
			return nil
		case http.StatusTeapot: // 418: Binance's IP ban status
			resp.Body.Close()
			return errs.Wrap(errs.ErrBanned, "%s banned the caller", path)
		case http.StatusTooManyRequests:
			retryAfter := retryAfterDelay(resp)
			resp.Body.Close()
			if attempt >= maxRetries {
				return errs.Wrap(errs.ErrRateLimited, "%s exceeded %d retries", path, maxRetries)
			}
			if c.metrics != nil {
				c.metrics.RateLimitSleepsTotal.WithLabelValues(c.Name()).Inc()
			}
			select {
			case <-time.After(retryAfter):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		default:
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return fmt.Errorf("%s returned status %d: %s", path, resp.StatusCode, string(body))
		}
	}
}

func retryAfterDelay(resp *http.Response) time.Duration {
	const maxDelay = 30 * time.Second
	if h := resp.Header.Get("Retry-After"); h != "" {
		if secs, err := strconv.Atoi(h); err == nil {
			d := time.Duration(secs) * time.Second
			if d > maxDelay {
				return maxDelay
			}
			return d
		}
	}
	return maxDelay
}

func parsePtr(s string) *float64 {
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

func encodeQuery(q map[string]string) string {
	vals := url.Values{}
	for k, v := range q {
		vals.Set(k, v)
	}
	return vals.Encode()
}
