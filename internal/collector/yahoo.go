package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"CoinSentinel/internal/model"
)

// DefaultYahooURL is the public chart API host.
const DefaultYahooURL = "https://query1.finance.yahoo.com"

// YahooFetcher implements Fetcher using the Yahoo Finance chart API. It is a
// fallback source: Yahoo lists major coins as "BTC-USD" and reports volume in USD.
type YahooFetcher struct {
	BaseURL   string
	Client    *http.Client
	SymbolMap map[string]string // exchange symbol -> Yahoo ticker overrides
}

// NewYahooFetcher creates a new Yahoo Finance fetcher.
func NewYahooFetcher(proxyURL string, timeout time.Duration) *YahooFetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &YahooFetcher{
		BaseURL:   DefaultYahooURL,
		Client:    newHTTPClient(proxyURL, timeout),
		SymbolMap: map[string]string{},
	}
}

func (f *YahooFetcher) Name() string { return "yahoo" }

// yahooSymbol maps BTCUSDT to BTC-USD unless an override exists.
func (f *YahooFetcher) yahooSymbol(symbol string) string {
	if mapped, ok := f.SymbolMap[symbol]; ok {
		return mapped
	}
	for _, quote := range []string{"USDT", "USDC", "FDUSD", "USD"} {
		if base, ok := strings.CutSuffix(symbol, quote); ok && base != "" {
			return base + "-USD"
		}
	}
	return symbol
}

// yahooIntervals maps kline intervals to chart API intervals.
var yahooIntervals = map[string]string{
	"1m":  "1m",
	"5m":  "5m",
	"15m": "15m",
	"30m": "30m",
	"1h":  "60m",
	"1d":  "1d",
}

// yahooRange picks the smallest chart range covering span.
func yahooRange(span time.Duration) string {
	day := 24 * time.Hour
	switch {
	case span <= day:
		return "1d"
	case span <= 5*day:
		return "5d"
	case span <= 30*day:
		return "1mo"
	case span <= 90*day:
		return "3mo"
	case span <= 180*day:
		return "6mo"
	case span <= 365*day:
		return "1y"
	default:
		return "2y"
	}
}

// yahooChart is the response structure from Yahoo Finance chart API.
type yahooChart struct {
	Chart struct {
		Result []struct {
			Meta struct {
				RegularMarketPrice float64 `json:"regularMarketPrice"`
				RegularMarketTime  int64   `json:"regularMarketTime"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func deref(p []*float64, i int) float64 {
	if i >= len(p) || p[i] == nil {
		return 0
	}
	return *p[i]
}

func (f *YahooFetcher) fetchChart(ctx context.Context, symbol, interval, rng string) (*yahooChart, error) {
	u := fmt.Sprintf("%s/v8/finance/chart/%s?interval=%s&range=%s",
		f.BaseURL, url.PathEscape(f.yahooSymbol(symbol)), interval, rng)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("yahoo fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("yahoo read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("yahoo: status %d, body: %s", resp.StatusCode, string(body))
	}

	var chart yahooChart
	if err := json.Unmarshal(body, &chart); err != nil {
		return nil, fmt.Errorf("yahoo decode: %w", err)
	}
	if chart.Chart.Error != nil {
		return nil, fmt.Errorf("yahoo api error: %s", chart.Chart.Error.Description)
	}
	if len(chart.Chart.Result) == 0 {
		return nil, fmt.Errorf("yahoo: no data returned for %s", symbol)
	}
	return &chart, nil
}

// FetchBars returns the most recent limit bars. Null rows are skipped.
func (f *YahooFetcher) FetchBars(ctx context.Context, symbol, interval string, limit int) ([]model.Bar, error) {
	yi, ok := yahooIntervals[interval]
	if !ok {
		return nil, fmt.Errorf("yahoo: unsupported interval %q", interval)
	}
	d, err := model.TimeframeDuration(interval)
	if err != nil {
		return nil, err
	}
	chart, err := f.fetchChart(ctx, symbol, yi, yahooRange(d*time.Duration(limit)))
	if err != nil {
		return nil, err
	}

	result := chart.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return nil, fmt.Errorf("yahoo: no quotes for %s", symbol)
	}
	quote := result.Indicators.Quote[0]
	bars := make([]model.Bar, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		o, h, l, c := deref(quote.Open, i), deref(quote.High, i), deref(quote.Low, i), deref(quote.Close, i)
		if o == 0 && h == 0 && l == 0 && c == 0 {
			continue
		}
		usd := deref(quote.Volume, i)
		base := 0.0
		if c > 0 {
			base = usd / c
		}
		bars = append(bars, model.Bar{
			Symbol:      symbol,
			Timeframe:   interval,
			Time:        time.Unix(ts, 0).UTC(),
			Open:        o,
			High:        h,
			Low:         l,
			Close:       c,
			Volume:      base,
			QuoteVolume: usd,
		})
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	if limit > 0 && len(bars) > limit {
		bars = bars[len(bars)-limit:]
	}
	return bars, nil
}

// FetchPrice returns the chart meta's regular market price.
func (f *YahooFetcher) FetchPrice(ctx context.Context, symbol string) (model.Quote, error) {
	chart, err := f.fetchChart(ctx, symbol, "1m", "1d")
	if err != nil {
		return model.Quote{}, err
	}
	meta := chart.Chart.Result[0].Meta
	if meta.RegularMarketPrice <= 0 {
		return model.Quote{}, fmt.Errorf("yahoo: no price for %s", symbol)
	}
	ts := time.Now().UTC()
	if meta.RegularMarketTime > 0 {
		ts = time.Unix(meta.RegularMarketTime, 0).UTC()
	}
	return model.Quote{Symbol: symbol, Price: meta.RegularMarketPrice, Time: ts}, nil
}
