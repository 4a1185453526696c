package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"CoinSentinel/internal/model"
)

// DefaultBinanceURL is the public spot REST endpoint.
const DefaultBinanceURL = "https://api.binance.com"

// binanceMaxLimit is the largest page the klines endpoint serves.
const binanceMaxLimit = 1000

// BinanceFetcher implements Fetcher with the Binance spot REST API.
// Market data endpoints need no API key.
type BinanceFetcher struct {
	BaseURL string
	Client  *http.Client
}

// NewBinanceFetcher creates a fetcher with optional proxy support.
func NewBinanceFetcher(baseURL, proxyURL string, timeout time.Duration) *BinanceFetcher {
	if baseURL == "" {
		baseURL = DefaultBinanceURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &BinanceFetcher{BaseURL: baseURL, Client: newHTTPClient(proxyURL, timeout)}
}

func (f *BinanceFetcher) Name() string { return "binance" }

// binanceError is the body Binance returns with 4xx responses.
type binanceError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// FetchBars reads /api/v3/klines. Requests above one page are served by
// paging backwards with endTime until limit bars or the listing start.
func (f *BinanceFetcher) FetchBars(ctx context.Context, symbol, interval string, limit int) ([]model.Bar, error) {
	if limit <= 0 {
		limit = binanceMaxLimit
	}
	var (
		bars  []model.Bar
		endMs int64
	)
	for len(bars) < limit {
		page := min(limit-len(bars), binanceMaxLimit)
		got, err := f.fetchKlines(ctx, symbol, interval, page, endMs)
		if err != nil {
			return nil, err
		}
		bars = append(got, bars...)
		if len(got) < page {
			break
		}
		endMs = got[0].Time.UnixMilli() - 1
	}
	return bars, nil
}

// fetchKlines reads one page, oldest first. endMs of zero means latest.
// Each kline is a positional array:
// open time, open, high, low, close, volume, close time, quote volume, ...
func (f *BinanceFetcher) fetchKlines(ctx context.Context, symbol, interval string, limit int, endMs int64) ([]model.Bar, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("interval", interval)
	q.Set("limit", strconv.Itoa(limit))
	if endMs > 0 {
		q.Set("endTime", strconv.FormatInt(endMs, 10))
	}

	var rows [][]json.RawMessage
	if err := f.get(ctx, "/api/v3/klines", q, &rows); err != nil {
		return nil, fmt.Errorf("fetch klines %s: %w", symbol, err)
	}

	bars := make([]model.Bar, 0, len(rows))
	for _, row := range rows {
		bar, err := parseKline(symbol, interval, row)
		if err != nil {
			return nil, fmt.Errorf("fetch klines %s: %w", symbol, err)
		}
		bars = append(bars, bar)
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	return bars, nil
}

func parseKline(symbol, interval string, row []json.RawMessage) (model.Bar, error) {
	if len(row) < 8 {
		return model.Bar{}, fmt.Errorf("kline has %d fields, want at least 8", len(row))
	}
	var openMs int64
	if err := json.Unmarshal(row[0], &openMs); err != nil {
		return model.Bar{}, fmt.Errorf("kline open time: %w", err)
	}
	// prices and volumes arrive as decimal strings
	var vals [6]float64
	for i, idx := range []int{1, 2, 3, 4, 5, 7} {
		var s string
		if err := json.Unmarshal(row[idx], &s); err != nil {
			return model.Bar{}, fmt.Errorf("kline field %d: %w", idx, err)
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return model.Bar{}, fmt.Errorf("kline field %d: %w", idx, err)
		}
		vals[i] = v
	}
	return model.Bar{
		Symbol:      symbol,
		Timeframe:   interval,
		Time:        time.UnixMilli(openMs).UTC(),
		Open:        vals[0],
		High:        vals[1],
		Low:         vals[2],
		Close:       vals[3],
		Volume:      vals[4],
		QuoteVolume: vals[5],
	}, nil
}

// FetchPrice reads /api/v3/ticker/price.
func (f *BinanceFetcher) FetchPrice(ctx context.Context, symbol string) (model.Quote, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	var result struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := f.get(ctx, "/api/v3/ticker/price", q, &result); err != nil {
		return model.Quote{}, fmt.Errorf("fetch price %s: %w", symbol, err)
	}
	price, err := strconv.ParseFloat(result.Price, 64)
	if err != nil {
		return model.Quote{}, fmt.Errorf("parse price %s: %w", symbol, err)
	}
	return model.Quote{Symbol: symbol, Price: price, Time: time.Now().UTC()}, nil
}

// ListSymbols returns spot symbols currently trading against quoteAsset.
func (f *BinanceFetcher) ListSymbols(ctx context.Context, quoteAsset string) ([]string, error) {
	var info struct {
		Symbols []struct {
			Symbol               string `json:"symbol"`
			Status               string `json:"status"`
			QuoteAsset           string `json:"quoteAsset"`
			IsSpotTradingAllowed bool   `json:"isSpotTradingAllowed"`
		} `json:"symbols"`
	}
	if err := f.get(ctx, "/api/v3/exchangeInfo", nil, &info); err != nil {
		return nil, fmt.Errorf("exchange info: %w", err)
	}
	var out []string
	for _, s := range info.Symbols {
		if s.QuoteAsset == quoteAsset && s.Status == "TRADING" && s.IsSpotTradingAllowed {
			out = append(out, s.Symbol)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (f *BinanceFetcher) get(ctx context.Context, path string, q url.Values, out any) error {
	endpoint := f.BaseURL + path
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var be binanceError
		if json.Unmarshal(body, &be) == nil && be.Msg != "" {
			return fmt.Errorf("status %d: binance error %d: %s", resp.StatusCode, be.Code, be.Msg)
		}
		return fmt.Errorf("status %d, body: %s", resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
