package collector

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"CoinSentinel/internal/model"
)

// Fetcher retrieves market data from an exchange or data vendor.
type Fetcher interface {
	// FetchBars returns up to limit bars at interval, oldest first.
	FetchBars(ctx context.Context, symbol, interval string, limit int) ([]model.Bar, error)
	FetchPrice(ctx context.Context, symbol string) (model.Quote, error)
	Name() string
}

// SymbolLister is implemented by fetchers that can enumerate tradable symbols.
type SymbolLister interface {
	ListSymbols(ctx context.Context, quoteAsset string) ([]string, error)
}

// newHTTPClient builds a client with an optional proxy.
func newHTTPClient(proxyURL string, timeout time.Duration) *http.Client {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &http.Client{Timeout: timeout, Transport: transport}
}
