package collector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"CoinSentinel/internal/model"
)

// MockFetcher serves controllable data for development and tests.
// Bars set for a symbol are returned as is; otherwise a flat series is generated.
type MockFetcher struct {
	mu      sync.Mutex
	Price   float64
	Volume  float64
	Now     func() time.Time
	Bars    map[string][]model.Bar
	Prices  map[string]float64
	Errors  map[string]error
	Symbols []string
	Calls   int
}

func (m *MockFetcher) Name() string { return "mock" }

// SetBars replaces the bars served for symbol.
func (m *MockFetcher) SetBars(symbol string, bars []model.Bar) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Bars == nil {
		m.Bars = make(map[string][]model.Bar)
	}
	m.Bars[symbol] = bars
}

// SetPrice sets the quote served for symbol.
func (m *MockFetcher) SetPrice(symbol string, price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Prices == nil {
		m.Prices = make(map[string]float64)
	}
	m.Prices[symbol] = price
}

func (m *MockFetcher) FetchBars(ctx context.Context, symbol, interval string, limit int) ([]model.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	if err := m.Errors[symbol]; err != nil {
		return nil, err
	}
	if bars, ok := m.Bars[symbol]; ok {
		if limit > 0 && len(bars) > limit {
			bars = bars[len(bars)-limit:]
		}
		out := make([]model.Bar, len(bars))
		copy(out, bars)
		return out, nil
	}
	return m.generate(symbol, interval, limit)
}

func (m *MockFetcher) FetchPrice(ctx context.Context, symbol string) (model.Quote, error) {
	if err := ctx.Err(); err != nil {
		return model.Quote{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.Errors[symbol]; err != nil {
		return model.Quote{}, err
	}
	price, ok := m.Prices[symbol]
	if !ok {
		price = m.Price
	}
	if price <= 0 {
		return model.Quote{}, fmt.Errorf("mock: no price for %s", symbol)
	}
	return model.Quote{Symbol: symbol, Price: price, Time: m.now()}, nil
}

func (m *MockFetcher) ListSymbols(_ context.Context, _ string) ([]string, error) {
	return m.Symbols, nil
}

func (m *MockFetcher) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now().UTC()
}

// generate builds limit closed bars ending at the last interval boundary.
func (m *MockFetcher) generate(symbol, interval string, limit int) ([]model.Bar, error) {
	d, err := model.TimeframeDuration(interval)
	if err != nil {
		return nil, err
	}
	price, volume := m.Price, m.Volume
	if price <= 0 {
		price = 1
	}
	if volume <= 0 {
		volume = 1000
	}
	end := m.now().Truncate(d)
	bars := make([]model.Bar, limit)
	for i := range bars {
		p := price * (1 + float64(i-limit/2)*0.0001)
		bars[i] = model.Bar{
			Symbol:      symbol,
			Timeframe:   interval,
			Time:        end.Add(-time.Duration(limit-i) * d),
			Open:        p * 0.999,
			High:        p * 1.005,
			Low:         p * 0.995,
			Close:       p,
			Volume:      volume / p,
			QuoteVolume: volume,
		}
	}
	return bars, nil
}
