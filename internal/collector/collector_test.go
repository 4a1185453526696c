package collector

import (
	"context"
	"errors"
	"testing"
	"time"

	"CoinSentinel/internal/model"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

func bars15m(symbol string, start time.Time, n int) []model.Bar {
	out := make([]model.Bar, n)
	for i := range out {
		out[i] = model.Bar{
			Symbol:      symbol,
			Timeframe:   "15m",
			Time:        start.Add(time.Duration(i) * 15 * time.Minute),
			Open:        10,
			High:        11,
			Low:         9,
			Close:       10.5,
			Volume:      100,
			QuoteVolume: 1000,
		}
	}
	return out
}

func newCollector(t *testing.T, f Fetcher, cfg Config, now time.Time) *Collector {
	t.Helper()
	c, err := NewCollector(f, cfg, zerolog.Nop())
	require.NoError(t, err)
	c.SetClock(func() time.Time { return now })
	return c
}

func TestCollect_AggregatesAndDeliversOnlyNewBars(t *testing.T) {
	f := &MockFetcher{}
	f.SetBars("BTCUSDT", bars15m("BTCUSDT", base, 16)) // four complete hours
	cfg := Config{Symbols: []string{"BTCUSDT"}, SourceInterval: "15m", Timeframe: "1h", HistoryBars: 24, DropOpenBar: true}
	c := newCollector(t, f, cfg, base.Add(4*time.Hour))

	batches, err := c.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, batches, 1)
	b := batches[0]
	assert.True(t, b.Initial)
	require.Len(t, b.Bars, 4)
	assert.Equal(t, "1h", b.Bars[0].Timeframe)
	assert.Equal(t, 4000.0, b.Bars[0].QuoteVolume)

	// Nothing new: no batch.
	batches, err = c.Collect(context.Background())
	require.NoError(t, err)
	assert.Empty(t, batches)

	// One more hour arrives.
	f.SetBars("BTCUSDT", bars15m("BTCUSDT", base, 20))
	c.SetClock(func() time.Time { return base.Add(5 * time.Hour) })
	batches, err = c.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.False(t, batches[0].Initial)
	require.Len(t, batches[0].Bars, 1)
	assert.Equal(t, base.Add(4*time.Hour), batches[0].Bars[0].Time)
}

func TestCollect_DropsOpenBar(t *testing.T) {
	f := &MockFetcher{}
	f.SetBars("ETHUSDT", bars15m("ETHUSDT", base, 8))
	cfg := Config{Symbols: []string{"ETHUSDT"}, SourceInterval: "15m", Timeframe: "15m", HistoryBars: 10, DropOpenBar: true}
	// The 8th bar opened at 01:45 and is still forming at 01:50.
	c := newCollector(t, f, cfg, base.Add(110*time.Minute))

	batches, err := c.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Len(t, batches[0].Bars, 7)
}

func TestCollect_SkipsMalformedAndFailingSymbols(t *testing.T) {
	good := bars15m("AAA", base, 4)
	good[2].High = 1 // below open and close
	f := &MockFetcher{Errors: map[string]error{"BBB": errors.New("timeout")}}
	f.SetBars("AAA", good)
	cfg := Config{Symbols: []string{"AAA", "BBB"}, SourceInterval: "15m", Timeframe: "15m", HistoryBars: 10}
	c := newCollector(t, f, cfg, base.Add(time.Hour))

	batches, err := c.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, "AAA", batches[0].Symbol)
	assert.Len(t, batches[0].Bars, 3)
	assert.Equal(t, 1, batches[0].Rejected)
}

func TestCollect_DiscoversSymbols(t *testing.T) {
	f := &MockFetcher{Symbols: []string{"AAA", "BBB"}, Price: 2}
	cfg := Config{QuoteAsset: "USDT", SourceInterval: "1h", Timeframe: "1h", HistoryBars: 5, DropOpenBar: true}
	c := newCollector(t, f, cfg, base)
	f.Now = func() time.Time { return base }

	batches, err := c.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, batches, 2)
	assert.Len(t, batches[1].Bars, 6)
}

func TestNewCollector_Invalid(t *testing.T) {
	f := &MockFetcher{}
	_, err := NewCollector(f, Config{Symbols: []string{"A"}, SourceInterval: "1h", Timeframe: "15m", HistoryBars: 1}, zerolog.Nop())
	assert.Error(t, err)
	_, err = NewCollector(f, Config{Symbols: []string{"A"}, SourceInterval: "1h", Timeframe: "3h", HistoryBars: 1}, zerolog.Nop())
	assert.Error(t, err)
	_, err = NewCollector(f, Config{Symbols: []string{"A"}, SourceInterval: "1h", Timeframe: "1h"}, zerolog.Nop())
	assert.Error(t, err)
}

func TestQuotes_OmitsFailures(t *testing.T) {
	f := &MockFetcher{Errors: map[string]error{"BAD": errors.New("boom")}}
	f.SetPrice("AAA", 1.5)
	f.SetPrice("ZERO", 0)
	c := newCollector(t, f, Config{Symbols: []string{"AAA"}, SourceInterval: "1h", Timeframe: "1h", HistoryBars: 1}, base)

	q := c.Quotes(context.Background(), []string{"AAA", "BAD", "ZERO"})
	require.Len(t, q, 1)
	assert.Equal(t, 1.5, q["AAA"].Price)
}
