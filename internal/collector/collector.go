package collector

import (
	"context"
	"fmt"
	"sort"
	"time"

	"CoinSentinel/internal/calculator"
	"CoinSentinel/internal/model"

	"github.com/rs/zerolog"
)

// symbolRefresh is how long a discovered symbol list is reused.
const symbolRefresh = 24 * time.Hour

// Config controls what the collector fetches.
type Config struct {
	Symbols        []string // empty means discover via SymbolLister
	QuoteAsset     string   // used for discovery, e.g. USDT
	SourceInterval string
	Timeframe      string
	// Bars of Timeframe to fetch on a symbol's first batch.
	HistoryBars int
	DropOpenBar bool
}

// Batch holds the new bars for one symbol, oldest first.
type Batch struct {
	Symbol   string
	Bars     []model.Bar
	Initial  bool // first delivery for the symbol, used to warm up the baseline
	Rejected int  // malformed bars dropped
}

// Collector fetches bars for every symbol, aggregates them to the strategy
// timeframe and hands over only bars not delivered before.
type Collector struct {
	Fetcher Fetcher
	cfg     Config
	srcDur  time.Duration
	tfDur   time.Duration
	now     func() time.Time
	log     zerolog.Logger

	delivered map[string]time.Time
	symbols   []string
	symbolsAt time.Time
}

// NewCollector validates cfg and creates a Collector.
func NewCollector(fetcher Fetcher, cfg Config, log zerolog.Logger) (*Collector, error) {
	srcDur, err := model.TimeframeDuration(cfg.SourceInterval)
	if err != nil {
		return nil, fmt.Errorf("source interval: %w", err)
	}
	tfDur, err := model.TimeframeDuration(cfg.Timeframe)
	if err != nil {
		return nil, fmt.Errorf("timeframe: %w", err)
	}
	if tfDur < srcDur || tfDur%srcDur != 0 {
		return nil, fmt.Errorf("timeframe %s is not a multiple of source interval %s", cfg.Timeframe, cfg.SourceInterval)
	}
	if cfg.HistoryBars <= 0 {
		return nil, fmt.Errorf("history bars must be positive, got %d", cfg.HistoryBars)
	}
	if len(cfg.Symbols) == 0 {
		if _, ok := fetcher.(SymbolLister); !ok {
			return nil, fmt.Errorf("no symbols configured and fetcher %s cannot list them", fetcher.Name())
		}
	}
	return &Collector{
		Fetcher:   fetcher,
		cfg:       cfg,
		srcDur:    srcDur,
		tfDur:     tfDur,
		now:       time.Now,
		log:       log.With().Str("component", "collector").Str("source", fetcher.Name()).Logger(),
		delivered: make(map[string]time.Time),
	}, nil
}

// SetClock replaces the wall clock.
func (c *Collector) SetClock(now func() time.Time) { c.now = now }

// Symbols returns the configured symbols or the discovered list, refreshed daily.
func (c *Collector) Symbols(ctx context.Context) ([]string, error) {
	if len(c.cfg.Symbols) > 0 {
		return c.cfg.Symbols, nil
	}
	now := c.now()
	if c.symbols != nil && now.Sub(c.symbolsAt) < symbolRefresh {
		return c.symbols, nil
	}
	syms, err := c.Fetcher.(SymbolLister).ListSymbols(ctx, c.cfg.QuoteAsset)
	if err != nil {
		if c.symbols != nil {
			c.log.Warn().Err(err).Msg("symbol refresh failed, keeping previous list")
			return c.symbols, nil
		}
		return nil, err
	}
	c.symbols, c.symbolsAt = syms, now
	c.log.Info().Int("count", len(syms)).Str("quote", c.cfg.QuoteAsset).Msg("symbols discovered")
	return syms, nil
}

// Collect fetches every symbol. A symbol whose fetch fails is logged and
// skipped; symbols with nothing new produce no batch.
func (c *Collector) Collect(ctx context.Context) ([]Batch, error) {
	symbols, err := c.Symbols(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve symbols: %w", err)
	}
	var batches []Batch
	for _, sym := range symbols {
		if err := ctx.Err(); err != nil {
			return batches, err
		}
		b, err := c.collectSymbol(ctx, sym)
		if err != nil {
			c.log.Warn().Err(err).Str("symbol", sym).Msg("collect failed")
			continue
		}
		if len(b.Bars) > 0 {
			batches = append(batches, b)
		}
	}
	return batches, nil
}

func (c *Collector) collectSymbol(ctx context.Context, symbol string) (Batch, error) {
	last, seen := c.delivered[symbol]
	raw, err := c.Fetcher.FetchBars(ctx, symbol, c.cfg.SourceInterval, c.limit(last, seen))
	if err != nil {
		return Batch{}, err
	}
	sort.SliceStable(raw, func(i, j int) bool { return raw[i].Time.Before(raw[j].Time) })

	bars, err := calculator.Aggregate(raw, c.cfg.SourceInterval, c.cfg.Timeframe)
	if err != nil {
		return Batch{}, err
	}

	batch := Batch{Symbol: symbol, Initial: !seen}
	now := c.now()
	for _, bar := range bars {
		if c.cfg.DropOpenBar && bar.Time.Add(c.tfDur).After(now) {
			continue
		}
		if seen && !bar.Time.After(last) {
			continue
		}
		if len(batch.Bars) > 0 && !bar.Time.After(batch.Bars[len(batch.Bars)-1].Time) {
			continue
		}
		if bar.Symbol == "" {
			bar.Symbol = symbol
		}
		if err := bar.Validate(); err != nil {
			batch.Rejected++
			c.log.Warn().Err(err).Str("symbol", symbol).Msg("malformed bar dropped")
			continue
		}
		batch.Bars = append(batch.Bars, bar)
	}
	if n := len(batch.Bars); n > 0 {
		c.delivered[symbol] = batch.Bars[n-1].Time
	}
	return batch, nil
}

// limit sizes the request: full history on the first fetch, otherwise the
// gap since the last delivered bar plus one group of slack.
func (c *Collector) limit(last time.Time, seen bool) int {
	perGroup := int(c.tfDur / c.srcDur)
	full := (c.cfg.HistoryBars + 1) * perGroup
	if !seen {
		return full
	}
	gap := int(c.now().Sub(last)/c.srcDur) + 2*perGroup
	if gap > full {
		return full
	}
	return gap
}

// Quotes fetches the latest price for each symbol. Failures omit the symbol.
func (c *Collector) Quotes(ctx context.Context, symbols []string) map[string]model.Quote {
	out := make(map[string]model.Quote, len(symbols))
	for _, sym := range symbols {
		if ctx.Err() != nil {
			break
		}
		q, err := c.Fetcher.FetchPrice(ctx, sym)
		if err != nil {
			c.log.Warn().Err(err).Str("symbol", sym).Msg("quote failed")
			continue
		}
		if q.Price <= 0 {
			c.log.Warn().Str("symbol", sym).Float64("price", q.Price).Msg("non-positive quote ignored")
			continue
		}
		out[sym] = q
	}
	return out
}

// KnownSymbols returns how many symbols the collector currently tracks.
func (c *Collector) KnownSymbols() int {
	if len(c.cfg.Symbols) > 0 {
		return len(c.cfg.Symbols)
	}
	return len(c.symbols)
}
