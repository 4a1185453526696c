package strategy

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"CoinSentinel/internal/calculator"
	"CoinSentinel/internal/model"

	"github.com/rs/zerolog"
)

// ErrOutOfOrder is returned for a bar that does not advance the symbol's clock.
var ErrOutOfOrder = errors.New("bar out of order")

// Result summarizes one Process call.
type Result struct {
	Signals   []model.Signal
	Pullbacks []model.Pullback
	Accepted  int
	Rejected  int
	Filtered  int
}

// Monitor runs the volume breakout pipeline for many symbols:
// baseline cache, detector, optional filters and alert dedupe.
// It owns all of that state and must be driven from a single goroutine.
type Monitor struct {
	cache    *calculator.BaselineCache
	detector *Detector
	filters  *Filters
	dedupe   *DedupeTracker
	log      zerolog.Logger

	pullback       *PullbackDetector
	pullbackDedupe *DedupeTracker

	lastSeen map[string]time.Time
	history  map[string][]model.Bar // only kept when filters or pullbacks are enabled
}

// NewMonitor wires the pipeline. filters may be nil.
func NewMonitor(cache *calculator.BaselineCache, detector *Detector, filters *Filters, dedupe *DedupeTracker, log zerolog.Logger) *Monitor {
	return &Monitor{
		cache:    cache,
		detector: detector,
		filters:  filters,
		dedupe:   dedupe,
		log:      log.With().Str("component", "monitor").Logger(),
		lastSeen: make(map[string]time.Time),
		history:  make(map[string][]model.Bar),
	}
}

// SetPullback enables pullback detection. Pullback alerts are deduplicated
// per symbol and day separately from breakouts.
func (m *Monitor) SetPullback(p *PullbackDetector) {
	m.pullback = p
	m.pullbackDedupe = NewDedupeTracker(m.dedupe.Location())
}

// Warmup feeds historical bars into the baseline without evaluating them.
func (m *Monitor) Warmup(symbol string, bars []model.Bar) Result {
	return m.process(symbol, bars, false)
}

// Process evaluates each bar against the baseline built from the bars before
// it, then adds the bar to the baseline. Bad bars are skipped.
func (m *Monitor) Process(symbol string, bars []model.Bar) Result {
	return m.process(symbol, bars, true)
}

func (m *Monitor) process(symbol string, bars []model.Bar, evaluate bool) Result {
	var res Result
	for _, bar := range bars {
		if err := m.accept(symbol, bar); err != nil {
			res.Rejected++
			m.log.Warn().Err(err).Str("symbol", symbol).Time("bar_time", bar.Time).Msg("bar skipped")
			continue
		}
		res.Accepted++

		if m.filters != nil || m.pullback != nil {
			m.remember(symbol, bar)
		}

		if evaluate {
			baseline, ok := m.cache.Average(symbol)
			if sig := m.detector.Evaluate(bar, baseline, ok); sig != nil {
				if reason := m.filter(sig); reason != "" {
					res.Filtered++
					m.log.Info().Str("symbol", symbol).Float64("ratio", sig.VolumeRatio).Str("reason", reason).Msg("breakout filtered")
				} else {
					res.Signals = append(res.Signals, *sig)
					m.log.Info().Str("symbol", symbol).Float64("ratio", sig.VolumeRatio).Float64("price", sig.Price).Msg("breakout detected")
				}
			}
			if m.pullback != nil {
				if pb := m.pullback.Evaluate(m.history[symbol], m.detector.VolumeOf); pb != nil {
					res.Pullbacks = append(res.Pullbacks, *pb)
					m.log.Info().Str("symbol", symbol).Float64("retrace", pb.Retrace).Float64("rsi", pb.RSI).Msg("pullback detected")
				}
			}
		}

		m.cache.Observe(symbol, m.detector.VolumeOf(bar))
		m.lastSeen[symbol] = bar.Time
	}
	return res
}

func (m *Monitor) accept(symbol string, bar model.Bar) error {
	if bar.Symbol != "" && bar.Symbol != symbol {
		return fmt.Errorf("%w: symbol %s delivered for %s", model.ErrMalformedBar, bar.Symbol, symbol)
	}
	if err := bar.Validate(); err != nil {
		return err
	}
	if last, ok := m.lastSeen[symbol]; ok && !bar.Time.After(last) {
		return fmt.Errorf("%w: %s at %s not after %s", ErrOutOfOrder, symbol,
			bar.Time.Format(time.RFC3339), last.Format(time.RFC3339))
	}
	return nil
}

func (m *Monitor) filter(sig *model.Signal) string {
	if m.filters == nil {
		return ""
	}
	return m.filters.Check(sig, m.history[sig.Symbol])
}

func (m *Monitor) remember(symbol string, bar model.Bar) {
	keep := 0
	if m.filters != nil {
		keep = m.filters.Periods() + 1
	}
	if m.pullback != nil {
		keep = max(keep, m.pullback.Periods())
	}
	h := append(m.history[symbol], bar)
	if len(h) > keep {
		h = h[len(h)-keep:]
	}
	m.history[symbol] = h
}

// SelectAlerts orders signals by volume ratio, strongest first, and returns
// those the dedupe tracker lets through, at most limit (0 means no limit).
func (m *Monitor) SelectAlerts(signals []model.Signal, limit int) []model.Signal {
	ranked := make([]model.Signal, len(signals))
	copy(ranked, signals)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].VolumeRatio > ranked[j].VolumeRatio })

	var out []model.Signal
	for _, sig := range ranked {
		if limit > 0 && len(out) >= limit {
			break
		}
		if !m.dedupe.ShouldAlert(sig.Symbol, sig.Time) {
			m.log.Debug().Str("symbol", sig.Symbol).Msg("alert suppressed, already sent today")
			continue
		}
		out = append(out, sig)
	}
	return out
}

// SelectPullbacks orders pullbacks by strength and applies the same daily
// dedupe and cap as breakout alerts.
func (m *Monitor) SelectPullbacks(pullbacks []model.Pullback, limit int) []model.Pullback {
	if m.pullback == nil {
		return nil
	}
	ranked := make([]model.Pullback, len(pullbacks))
	copy(ranked, pullbacks)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Strength > ranked[j].Strength })

	var out []model.Pullback
	for _, pb := range ranked {
		if limit > 0 && len(out) >= limit {
			break
		}
		if !m.pullbackDedupe.ShouldAlert(pb.Symbol, pb.Time) {
			continue
		}
		out = append(out, pb)
	}
	return out
}

// SymbolState is the monitor's view of one symbol.
type SymbolState struct {
	Symbol     string
	Samples    int
	Capacity   int
	MinPeriods int
	Baseline   float64
	Ready      bool // enough samples for detection
	LastBar    time.Time
	LastAlert  string // calendar date of the last surfaced alert
}

// Inspect reports the baseline and dedupe state held for symbol.
func (m *Monitor) Inspect(symbol string) SymbolState {
	st := SymbolState{
		Symbol:     symbol,
		Samples:    m.cache.Len(symbol),
		Capacity:   m.cache.Capacity(),
		MinPeriods: m.cache.MinPeriods(),
		LastBar:    m.lastSeen[symbol],
	}
	st.Baseline, st.Ready = m.cache.Average(symbol)
	st.LastAlert, _ = m.dedupe.LastAlertDate(symbol)
	return st
}

// Symbols returns how many symbols have baseline state.
func (m *Monitor) Symbols() int { return m.cache.Symbols() }
