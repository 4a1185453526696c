package risk

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"CoinSentinel/internal/model"

	"github.com/rs/zerolog"
)

var (
	// ErrPositionExists is returned when opening a second position on a symbol.
	ErrPositionExists = errors.New("position already open")
	// ErrNoPosition is returned when a symbol has no open position.
	ErrNoPosition = errors.New("no open position")
)

// CloseSink acts on a close decision, typically by selling the holding.
type CloseSink interface {
	Close(ctx context.Context, d model.CloseDecision) error
}

// CloseSinkFunc adapts a function to CloseSink.
type CloseSinkFunc func(ctx context.Context, d model.CloseDecision) error

func (f CloseSinkFunc) Close(ctx context.Context, d model.CloseDecision) error { return f(ctx, d) }

// Manager holds the live position set and runs the exit chain on each tick.
// Like the baseline cache it has a single owner and no internal locking.
type Manager struct {
	cfg       Config
	rules     []ExitRule
	positions map[string]*Position // by symbol
	log       zerolog.Logger
}

// NewManager validates cfg and builds the exit chain.
func NewManager(cfg Config, log zerolog.Logger) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("risk config: %w", err)
	}
	return &Manager{
		cfg:       cfg,
		rules:     Rules(cfg),
		positions: make(map[string]*Position),
		log:       log.With().Str("component", "risk").Logger(),
	}, nil
}

// Open adds a position. Only one position per symbol may be open.
func (m *Manager) Open(symbol string, price, quantity float64, now time.Time) (*Position, error) {
	if _, ok := m.positions[symbol]; ok {
		return nil, fmt.Errorf("%w: %s", ErrPositionExists, symbol)
	}
	p, err := NewPosition(symbol, price, quantity, now)
	if err != nil {
		return nil, err
	}
	m.positions[symbol] = p
	m.log.Info().Str("symbol", symbol).Str("id", p.ID).Float64("price", price).Float64("qty", quantity).Msg("position opened")
	return p, nil
}

// Evaluate applies a tick to the symbol's position and runs the exit chain.
// It returns nil when the position stays open. The position is not removed.
func (m *Manager) Evaluate(symbol string, price float64, now time.Time) (*model.CloseDecision, error) {
	p, ok := m.positions[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoPosition, symbol)
	}
	if err := p.UpdatePrice(price, now, m.cfg.Trailing()); err != nil {
		return nil, err
	}
	reason, hit := FirstMatch(m.rules, p, now)
	if !hit {
		return nil, nil
	}
	return &model.CloseDecision{
		PositionID: p.ID,
		Symbol:     p.Symbol,
		Quantity:   p.Quantity,
		EntryPrice: p.EntryPrice,
		ExitPrice:  price,
		Time:       now,
		Reason:     reason,
		PnL:        p.PnL(),
		HeldFor:    p.HeldFor(now),
	}, nil
}

// CheckAll evaluates every open position that has a quote. Each close
// decision goes to sink; the position leaves the live set only when the sink
// succeeds, otherwise it is re-evaluated next cycle. Returns the closed decisions.
func (m *Manager) CheckAll(ctx context.Context, quotes map[string]model.Quote, now time.Time, sink CloseSink) []model.CloseDecision {
	var closed []model.CloseDecision
	for _, symbol := range m.symbols() {
		if ctx.Err() != nil {
			m.log.Warn().Err(ctx.Err()).Msg("risk check interrupted")
			break
		}
		q, ok := quotes[symbol]
		if !ok {
			m.log.Debug().Str("symbol", symbol).Msg("no quote, position not evaluated")
			continue
		}
		d, err := m.Evaluate(symbol, q.Price, now)
		if err != nil {
			m.log.Warn().Err(err).Str("symbol", symbol).Msg("tick rejected")
			continue
		}
		if d == nil {
			continue
		}
		if err := sink.Close(ctx, *d); err != nil {
			m.log.Error().Err(err).Str("symbol", symbol).Str("reason", string(d.Reason)).Msg("close failed, position kept open")
			continue
		}
		delete(m.positions, symbol)
		m.log.Info().Str("symbol", symbol).Str("reason", string(d.Reason)).Float64("pnl", d.PnL).Msg("position closed")
		closed = append(closed, *d)
	}
	return closed
}

// Get returns the open position for symbol.
func (m *Manager) Get(symbol string) (*Position, bool) {
	p, ok := m.positions[symbol]
	return p, ok
}

// Len returns the number of open positions.
func (m *Manager) Len() int { return len(m.positions) }

// Positions returns copies of the open positions sorted by symbol.
func (m *Manager) Positions() []Position {
	out := make([]Position, 0, len(m.positions))
	for _, s := range m.symbols() {
		out = append(out, *m.positions[s])
	}
	return out
}

// Summary marks all positions at their last price.
func (m *Manager) Summary(cash float64) model.PortfolioSummary {
	s := model.PortfolioSummary{Cash: cash, PositionCount: len(m.positions)}
	for _, p := range m.positions {
		s.PositionValue += p.Value()
	}
	s.TotalValue = s.Cash + s.PositionValue
	if s.TotalValue > 0 {
		s.Exposure = s.PositionValue / s.TotalValue
	}
	return s
}

func (m *Manager) symbols() []string {
	out := make([]string, 0, len(m.positions))
	for s := range m.positions {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
