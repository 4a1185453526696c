package risk

import (
	"errors"
	"fmt"
	"math"
	"time"

	"CoinSentinel/internal/calculator"

	"github.com/google/uuid"
)

var (
	// ErrInvalidPosition is returned when entry price or quantity is not positive.
	ErrInvalidPosition = errors.New("invalid position")
	// ErrInvalidPrice is returned for a non-positive or non-finite price tick.
	ErrInvalidPrice = errors.New("invalid price")
	// ErrStaleTick is returned when a tick is older than the last update.
	ErrStaleTick = errors.New("tick out of order")
)

// Trailing holds the trailing stop parameters applied on every price update.
type Trailing struct {
	Activation float64 // pnl at which the stop arms, e.g. 0.20
	Ratio      float64 // retracement from the peak, e.g. 0.15
}

// Position is one open holding with its peak and trailing-stop state.
type Position struct {
	ID                string    `json:"id"`
	Symbol            string    `json:"symbol"`
	EntryPrice        float64   `json:"entry_price"`
	Quantity          float64   `json:"quantity"`
	EntryTime         time.Time `json:"entry_time"`
	CurrentPrice      float64   `json:"current_price"`
	MaxPrice          float64   `json:"max_price"`
	MaxProfit         float64   `json:"max_profit"`
	MaxLoss           float64   `json:"max_loss"`
	TrailingActive    bool      `json:"trailing_active"`
	TrailingStopPrice float64   `json:"trailing_stop_price,omitempty"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// NewPosition opens a position at entry price. Peak state starts at the entry.
func NewPosition(symbol string, entryPrice, quantity float64, entryTime time.Time) (*Position, error) {
	if symbol == "" {
		return nil, fmt.Errorf("%w: empty symbol", ErrInvalidPosition)
	}
	if !positiveFinite(entryPrice) {
		return nil, fmt.Errorf("%w: entry price %v", ErrInvalidPosition, entryPrice)
	}
	if !positiveFinite(quantity) {
		return nil, fmt.Errorf("%w: quantity %v", ErrInvalidPosition, quantity)
	}
	return &Position{
		ID:           uuid.NewString(),
		Symbol:       symbol,
		EntryPrice:   entryPrice,
		Quantity:     quantity,
		EntryTime:    entryTime,
		CurrentPrice: entryPrice,
		MaxPrice:     entryPrice,
		UpdatedAt:    entryTime,
	}, nil
}

// PnL returns the unrealized return, current/entry - 1.
func (p *Position) PnL() float64 {
	return p.CurrentPrice/p.EntryPrice - 1
}

// Cost is the capital committed at entry.
func (p *Position) Cost() float64 { return p.EntryPrice * p.Quantity }

// Value is the position marked at the current price.
func (p *Position) Value() float64 { return p.CurrentPrice * p.Quantity }

// HeldFor returns the holding duration at now.
func (p *Position) HeldFor(now time.Time) time.Duration { return now.Sub(p.EntryTime) }

// UpdatePrice applies a price tick. The peak, pnl extremes and trailing stop
// only ever move in one direction; ticks older than the last update are rejected
// so that those invariants hold.
func (p *Position) UpdatePrice(price float64, now time.Time, trail Trailing) error {
	if !positiveFinite(price) {
		return fmt.Errorf("%w: %s price %v", ErrInvalidPrice, p.Symbol, price)
	}
	if now.Before(p.UpdatedAt) {
		return fmt.Errorf("%w: %s tick at %s before %s", ErrStaleTick, p.Symbol,
			now.Format(time.RFC3339), p.UpdatedAt.Format(time.RFC3339))
	}

	p.CurrentPrice = price
	p.UpdatedAt = now
	if price > p.MaxPrice {
		p.MaxPrice = price
	}
	pnl := p.PnL()
	p.MaxLoss = math.Min(p.MaxLoss, pnl)
	p.MaxProfit = math.Max(p.MaxProfit, pnl)

	stop := p.MaxPrice * (1 - trail.Ratio)
	switch {
	case !p.TrailingActive && calculator.AtLeast(pnl, trail.Activation):
		p.TrailingActive = true
		p.TrailingStopPrice = stop
	case p.TrailingActive:
		p.TrailingStopPrice = math.Max(p.TrailingStopPrice, stop)
	}
	return nil
}

func positiveFinite(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
