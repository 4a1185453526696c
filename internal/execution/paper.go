package execution

import (
	"context"
	"fmt"
	"time"

	"CoinSentinel/internal/model"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// PaperConfig controls the simulated fills.
type PaperConfig struct {
	FeeRate     float64 // charged on notional, e.g. 0.001
	LotStep     float64 // quantity increment, e.g. 0.000001
	MinNotional float64
}

// Paper fills every order instantly at the given price. Quantities are
// floored to the lot step in decimal arithmetic.
type Paper struct {
	fee         decimal.Decimal
	step        decimal.Decimal
	minNotional decimal.Decimal
	now         func() time.Time
	log         zerolog.Logger
}

// NewPaper creates a paper executor.
func NewPaper(cfg PaperConfig, log zerolog.Logger) (*Paper, error) {
	if cfg.FeeRate < 0 || cfg.FeeRate >= 1 {
		return nil, fmt.Errorf("fee rate must be in [0, 1), got %v", cfg.FeeRate)
	}
	if cfg.LotStep <= 0 {
		return nil, fmt.Errorf("lot step must be positive, got %v", cfg.LotStep)
	}
	return &Paper{
		fee:         decimal.NewFromFloat(cfg.FeeRate),
		step:        decimal.NewFromFloat(cfg.LotStep),
		minNotional: decimal.NewFromFloat(cfg.MinNotional),
		now:         time.Now,
		log:         log.With().Str("component", "paper").Logger(),
	}, nil
}

func (p *Paper) Name() string { return "paper" }

// Buy converts amount into a lot-rounded quantity. The fee is taken from the
// amount, so Fill.Amount never exceeds what was offered.
func (p *Paper) Buy(ctx context.Context, symbol string, amount, price float64) (Fill, error) {
	if err := ctx.Err(); err != nil {
		return Fill{}, err
	}
	if price <= 0 {
		return Fill{}, fmt.Errorf("buy %s: price must be positive, got %v", symbol, price)
	}
	px := decimal.NewFromFloat(price)
	budget := decimal.NewFromFloat(amount).Div(decimal.NewFromInt(1).Add(p.fee))
	qty := p.roundLot(budget.Div(px))
	notional := qty.Mul(px)
	if qty.IsZero() || notional.LessThan(p.minNotional) {
		return Fill{}, fmt.Errorf("%w: %s amount %.4f at %v", ErrBelowLotSize, symbol, amount, price)
	}
	fee := notional.Mul(p.fee)
	f := p.fill(symbol, Buy, qty, px, notional.Add(fee), fee)
	p.log.Info().Str("symbol", symbol).Str("order_id", f.OrderID).Float64("qty", f.Quantity).Float64("price", price).Msg("paper buy filled")
	return f, nil
}

// Sell closes the full quantity at the decision's exit price.
func (p *Paper) Sell(ctx context.Context, d model.CloseDecision) (Fill, error) {
	if err := ctx.Err(); err != nil {
		return Fill{}, err
	}
	if d.ExitPrice <= 0 {
		return Fill{}, fmt.Errorf("sell %s: exit price must be positive, got %v", d.Symbol, d.ExitPrice)
	}
	px := decimal.NewFromFloat(d.ExitPrice)
	qty := decimal.NewFromFloat(d.Quantity)
	if !qty.IsPositive() {
		return Fill{}, fmt.Errorf("%w: %s quantity %v", ErrBelowLotSize, d.Symbol, d.Quantity)
	}
	notional := qty.Mul(px)
	fee := notional.Mul(p.fee)
	f := p.fill(d.Symbol, Sell, qty, px, notional.Sub(fee), fee)
	p.log.Info().Str("symbol", d.Symbol).Str("order_id", f.OrderID).Str("reason", string(d.Reason)).Float64("proceeds", f.Amount).Msg("paper sell filled")
	return f, nil
}

func (p *Paper) roundLot(qty decimal.Decimal) decimal.Decimal {
	return qty.Div(p.step).Floor().Mul(p.step)
}

func (p *Paper) fill(symbol string, side Side, qty, px, amount, fee decimal.Decimal) Fill {
	return Fill{
		OrderID:  uuid.NewString(),
		Symbol:   symbol,
		Side:     side,
		Quantity: qty.InexactFloat64(),
		Price:    px.InexactFloat64(),
		Amount:   amount.InexactFloat64(),
		Fee:      fee.InexactFloat64(),
		Time:     p.now(),
	}
}
