package risk

import (
	"errors"
	"fmt"
	"time"

	"CoinSentinel/internal/calculator"
	"CoinSentinel/internal/model"
)

// Config holds the exit thresholds. Ratios are fractions: -0.08 is -8%.
type Config struct {
	StopLossPct   float64
	TakeProfitPct float64 // informational only, no rule reads it
	MaxProfitPct  float64

	TrailingStopActivation float64
	TrailingStopRatio      float64

	EnableTimeExit        bool
	QuickProfitHours      float64
	QuickProfitThreshold  float64
	ProfitTakingHours     float64
	ProfitTakingThreshold float64
	StopLossHours         float64
	StopLossThreshold     float64
	ForcedCloseHours      float64
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		StopLossPct:            -0.08,
		TakeProfitPct:          0.15,
		MaxProfitPct:           0.80,
		TrailingStopActivation: 0.20,
		TrailingStopRatio:      0.15,
		EnableTimeExit:         true,
		QuickProfitHours:       72,
		QuickProfitThreshold:   0.10,
		ProfitTakingHours:      168,
		ProfitTakingThreshold:  0.03,
		StopLossHours:          240,
		StopLossThreshold:      -0.03,
		ForcedCloseHours:       336,
	}
}

// Validate checks that thresholds have the expected signs and ranges.
func (c Config) Validate() error {
	var errs []error
	if c.StopLossPct >= 0 {
		errs = append(errs, fmt.Errorf("stop loss pct must be negative, got %v", c.StopLossPct))
	}
	if c.MaxProfitPct <= 0 {
		errs = append(errs, fmt.Errorf("max profit pct must be positive, got %v", c.MaxProfitPct))
	}
	if c.TrailingStopActivation <= 0 {
		errs = append(errs, fmt.Errorf("trailing stop activation must be positive, got %v", c.TrailingStopActivation))
	}
	if c.TrailingStopRatio <= 0 || c.TrailingStopRatio >= 1 {
		errs = append(errs, fmt.Errorf("trailing stop ratio must be in (0, 1), got %v", c.TrailingStopRatio))
	}
	if c.EnableTimeExit {
		for name, h := range map[string]float64{
			"quick profit":  c.QuickProfitHours,
			"profit taking": c.ProfitTakingHours,
			"stop loss":     c.StopLossHours,
			"forced close":  c.ForcedCloseHours,
		} {
			if h <= 0 {
				errs = append(errs, fmt.Errorf("%s hours must be positive, got %v", name, h))
			}
		}
	}
	return errors.Join(errs...)
}

// Trailing returns the trailing stop parameters.
func (c Config) Trailing() Trailing {
	return Trailing{Activation: c.TrailingStopActivation, Ratio: c.TrailingStopRatio}
}

// ExitRule is one entry of the exit chain. Match sees the position after the
// current tick has been applied.
type ExitRule struct {
	Reason model.ExitReason
	Match  func(p *Position, held time.Duration) bool
}

// Rules builds the exit chain in priority order. The first matching rule wins.
// Time exits come first and are omitted entirely when disabled.
func Rules(c Config) []ExitRule {
	var rules []ExitRule
	if c.EnableTimeExit {
		rules = append(rules,
			timeRule(model.ExitQuickProfit, c.QuickProfitHours, func(pnl float64) bool {
				return calculator.AtLeast(pnl, c.QuickProfitThreshold)
			}),
			timeRule(model.ExitProfitTaking, c.ProfitTakingHours, func(pnl float64) bool {
				return calculator.AtLeast(pnl, c.ProfitTakingThreshold)
			}),
			timeRule(model.ExitTimeStopLoss, c.StopLossHours, func(pnl float64) bool {
				return calculator.AtMost(pnl, c.StopLossThreshold)
			}),
			timeRule(model.ExitForcedClose, c.ForcedCloseHours, func(float64) bool { return true }),
		)
	}
	return append(rules,
		ExitRule{Reason: model.ExitStopLoss, Match: func(p *Position, _ time.Duration) bool {
			return calculator.AtMost(p.PnL(), c.StopLossPct)
		}},
		ExitRule{Reason: model.ExitMaxProfit, Match: func(p *Position, _ time.Duration) bool {
			return calculator.AtLeast(p.PnL(), c.MaxProfitPct)
		}},
		ExitRule{Reason: model.ExitTrailingStop, Match: func(p *Position, _ time.Duration) bool {
			return p.TrailingActive && calculator.AtMost(p.CurrentPrice, p.TrailingStopPrice)
		}},
	)
}

func timeRule(reason model.ExitReason, hours float64, pnlMatch func(float64) bool) ExitRule {
	after := time.Duration(hours * float64(time.Hour))
	return ExitRule{Reason: reason, Match: func(p *Position, held time.Duration) bool {
		return held >= after && pnlMatch(p.PnL())
	}}
}

// FirstMatch walks the chain and returns the reason of the first matching rule.
func FirstMatch(rules []ExitRule, p *Position, now time.Time) (model.ExitReason, bool) {
	held := p.HeldFor(now)
	for _, r := range rules {
		if r.Match(p, held) {
			return r.Reason, true
		}
	}
	return "", false
}
