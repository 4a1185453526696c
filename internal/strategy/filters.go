package strategy

import (
	"fmt"

	"CoinSentinel/internal/calculator"
	"CoinSentinel/internal/model"
)

// FilterConfig holds the optional entry filters applied after detection.
type FilterConfig struct {
	Enabled bool
	// Breakout bar must close above its open and rise less than this ratio.
	PriceChangeMax float64
	// Bars preceding the breakout, excluding it, must form a tight range.
	ConsolidationPeriods int
	VolatilityThreshold  float64
}

// Filters rejects breakouts that are not a rise out of a consolidation.
type Filters struct {
	cfg FilterConfig
}

// NewFilters returns nil when filtering is disabled.
func NewFilters(cfg FilterConfig) (*Filters, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if cfg.PriceChangeMax <= 0 {
		return nil, fmt.Errorf("price change max must be positive, got %v", cfg.PriceChangeMax)
	}
	if cfg.ConsolidationPeriods <= 0 {
		return nil, fmt.Errorf("consolidation periods must be positive, got %d", cfg.ConsolidationPeriods)
	}
	if cfg.VolatilityThreshold <= 0 {
		return nil, fmt.Errorf("volatility threshold must be positive, got %v", cfg.VolatilityThreshold)
	}
	return &Filters{cfg: cfg}, nil
}

// Periods returns how many trailing bars the consolidation check needs.
func (f *Filters) Periods() int { return f.cfg.ConsolidationPeriods }

// Check returns an empty string when sig passes, otherwise the rejection reason.
// history holds the symbol's recent bars ending with the breakout bar.
func (f *Filters) Check(sig *model.Signal, history []model.Bar) string {
	switch {
	case sig.PriceChange <= 0:
		return "price fell or was flat"
	case sig.PriceChange >= f.cfg.PriceChangeMax:
		return fmt.Sprintf("price change %.1f%% above limit", sig.PriceChange*100)
	}

	// Consolidation is measured on the bars before the breakout.
	if len(history) < f.cfg.ConsolidationPeriods+1 {
		return "not enough history for consolidation"
	}
	prior := history[:len(history)-1]
	c, err := calculator.CalculateConsolidation(prior, f.cfg.ConsolidationPeriods)
	if err != nil {
		return fmt.Sprintf("consolidation: %v", err)
	}
	if !c.IsConsolidating(f.cfg.VolatilityThreshold) {
		return fmt.Sprintf("not consolidating (range %.1f%%, volatility %.1f%%)", c.Range*100, c.Volatility*100)
	}
	return ""
}
