package calculator

import (
	"errors"
	"math"

	"CoinSentinel/internal/model"
)

// Consolidation summarizes how tightly price moved over a window of bars.
type Consolidation struct {
	Periods    int
	High       float64
	Low        float64
	Range      float64 // (High-Low)/Low
	Volatility float64 // stddev(close)/mean(close)
}

// IsConsolidating reports whether range and volatility both stay within threshold.
// The range is allowed twice the volatility threshold.
func (c Consolidation) IsConsolidating(threshold float64) bool {
	return c.Range <= threshold*2 && c.Volatility <= threshold
}

// WindowRange scans the most recent n bars and returns the high and low.
func WindowRange(bars []model.Bar, n int) (high, low float64, err error) {
	if len(bars) == 0 {
		return 0, 0, errors.New("no bars provided")
	}
	if n <= 0 {
		return 0, 0, errors.New("window must be positive")
	}
	start := len(bars) - n
	if start < 0 {
		start = 0
	}
	high = math.Inf(-1)
	low = math.Inf(1)
	for i := start; i < len(bars); i++ {
		if bars[i].High > high {
			high = bars[i].High
		}
		if bars[i].Low < low {
			low = bars[i].Low
		}
	}
	return high, low, nil
}

// CalculateConsolidation measures the last n bars. It fails when fewer than n bars exist.
func CalculateConsolidation(bars []model.Bar, n int) (Consolidation, error) {
	if n <= 0 {
		return Consolidation{}, errors.New("window must be positive")
	}
	if len(bars) < n {
		return Consolidation{}, errors.New("not enough data for consolidation")
	}
	high, low, err := WindowRange(bars, n)
	if err != nil {
		return Consolidation{}, err
	}
	if low <= 0 {
		return Consolidation{}, errors.New("low must be positive")
	}

	closes := extractCloses(bars)
	mean, err := CalculateSMA(closes, n)
	if err != nil {
		return Consolidation{}, err
	}
	std, err := CalculateStdDev(closes, n)
	if err != nil {
		return Consolidation{}, err
	}
	vol := 0.0
	if mean > 0 {
		vol = std / mean
	}
	return Consolidation{
		Periods:    n,
		High:       high,
		Low:        low,
		Range:      (high - low) / low,
		Volatility: vol,
	}, nil
}
