package strategy

import (
	"errors"
	"fmt"

	"CoinSentinel/internal/calculator"
	"CoinSentinel/internal/model"
)

// PullbackConfig tunes the pullback detector. Counts are in bars.
type PullbackConfig struct {
	Enabled      bool
	HighLookback int     // bars searched for the recent high
	MinRetrace   float64 // inclusive
	MaxRetrace   float64 // inclusive
	RecentVolume int     // bars averaged for the recent volume
	VolumeRatio  float64 // recent volume must exceed lookback volume by this factor
	RSIPeriod    int
	RSIMin       float64
	RSIMax       float64
	MinBars      int
}

// PullbackDetector looks for a 3-8% style dip below a recent high that comes
// with a pickup in volume while RSI sits between oversold and neutral.
type PullbackDetector struct {
	cfg PullbackConfig
}

// NewPullbackDetector returns nil when the detector is disabled.
func NewPullbackDetector(cfg PullbackConfig) (*PullbackDetector, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	switch {
	case cfg.HighLookback <= 0, cfg.RecentVolume <= 0, cfg.RSIPeriod <= 0:
		return nil, errors.New("pullback periods must be positive")
	case cfg.RecentVolume > cfg.HighLookback:
		return nil, fmt.Errorf("pullback recent volume %d exceeds high lookback %d", cfg.RecentVolume, cfg.HighLookback)
	case cfg.MinRetrace < 0 || cfg.MaxRetrace <= cfg.MinRetrace || cfg.MaxRetrace >= 1:
		return nil, fmt.Errorf("pullback retrace band [%v, %v] is invalid", cfg.MinRetrace, cfg.MaxRetrace)
	case cfg.RSIMin < 0 || cfg.RSIMax > 100 || cfg.RSIMax < cfg.RSIMin:
		return nil, fmt.Errorf("pullback rsi band [%v, %v] is invalid", cfg.RSIMin, cfg.RSIMax)
	case cfg.VolumeRatio <= 0:
		return nil, fmt.Errorf("pullback volume ratio must be positive, got %v", cfg.VolumeRatio)
	}
	if cfg.MinBars < cfg.HighLookback {
		cfg.MinBars = cfg.HighLookback
	}
	if cfg.MinBars < cfg.RSIPeriod+1 {
		cfg.MinBars = cfg.RSIPeriod + 1
	}
	return &PullbackDetector{cfg: cfg}, nil
}

// Periods returns how many trailing bars Evaluate needs.
func (p *PullbackDetector) Periods() int { return p.cfg.MinBars }

// Evaluate checks the latest bar of history. volumeOf picks the bar volume
// to compare, matching the breakout detector.
func (p *PullbackDetector) Evaluate(history []model.Bar, volumeOf func(model.Bar) float64) *model.Pullback {
	if len(history) < p.cfg.MinBars {
		return nil
	}
	last := history[len(history)-1]
	window := history[len(history)-p.cfg.HighLookback:]

	high := 0.0
	var lookbackVol, recentVol float64
	for i, b := range window {
		high = max(high, b.High)
		v := volumeOf(b)
		lookbackVol += v
		if i >= len(window)-p.cfg.RecentVolume {
			recentVol += v
		}
	}
	retrace := (high - last.Close) / high
	if !calculator.AtLeast(retrace, p.cfg.MinRetrace) || !calculator.AtMost(retrace, p.cfg.MaxRetrace) {
		return nil
	}

	lookbackVol /= float64(len(window))
	recentVol /= float64(p.cfg.RecentVolume)
	if lookbackVol <= 0 || recentVol <= lookbackVol*p.cfg.VolumeRatio {
		return nil
	}

	rsi, err := calculator.CalculateRSI(history, p.cfg.RSIPeriod)
	if err != nil || rsi < p.cfg.RSIMin || rsi > p.cfg.RSIMax {
		return nil
	}

	return &model.Pullback{
		Symbol:      last.Symbol,
		Timeframe:   last.Timeframe,
		Time:        last.Time,
		Price:       last.Close,
		RecentHigh:  high,
		Retrace:     retrace,
		RSI:         rsi,
		VolumeRatio: recentVol / lookbackVol,
		Strength:    (p.cfg.MaxRetrace - retrace) * 100,
	}
}
