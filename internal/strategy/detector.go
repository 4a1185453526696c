package strategy

import (
	"fmt"

	"CoinSentinel/internal/calculator"
	"CoinSentinel/internal/model"
)

// VolumeField selects which bar volume the detector compares.
type VolumeField string

const (
	VolumeQuote VolumeField = "quote" // quote asset turnover, e.g. USDT
	VolumeBase  VolumeField = "base"
)

// Detector flags bars whose volume is at least Multiplier times the baseline,
// within calculator.Tolerance.
type Detector struct {
	Multiplier float64
	Field      VolumeField
}

// NewDetector creates a Detector. The multiplier must be positive.
func NewDetector(multiplier float64, field VolumeField) (*Detector, error) {
	if multiplier <= 0 {
		return nil, fmt.Errorf("volume multiplier must be positive, got %v", multiplier)
	}
	switch field {
	case VolumeQuote, VolumeBase:
	case "":
		field = VolumeQuote
	default:
		return nil, fmt.Errorf("unknown volume field %q", field)
	}
	return &Detector{Multiplier: multiplier, Field: field}, nil
}

// VolumeOf returns the volume the detector reads from bar.
func (d *Detector) VolumeOf(bar model.Bar) float64 {
	if d.Field == VolumeBase {
		return bar.Volume
	}
	return bar.QuoteVolume
}

// Evaluate compares bar against the baseline average. ok=false means the
// baseline is undefined. A zero baseline never produces a signal.
func (d *Detector) Evaluate(bar model.Bar, baseline float64, ok bool) *model.Signal {
	if !ok || baseline <= 0 {
		return nil
	}
	volume := d.VolumeOf(bar)
	ratio := volume / baseline
	if !calculator.AtLeast(ratio, d.Multiplier) {
		return nil
	}
	return &model.Signal{
		Symbol:      bar.Symbol,
		Timeframe:   bar.Timeframe,
		Time:        bar.Time,
		Price:       bar.Close,
		Volume:      volume,
		Baseline:    baseline,
		VolumeRatio: ratio,
		PriceChange: bar.PriceChange(),
	}
}
