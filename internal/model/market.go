package model

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrMalformedBar is returned for bars with missing or impossible values.
var ErrMalformedBar = errors.New("malformed bar")

// Bar represents a single candlestick for one symbol at one timeframe.
type Bar struct {
	Symbol      string
	Timeframe   string
	Time        time.Time // open time
	Open        float64
	High        float64
	Low         float64
	Close       float64
	Volume      float64 // base asset volume
	QuoteVolume float64 // quote asset (USDT) volume
}

// PriceChange returns (close-open)/open, or 0 when open is not positive.
func (b Bar) PriceChange() float64 {
	if b.Open <= 0 {
		return 0
	}
	return (b.Close - b.Open) / b.Open
}

// Validate checks that prices are positive and finite, volumes are not
// negative, and high/low bracket open and close.
func (b Bar) Validate() error {
	if b.Time.IsZero() {
		return fmt.Errorf("%w: %s has no timestamp", ErrMalformedBar, b.Symbol)
	}
	for _, v := range []float64{b.Open, b.High, b.Low, b.Close, b.Volume, b.QuoteVolume} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s at %s has non-finite value", ErrMalformedBar, b.Symbol, b.Time.Format(time.RFC3339))
		}
	}
	if b.Open <= 0 || b.High <= 0 || b.Low <= 0 || b.Close <= 0 {
		return fmt.Errorf("%w: %s at %s has non-positive price", ErrMalformedBar, b.Symbol, b.Time.Format(time.RFC3339))
	}
	if b.Volume < 0 || b.QuoteVolume < 0 {
		return fmt.Errorf("%w: %s at %s has negative volume", ErrMalformedBar, b.Symbol, b.Time.Format(time.RFC3339))
	}
	if b.High < b.Low || b.High < math.Max(b.Open, b.Close) || b.Low > math.Min(b.Open, b.Close) {
		return fmt.Errorf("%w: %s at %s has inconsistent high/low", ErrMalformedBar, b.Symbol, b.Time.Format(time.RFC3339))
	}
	return nil
}

// Quote is the latest traded price for a symbol.
type Quote struct {
	Symbol string
	Price  float64
	Time   time.Time
}

// supported kline intervals and their durations.
var timeframes = map[string]time.Duration{
	"1m":  time.Minute,
	"5m":  5 * time.Minute,
	"15m": 15 * time.Minute,
	"30m": 30 * time.Minute,
	"1h":  time.Hour,
	"2h":  2 * time.Hour,
	"4h":  4 * time.Hour,
	"1d":  24 * time.Hour,
}

// TimeframeDuration converts an interval string like "15m" or "4h" into a duration.
func TimeframeDuration(tf string) (time.Duration, error) {
	d, ok := timeframes[tf]
	if !ok {
		return 0, fmt.Errorf("unsupported timeframe %q", tf)
	}
	return d, nil
}

// PeriodsPerDay returns how many bars of the given timeframe fit into one day.
func PeriodsPerDay(tf string) (int, error) {
	d, err := TimeframeDuration(tf)
	if err != nil {
		return 0, err
	}
	return int((24 * time.Hour) / d), nil
}
