package calculator

import (
	"math"
	"testing"
	"time"

	"CoinSentinel/internal/model"
)

func flatBars(n int, price, spread float64) []model.Bar {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]model.Bar, n)
	for i := range bars {
		bars[i] = model.Bar{
			Symbol: "BTCUSDT",
			Time:   start.Add(time.Duration(i) * time.Hour),
			Open:   price,
			High:   price * (1 + spread),
			Low:    price * (1 - spread),
			Close:  price,
			Volume: 100,
		}
	}
	return bars
}

func TestCalculateConsolidation_Flat(t *testing.T) {
	bars := flatBars(72, 100, 0.01)
	c, err := CalculateConsolidation(bars, 72)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Volatility != 0 {
		t.Errorf("expected zero volatility, got %f", c.Volatility)
	}
	wantRange := (101.0 - 99.0) / 99.0
	if math.Abs(c.Range-wantRange) > 1e-9 {
		t.Errorf("expected range %f, got %f", wantRange, c.Range)
	}
	if !c.IsConsolidating(0.05) {
		t.Error("flat market should be consolidating at 5% threshold")
	}
}

func TestCalculateConsolidation_Volatile(t *testing.T) {
	bars := flatBars(24, 100, 0.01)
	for i := range bars {
		if i%2 == 0 {
			bars[i].Close = 130
			bars[i].High = 131
		}
	}
	c, err := CalculateConsolidation(bars, 24)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.IsConsolidating(0.05) {
		t.Errorf("expected volatile window to fail, range=%.3f vol=%.3f", c.Range, c.Volatility)
	}
}

func TestCalculateConsolidation_NotEnoughData(t *testing.T) {
	if _, err := CalculateConsolidation(flatBars(5, 100, 0.01), 10); err == nil {
		t.Error("expected error for short series")
	}
}

func TestWindowRange(t *testing.T) {
	bars := flatBars(10, 100, 0.01)
	bars[0].High = 500 // outside the last-5 window
	bars[8].Low = 50
	high, low, err := WindowRange(bars, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if high != 101 || low != 50 {
		t.Errorf("expected high=101 low=50, got high=%f low=%f", high, low)
	}
	if _, _, err := WindowRange(nil, 5); err == nil {
		t.Error("expected error for empty bars")
	}
}

func TestCalculateStdDev(t *testing.T) {
	std, err := CalculateStdDev([]float64{2, 4, 4, 4, 5, 5, 7, 9}, 8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if std != 2 {
		t.Errorf("expected 2, got %f", std)
	}
}
