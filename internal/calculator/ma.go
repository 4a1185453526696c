package calculator

import (
	"errors"
	"math"

	"CoinSentinel/internal/model"
)

// CalculateSMA computes the simple moving average of the last period values.
func CalculateSMA(values []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, errors.New("period must be positive")
	}
	if len(values) < period {
		return 0, errors.New("not enough data for SMA calculation")
	}
	sum := 0.0
	for i := len(values) - period; i < len(values); i++ {
		sum += values[i]
	}
	return sum / float64(period), nil
}

// CalculateStdDev computes the population standard deviation of the last period values.
func CalculateStdDev(values []float64, period int) (float64, error) {
	mean, err := CalculateSMA(values, period)
	if err != nil {
		return 0, err
	}
	var sq float64
	for i := len(values) - period; i < len(values); i++ {
		d := values[i] - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(period)), nil
}

func extractCloses(bars []model.Bar) []float64 {
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	return closes
}
