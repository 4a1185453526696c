package calculator

import (
	"errors"
	"fmt"

	"CoinSentinel/internal/model"
)

// ErrNotEnoughBars is returned when an indicator lacks history.
var ErrNotEnoughBars = errors.New("not enough bars")

// CalculateRSI computes the Wilder-smoothed RSI of the closes over period.
// Requires at least period+1 bars.
func CalculateRSI(bars []model.Bar, period int) (float64, error) {
	if period <= 0 {
		return 0, errors.New("period must be positive")
	}
	if len(bars) < period+1 {
		return 0, fmt.Errorf("%w: rsi(%d) needs %d, got %d", ErrNotEnoughBars, period, period+1, len(bars))
	}

	closes := extractCloses(bars)

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		gain, loss := splitChange(closes[i] - closes[i-1])
		avgGain += gain
		avgLoss += loss
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	for i := period + 1; i < len(closes); i++ {
		gain, loss := splitChange(closes[i] - closes[i-1])
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}

	if avgLoss == 0 {
		return 100, nil
	}
	return 100 - 100/(1+avgGain/avgLoss), nil
}

func splitChange(change float64) (gain, loss float64) {
	if change > 0 {
		return change, 0
	}
	return 0, -change
}
