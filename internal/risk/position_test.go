package risk

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var entry = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func TestNewPosition_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		sym   string
		price float64
		qty   float64
	}{
		{"zero price", "BTCUSDT", 0, 1},
		{"negative qty", "BTCUSDT", 100, -1},
		{"zero qty", "BTCUSDT", 100, 0},
		{"empty symbol", "", 100, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPosition(tt.sym, tt.price, tt.qty, entry)
			assert.True(t, errors.Is(err, ErrInvalidPosition))
		})
	}
}

func TestPosition_UpdatePriceTracksExtremes(t *testing.T) {
	p, err := NewPosition("ETHUSDT", 100, 2, entry)
	require.NoError(t, err)
	require.NotEmpty(t, p.ID)
	trail := DefaultConfig().Trailing()

	require.NoError(t, p.UpdatePrice(110, entry.Add(time.Hour), trail))
	require.NoError(t, p.UpdatePrice(95, entry.Add(2*time.Hour), trail))

	assert.Equal(t, 110.0, p.MaxPrice)
	assert.InDelta(t, 0.10, p.MaxProfit, 1e-9)
	assert.InDelta(t, -0.05, p.MaxLoss, 1e-9)
	assert.InDelta(t, -0.05, p.PnL(), 1e-9)
	assert.False(t, p.TrailingActive)
	assert.Equal(t, 190.0, p.Value())
	assert.Equal(t, 200.0, p.Cost())
}

func TestPosition_RejectsBadTicks(t *testing.T) {
	p, err := NewPosition("ETHUSDT", 100, 1, entry)
	require.NoError(t, err)
	trail := DefaultConfig().Trailing()

	require.NoError(t, p.UpdatePrice(120, entry.Add(2*time.Hour), trail))
	assert.ErrorIs(t, p.UpdatePrice(0, entry.Add(3*time.Hour), trail), ErrInvalidPrice)
	assert.ErrorIs(t, p.UpdatePrice(-5, entry.Add(3*time.Hour), trail), ErrInvalidPrice)
	assert.ErrorIs(t, p.UpdatePrice(90, entry.Add(time.Hour), trail), ErrStaleTick)
	assert.Equal(t, 120.0, p.CurrentPrice, "rejected ticks leave state untouched")

	// Equal timestamps are allowed.
	assert.NoError(t, p.UpdatePrice(119, entry.Add(2*time.Hour), trail))
}

func TestPosition_TrailingActivation(t *testing.T) {
	p, err := NewPosition("SOLUSDT", 100, 1, entry)
	require.NoError(t, err)
	trail := Trailing{Activation: 0.20, Ratio: 0.15}

	require.NoError(t, p.UpdatePrice(119, entry.Add(time.Hour), trail))
	assert.False(t, p.TrailingActive)
	assert.Zero(t, p.TrailingStopPrice)

	require.NoError(t, p.UpdatePrice(130, entry.Add(2*time.Hour), trail))
	assert.True(t, p.TrailingActive)
	assert.InDelta(t, 110.5, p.TrailingStopPrice, 1e-9)

	// Falling price does not lower the stop.
	require.NoError(t, p.UpdatePrice(115, entry.Add(3*time.Hour), trail))
	assert.InDelta(t, 110.5, p.TrailingStopPrice, 1e-9)
	assert.True(t, p.TrailingActive, "trailing stays armed once active")

	// New peak ratchets it up.
	require.NoError(t, p.UpdatePrice(140, entry.Add(4*time.Hour), trail))
	assert.InDelta(t, 119.0, p.TrailingStopPrice, 1e-9)
}

func TestPosition_MonotonicUnderRandomWalk(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	p, err := NewPosition("XRPUSDT", 1, 1000, entry)
	require.NoError(t, err)
	trail := DefaultConfig().Trailing()

	price := 1.0
	prevMax, prevStop := p.MaxPrice, 0.0
	for i := 1; i <= 2000; i++ {
		price *= 1 + (rng.Float64()-0.48)*0.05
		require.NoError(t, p.UpdatePrice(price, entry.Add(time.Duration(i)*time.Minute), trail))

		require.GreaterOrEqual(t, p.MaxPrice, prevMax)
		require.GreaterOrEqual(t, p.MaxPrice, p.EntryPrice)
		require.GreaterOrEqual(t, p.MaxPrice, p.CurrentPrice)
		require.GreaterOrEqual(t, p.MaxProfit, p.PnL())
		if p.TrailingActive {
			require.GreaterOrEqual(t, p.TrailingStopPrice, prevStop)
			prevStop = p.TrailingStopPrice
		}
		prevMax = p.MaxPrice
	}
}
