package risk

import (
	"context"
	"errors"
	"testing"
	"time"

	"CoinSentinel/internal/model"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManager(t *testing.T, cfg Config) *Manager {
	t.Helper()
	m, err := NewManager(cfg, zerolog.Nop())
	require.NoError(t, err)
	return m
}

func TestManager_StopLossAtExactlyMinus8(t *testing.T) {
	m := newManager(t, DefaultConfig())
	_, err := m.Open("BTCUSDT", 100, 1, entry)
	require.NoError(t, err)

	d, err := m.Evaluate("BTCUSDT", 92.00, entry.Add(time.Hour))
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, model.ExitStopLoss, d.Reason)
	assert.InDelta(t, -0.08, d.PnL, 1e-9)
}

func TestManager_TrailingStopScenario(t *testing.T) {
	m := newManager(t, DefaultConfig())
	_, err := m.Open("BTCUSDT", 100, 1, entry)
	require.NoError(t, err)

	d, err := m.Evaluate("BTCUSDT", 130, entry.Add(time.Hour))
	require.NoError(t, err)
	assert.Nil(t, d)
	p, _ := m.Get("BTCUSDT")
	assert.InDelta(t, 110.5, p.TrailingStopPrice, 1e-9)

	d, err = m.Evaluate("BTCUSDT", 112, entry.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Nil(t, d, "still above the stop")

	d, err = m.Evaluate("BTCUSDT", 110, entry.Add(3*time.Hour))
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, model.ExitTrailingStop, d.Reason)
}

func TestManager_ForcedCloseAt336Hours(t *testing.T) {
	m := newManager(t, DefaultConfig())
	_, err := m.Open("BTCUSDT", 100, 1, entry)
	require.NoError(t, err)

	d, err := m.Evaluate("BTCUSDT", 100, entry.Add(335*time.Hour))
	require.NoError(t, err)
	assert.Nil(t, d)

	d, err = m.Evaluate("BTCUSDT", 100, entry.Add(336*time.Hour))
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, model.ExitForcedClose, d.Reason)
	assert.Equal(t, 336*time.Hour, d.HeldFor)
}

func TestManager_TimeExitsInOrder(t *testing.T) {
	tests := []struct {
		name  string
		held  time.Duration
		price float64
		want  model.ExitReason
	}{
		{"quick profit", 72 * time.Hour, 110, model.ExitQuickProfit},
		{"quick profit beats profit taking", 200 * time.Hour, 115, model.ExitQuickProfit},
		{"profit taking", 170 * time.Hour, 104, model.ExitProfitTaking},
		{"time stop loss", 240 * time.Hour, 96, model.ExitTimeStopLoss},
		{"time stop loss beats base stop loss", 250 * time.Hour, 90, model.ExitTimeStopLoss},
		{"forced", 400 * time.Hour, 101, model.ExitForcedClose},
		{"too early for quick profit", 71 * time.Hour, 110, ""},
		{"base stop loss before time rules apply", 10 * time.Hour, 90, model.ExitStopLoss},
		{"max profit", 10 * time.Hour, 180, model.ExitMaxProfit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newManager(t, DefaultConfig())
			_, err := m.Open("BTCUSDT", 100, 1, entry)
			require.NoError(t, err)

			d, err := m.Evaluate("BTCUSDT", tt.price, entry.Add(tt.held))
			require.NoError(t, err)
			if tt.want == "" {
				assert.Nil(t, d)
				return
			}
			require.NotNil(t, d)
			assert.Equal(t, tt.want, d.Reason)
		})
	}
}

func TestManager_TimeExitsDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnableTimeExit = false
	cfg.ForcedCloseHours = 0
	m := newManager(t, cfg)
	_, err := m.Open("BTCUSDT", 100, 1, entry)
	require.NoError(t, err)

	d, err := m.Evaluate("BTCUSDT", 100, entry.Add(1000*time.Hour))
	require.NoError(t, err)
	assert.Nil(t, d)

	d, err = m.Evaluate("BTCUSDT", 90, entry.Add(1001*time.Hour))
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, model.ExitStopLoss, d.Reason)
}

func TestManager_OnePositionPerSymbol(t *testing.T) {
	m := newManager(t, DefaultConfig())
	_, err := m.Open("BTCUSDT", 100, 1, entry)
	require.NoError(t, err)
	_, err = m.Open("BTCUSDT", 101, 1, entry)
	assert.ErrorIs(t, err, ErrPositionExists)

	_, err = m.Evaluate("ETHUSDT", 10, entry)
	assert.ErrorIs(t, err, ErrNoPosition)
}

func TestManager_CheckAllRemovesOnlyOnSinkSuccess(t *testing.T) {
	m := newManager(t, DefaultConfig())
	for _, sym := range []string{"AAA", "BBB", "CCC"} {
		_, err := m.Open(sym, 100, 1, entry)
		require.NoError(t, err)
	}

	var calls []string
	sink := CloseSinkFunc(func(_ context.Context, d model.CloseDecision) error {
		calls = append(calls, d.Symbol)
		if d.Symbol == "BBB" {
			return errors.New("exchange down")
		}
		return nil
	})

	now := entry.Add(time.Hour)
	quotes := map[string]model.Quote{
		"AAA": {Symbol: "AAA", Price: 90, Time: now},
		"BBB": {Symbol: "BBB", Price: 90, Time: now},
		"CCC": {Symbol: "CCC", Price: 101, Time: now},
	}
	closed := m.CheckAll(context.Background(), quotes, now, sink)
	require.Len(t, closed, 1)
	assert.Equal(t, "AAA", closed[0].Symbol)
	assert.Equal(t, []string{"AAA", "BBB"}, calls)
	assert.Equal(t, 2, m.Len())

	_, ok := m.Get("AAA")
	assert.False(t, ok, "closed position never re-evaluated")

	// Next cycle the failed close is retried.
	later := now.Add(time.Hour)
	quotes["BBB"] = model.Quote{Symbol: "BBB", Price: 89, Time: later}
	delete(quotes, "AAA")
	closed = m.CheckAll(context.Background(), quotes, later, CloseSinkFunc(func(context.Context, model.CloseDecision) error { return nil }))
	require.Len(t, closed, 1)
	assert.Equal(t, "BBB", closed[0].Symbol)
	assert.Equal(t, 1, m.Len())
}

func TestManager_Summary(t *testing.T) {
	m := newManager(t, DefaultConfig())
	_, err := m.Open("AAA", 100, 2, entry)
	require.NoError(t, err)
	_, err = m.Evaluate("AAA", 110, entry.Add(time.Hour))
	require.NoError(t, err)

	s := m.Summary(780)
	assert.Equal(t, 1, s.PositionCount)
	assert.InDelta(t, 220, s.PositionValue, 1e-9)
	assert.InDelta(t, 1000, s.TotalValue, 1e-9)
	assert.InDelta(t, 0.22, s.Exposure, 1e-9)

	ps := m.Positions()
	require.Len(t, ps, 1)
	ps[0].CurrentPrice = 1
	p, _ := m.Get("AAA")
	assert.Equal(t, 110.0, p.CurrentPrice, "Positions returns copies")
}

func TestNewManager_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TrailingStopRatio = 1.5
	cfg.StopLossPct = 0.08
	_, err := NewManager(cfg, zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "trailing stop ratio")
	assert.Contains(t, err.Error(), "stop loss pct")
}
