package recorder

import (
	"path/filepath"
	"testing"
	"time"

	"CoinSentinel/internal/model"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *SQLiteRecorder {
	t.Helper()
	r, err := NewSQLiteRecorder(filepath.Join(t.TempDir(), "history.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestSQLiteRecorder_RoundTripCloses(t *testing.T) {
	r := openTestDB(t)
	ts := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	for i, reason := range []model.ExitReason{model.ExitStopLoss, model.ExitTrailingStop} {
		require.NoError(t, r.RecordClose(&CloseEvent{
			Decision: model.CloseDecision{
				PositionID: "pos", Symbol: "BTCUSDT", Quantity: 1, EntryPrice: 100,
				ExitPrice: 110.5, Time: ts.Add(time.Duration(i) * time.Hour),
				Reason: reason, PnL: 0.105, HeldFor: 30 * time.Hour,
			},
			OrderID:  "order",
			Cost:     100.1,
			Proceeds: 110.39,
			Fee:      0.11,
		}))
	}

	closes, err := r.RecentCloses(10)
	require.NoError(t, err)
	require.Len(t, closes, 2)
	assert.Equal(t, model.ExitTrailingStop, closes[0].Decision.Reason, "newest first")
	assert.Equal(t, 30*time.Hour, closes[0].Decision.HeldFor)
	assert.Equal(t, ts.Add(time.Hour), closes[0].Decision.Time)
	assert.Equal(t, 110.39, closes[0].Proceeds)
	assert.Equal(t, 100.1, closes[0].Cost)

	closes, err = r.RecentCloses(1)
	require.NoError(t, err)
	assert.Len(t, closes, 1)
}

func TestSQLiteRecorder_Events(t *testing.T) {
	r := openTestDB(t)
	ts := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, r.RecordSignal(&SignalEvent{
		Signal:  model.Signal{Symbol: "DOGEUSDT", Timeframe: "1h", Time: ts, Price: 0.15, VolumeRatio: 12},
		Alerted: true,
	}))
	require.NoError(t, r.RecordOpen(&OpenEvent{PositionID: "p1", Symbol: "DOGEUSDT", Price: 0.15, Quantity: 100, Cost: 15, Time: ts}))
	require.NoError(t, r.RecordCycle(&CycleEvent{Kind: "scan", Started: ts, Duration: 1500 * time.Millisecond, Symbols: 3, Signals: 1, Alerts: 1}))

	var alerted bool
	require.NoError(t, r.db.QueryRow(`SELECT alerted FROM signals WHERE symbol = ?`, "DOGEUSDT").Scan(&alerted))
	assert.True(t, alerted)

	var ms int64
	require.NoError(t, r.db.QueryRow(`SELECT duration_ms FROM cycles WHERE kind = 'scan'`).Scan(&ms))
	assert.Equal(t, int64(1500), ms)

	var n int
	require.NoError(t, r.db.QueryRow(`SELECT COUNT(*) FROM position_opens`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestSQLiteRecorder_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	r, err := NewSQLiteRecorder(path, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, r.RecordClose(&CloseEvent{Decision: model.CloseDecision{PositionID: "x", Symbol: "A", Reason: model.ExitForcedClose, Time: time.Unix(100, 0)}}))
	require.NoError(t, r.Close())

	r, err = NewSQLiteRecorder(path, zerolog.Nop())
	require.NoError(t, err)
	defer r.Close()
	closes, err := r.RecentCloses(5)
	require.NoError(t, err)
	require.Len(t, closes, 1)
	assert.Equal(t, model.ExitForcedClose, closes[0].Decision.Reason)
}

func TestSQLiteRecorder_OpenPositions(t *testing.T) {
	r := openTestDB(t)
	ts := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, r.RecordOpen(&OpenEvent{
			PositionID: id, OrderID: "o-" + id, Symbol: "SYM" + id, Price: 2, Quantity: 5,
			Cost: 10.01, VolumeRatio: 11, Time: ts.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, r.RecordClose(&CloseEvent{Decision: model.CloseDecision{PositionID: "b", Symbol: "SYMb", Reason: model.ExitStopLoss, Time: ts}}))

	open, err := r.OpenPositions()
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, "a", open[0].PositionID)
	assert.Equal(t, "c", open[1].PositionID)
	assert.Equal(t, 10.01, open[1].Cost)
	assert.Equal(t, ts.Add(2*time.Minute), open[1].Time)
}

func TestNoopRecorder(t *testing.T) {
	var r Recorder = NewNoopRecorder()
	assert.NoError(t, r.RecordSignal(&SignalEvent{}))
	closes, err := r.RecentCloses(5)
	assert.NoError(t, err)
	assert.Empty(t, closes)
}
