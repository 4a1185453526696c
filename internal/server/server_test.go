package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"CoinSentinel/internal/model"
	"CoinSentinel/internal/recorder"
	"CoinSentinel/internal/risk"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	positions []risk.Position
	closes    []recorder.CloseEvent
	err       error
	limit     int
	panic     bool
}

func (f *fakeProvider) Positions() []risk.Position { return f.positions }

func (f *fakeProvider) Summary() model.PortfolioSummary {
	if f.panic {
		panic("boom")
	}
	return model.PortfolioSummary{Cash: 900, PositionValue: 100, TotalValue: 1000, PositionCount: 1, Exposure: 0.1}
}

func (f *fakeProvider) Status() model.BotStatus {
	return model.BotStatus{Source: "mock", Symbols: 3, AutoTrade: true}
}

func (f *fakeProvider) RecentCloses(limit int) ([]recorder.CloseEvent, error) {
	f.limit = limit
	return f.closes, f.err
}

func serve(t *testing.T, p StatusProvider, metrics http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	s := New(Config{Addr: ":0"}, p, metrics, zerolog.Nop())
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthAndStatus(t *testing.T) {
	p := &fakeProvider{}
	rec := serve(t, p, nil, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = serve(t, p, nil, "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)
	var st model.BotStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, "mock", st.Source)
	assert.True(t, st.AutoTrade)
}

func TestPositions(t *testing.T) {
	pos, err := risk.NewPosition("BTCUSDT", 100, 2, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	rec := serve(t, &fakeProvider{positions: []risk.Position{*pos}}, nil, "/api/positions")
	require.Equal(t, http.StatusOK, rec.Code)

	var got []risk.Position
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "BTCUSDT", got[0].Symbol)
	assert.Equal(t, 100.0, got[0].EntryPrice)
}

func TestCloses(t *testing.T) {
	p := &fakeProvider{}
	rec := serve(t, p, nil, "/api/closes")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 20, p.limit)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = serve(t, p, nil, "/api/closes?limit=5")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, p.limit)

	rec = serve(t, p, nil, "/api/closes?limit=abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	p.err = errors.New("db closed")
	rec = serve(t, p, nil, "/api/closes")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "db closed")
}

func TestMetricsRoute(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("coinsentinel_up 1\n"))
	})
	rec := serve(t, &fakeProvider{}, metrics, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "coinsentinel_up")

	rec = serve(t, &fakeProvider{}, nil, "/metrics")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRecoverMiddleware(t *testing.T) {
	rec := serve(t, &fakeProvider{panic: true}, nil, "/api/summary")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal server error")
}
