package collector

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBinanceFetcher_FetchBars(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/klines", r.URL.Path)
		assert.Equal(t, "DOGEUSDT", r.URL.Query().Get("symbol"))
		assert.Equal(t, "15m", r.URL.Query().Get("interval"))
		assert.Equal(t, "2", r.URL.Query().Get("limit"))
		// served newest first to check ordering
		fmt.Fprint(w, `[
			[1714522500000,"0.1600","0.1700","0.1590","0.1650","200000",1714523399999,"33000.5",120,"0","0","0"],
			[1714521600000,"0.1500","0.1610","0.1490","0.1600","100000",1714522499999,"15500.25",80,"0","0","0"]
		]`)
	}))
	defer srv.Close()

	f := NewBinanceFetcher(srv.URL, "", time.Second)
	bars, err := f.FetchBars(context.Background(), "DOGEUSDT", "15m", 2)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), bars[0].Time)
	assert.Equal(t, 0.15, bars[0].Open)
	assert.Equal(t, 0.161, bars[0].High)
	assert.Equal(t, 100000.0, bars[0].Volume)
	assert.Equal(t, 15500.25, bars[0].QuoteVolume)
	assert.Equal(t, "DOGEUSDT", bars[1].Symbol)
	assert.NoError(t, bars[1].Validate())
}

func TestBinanceFetcher_FetchBarsPages(t *testing.T) {
	// 2500 one-minute klines; the server honours limit and endTime like Binance.
	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	const total = 2500
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
		assert.NoError(t, err)
		assert.LessOrEqual(t, limit, binanceMaxLimit)

		last := total - 1
		if v := r.URL.Query().Get("endTime"); v != "" {
			end, err := strconv.ParseInt(v, 10, 64)
			assert.NoError(t, err)
			last = int((end - start) / 60000)
		}
		first := max(0, last-limit+1)
		rows := make([]string, 0, limit)
		for i := first; i <= last; i++ {
			ms := start + int64(i)*60000
			rows = append(rows, fmt.Sprintf(`[%d,"1","1","1","1","%d",%d,"%d",1,"0","0","0"]`, ms, i, ms+59999, i))
		}
		fmt.Fprintf(w, "[%s]", strings.Join(rows, ","))
	}))
	defer srv.Close()

	f := NewBinanceFetcher(srv.URL, "", time.Second)
	bars, err := f.FetchBars(context.Background(), "BTCUSDT", "1m", 2200)
	require.NoError(t, err)
	require.Len(t, bars, 2200)
	assert.Equal(t, 3, requests)
	assert.Equal(t, 300.0, bars[0].Volume)
	assert.Equal(t, float64(total-1), bars[len(bars)-1].Volume)
	for i := 1; i < len(bars); i++ {
		require.Equal(t, time.Minute, bars[i].Time.Sub(bars[i-1].Time), "gap at %d", i)
	}

	// Asking for more than the listing holds stops at the first kline.
	requests = 0
	bars, err = f.FetchBars(context.Background(), "BTCUSDT", "1m", 4000)
	require.NoError(t, err)
	assert.Len(t, bars, total)
	assert.Equal(t, 3, requests)
}

func TestBinanceFetcher_ErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"code":-1121,"msg":"Invalid symbol."}`)
	}))
	defer srv.Close()

	f := NewBinanceFetcher(srv.URL, "", time.Second)
	_, err := f.FetchBars(context.Background(), "NOPE", "1h", 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid symbol.")
}

func TestBinanceFetcher_MalformedKline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[[1714521600000,"abc","1","1","1","1",0,"1"]]`)
	}))
	defer srv.Close()

	_, err := NewBinanceFetcher(srv.URL, "", time.Second).FetchBars(context.Background(), "X", "1h", 1)
	assert.Error(t, err)
}

func TestBinanceFetcher_PriceAndSymbols(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/ticker/price", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"symbol":%q,"price":"64000.12"}`, r.URL.Query().Get("symbol"))
	})
	mux.HandleFunc("/api/v3/exchangeInfo", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"symbols":[
			{"symbol":"ETHUSDT","status":"TRADING","quoteAsset":"USDT","isSpotTradingAllowed":true},
			{"symbol":"ETHBTC","status":"TRADING","quoteAsset":"BTC","isSpotTradingAllowed":true},
			{"symbol":"LUNAUSDT","status":"BREAK","quoteAsset":"USDT","isSpotTradingAllowed":true},
			{"symbol":"BTCUSDT","status":"TRADING","quoteAsset":"USDT","isSpotTradingAllowed":true}
		]}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	f := NewBinanceFetcher(srv.URL, "", time.Second)
	q, err := f.FetchPrice(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 64000.12, q.Price)
	assert.Equal(t, "BTCUSDT", q.Symbol)

	syms, err := f.ListSymbols(context.Background(), "USDT")
	require.NoError(t, err)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, syms)
}

func TestYahooFetcher_FetchBars(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v8/finance/chart/BTC-USD", r.URL.Path)
		assert.Equal(t, "60m", r.URL.Query().Get("interval"))
		assert.Equal(t, "5d", r.URL.Query().Get("range"))
		fmt.Fprint(w, `{"chart":{"result":[{
			"meta":{"regularMarketPrice":64100,"regularMarketTime":1714525200},
			"timestamp":[1714521600,1714525200,1714528800],
			"indicators":{"quote":[{
				"open":[64000,null,64100],
				"high":[64200,null,64300],
				"low":[63900,null,64000],
				"close":[64100,null,64200],
				"volume":[6410000,null,0]
			}]}
		}],"error":null}}`)
	}))
	defer srv.Close()

	f := NewYahooFetcher("", time.Second)
	f.BaseURL = srv.URL
	bars, err := f.FetchBars(context.Background(), "BTCUSDT", "1h", 48)
	require.NoError(t, err)
	require.Len(t, bars, 2, "null row skipped")
	assert.Equal(t, 6410000.0, bars[0].QuoteVolume)
	assert.InDelta(t, 100.0, bars[0].Volume, 1e-9)

	q, err := f.FetchPrice(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 64100.0, q.Price)

	_, err = f.FetchBars(context.Background(), "BTCUSDT", "4h", 10)
	assert.Error(t, err)
}

func TestYahooSymbol(t *testing.T) {
	f := NewYahooFetcher("", 0)
	f.SymbolMap["1000PEPEUSDT"] = "PEPE24478-USD"
	assert.Equal(t, "ETH-USD", f.yahooSymbol("ETHUSDT"))
	assert.Equal(t, "SOL-USD", f.yahooSymbol("SOLFDUSD"))
	assert.Equal(t, "PEPE24478-USD", f.yahooSymbol("1000PEPEUSDT"))
	assert.Equal(t, "USDT", f.yahooSymbol("USDT"))
}
