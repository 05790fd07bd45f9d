package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/ledgerdex/pkg/dex/engine"
	"github.com/uhyunpark/ledgerdex/pkg/dex/registry"
	"github.com/uhyunpark/ledgerdex/pkg/events"
	"github.com/uhyunpark/ledgerdex/pkg/metrics"
)

const (
	adminHex  = "0x00000000000000000000000000000000000000Ad"
	trader1   = "0x0000000000000000000000000000000000000001"
	trader2   = "0x0000000000000000000000000000000000000002"
	repRefHex = "0x00000000000000000000000000000000000004E9"
)

type fixture struct {
	srv *Server
	ts  *httptest.Server
}

// switchJournal fails every commit while fail is set.
type switchJournal struct{ fail atomic.Bool }

func (j *switchJournal) Commit(*engine.ChangeSet) error {
	if j.fail.Load() {
		return errors.New("disk full")
	}
	return nil
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWithJournal(t, nil)
}

func newFixtureWithJournal(t *testing.T, j engine.Journal) *fixture {
	t.Helper()
	reg := prometheus.NewRegistry()
	ex, err := engine.New(engine.Config{
		Admin:   common.HexToAddress(adminHex),
		Quote:   registry.Asset{Ticker: "DAI", Address: common.HexToAddress("0xda1")},
		Metrics: metrics.NewCollector(reg),
		Journal: j,
	})
	require.NoError(t, err)

	srv := NewServer(ex, Options{Gatherer: reg, CORSOrigins: []string{"*"}})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &fixture{srv: srv, ts: ts}
}

func (f *fixture) do(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, f.ts.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, buf.Bytes()
}

func (f *fixture) mustDo(t *testing.T, method, path string, body any, wantStatus int, out any) {
	t.Helper()
	resp, b := f.do(t, method, path, body)
	require.Equal(t, wantStatus, resp.StatusCode, string(b))
	if out != nil {
		require.NoError(t, json.Unmarshal(b, out))
	}
}

// setupREP registers REP, funds trader1 with REP and trader2 with DAI.
func (f *fixture) setupREP(t *testing.T) {
	t.Helper()
	f.mustDo(t, "POST", "/api/v1/assets", RegisterAssetRequest{Caller: adminHex, Ticker: "REP", Address: repRefHex}, http.StatusCreated, nil)
	f.mustDo(t, "POST", "/api/v1/deposits", TransferRequest{Account: trader1, Ticker: "REP", Amount: "100"}, http.StatusOK, nil)
	f.mustDo(t, "POST", "/api/v1/deposits", TransferRequest{Account: trader2, Ticker: "DAI", Amount: "1000"}, http.StatusOK, nil)
}

func TestTradingFlow(t *testing.T) {
	f := newFixture(t)
	f.setupREP(t)

	var lim LimitOrderResponse
	f.mustDo(t, "POST", "/api/v1/orders/limit",
		LimitOrderRequest{Trader: trader1, Ticker: "REP", Side: "sell", Amount: "10", Price: "10"},
		http.StatusCreated, &lim)
	assert.Equal(t, uint64(1), lim.OrderID)

	var mkt MarketOrderResponse
	f.mustDo(t, "POST", "/api/v1/orders/market",
		MarketOrderRequest{Trader: trader2, Ticker: "REP", Side: "buy", Amount: "5"},
		http.StatusOK, &mkt)
	assert.Equal(t, "5", mkt.Filled)
	assert.Equal(t, "0", mkt.Unfilled)
	require.Len(t, mkt.Fills, 1)
	assert.Equal(t, "10", mkt.Fills[0].Price)

	var bal BalanceResponse
	f.mustDo(t, "GET", "/api/v1/accounts/"+trader1+"/balances/DAI", nil, http.StatusOK, &bal)
	assert.Equal(t, "50", bal.Balance)

	var book BookResponse
	f.mustDo(t, "GET", "/api/v1/books/REP/sell", nil, http.StatusOK, &book)
	require.Len(t, book.Orders, 1)
	assert.Equal(t, "5", book.Orders[0].Filled)
	assert.Equal(t, []PriceLevel{{Price: "10", Size: "5"}}, book.Levels)

	var trades []events.Trade
	f.mustDo(t, "GET", "/api/v1/trades/REP?limit=10", nil, http.StatusOK, &trades)
	require.Len(t, trades, 1)
	assert.Equal(t, uint64(1), trades[0].OrderID)

	var st StateResponse
	f.mustDo(t, "GET", "/api/v1/state", nil, http.StatusOK, &st)
	assert.Equal(t, 1, st.RestingOrders)
	assert.Equal(t, uint64(2), st.NextTradeID)
	assert.True(t, strings.HasPrefix(st.Hash, "0x"))

	var assets AssetsResponse
	f.mustDo(t, "GET", "/api/v1/assets", nil, http.StatusOK, &assets)
	assert.Equal(t, "DAI", assets.Quote.Ticker)
	require.Len(t, assets.Assets, 1)
	assert.Equal(t, "REP", assets.Assets[0].Ticker)

	f.mustDo(t, "POST", "/api/v1/withdrawals", TransferRequest{Account: trader1, Ticker: "DAI", Amount: "50"}, http.StatusOK, &bal)
	assert.Equal(t, "0", bal.Balance)
}

func TestErrorStatusMapping(t *testing.T) {
	f := newFixture(t)
	f.setupREP(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"not admin", "POST", "/api/v1/assets", RegisterAssetRequest{Caller: trader1, Ticker: "BAT", Address: repRefHex}, http.StatusUnauthorized},
		{"duplicate asset", "POST", "/api/v1/assets", RegisterAssetRequest{Caller: adminHex, Ticker: "REP", Address: repRefHex}, http.StatusConflict},
		{"reserved ticker", "POST", "/api/v1/assets", RegisterAssetRequest{Caller: adminHex, Ticker: "DAI", Address: repRefHex}, http.StatusConflict},
		{"unknown token deposit", "POST", "/api/v1/deposits", TransferRequest{Account: trader1, Ticker: "ZRX", Amount: "1"}, http.StatusNotFound},
		{"overdraw", "POST", "/api/v1/withdrawals", TransferRequest{Account: trader1, Ticker: "REP", Amount: "101"}, http.StatusUnprocessableEntity},
		{"bad amount", "POST", "/api/v1/deposits", TransferRequest{Account: trader1, Ticker: "REP", Amount: "1.5"}, http.StatusBadRequest},
		{"zero amount", "POST", "/api/v1/deposits", TransferRequest{Account: trader1, Ticker: "REP", Amount: "0"}, http.StatusBadRequest},
		{"bad address", "POST", "/api/v1/deposits", TransferRequest{Account: "bob", Ticker: "REP", Amount: "1"}, http.StatusBadRequest},
		{"unknown field", "POST", "/api/v1/deposits", map[string]string{"acct": trader1}, http.StatusBadRequest},
		{"trade quote", "POST", "/api/v1/orders/limit", LimitOrderRequest{Trader: trader1, Ticker: "DAI", Side: "buy", Amount: "1", Price: "1"}, http.StatusBadRequest},
		{"bad side", "POST", "/api/v1/orders/limit", LimitOrderRequest{Trader: trader1, Ticker: "REP", Side: "hold", Amount: "1", Price: "1"}, http.StatusBadRequest},
		{"no quote funds", "POST", "/api/v1/orders/limit", LimitOrderRequest{Trader: trader1, Ticker: "REP", Side: "buy", Amount: "1", Price: "1"}, http.StatusUnprocessableEntity},
		{"no token funds", "POST", "/api/v1/orders/market", MarketOrderRequest{Trader: trader2, Ticker: "REP", Side: "sell", Amount: "1"}, http.StatusUnprocessableEntity},
		{"unknown book", "GET", "/api/v1/books/ZRX/buy", nil, http.StatusNotFound},
		{"bad trades limit", "GET", "/api/v1/trades/REP?limit=x", nil, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, b := f.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, resp.StatusCode, string(b))
			var e ErrorResponse
			require.NoError(t, json.Unmarshal(b, &e))
			assert.NotEmpty(t, e.Error)
		})
	}
}

func TestUnpersistedOrdersStillReportResult(t *testing.T) {
	j := &switchJournal{}
	f := newFixtureWithJournal(t, j)
	f.setupREP(t)
	j.fail.Store(true)

	var lim LimitOrderResponse
	f.mustDo(t, "POST", "/api/v1/orders/limit",
		LimitOrderRequest{Trader: trader1, Ticker: "REP", Side: "sell", Amount: "10", Price: "10"},
		http.StatusCreated, &lim)
	assert.Equal(t, uint64(1), lim.OrderID)
	assert.Contains(t, lim.Warning, "journal")

	var mkt MarketOrderResponse
	f.mustDo(t, "POST", "/api/v1/orders/market",
		MarketOrderRequest{Trader: trader2, Ticker: "REP", Side: "buy", Amount: "5"},
		http.StatusOK, &mkt)
	assert.Equal(t, "5", mkt.Filled)
	require.Len(t, mkt.Fills, 1)
	assert.Contains(t, mkt.Warning, "journal")

	var bal BalanceResponse
	f.mustDo(t, "POST", "/api/v1/withdrawals", TransferRequest{Account: trader1, Ticker: "DAI", Amount: "50"}, http.StatusOK, &bal)
	assert.Equal(t, "0", bal.Balance)
	assert.NotEmpty(t, bal.Warning)

	// the order stands in memory
	var book BookResponse
	f.mustDo(t, "GET", "/api/v1/books/REP/sell", nil, http.StatusOK, &book)
	require.Len(t, book.Orders, 1)
	assert.Equal(t, "5", book.Orders[0].Filled)

	// no warning once the journal recovers
	j.fail.Store(false)
	var next LimitOrderResponse
	f.mustDo(t, "POST", "/api/v1/orders/limit",
		LimitOrderRequest{Trader: trader1, Ticker: "REP", Side: "sell", Amount: "1", Price: "12"},
		http.StatusCreated, &next)
	assert.Equal(t, uint64(2), next.OrderID)
	assert.Empty(t, next.Warning)
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t)
	f.mustDo(t, "GET", "/health", nil, http.StatusOK, nil)

	// a rejection shows up in the engine metrics
	f.do(t, "POST", "/api/v1/deposits", TransferRequest{Account: trader1, Ticker: "ZRX", Amount: "1"})
	resp, b := f.do(t, "GET", "/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(b), `dex_rejections_total{op="deposit",reason="token_not_found"} 1`)
}

func TestWebSocketTradeFeed(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go f.srv.Hub().Run(ctx)

	wsURL := "ws" + strings.TrimPrefix(f.ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(WSSubscribeRequest{Op: "subscribe", Channels: []string{TradesChannel("REP")}}))
	hub := f.srv.Hub()
	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		for c := range hub.clients {
			if c.IsSubscribed(TradesChannel("REP")) {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	// not subscribed: dropped silently
	require.NoError(t, hub.Publish(ctx, events.Event{Type: events.TypeTrade, Ticker: "BAT"}))
	// deposits have no channel
	require.NoError(t, hub.Publish(ctx, events.Event{Type: events.TypeDeposit, Ticker: "REP"}))
	require.NoError(t, hub.Publish(ctx, events.Event{
		Type:    events.TypeTrade,
		Ticker:  "REP",
		Payload: events.Trade{ID: 9, Ticker: "REP", Amount: "5", Price: "10"},
	}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg struct {
		Channel string `json:"channel"`
		Event   struct {
			Type    string       `json:"type"`
			Payload events.Trade `json:"payload"`
		} `json:"event"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "trades:REP", msg.Channel)
	assert.Equal(t, events.TypeTrade, msg.Event.Type)
	assert.Equal(t, uint64(9), msg.Event.Payload.ID)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, statusFor(engine.ErrJournal))
	assert.Equal(t, http.StatusBadGateway, statusFor(engine.ErrCustody))
}
