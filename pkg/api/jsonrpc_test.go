package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratalob/lob/pkg/book"
	"github.com/stratalob/lob/pkg/metrics"
)

// counterValue scrapes one unlabeled counter's current value out of a
// Prometheus text-exposition dump.
func counterValue(t *testing.T, body string, name string) float64 {
	t.Helper()
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(line, name+" ") {
			fields := strings.Fields(line)
			v, err := strconv.ParseFloat(fields[len(fields)-1], 64)
			require.NoError(t, err)
			return v
		}
	}
	t.Fatalf("metric %q not found in exposition output", name)
	return 0
}

func rpc(t *testing.T, s *Server, method string, params interface{}) Response {
	t.Helper()
	raw, err := json.Marshal(params)
	require.NoError(t, err)

	req := Request{JSONRPC: "2.0", Method: method, Params: raw, ID: 1}
	body, err := json.Marshal(req)
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.ServeHTTP(w, r)

	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp
}

func TestAddOrderAccepted(t *testing.T) {
	s := NewServer(book.New(), nil)

	resp := rpc(t, s, "lob_addOrder", addOrderParams{Price: 100, Quantity: 10, Side: "BUY", Type: "LIMIT"})
	require.Nil(t, resp.Error)

	result := resp.Result.(map[string]interface{})
	assert.NotZero(t, result["orderId"])
}

func TestAddOrderRejected(t *testing.T) {
	s := NewServer(book.New(), nil)

	resp := rpc(t, s, "lob_addOrder", addOrderParams{Price: 100, Quantity: 0, Side: "BUY", Type: "LIMIT"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, InvalidParams, resp.Error.Code)
}

func TestAddOrderInvalidSide(t *testing.T) {
	s := NewServer(book.New(), nil)

	resp := rpc(t, s, "lob_addOrder", addOrderParams{Price: 100, Quantity: 10, Side: "sideways", Type: "LIMIT"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, InvalidParams, resp.Error.Code)
}

func TestCancelOrderRoundTrip(t *testing.T) {
	s := NewServer(book.New(), nil)

	addResp := rpc(t, s, "lob_addOrder", addOrderParams{Price: 100, Quantity: 10, Side: "BUY", Type: "LIMIT"})
	id := uint64(addResp.Result.(map[string]interface{})["orderId"].(float64))

	cancelResp := rpc(t, s, "lob_cancelOrder", cancelOrderParams{OrderID: id})
	result := cancelResp.Result.(map[string]interface{})
	assert.Equal(t, true, result["removed"])
}

func TestBestBidAskAndSpread(t *testing.T) {
	s := NewServer(book.New(), nil)

	rpc(t, s, "lob_addOrder", addOrderParams{Price: 99, Quantity: 10, Side: "BUY", Type: "LIMIT"})
	rpc(t, s, "lob_addOrder", addOrderParams{Price: 101, Quantity: 10, Side: "SELL", Type: "LIMIT"})

	bidResp := rpc(t, s, "lob_bestBid", nil)
	bid := bidResp.Result.(map[string]interface{})
	assert.Equal(t, true, bid["present"])
	assert.Equal(t, 99.0, bid["price"])

	spreadResp := rpc(t, s, "lob_spread", nil)
	spread := spreadResp.Result.(map[string]interface{})
	assert.Equal(t, 2.0, spread["spread"])
}

func TestMethodNotFound(t *testing.T) {
	s := NewServer(book.New(), nil)
	resp := rpc(t, s, "lob_doesNotExist", nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, MethodNotFound, resp.Error.Code)
}

func TestAddMarketOrderInvokesOnTradesCallback(t *testing.T) {
	s := NewServer(book.New(), nil)
	rpc(t, s, "lob_addOrder", addOrderParams{Price: 100, Quantity: 10, Side: "SELL", Type: "LIMIT"})

	var seen []*book.Trade
	s.OnTrades(func(trades []*book.Trade) { seen = trades })

	rpc(t, s, "lob_addMarketOrder", addMarketOrderParams{Quantity: 10, Side: "BUY"})
	require.Len(t, seen, 1)
	assert.Equal(t, uint64(10), seen[0].Quantity)
}

// A marketable limit order crosses the book exactly like a market order
// does, and must fan its trades out the same way.
func TestAddOrderThatCrossesInvokesOnTradesCallback(t *testing.T) {
	s := NewServer(book.New(), nil)
	rpc(t, s, "lob_addOrder", addOrderParams{Price: 100, Quantity: 10, Side: "SELL", Type: "LIMIT"})

	var seen []*book.Trade
	s.OnTrades(func(trades []*book.Trade) { seen = trades })

	resp := rpc(t, s, "lob_addOrder", addOrderParams{Price: 100, Quantity: 10, Side: "BUY", Type: "LIMIT"})
	require.Nil(t, resp.Error)
	require.Len(t, seen, 1)
	assert.Equal(t, uint64(10), seen[0].Quantity)

	result := resp.Result.(map[string]interface{})
	trades := result["trades"].([]interface{})
	assert.Len(t, trades, 1)
}

func TestMetricsAreFedByOrderLifecycle(t *testing.T) {
	s := NewServer(book.New(), nil)
	m := metrics.New("test_lob_" + t.Name())
	s.SetMetrics(m)

	rpc(t, s, "lob_addOrder", addOrderParams{Price: 100, Quantity: 10, Side: "SELL", Type: "LIMIT"})

	rejected := rpc(t, s, "lob_addOrder", addOrderParams{Price: 100, Quantity: 0, Side: "BUY", Type: "LIMIT"})
	require.NotNil(t, rejected.Error)

	crossResp := rpc(t, s, "lob_addOrder", addOrderParams{Price: 100, Quantity: 10, Side: "BUY", Type: "LIMIT"})
	require.Nil(t, crossResp.Error)

	restID := uint64(rpc(t, s, "lob_addOrder", addOrderParams{Price: 90, Quantity: 5, Side: "BUY", Type: "LIMIT"}).
		Result.(map[string]interface{})["orderId"].(float64))
	rpc(t, s, "lob_cancelOrder", cancelOrderParams{OrderID: restID})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	out := rec.Body.String()

	assert.Equal(t, float64(3), counterValue(t, out, "test_lob_TestMetricsAreFedByOrderLifecycle_orders_total"))
	assert.Equal(t, float64(1), counterValue(t, out, "test_lob_TestMetricsAreFedByOrderLifecycle_order_rejections_total"))
	assert.Equal(t, float64(1), counterValue(t, out, "test_lob_TestMetricsAreFedByOrderLifecycle_cancels_total"))
	assert.Equal(t, float64(1), counterValue(t, out, "test_lob_TestMetricsAreFedByOrderLifecycle_trades_total"))
	assert.Equal(t, float64(10), counterValue(t, out, "test_lob_TestMetricsAreFedByOrderLifecycle_volume_total"))
}
