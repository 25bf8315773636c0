// Package api exposes the matching engine over JSON-RPC 2.0 HTTP. This
// replaces the generated-gRPC surface the teacher also carries: without
// a protoc run there is no honest way to produce matching .pb.go code,
// while JSON-RPC needs no code generation and covers the same
// order-entry/market-data operations.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/stratalob/lob/pkg/book"
	"github.com/stratalob/lob/pkg/logging"
	"github.com/stratalob/lob/pkg/metrics"
)

// Server handles JSON-RPC 2.0 requests against one Engine.
type Server struct {
	engine  *book.Engine
	logger  *logging.Logger
	metrics *metrics.Metrics

	// onTrades, if set, is invoked with every trade produced by a
	// lob_addOrder/lob_addMarketOrder call, after the HTTP response's
	// result has been computed. Used by cmd/lobd to fan trades out to
	// the feed and bus without pkg/api importing either.
	onTrades func([]*book.Trade)
}

// NewServer builds a Server over engine.
func NewServer(engine *book.Engine, logger *logging.Logger) *Server {
	return &Server{engine: engine, logger: logger}
}

// OnTrades registers a callback invoked with every batch of trades a
// mutation produces.
func (s *Server) OnTrades(fn func([]*book.Trade)) { s.onTrades = fn }

// SetMetrics attaches the Prometheus instrument set this server feeds on
// every accept, reject, cancel, and match.
func (s *Server) SetMetrics(m *metrics.Metrics) { s.metrics = m }

// fanOutTrades logs, meters, and forwards trades produced by one
// mutating call, regardless of whether that call was lob_addOrder
// crossing on arrival or lob_addMarketOrder. A marketable limit order
// matches exactly like a market order and must not be silently dropped
// from this path.
func (s *Server) fanOutTrades(trades []*book.Trade) {
	if len(trades) == 0 {
		return
	}
	var volume uint64
	for _, t := range trades {
		volume += t.Quantity
		if s.logger != nil {
			s.logger.LogTrade(t.TradeID, t.Price, t.Quantity)
		}
	}
	if s.metrics != nil {
		s.metrics.RecordTrades(len(trades), volume)
	}
	if s.onTrades != nil {
		s.onTrades(trades)
	}
}

// updateDepthGauges refreshes the touch-depth gauge for both sides after
// a mutation. Cheap relative to the matching walk itself: each side is
// one O(log L) best-level lookup.
func (s *Server) updateDepthGauges() {
	if s.metrics == nil {
		return
	}
	s.metrics.SetDepth("bid", s.engine.BidDepthAtLevel(0))
	s.metrics.SetDepth("ask", s.engine.AskDepthAtLevel(0))
}

// Request is a JSON-RPC 2.0 request envelope.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      interface{}     `json:"id"`
}

// Response is a JSON-RPC 2.0 response envelope.
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

// RPCError is a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *RPCError) Error() string { return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message) }

// Standard JSON-RPC 2.0 error codes.
const (
	ParseError     = -32700
	InvalidRequest = -32600
	MethodNotFound = -32601
	InvalidParams  = -32602
	InternalError  = -32603
)

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, nil, ParseError, "parse error")
		return
	}
	if req.JSONRPC != "2.0" {
		s.sendError(w, req.ID, InvalidRequest, "invalid request")
		return
	}

	result, rpcErr := s.dispatch(req.Method, req.Params)
	if rpcErr != nil {
		s.sendError(w, req.ID, rpcErr.Code, rpcErr.Message)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(Response{JSONRPC: "2.0", Result: result, ID: req.ID})
}

func (s *Server) dispatch(method string, params json.RawMessage) (interface{}, *RPCError) {
	switch method {
	case "lob_addOrder":
		return s.addOrder(params)
	case "lob_addMarketOrder":
		return s.addMarketOrder(params)
	case "lob_cancelOrder":
		return s.cancelOrder(params)
	case "lob_bestBid":
		return s.bestBid()
	case "lob_bestAsk":
		return s.bestAsk()
	case "lob_spread":
		return s.spread()
	case "lob_depth":
		return s.depth(params)
	case "lob_stats":
		return s.stats(), nil
	case "lob_ping":
		return "pong", nil
	default:
		return nil, &RPCError{Code: MethodNotFound, Message: "method not found"}
	}
}

type addOrderParams struct {
	Price    float64 `json:"price"`
	Quantity uint64  `json:"quantity"`
	Side     string  `json:"side"`
	Type     string  `json:"type"`
}

func parseSide(s string) (book.Side, bool) {
	switch s {
	case "BUY", "buy":
		return book.Buy, true
	case "SELL", "sell":
		return book.Sell, true
	default:
		return 0, false
	}
}

func parseType(s string) (book.OrderType, bool) {
	switch s {
	case "", "LIMIT", "limit":
		return book.Limit, true
	case "MARKET", "market":
		return book.Market, true
	default:
		return 0, false
	}
}

func (s *Server) addOrder(params json.RawMessage) (interface{}, *RPCError) {
	var p addOrderParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &RPCError{Code: InvalidParams, Message: "invalid params"}
	}
	side, ok := parseSide(p.Side)
	if !ok {
		return nil, &RPCError{Code: InvalidParams, Message: "invalid side"}
	}
	typ, ok := parseType(p.Type)
	if !ok {
		return nil, &RPCError{Code: InvalidParams, Message: "invalid type"}
	}

	start := time.Now()
	id, trades := s.engine.AddOrder(p.Price, p.Quantity, side, typ)
	if s.metrics != nil {
		s.metrics.ObserveMatchingLatency(time.Since(start).Seconds())
	}

	if id == 0 {
		if s.logger != nil {
			s.logger.LogOrderRejected(p.Side, p.Type, p.Price, p.Quantity, "invalid parameters")
		}
		if s.metrics != nil {
			s.metrics.RecordOrderRejected()
		}
		return nil, &RPCError{Code: InvalidParams, Message: "order rejected"}
	}

	if s.logger != nil {
		s.logger.LogOrderAccepted(id, p.Side, p.Type, p.Price, p.Quantity)
	}
	if s.metrics != nil {
		s.metrics.RecordOrderAccepted()
	}
	s.fanOutTrades(trades)
	s.updateDepthGauges()
	return map[string]interface{}{"orderId": id, "trades": trades}, nil
}

type addMarketOrderParams struct {
	Quantity uint64 `json:"quantity"`
	Side     string `json:"side"`
}

func (s *Server) addMarketOrder(params json.RawMessage) (interface{}, *RPCError) {
	var p addMarketOrderParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &RPCError{Code: InvalidParams, Message: "invalid params"}
	}
	side, ok := parseSide(p.Side)
	if !ok {
		return nil, &RPCError{Code: InvalidParams, Message: "invalid side"}
	}

	start := time.Now()
	trades := s.engine.AddMarketOrder(p.Quantity, side)
	if s.metrics != nil {
		s.metrics.ObserveMatchingLatency(time.Since(start).Seconds())
		s.metrics.RecordOrderAccepted()
	}
	s.fanOutTrades(trades)
	s.updateDepthGauges()
	return map[string]interface{}{"trades": trades}, nil
}

type cancelOrderParams struct {
	OrderID uint64 `json:"orderId"`
}

func (s *Server) cancelOrder(params json.RawMessage) (interface{}, *RPCError) {
	var p cancelOrderParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &RPCError{Code: InvalidParams, Message: "invalid params"}
	}
	removed := s.engine.CancelOrder(p.OrderID)
	if s.logger != nil {
		s.logger.LogOrderCancelled(p.OrderID, removed)
	}
	if removed && s.metrics != nil {
		s.metrics.RecordCancel()
		s.updateDepthGauges()
	}
	return map[string]interface{}{"orderId": p.OrderID, "removed": removed}, nil
}

func (s *Server) bestBid() (interface{}, *RPCError) {
	price, ok := s.engine.BestBid()
	return map[string]interface{}{"price": price, "present": ok}, nil
}

func (s *Server) bestAsk() (interface{}, *RPCError) {
	price, ok := s.engine.BestAsk()
	return map[string]interface{}{"price": price, "present": ok}, nil
}

func (s *Server) spread() (interface{}, *RPCError) {
	spread, ok := s.engine.Spread()
	return map[string]interface{}{"spread": spread, "present": ok}, nil
}

type depthParams struct {
	Levels int `json:"levels"`
}

func (s *Server) depth(params json.RawMessage) (interface{}, *RPCError) {
	p := depthParams{Levels: 10}
	_ = json.Unmarshal(params, &p)
	if p.Levels <= 0 {
		p.Levels = 10
	}

	type level struct {
		Price    float64 `json:"price"`
		Quantity uint64  `json:"quantity"`
	}
	var bids, asks []level
	for k := 0; k < p.Levels; k++ {
		price, qty, ok := s.engine.BidLevelAt(k)
		if !ok {
			break
		}
		bids = append(bids, level{Price: price, Quantity: qty})
	}
	for k := 0; k < p.Levels; k++ {
		price, qty, ok := s.engine.AskLevelAt(k)
		if !ok {
			break
		}
		asks = append(asks, level{Price: price, Quantity: qty})
	}
	return map[string]interface{}{"bids": bids, "asks": asks}, nil
}

func (s *Server) stats() interface{} {
	return map[string]interface{}{
		"totalOrders": s.engine.TotalOrders(),
		"totalTrades": s.engine.TotalTrades(),
		"totalVolume": s.engine.TotalVolume(),
		"bidLevels":   s.engine.BidLevels(),
		"askLevels":   s.engine.AskLevels(),
	}
}

func (s *Server) sendError(w http.ResponseWriter, id interface{}, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(Response{JSONRPC: "2.0", Error: &RPCError{Code: code, Message: message}, ID: id})
}
