// Package feed broadcasts market-data updates — top-of-book snapshots
// and trade prints — to WebSocket subscribers. It is a pure reader of
// pkg/book: it never mutates the engine, and a slow or disconnected
// subscriber can never block a caller of Engine.AddOrder.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/stratalob/lob/pkg/book"
	"github.com/stratalob/lob/pkg/logging"
)

// Config holds feed server tuning knobs, in the same shape as the
// teacher's websocket.Config.
type Config struct {
	ReadBufferSize  int
	WriteBufferSize int
	WriteTimeout    time.Duration
	PongTimeout     time.Duration
	PingPeriod      time.Duration
	DepthLevels     int
}

// DefaultConfig returns sane defaults for a single-instrument feed.
func DefaultConfig() Config {
	return Config{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		WriteTimeout:    10 * time.Second,
		PongTimeout:     60 * time.Second,
		PingPeriod:      54 * time.Second,
		DepthLevels:     10,
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Message is the envelope every feed frame is wrapped in.
type Message struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// LevelDTO is one price level as sent over the wire.
type LevelDTO struct {
	Price    decimal.Decimal `json:"price"`
	Quantity uint64          `json:"quantity"`
}

// BookSnapshot is the top-of-book-plus-depth payload of a "book_snapshot"
// message.
type BookSnapshot struct {
	Symbol  string     `json:"symbol"`
	BestBid *decimal.Decimal `json:"bestBid,omitempty"`
	BestAsk *decimal.Decimal `json:"bestAsk,omitempty"`
	Bids    []LevelDTO `json:"bids"`
	Asks    []LevelDTO `json:"asks"`
}

// TradePrint is the payload of a "trade" message.
type TradePrint struct {
	TradeID     uint64          `json:"tradeId"`
	Price       decimal.Decimal `json:"price"`
	Quantity    uint64          `json:"quantity"`
	BuyOrderID  uint64          `json:"buyOrderId"`
	SellOrderID uint64          `json:"sellOrderId"`
}

// Server is the WebSocket hub: one goroutine owns client (de)registration
// and fan-out, matching the teacher's runHub/register/unregister/broadcast
// shape.
type Server struct {
	symbol string
	engine *book.Engine
	logger *logging.Logger
	cfg    Config

	clients    map[*client]bool
	clientsMu  sync.RWMutex
	register   chan *client
	unregister chan *client
	broadcast  chan Message

	messagesOut uint64
	clientCount int32

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// NewServer builds a feed Server over engine. symbol is purely a label
// carried in outgoing snapshot frames — the core itself is single
// instrument and does not know its own symbol.
func NewServer(symbol string, engine *book.Engine, logger *logging.Logger, cfg Config) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		symbol:     symbol,
		engine:     engine,
		logger:     logger,
		cfg:        cfg,
		clients:    make(map[*client]bool),
		register:   make(chan *client, 100),
		unregister: make(chan *client, 100),
		broadcast:  make(chan Message, 1000),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start runs the hub goroutine and serves WebSocket upgrades on addr.
func (s *Server) Start(addr string) error {
	s.wg.Add(1)
	go s.runHub()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)

	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-s.ctx.Done()
		server.Shutdown(context.Background())
	}()

	s.logger.Info("feed server starting", zap.String("addr", addr))
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("feed: serve %s: %w", addr, err)
	}
	return nil
}

// Stop shuts the hub and every client connection down.
func (s *Server) Stop() {
	s.cancel()
	s.wg.Wait()
}

// BroadcastTrade publishes one trade print to every connected client.
func (s *Server) BroadcastTrade(t *book.Trade) {
	tick := decimal.NewFromFloat(t.Price)
	s.broadcast <- Message{
		Type: "trade",
		Data: TradePrint{
			TradeID:     t.TradeID,
			Price:       tick,
			Quantity:    t.Quantity,
			BuyOrderID:  t.BuyOrderID,
			SellOrderID: t.SellOrderID,
		},
		Timestamp: time.Now().Unix(),
	}
}

// BroadcastSnapshot publishes the current top-of-book-plus-depth state.
func (s *Server) BroadcastSnapshot() {
	s.broadcast <- Message{
		Type:      "book_snapshot",
		Data:      s.snapshot(),
		Timestamp: time.Now().Unix(),
	}
}

func (s *Server) snapshot() BookSnapshot {
	snap := BookSnapshot{Symbol: s.symbol}

	if bb, ok := s.engine.BestBid(); ok {
		d := decimal.NewFromFloat(bb)
		snap.BestBid = &d
	}
	if ba, ok := s.engine.BestAsk(); ok {
		d := decimal.NewFromFloat(ba)
		snap.BestAsk = &d
	}

	for k := 0; k < s.cfg.DepthLevels; k++ {
		price, qty, ok := s.engine.BidLevelAt(k)
		if !ok {
			break
		}
		snap.Bids = append(snap.Bids, LevelDTO{Price: decimal.NewFromFloat(price), Quantity: qty})
	}
	for k := 0; k < s.cfg.DepthLevels; k++ {
		price, qty, ok := s.engine.AskLevelAt(k)
		if !ok {
			break
		}
		snap.Asks = append(snap.Asks, LevelDTO{Price: decimal.NewFromFloat(price), Quantity: qty})
	}

	return snap
}

func (s *Server) runHub() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			s.clientsMu.Lock()
			for c := range s.clients {
				close(c.send)
			}
			s.clientsMu.Unlock()
			return

		case c := <-s.register:
			s.clientsMu.Lock()
			s.clients[c] = true
			atomic.AddInt32(&s.clientCount, 1)
			s.clientsMu.Unlock()

		case c := <-s.unregister:
			s.clientsMu.Lock()
			if _, ok := s.clients[c]; ok {
				delete(s.clients, c)
				close(c.send)
				atomic.AddInt32(&s.clientCount, -1)
			}
			s.clientsMu.Unlock()

		case msg := <-s.broadcast:
			data, err := json.Marshal(msg)
			if err != nil {
				s.logger.LogError(err, map[string]interface{}{"stage": "broadcast_marshal"})
				continue
			}
			s.clientsMu.RLock()
			for c := range s.clients {
				select {
				case c.send <- data:
					atomic.AddUint64(&s.messagesOut, 1)
				default:
					// Slow consumer: drop rather than block the hub.
				}
			}
			s.clientsMu.RUnlock()
		}
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.LogError(err, map[string]interface{}{"stage": "ws_upgrade"})
		return
	}

	c := &client{id: fmt.Sprintf("c-%d", time.Now().UnixNano()), conn: conn, send: make(chan []byte, 256)}
	s.register <- c

	go s.writePump(c)
	go s.readPump(c)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":   "healthy",
		"clients":  atomic.LoadInt32(&s.clientCount),
		"messages": atomic.LoadUint64(&s.messagesOut),
	})
}

func (s *Server) readPump(c *client) {
	defer func() {
		s.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(64 * 1024)
	c.conn.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.LogError(err, map[string]interface{}{"stage": "ws_read", "client": c.id})
			}
			return
		}
	}
}

func (s *Server) writePump(c *client) {
	ticker := time.NewTicker(s.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
