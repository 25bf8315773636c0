// Package bus publishes executed trades to NATS for downstream
// consumers (clearing, reporting, analytics) outside the matching
// core. Publication is best-effort: an unreachable NATS server must
// never block or fail an order-entry call.
package bus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/stratalob/lob/pkg/book"
	"github.com/stratalob/lob/pkg/logging"
)

// TradeEvent is the wire shape of one published trade.
type TradeEvent struct {
	TradeID     uint64  `json:"tradeId"`
	Symbol      string  `json:"symbol"`
	Price       float64 `json:"price"`
	Quantity    uint64  `json:"quantity"`
	BuyOrderID  uint64  `json:"buyOrderId"`
	SellOrderID uint64  `json:"sellOrderId"`
	Timestamp   int64   `json:"timestamp"`
}

// Publisher is a fire-and-forget trade publisher over a NATS
// connection.
type Publisher struct {
	nc      *nats.Conn
	subject string
	symbol  string
	logger  *logging.Logger
}

// Connect dials url and returns a Publisher that writes to subject for
// every trade from symbol's book. A connection failure is returned to
// the caller so cmd/lobd can decide whether to run without a bus.
func Connect(url, subject, symbol string, logger *logging.Logger) (*Publisher, error) {
	nc, err := nats.Connect(url, nats.Timeout(5*time.Second), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("bus: connect %s: %w", url, err)
	}
	return &Publisher{nc: nc, subject: subject, symbol: symbol, logger: logger}, nil
}

// Close closes the underlying NATS connection. It does not drain it.
func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Close()
	}
}

// Publish sends every trade produced by one engine call. Marshal or
// publish failures are logged, never returned — the caller's mutation
// already succeeded and must not be undone by a downstream hiccup.
func (p *Publisher) Publish(trades []*book.Trade) {
	if p == nil || len(trades) == 0 {
		return
	}
	for _, t := range trades {
		evt := TradeEvent{
			TradeID:     t.TradeID,
			Symbol:      p.symbol,
			Price:       t.Price,
			Quantity:    t.Quantity,
			BuyOrderID:  t.BuyOrderID,
			SellOrderID: t.SellOrderID,
			Timestamp:   int64(t.Timestamp),
		}
		data, err := json.Marshal(evt)
		if err != nil {
			p.logger.LogError(err, map[string]interface{}{"stage": "bus_marshal", "trade_id": t.TradeID})
			continue
		}
		if err := p.nc.Publish(p.subject, data); err != nil {
			p.logger.LogError(err, map[string]interface{}{"stage": "bus_publish", "trade_id": t.TradeID})
		}
	}
}
