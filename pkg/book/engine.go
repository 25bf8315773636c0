package book

import (
	"math"
	"sync"
)

// defaultTickSize is the resolution used to turn a float64 price into
// the integer tick that keys a Ladder's btree. It is purely an internal
// representation detail — Order.Price and Trade.Price remain float64 at
// every public boundary; two prices that round to the same tick are
// treated as one price level, exactly as a scaled-integer production
// book would, per the design note in the source material about the
// risk of keying price levels directly by float64.
const defaultTickSize = 1e-8

// Trade is an immutable record of one execution. trade_id, buy_order_id
// and sell_order_id are assigned by side regardless of which order was
// the aggressor.
type Trade struct {
	TradeID     uint64
	BuyOrderID  uint64
	SellOrderID uint64
	Price       float64
	Quantity    uint64
	Timestamp   uint64
}

// indexEntry is what the engine's id index stores for a resting order:
// enough to look up its PriceLevel by tick (O(log L)), remove it from
// that level in O(1), and drop the level from its Ladder if it drains.
type indexEntry struct {
	node *orderNode
	side Side
	tick int64
}

// Engine is the stateful matching façade: it owns both price ladders,
// the order id index, id/trade-id issuance, and the statistics
// counters, under a single readers-writer boundary. There is no
// per-level or per-order locking — AddOrder, AddMarketOrder,
// CancelOrder and Clear each take the boundary exclusively for their
// entire duration; every read takes it shared.
type Engine struct {
	mu sync.RWMutex

	bids *Ladder
	asks *Ladder
	index map[uint64]*indexEntry

	nextOrderID uint64
	nextTradeID uint64
	totalTrades uint64
	totalVolume uint64

	clock    Clock
	tickSize float64
}

// New returns an Engine using the system clock and the default tick
// size.
func New() *Engine {
	return NewWithClock(SystemClock{})
}

// NewWithClock returns an Engine driven by clock, useful for
// deterministic tests that need control over timestamps.
func NewWithClock(clock Clock) *Engine {
	return &Engine{
		bids:     newLadder(Buy),
		asks:     newLadder(Sell),
		index:    make(map[uint64]*indexEntry),
		nextOrderID: 1,
		nextTradeID: 1,
		clock:    clock,
		tickSize: defaultTickSize,
	}
}

func (e *Engine) priceToTick(price float64) int64 {
	return int64(math.Round(price / e.tickSize))
}

func (e *Engine) ladderFor(side Side) *Ladder {
	if side == Buy {
		return e.bids
	}
	return e.asks
}

func (e *Engine) oppositeLadder(side Side) *Ladder {
	if side == Buy {
		return e.asks
	}
	return e.bids
}

// AddOrder submits a new limit or market order. It returns the assigned
// order id and every trade the order produced while matching, or a zero
// id and no trades if the parameters are rejected outright (zero
// quantity, negative price, or a LIMIT order with non-positive price) —
// in which case the book is left entirely unchanged and no id is
// consumed. A marketable limit order can produce trades exactly like
// AddMarketOrder does; callers that need those trades for observability
// (metrics, market-data fan-out, trade publication) must read the
// second return value rather than assume only AddMarketOrder crosses.
func (e *Engine) AddOrder(price float64, quantity uint64, side Side, typ OrderType) (uint64, []*Trade) {
	if quantity == 0 || price < 0 || (typ == Limit && price <= 0) {
		return 0, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	id := e.nextOrderID
	e.nextOrderID++

	order, err := newOrder(id, price, quantity, side, typ, e.clock.Now())
	if err != nil {
		// Unreachable given the guard above; an engine-internal
		// invariant would have to be broken to get here.
		panic(err)
	}

	trades := e.match(order)
	e.recordTrades(trades)

	if typ == Limit && order.RemainingQty() > 0 && order.Status != Cancelled {
		tick := e.priceToTick(order.Price)
		level := e.ladderFor(side).getOrCreate(tick, order.Price)
		node := level.add(order)
		e.index[order.ID] = &indexEntry{node: node, side: side, tick: tick}
	}

	return id, trades
}

// AddMarketOrder submits a market order for quantity shares on side. It
// matches immediately against the opposite ladder and returns the
// trades produced, in execution order. Any unfilled residual is
// discarded — market orders never rest. A zero quantity returns nil
// without consuming an order id.
func (e *Engine) AddMarketOrder(quantity uint64, side Side) []*Trade {
	if quantity == 0 {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	id := e.nextOrderID
	e.nextOrderID++

	order, err := newOrder(id, 0, quantity, side, Market, e.clock.Now())
	if err != nil {
		panic(err)
	}

	trades := e.match(order)
	e.recordTrades(trades)
	return trades
}

// CancelOrder removes a resting order from the book. It returns false
// if orderID is not currently in the index (already filled, already
// cancelled, or never existed); true if the order was found and
// removed.
func (e *Engine) CancelOrder(orderID uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	entry, ok := e.index[orderID]
	if !ok {
		return false
	}

	order := entry.node.order
	order.cancel()

	ladder := e.ladderFor(entry.side)
	level := ladder.get(entry.tick)
	removed := level != nil && level.remove(orderID)
	if level != nil && level.Empty() {
		ladder.deleteLevel(entry.tick)
	}
	delete(e.index, orderID)
	return removed
}

// Clear removes every resting order and every index entry, and resets
// total_trades and total_volume to zero. It does not reset the order or
// trade id issuers, so ids already handed out remain unique forever.
func (e *Engine) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.bids.clear()
	e.asks.clear()
	e.index = make(map[uint64]*indexEntry)
	e.totalTrades = 0
	e.totalVolume = 0
}

// BestBid returns the highest resting bid price, or false if the bid
// side is empty.
func (e *Engine) BestBid() (float64, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	lvl := e.bids.best()
	if lvl == nil {
		return 0, false
	}
	return lvl.Price(), true
}

// BestAsk returns the lowest resting ask price, or false if the ask
// side is empty.
func (e *Engine) BestAsk() (float64, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	lvl := e.asks.best()
	if lvl == nil {
		return 0, false
	}
	return lvl.Price(), true
}

// Spread returns best_ask - best_bid, or false if either side is
// empty.
func (e *Engine) Spread() (float64, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	bidLvl := e.bids.best()
	askLvl := e.asks.best()
	if bidLvl == nil || askLvl == nil {
		return 0, false
	}
	return askLvl.Price() - bidLvl.Price(), true
}

// BidDepthAtLevel returns the aggregate resting quantity at the k-th
// best bid level (k == 0 is the touch), or 0 if k is past the last
// level.
func (e *Engine) BidDepthAtLevel(k int) uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	lvl := e.bids.levelAt(k)
	if lvl == nil {
		return 0
	}
	return lvl.TotalQuantity()
}

// AskDepthAtLevel returns the aggregate resting quantity at the k-th
// best ask level (k == 0 is the touch), or 0 if k is past the last
// level.
func (e *Engine) AskDepthAtLevel(k int) uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	lvl := e.asks.levelAt(k)
	if lvl == nil {
		return 0
	}
	return lvl.TotalQuantity()
}

// BidLevelAt returns the price and aggregate quantity of the k-th best
// bid level, and whether it exists.
func (e *Engine) BidLevelAt(k int) (price float64, quantity uint64, ok bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	lvl := e.bids.levelAt(k)
	if lvl == nil {
		return 0, 0, false
	}
	return lvl.Price(), lvl.TotalQuantity(), true
}

// AskLevelAt returns the price and aggregate quantity of the k-th best
// ask level, and whether it exists.
func (e *Engine) AskLevelAt(k int) (price float64, quantity uint64, ok bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	lvl := e.asks.levelAt(k)
	if lvl == nil {
		return 0, 0, false
	}
	return lvl.Price(), lvl.TotalQuantity(), true
}

// TotalOrders returns the number of orders currently resting on the
// book (the size of the id index).
func (e *Engine) TotalOrders() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.index)
}

// TotalTrades returns the number of trades produced since construction
// or the last Clear.
func (e *Engine) TotalTrades() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.totalTrades
}

// TotalVolume returns the sum of trade quantities since construction or
// the last Clear.
func (e *Engine) TotalVolume() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.totalVolume
}

// BidLevels returns the number of distinct bid price levels.
func (e *Engine) BidLevels() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.bids.Len()
}

// AskLevels returns the number of distinct ask price levels.
func (e *Engine) AskLevels() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.asks.Len()
}

// recordTrades folds the just-produced trades into the lifetime
// counters. Must be called under the exclusive boundary.
func (e *Engine) recordTrades(trades []*Trade) {
	for _, t := range trades {
		e.totalTrades++
		e.totalVolume += t.Quantity
	}
}

// match runs the core matching walk for incoming order o against the
// opposite ladder, consuming resting liquidity level by level while o
// remains crossable, and returns the trades produced in execution
// order (best price first; within a level, time-priority order).
func (e *Engine) match(o *Order) []*Trade {
	ladder := e.oppositeLadder(o.Side)
	var trades []*Trade

	for ladder.Len() > 0 && o.RemainingQty() > 0 {
		level := ladder.best()
		tick, _ := ladder.bestTick()

		crossable := o.Type == Market ||
			(o.Side == Buy && o.Price >= level.Price()) ||
			(o.Side == Sell && o.Price <= level.Price())
		if !crossable {
			break
		}

		trades = append(trades, e.processMatchesAtLevel(o, level, level.Price())...)

		if level.Empty() {
			ladder.deleteLevel(tick)
		}
	}

	return trades
}

// processMatchesAtLevel consumes resting orders from the front of level
// until either o or the level is exhausted, producing one trade per
// resting order consumed (or partially consumed). Every trade executes
// at tradePrice — the resting order's price — giving the aggressor
// price improvement whenever its own limit was more favorable than the
// touch.
func (e *Engine) processMatchesAtLevel(o *Order, level *PriceLevel, tradePrice float64) []*Trade {
	var trades []*Trade

	for !level.Empty() && o.RemainingQty() > 0 {
		resting := level.front()
		if resting == nil {
			level.popFront()
			continue
		}

		q := min(o.RemainingQty(), resting.RemainingQty())

		tradeID := e.nextTradeID
		e.nextTradeID++

		var buyID, sellID uint64
		if o.Side == Buy {
			buyID, sellID = o.ID, resting.ID
		} else {
			buyID, sellID = resting.ID, o.ID
		}

		trade := &Trade{
			TradeID:     tradeID,
			BuyOrderID:  buyID,
			SellOrderID: sellID,
			Price:       tradePrice,
			Quantity:    q,
			Timestamp:   e.clock.Now(),
		}

		oldRemaining := resting.RemainingQty()
		if err := o.fill(q); err != nil {
			panic(err)
		}
		if err := resting.fill(q); err != nil {
			panic(err)
		}
		level.updateQuantity(oldRemaining, resting.RemainingQty())

		trades = append(trades, trade)

		if resting.IsFullyFilled() {
			level.popFront()
			delete(e.index, resting.ID)
		}
	}

	return trades
}
