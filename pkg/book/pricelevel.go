package book

// orderNode is one slot in a PriceLevel's intrusive FIFO. The node is
// owned by the PriceLevel; Order itself is owned by Engine's id index.
// This replaces the O(n) queue-rebuild cancel the reference walk uses
// with an O(1) unlink given a direct handle, per the design note in
// spec §9 on replacing the per-level FIFO with a doubly-linked list.
type orderNode struct {
	order      *Order
	prev, next *orderNode
}

// PriceLevel is a FIFO queue of working orders sharing one price, with
// a maintained aggregate quantity. The zero value is not usable; use
// newPriceLevel.
type PriceLevel struct {
	price         float64
	head, tail    *orderNode
	byID          map[uint64]*orderNode
	totalQuantity uint64
	count         int
}

func newPriceLevel(price float64) *PriceLevel {
	return &PriceLevel{
		price: price,
		byID:  make(map[uint64]*orderNode),
	}
}

// Price returns the common price of every order resting at this level.
func (l *PriceLevel) Price() float64 { return l.price }

// TotalQuantity returns the cached sum of remaining quantity over every
// order currently queued at this level.
func (l *PriceLevel) TotalQuantity() uint64 { return l.totalQuantity }

// OrderCount returns the number of orders currently queued.
func (l *PriceLevel) OrderCount() int { return l.count }

// Empty reports whether the level has no resting orders.
func (l *PriceLevel) Empty() bool { return l.count == 0 }

// add appends order to the back of the queue and returns the node
// handle so the caller (the id index) can later hand it back for O(1)
// removal. A nil order is a silent no-op, matching the reference
// semantics, and returns a nil handle.
func (l *PriceLevel) add(o *Order) *orderNode {
	if o == nil {
		return nil
	}
	n := &orderNode{order: o}
	if l.tail == nil {
		l.head, l.tail = n, n
	} else {
		n.prev = l.tail
		l.tail.next = n
		l.tail = n
	}
	l.byID[o.ID] = n
	l.totalQuantity += o.RemainingQty()
	l.count++
	return n
}

// front peeks at the oldest resting order without mutating the level.
func (l *PriceLevel) front() *Order {
	if l.head == nil {
		return nil
	}
	return l.head.order
}

// popFront removes the oldest resting order, if any, adjusting the
// aggregate.
func (l *PriceLevel) popFront() {
	if l.head == nil {
		return
	}
	n := l.head
	l.unlink(n)
}

// remove deletes the entry for orderID, wherever it sits in the queue,
// preserving the relative order of the others. It reports whether an
// entry was found.
func (l *PriceLevel) remove(orderID uint64) bool {
	n, ok := l.byID[orderID]
	if !ok {
		return false
	}
	l.unlink(n)
	return true
}

func (l *PriceLevel) unlink(n *orderNode) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		l.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		l.tail = n.prev
	}
	delete(l.byID, n.order.ID)
	l.totalQuantity -= n.order.RemainingQty()
	l.count--
}

// updateQuantity adjusts the level's aggregate after a queued order's
// remaining quantity changed from oldRemaining to newRemaining, without
// removing it from the queue.
func (l *PriceLevel) updateQuantity(oldRemaining, newRemaining uint64) {
	if oldRemaining >= newRemaining {
		l.totalQuantity -= oldRemaining - newRemaining
	} else {
		l.totalQuantity += newRemaining - oldRemaining
	}
}
