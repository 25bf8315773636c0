package book

import "github.com/google/btree"

// btreeDegree controls the fan-out of the underlying B-tree. 32 is a
// reasonable default for an in-memory price ladder with up to a few
// thousand distinct levels per side.
const btreeDegree = 32

// tickItem is the btree.Item stored in a Ladder: a price tick paired
// with the PriceLevel resting at it. Ordering is always ascending by
// tick — Ladder.best selects Min or Max depending on side, rather than
// inverting the comparator, so both ladders can share one item type.
type tickItem struct {
	tick  int64
	level *PriceLevel
}

func (t *tickItem) Less(than btree.Item) bool {
	return t.tick < than.(*tickItem).tick
}

// Ladder is one side of the book: an ordered mapping from price tick to
// PriceLevel, giving O(log L) lookup/insert/erase and ordered best-to-
// worst iteration. Bids and asks are both backed by the same structure;
// only the direction of "best" differs, selected by side.
//
// This replaces the teacher's own simplified, non-balancing IntBTree
// (whose comments acknowledge it needs a proper B-tree in production)
// with a real one from github.com/google/btree.
type Ladder struct {
	side Side
	tree *btree.BTree
}

func newLadder(side Side) *Ladder {
	return &Ladder{side: side, tree: btree.New(btreeDegree)}
}

// get returns the PriceLevel at tick, or nil if none rests there.
func (ld *Ladder) get(tick int64) *PriceLevel {
	item := ld.tree.Get(&tickItem{tick: tick})
	if item == nil {
		return nil
	}
	return item.(*tickItem).level
}

// getOrCreate returns the PriceLevel at tick, creating an empty one at
// the given price if none exists yet.
func (ld *Ladder) getOrCreate(tick int64, price float64) *PriceLevel {
	if lvl := ld.get(tick); lvl != nil {
		return lvl
	}
	lvl := newPriceLevel(price)
	ld.tree.ReplaceOrInsert(&tickItem{tick: tick, level: lvl})
	return lvl
}

// deleteLevel removes the level at tick entirely. Called once a level's
// queue has drained to empty.
func (ld *Ladder) deleteLevel(tick int64) {
	ld.tree.Delete(&tickItem{tick: tick})
}

// Len returns the number of distinct price levels on this side.
func (ld *Ladder) Len() int { return ld.tree.Len() }

// best returns the touch: the level at the best price on this side, or
// nil if the ladder is empty. Best means highest tick for bids, lowest
// tick for asks.
func (ld *Ladder) best() *PriceLevel {
	var item btree.Item
	if ld.side == Buy {
		item = ld.tree.Max()
	} else {
		item = ld.tree.Min()
	}
	if item == nil {
		return nil
	}
	return item.(*tickItem).level
}

// bestTick returns the tick of the touch, and whether one exists.
func (ld *Ladder) bestTick() (int64, bool) {
	var item btree.Item
	if ld.side == Buy {
		item = ld.tree.Max()
	} else {
		item = ld.tree.Min()
	}
	if item == nil {
		return 0, false
	}
	return item.(*tickItem).tick, true
}

// levelAt walks k levels in from the touch (k == 0 is the touch itself)
// and returns that level, or nil if k is past the last level.
func (ld *Ladder) levelAt(k int) *PriceLevel {
	if k < 0 {
		return nil
	}
	var found *PriceLevel
	i := 0
	visit := func(item btree.Item) bool {
		if i == k {
			found = item.(*tickItem).level
			return false
		}
		i++
		return true
	}
	if ld.side == Buy {
		ld.tree.Descend(visit)
	} else {
		ld.tree.Ascend(visit)
	}
	return found
}

// clear empties the ladder of all levels.
func (ld *Ladder) clear() {
	ld.tree.Clear(false)
}
