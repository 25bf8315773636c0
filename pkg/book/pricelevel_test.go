package book

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriceLevelAddFrontAndAggregate(t *testing.T) {
	lvl := newPriceLevel(100)

	o1, err := newOrder(1, 100, 10, Buy, Limit, 1)
	require.NoError(t, err)
	o2, err := newOrder(2, 100, 5, Buy, Limit, 2)
	require.NoError(t, err)

	lvl.add(o1)
	lvl.add(o2)

	assert.Equal(t, uint64(15), lvl.TotalQuantity())
	assert.Equal(t, 2, lvl.OrderCount())
	assert.Same(t, o1, lvl.front())
}

func TestPriceLevelAddNilIsNoop(t *testing.T) {
	lvl := newPriceLevel(100)
	n := lvl.add(nil)
	assert.Nil(t, n)
	assert.True(t, lvl.Empty())
}

func TestPriceLevelPopFront(t *testing.T) {
	lvl := newPriceLevel(100)
	o1, _ := newOrder(1, 100, 10, Buy, Limit, 1)
	o2, _ := newOrder(2, 100, 5, Buy, Limit, 2)
	lvl.add(o1)
	lvl.add(o2)

	lvl.popFront()
	assert.Equal(t, uint64(5), lvl.TotalQuantity())
	assert.Same(t, o2, lvl.front())

	lvl.popFront()
	assert.True(t, lvl.Empty())

	// popFront on an empty level is a no-op.
	lvl.popFront()
	assert.True(t, lvl.Empty())
}

func TestPriceLevelRemoveFromMiddlePreservesOrder(t *testing.T) {
	lvl := newPriceLevel(100)
	o1, _ := newOrder(1, 100, 10, Buy, Limit, 1)
	o2, _ := newOrder(2, 100, 5, Buy, Limit, 2)
	o3, _ := newOrder(3, 100, 7, Buy, Limit, 3)
	lvl.add(o1)
	lvl.add(o2)
	lvl.add(o3)

	ok := lvl.remove(o2.ID)
	assert.True(t, ok)
	assert.Equal(t, uint64(17), lvl.TotalQuantity())
	assert.Equal(t, 2, lvl.OrderCount())
	assert.Same(t, o1, lvl.front())

	lvl.popFront()
	assert.Same(t, o3, lvl.front())
}

func TestPriceLevelRemoveUnknownID(t *testing.T) {
	lvl := newPriceLevel(100)
	o1, _ := newOrder(1, 100, 10, Buy, Limit, 1)
	lvl.add(o1)

	assert.False(t, lvl.remove(999))
	assert.Equal(t, uint64(10), lvl.TotalQuantity())
}

func TestPriceLevelUpdateQuantity(t *testing.T) {
	lvl := newPriceLevel(100)
	o1, _ := newOrder(1, 100, 10, Buy, Limit, 1)
	lvl.add(o1)

	lvl.updateQuantity(10, 4)
	assert.Equal(t, uint64(4), lvl.TotalQuantity())

	lvl.updateQuantity(4, 9)
	assert.Equal(t, uint64(9), lvl.TotalQuantity())
}
