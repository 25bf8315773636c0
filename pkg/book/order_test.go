package book

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOrderRejectsInvalidArguments(t *testing.T) {
	t.Run("zero quantity", func(t *testing.T) {
		_, err := newOrder(1, 100, 0, Buy, Limit, 1)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("negative price", func(t *testing.T) {
		_, err := newOrder(1, -1, 100, Buy, Limit, 1)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("limit with non-positive price", func(t *testing.T) {
		_, err := newOrder(1, 0, 100, Buy, Limit, 1)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("market order may carry zero price", func(t *testing.T) {
		o, err := newOrder(1, 0, 100, Buy, Market, 1)
		require.NoError(t, err)
		assert.Equal(t, StatusNew, o.Status)
	})
}

func TestOrderFill(t *testing.T) {
	o, err := newOrder(1, 100, 10, Buy, Limit, 1)
	require.NoError(t, err)

	require.NoError(t, o.fill(4))
	assert.Equal(t, PartiallyFilled, o.Status)
	assert.Equal(t, uint64(6), o.RemainingQty())

	require.NoError(t, o.fill(6))
	assert.Equal(t, Filled, o.Status)
	assert.True(t, o.IsFullyFilled())

	err = o.fill(1)
	assert.ErrorIs(t, err, ErrIllegalState)
}

func TestOrderFillOverfillRejected(t *testing.T) {
	o, err := newOrder(1, 100, 10, Buy, Limit, 1)
	require.NoError(t, err)

	err = o.fill(11)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Equal(t, uint64(0), o.FilledQty)
}

func TestOrderFillZeroIsNoop(t *testing.T) {
	o, err := newOrder(1, 100, 10, Buy, Limit, 1)
	require.NoError(t, err)

	require.NoError(t, o.fill(0))
	assert.Equal(t, StatusNew, o.Status)
	assert.Equal(t, uint64(0), o.FilledQty)
}

func TestOrderCancelIdempotent(t *testing.T) {
	o, err := newOrder(1, 100, 10, Buy, Limit, 1)
	require.NoError(t, err)

	o.cancel()
	assert.Equal(t, Cancelled, o.Status)

	// Cancelling a terminal order is a silent no-op.
	o.cancel()
	assert.Equal(t, Cancelled, o.Status)
}

func TestOrderCancelAfterPartialFill(t *testing.T) {
	o, err := newOrder(1, 100, 10, Buy, Limit, 1)
	require.NoError(t, err)

	require.NoError(t, o.fill(4))
	o.cancel()
	assert.Equal(t, Cancelled, o.Status)
}
