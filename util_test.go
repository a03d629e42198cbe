package pagepool_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/simutils/pagepool"
)

func TestOrderForPages(t *testing.T) {
	order, err := pagepool.OrderForPages(1)
	require.NoError(t, err)
	require.Equal(t, 0, order)

	order, err = pagepool.OrderForPages(2)
	require.NoError(t, err)
	require.Equal(t, 1, order)

	// Non power-of-two requests round up.
	order, err = pagepool.OrderForPages(3)
	require.NoError(t, err)
	require.Equal(t, 2, order)

	order, err = pagepool.OrderForPages(5)
	require.NoError(t, err)
	require.Equal(t, 3, order)

	order, err = pagepool.OrderForPages(1023)
	require.NoError(t, err)
	require.Equal(t, pagepool.MaxOrder, order)

	order, err = pagepool.OrderForPages(pagepool.MaxBlockPages)
	require.NoError(t, err)
	require.Equal(t, pagepool.MaxOrder, order)

	_, err = pagepool.OrderForPages(0)
	require.ErrorIs(t, err, pagepool.PageCountError)

	_, err = pagepool.OrderForPages(pagepool.MaxBlockPages + 1)
	require.ErrorIs(t, err, pagepool.PageCountError)
}

func TestPagesForOrder(t *testing.T) {
	require.Equal(t, int64(1), pagepool.PagesForOrder(0))
	require.Equal(t, int64(8), pagepool.PagesForOrder(3))
	require.Equal(t, int64(1024), pagepool.PagesForOrder(pagepool.MaxOrder))
}

func TestCheckPow2(t *testing.T) {
	require.NoError(t, pagepool.CheckPow2(uint(256), "value"))
	require.ErrorIs(t, pagepool.CheckPow2(uint(257), "value"), pagepool.PowerOfTwoError)
}

func TestAlignDown(t *testing.T) {
	require.Equal(t, uint64(0x1000), pagepool.AlignDown(0x1fff, 0x1000))
	require.Equal(t, uint64(0x2000), pagepool.AlignDown(0x2000, 0x1000))
}
