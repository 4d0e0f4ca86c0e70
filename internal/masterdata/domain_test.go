package masterdata

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProductStockChecks(t *testing.T) {
	p := Product{TrackInventory: true, CurrentStock: 3, MinimumStock: 5, CostPrice: 12.5}
	require.True(t, p.IsLowStock())
	require.False(t, p.IsOutOfStock())
	require.InDelta(t, 37.5, p.StockValue(), 0.001)

	p.CurrentStock = 0
	require.True(t, p.IsOutOfStock())

	p.TrackInventory = false
	require.False(t, p.IsLowStock())
	require.False(t, p.IsOutOfStock())
}

func TestCustomerCredit(t *testing.T) {
	c := Customer{CreditLimit: 1000, CurrentBalance: 800}
	require.InDelta(t, 200, c.CreditAvailable(), 0.001)
	require.False(t, c.IsCreditExceeded(200))
	require.True(t, c.IsCreditExceeded(201))

	c.CurrentBalance = 1200
	require.Zero(t, c.CreditAvailable())

	unlimited := Customer{CreditLimit: 0, CurrentBalance: 5000}
	require.False(t, unlimited.IsCreditExceeded(10000))
}
