package cart

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/your-org/storefront-engine/internal/domain/product"
)

func TestShipping_Threshold(t *testing.T) {
	assert.Equal(t, int64(20000), Shipping(499999))
	assert.Equal(t, int64(0), Shipping(500000))
	assert.Equal(t, int64(0), Shipping(1200000))
	assert.Equal(t, int64(20000), Shipping(0))
}

func TestCalculateTotals(t *testing.T) {
	tests := []struct {
		name     string
		items    []AggregateItem
		subtotal int64
		shipping int64
	}{
		{
			name:     "empty cart still pays shipping",
			subtotal: 0,
			shipping: 20000,
		},
		{
			name: "below threshold",
			items: []AggregateItem{
				{Line: Line{Quantity: 2}, Product: product.Product{Price: 100000}},
				{Line: Line{Quantity: 1}, Product: product.Product{Price: 50000}},
			},
			subtotal: 250000,
			shipping: 20000,
		},
		{
			name: "exactly at threshold",
			items: []AggregateItem{
				{Line: Line{Quantity: 5}, Product: product.Product{Price: 100000}},
			},
			subtotal: 500000,
			shipping: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			totals := CalculateTotals(tt.items)
			assert.Equal(t, tt.subtotal, totals.SubTotal)
			assert.Equal(t, tt.shipping, totals.ShippingCost)
			assert.Equal(t, totals.SubTotal+totals.ShippingCost, totals.TotalAmount)
			assert.Equal(t, len(tt.items), totals.ItemCount)
		})
	}
}
