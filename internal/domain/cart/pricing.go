// internal/domain/cart/pricing.go
package cart

const (
	// FreeShippingThreshold is the subtotal from which shipping is free
	FreeShippingThreshold int64 = 500000
	// ShippingFee is charged below FreeShippingThreshold
	ShippingFee int64 = 20000
)

// Shipping returns the shipping cost for a subtotal
func Shipping(subtotal int64) int64 {
	if subtotal >= FreeShippingThreshold {
		return 0
	}
	return ShippingFee
}

// CalculateTotals derives totals from aggregate items
func CalculateTotals(items []AggregateItem) Totals {
	var totals Totals

	totals.ItemCount = len(items)
	for _, item := range items {
		totals.TotalQuantity += item.Line.Quantity
		totals.SubTotal += item.LineTotal()
	}

	totals.ShippingCost = Shipping(totals.SubTotal)
	totals.TotalAmount = totals.SubTotal + totals.ShippingCost
	return totals
}
