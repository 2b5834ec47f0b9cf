package pdf

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/storefront-engine/internal/config"
	"github.com/your-org/storefront-engine/internal/domain/order"
	"github.com/your-org/storefront-engine/internal/domain/product"
)

func TestFormatMoney(t *testing.T) {
	tests := map[int64]string{
		0:       "0",
		999:     "999",
		1000:    "1.000",
		270000:  "270.000",
		1234567: "1.234.567",
		-20000:  "-20.000",
	}
	for in, want := range tests {
		assert.Equal(t, want, formatMoney(in), "formatMoney(%d)", in)
	}
}

func TestRenderHTML(t *testing.T) {
	svc := NewService(config.InvoiceConfig{CompanyName: "Toko <Baju>", CompanyEmail: "cs@toko.id", Currency: "IDR"})
	svc.now = func() time.Time { return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC) }

	o := &order.Order{
		ID:             "0f8fad5b-d9cb-469f-a165-70867728950e",
		Address:        "Jl. Braga 10",
		PaymentMethod:  order.PaymentTransfer,
		Status:         order.StatusPending,
		SubtotalAmount: 250000,
		ShippingAmount: 20000,
		TotalAmount:    270000,
		CreatedAt:      time.Date(2024, 2, 29, 10, 0, 0, 0, time.UTC),
		Lines: []order.Line{
			{Quantity: 2, Price: 100000, Size: "M", Product: &product.Product{Name: "Kemeja"}},
			{Quantity: 1, Price: 50000, Size: "L"},
		},
	}

	html, err := svc.RenderHTML(o)
	require.NoError(t, err)
	out := string(html)

	assert.Contains(t, out, "INV-20240229-0F8FAD5BD9CB")
	assert.Contains(t, out, "March 1, 2024")
	assert.Contains(t, out, "Toko &lt;Baju&gt;")
	assert.Contains(t, out, "Kemeja")
	assert.Contains(t, out, "200.000")
	assert.Contains(t, out, "IDR 270.000")
}
