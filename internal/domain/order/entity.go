// internal/domain/order/entity.go
package order

import (
	"time"

	"github.com/your-org/storefront-engine/internal/domain/product"
)

// Status represents the order status
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusCompleted  Status = "completed"
)

// PaymentMethod is how the customer intends to pay. Payment itself happens
// outside this service.
type PaymentMethod string

const (
	PaymentTransfer PaymentMethod = "transfer"
	PaymentCOD      PaymentMethod = "cod"
	PaymentQRIS     PaymentMethod = "qris"
)

// Valid reports whether m is an accepted payment method
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentTransfer, PaymentCOD, PaymentQRIS:
		return true
	}
	return false
}

// Order is an immutable record created by the checkout procedure
type Order struct {
	ID             string        `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	UserID         string        `gorm:"type:uuid;not null;index" json:"user_id"`
	Address        string        `gorm:"type:text;not null;check:chk_orders_address,btrim(address) <> ''" json:"address"`
	PaymentMethod  PaymentMethod `gorm:"not null;size:20" json:"payment_method"`
	Sizes          string        `gorm:"type:text" json:"sizes"` // sizes as sent at checkout
	SubtotalAmount int64         `gorm:"not null" json:"subtotal_amount"`
	ShippingAmount int64         `gorm:"not null;default:0" json:"shipping_amount"`
	TotalAmount    int64         `gorm:"not null" json:"total_amount"`
	Status         Status        `gorm:"not null;size:20;default:'pending'" json:"status"`
	CreatedAt      time.Time     `gorm:"index" json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`

	Lines []Line `gorm:"foreignKey:OrderID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"order_items"`
}

// Line is one order item with the unit price copied at checkout time
type Line struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	OrderID   string    `gorm:"type:uuid;not null;index" json:"order_id"`
	ProductID uint      `gorm:"not null;index" json:"product_id"`
	Quantity  int       `gorm:"not null" json:"quantity"`
	Price     int64     `gorm:"not null" json:"price"` // unit price snapshot
	Size      string    `gorm:"not null;size:50" json:"size"`
	CreatedAt time.Time `json:"created_at"`

	Product *product.Product `gorm:"foreignKey:ProductID;constraint:OnDelete:RESTRICT;" json:"product,omitempty"`
}

// TableName overrides
func (Order) TableName() string { return "orders" }
func (Line) TableName() string  { return "order_items" }

// LineTotal returns quantity times the snapshotted price
func (l Line) LineTotal() int64 {
	return int64(l.Quantity) * l.Price
}

// ProductName returns the joined product name, if loaded
func (l Line) ProductName() string {
	if l.Product == nil {
		return ""
	}
	return l.Product.Name
}

// ItemCount is the total quantity ordered
func (o *Order) ItemCount() int {
	n := 0
	for _, l := range o.Lines {
		n += l.Quantity
	}
	return n
}

// IsCompleted checks if order is completed
func (o *Order) IsCompleted() bool {
	return o.Status == StatusCompleted
}
