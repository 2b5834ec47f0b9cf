// internal/domain/cart/entity.go
package cart

import (
	"time"

	"github.com/your-org/storefront-engine/internal/domain/product"
)

// Line is one (user, product, size) entry of a cart. The backing store keeps at
// most one row per tuple; repeated adds increment Quantity.
type Line struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    string    `gorm:"type:uuid;not null;uniqueIndex:idx_carts_user_product_size,priority:1" json:"user_id"`
	ProductID uint      `gorm:"not null;uniqueIndex:idx_carts_user_product_size,priority:2" json:"product_id"`
	Size      string    `gorm:"not null;size:50;uniqueIndex:idx_carts_user_product_size,priority:3" json:"size"`
	Quantity  int       `gorm:"not null;default:1;check:chk_carts_quantity,quantity >= 1" json:"quantity"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName overrides the table name
func (Line) TableName() string {
	return "carts"
}

// AggregateItem is a cart line joined with the product it references
type AggregateItem struct {
	Line    Line            `json:"line"`
	Product product.Product `json:"product"`
}

// LineTotal returns quantity times unit price
func (i AggregateItem) LineTotal() int64 {
	return int64(i.Line.Quantity) * i.Product.Price
}

// Totals represents calculated cart totals
type Totals struct {
	ItemCount     int   `json:"item_count"`     // Number of lines
	TotalQuantity int   `json:"total_quantity"` // Sum of all quantities
	SubTotal      int64 `json:"sub_total"`
	ShippingCost  int64 `json:"shipping_cost"`
	TotalAmount   int64 `json:"total_amount"`
}

// Snapshot is an immutable copy of the aggregate view
type Snapshot struct {
	UserID      string          `json:"user_id"`
	Items       []AggregateItem `json:"items"`
	Totals      Totals          `json:"totals"`
	RefreshedAt time.Time       `json:"refreshed_at"`
}

// Sizes lists the size of every line in cart order
func (s Snapshot) Sizes() []string {
	sizes := make([]string, len(s.Items))
	for i, item := range s.Items {
		sizes[i] = item.Line.Size
	}
	return sizes
}

// MutationKind names a cart line store operation
type MutationKind string

const (
	MutationAdd    MutationKind = "add"
	MutationUpdate MutationKind = "update"
	MutationRemove MutationKind = "remove"
)

// Mutation is published by the line store after a committed write
type Mutation struct {
	Kind   MutationKind
	UserID string
	LineID uint
}
