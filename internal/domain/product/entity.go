// internal/domain/product/entity.go
package product

import (
	"time"

	"github.com/lib/pq"
)

// Product is a catalog entry. Values handed out by the catalog, the cart view
// and the change feed are snapshots: copies that are never modified after capture.
type Product struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	Name        string         `gorm:"not null;size:255" json:"name"`
	Description string         `gorm:"type:text" json:"description"`
	Price       int64          `gorm:"not null" json:"price"` // minor units
	Images      pq.StringArray `gorm:"type:text[]" json:"images"`
	Sizes       pq.StringArray `gorm:"type:text[]" json:"sizes"`
	CreatedAt   time.Time      `gorm:"not null;index:idx_products_created_at,sort:desc" json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// TableName overrides the table name
func (Product) TableName() string {
	return "products"
}

// Snapshot returns a deep copy safe to hand to another owner
func (p Product) Snapshot() Product {
	cp := p
	if p.Images != nil {
		cp.Images = append(pq.StringArray(nil), p.Images...)
	}
	if p.Sizes != nil {
		cp.Sizes = append(pq.StringArray(nil), p.Sizes...)
	}
	return cp
}

// PrimaryImage returns the first image or an empty string
func (p *Product) PrimaryImage() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0]
}
