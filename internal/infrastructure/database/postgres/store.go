// internal/infrastructure/database/postgres/store.go
package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/your-org/storefront-engine/internal/domain/access"
	"github.com/your-org/storefront-engine/internal/domain/cart"
	"github.com/your-org/storefront-engine/internal/domain/catalog"
	"github.com/your-org/storefront-engine/internal/domain/checkout"
	"github.com/your-org/storefront-engine/internal/domain/order"
	"github.com/your-org/storefront-engine/internal/domain/product"
	"github.com/your-org/storefront-engine/internal/pkg/apperr"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// raiseException is the SQLSTATE of a plain RAISE EXCEPTION
const raiseException = "P0001"

// Store is the PostgreSQL backing store
type Store struct {
	db *gorm.DB
}

// NewStore creates a store on db
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// mapError turns gorm errors into application errors. Anything unrecognised
// is returned as is and becomes a storage error further up.
func mapError(err error, notFound string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return apperr.NotFound(notFound)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return apperr.Wrap(apperr.KindConflict, "record already exists", err)
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return apperr.Wrap(apperr.KindConflict, "record is referenced by another record", err)
	}
	return err
}

// Products

func (s *Store) CreateProduct(ctx context.Context, p *product.Product) error {
	return mapError(s.db.WithContext(ctx).Create(p).Error, "")
}

func (s *Store) GetProduct(ctx context.Context, id uint) (*product.Product, error) {
	var p product.Product
	if err := s.db.WithContext(ctx).First(&p, id).Error; err != nil {
		return nil, mapError(err, "product not found")
	}
	return &p, nil
}

func (s *Store) UpdateProduct(ctx context.Context, p *product.Product) error {
	result := s.db.WithContext(ctx).
		Model(&product.Product{ID: p.ID}).
		Select("name", "description", "price", "images", "sizes", "updated_at").
		Updates(map[string]interface{}{
			"name":        p.Name,
			"description": p.Description,
			"price":       p.Price,
			"images":      p.Images,
			"sizes":       p.Sizes,
			"updated_at":  time.Now().UTC(),
		})
	if result.Error != nil {
		return mapError(result.Error, "product not found")
	}
	if result.RowsAffected == 0 {
		return apperr.NotFound("product not found")
	}
	return mapError(s.db.WithContext(ctx).First(p, p.ID).Error, "product not found")
}

// DeleteProduct removes a product; cart lines holding it go with it. A product
// that appears on an order cannot be deleted.
func (s *Store) DeleteProduct(ctx context.Context, id uint) error {
	result := s.db.WithContext(ctx).Delete(&product.Product{}, id)
	if result.Error != nil {
		return mapError(result.Error, "product not found")
	}
	if result.RowsAffected == 0 {
		return apperr.NotFound("product not found")
	}
	return nil
}

// ListProducts implements catalog.Source. The row comparison matches the
// ORDER BY, so products sharing a timestamp across pages are not skipped.
func (s *Store) ListProducts(ctx context.Context, after catalog.Cursor, limit int) ([]product.Product, error) {
	query := s.db.WithContext(ctx).Order("created_at DESC, id DESC")
	if !after.IsZero() {
		query = query.Where("(created_at, id) < (?, ?)", after.CreatedAt, after.ID)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var products []product.Product
	if err := query.Find(&products).Error; err != nil {
		return nil, err
	}
	return products, nil
}

// Cart lines

// IncrementOrCreateLine is a single INSERT ... ON CONFLICT DO UPDATE, so
// concurrent adds of the same (user, product, size) always merge.
func (s *Store) IncrementOrCreateLine(ctx context.Context, line *cart.Line) error {
	err := s.db.WithContext(ctx).
		Clauses(
			clause.OnConflict{
				Columns: []clause.Column{{Name: "user_id"}, {Name: "product_id"}, {Name: "size"}},
				DoUpdates: clause.Assignments(map[string]interface{}{
					"quantity":   gorm.Expr("carts.quantity + EXCLUDED.quantity"),
					"updated_at": gorm.Expr("EXCLUDED.updated_at"),
				}),
			},
			clause.Returning{},
		).
		Create(line).Error

	if errors.Is(err, gorm.ErrForeignKeyViolated) {
		return apperr.NotFound("product not found")
	}
	return mapError(err, "")
}

func (s *Store) SetLineQuantity(ctx context.Context, userID string, lineID uint, quantity int) error {
	result := s.db.WithContext(ctx).
		Model(&cart.Line{}).
		Where("id = ? AND user_id = ?", lineID, userID).
		Updates(map[string]interface{}{
			"quantity":   quantity,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return mapError(result.Error, "cart item not found")
	}
	if result.RowsAffected == 0 {
		return apperr.NotFound("cart item not found")
	}
	return nil
}

func (s *Store) DeleteLine(ctx context.Context, userID string, lineID uint) error {
	return mapError(s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", lineID, userID).
		Delete(&cart.Line{}).Error, "")
}

// ListLines implements cart.LineLister
func (s *Store) ListLines(ctx context.Context, userID string) ([]cart.AggregateItem, error) {
	var lines []cart.Line
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("id").Find(&lines).Error; err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return []cart.AggregateItem{}, nil
	}

	ids := make([]uint, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ProductID)
	}
	var products []product.Product
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&products).Error; err != nil {
		return nil, err
	}
	byID := make(map[uint]product.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	items := make([]cart.AggregateItem, 0, len(lines))
	for _, l := range lines {
		p, ok := byID[l.ProductID]
		if !ok {
			continue
		}
		items = append(items, cart.AggregateItem{Line: l, Product: p})
	}
	return items, nil
}

// Checkout

// CreateCheckout implements checkout.Procedure by calling create_checkout
func (s *Store) CreateCheckout(ctx context.Context, p checkout.Params) (string, error) {
	var orderID string
	err := s.db.WithContext(ctx).
		Raw("SELECT create_checkout(?, ?, ?, ?)", p.UserID, p.Address, string(p.PaymentMethod), p.Sizes).
		Scan(&orderID).Error
	if err != nil {
		return "", procedureError(err)
	}
	return orderID, nil
}

func procedureError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == raiseException {
		if strings.Contains(pgErr.Message, "cart is empty") {
			return apperr.EmptyCart(pgErr.Message)
		}
		return apperr.Validation(pgErr.Message)
	}
	return apperr.Storage("checkout failed", err)
}

// Orders

func (s *Store) ordersQuery(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).
		Preload("Lines", func(db *gorm.DB) *gorm.DB {
			return db.Order("order_items.id")
		}).
		Preload("Lines.Product")
}

func (s *Store) ListOrders(ctx context.Context, userID string) ([]order.Order, error) {
	var orders []order.Order
	if err := s.ordersQuery(ctx).Where("user_id = ?", userID).Order("created_at DESC").Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

func (s *Store) GetOrder(ctx context.Context, orderID string) (*order.Order, error) {
	var o order.Order
	if err := s.ordersQuery(ctx).Where("id = ?", orderID).First(&o).Error; err != nil {
		return nil, mapError(err, "order not found")
	}
	return &o, nil
}

func (s *Store) UpdateOrderStatus(ctx context.Context, orderID string, status order.Status) error {
	result := s.db.WithContext(ctx).
		Model(&order.Order{}).
		Where("id = ?", orderID).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperr.NotFound("order not found")
	}
	return nil
}

// Profiles

// GetRole implements access.RoleLookup
func (s *Store) GetRole(ctx context.Context, userID string) (access.Role, error) {
	var p access.Profile
	err := s.db.WithContext(ctx).Select("role").Where("id = ?", userID).Take(&p).Error
	if err != nil {
		return access.RoleUnknown, mapError(err, "profile not found")
	}
	return p.Role, nil
}

// SetRole creates or updates the profile of userID
func (s *Store) SetRole(ctx context.Context, userID string, role access.Role) error {
	p := access.Profile{ID: userID, Role: role}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"role", "updated_at"}),
		}).
		Create(&p).Error
}

// Ping checks the database connection
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
