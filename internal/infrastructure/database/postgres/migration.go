// internal/infrastructure/database/postgres/migration.go
package postgres

import (
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"github.com/your-org/storefront-engine/internal/domain/access"
	"github.com/your-org/storefront-engine/internal/domain/cart"
	"github.com/your-org/storefront-engine/internal/domain/order"
	"github.com/your-org/storefront-engine/internal/domain/product"
	"gorm.io/gorm"
)

// Migration handles database migrations
type Migration struct {
	db          *gorm.DB
	feedChannel string
	log         logrus.FieldLogger
}

// NewMigration creates a new migration instance. Row changes are announced
// on feedChannel.
func NewMigration(db *gorm.DB, feedChannel string, log logrus.FieldLogger) *Migration {
	return &Migration{
		db:          db,
		feedChannel: feedChannel,
		log:         log.WithField("component", "migration"),
	}
}

// Run applies every migration step in order
func (m *Migration) Run() error {
	steps := []struct {
		name string
		fn   func() error
	}{
		{"auto migrations", m.RunAutoMigrations},
		{"constraints", m.CreateConstraints},
		{"indexes", m.CreateIndexes},
		{"checkout procedure", m.InstallCheckoutProcedure},
		{"change triggers", m.InstallChangeTriggers},
	}
	for _, step := range steps {
		if err := step.fn(); err != nil {
			return fmt.Errorf("%s: %w", step.name, err)
		}
	}
	return nil
}

// RunAutoMigrations runs GORM auto-migrations for all models
func (m *Migration) RunAutoMigrations() error {
	m.log.Info("🔄 Running database auto-migrations...")

	if err := m.db.Exec(`CREATE EXTENSION IF NOT EXISTS pgcrypto`).Error; err != nil {
		return fmt.Errorf("failed to enable pgcrypto: %w", err)
	}

	// Dependency order
	models := []interface{}{
		&product.Product{},
		&access.Profile{},
		&cart.Line{},
		&order.Order{},
		&order.Line{},
	}

	for _, model := range models {
		m.log.Debugf("Migrating model: %T", model)
		if err := m.db.AutoMigrate(model); err != nil {
			return fmt.Errorf("failed to migrate model %T: %w", model, err)
		}
	}

	m.log.Info("✅ Database auto-migrations completed successfully")
	return nil
}

// CreateConstraints adds the foreign keys gorm cannot infer from the models
func (m *Migration) CreateConstraints() error {
	stmt := `
DO $$
BEGIN
	IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'fk_carts_product') THEN
		ALTER TABLE carts ADD CONSTRAINT fk_carts_product
			FOREIGN KEY (product_id) REFERENCES products(id) ON DELETE CASCADE;
	END IF;
END
$$;`
	if err := m.db.Exec(stmt).Error; err != nil {
		return fmt.Errorf("failed to create cart constraints: %w", err)
	}
	return nil
}

// CreateIndexes creates additional indexes for better performance
func (m *Migration) CreateIndexes() error {
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_carts_user ON carts(user_id, id)",
		"CREATE INDEX IF NOT EXISTS idx_orders_user_created ON orders(user_id, created_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_order_items_order_id ON order_items(order_id, id)",
	}

	failCount := 0
	for _, indexSQL := range indexes {
		if err := m.db.Exec(indexSQL).Error; err != nil {
			m.log.WithError(err).Warn("⚠️ Failed to create index")
			failCount++
		}
	}

	m.log.Infof("✅ Created %d indexes (%d failed)", len(indexes)-failCount, failCount)
	return nil
}

// checkoutProcedure converts a cart into an order in one transaction. The
// cart rows are locked and their ids captured first; every later statement
// works on exactly those ids, so a line added while the checkout runs stays
// in the cart. The referenced products are share-locked so the prices read
// for the total are the prices copied onto the lines.
const checkoutProcedure = `
CREATE OR REPLACE FUNCTION create_checkout(p_user_id uuid, p_address text, p_payment_method text, p_sizes text)
RETURNS uuid
LANGUAGE plpgsql
AS $$
DECLARE
	v_order_id uuid;
	v_ids      bigint[];
	v_subtotal bigint;
	v_shipping bigint;
BEGIN
	IF p_address IS NULL OR btrim(p_address) = '' THEN
		RAISE EXCEPTION 'address is required';
	END IF;
	IF p_payment_method IS NULL OR p_payment_method NOT IN ('transfer', 'cod', 'qris') THEN
		RAISE EXCEPTION 'invalid payment method';
	END IF;

	SELECT array_agg(locked.id ORDER BY locked.id)
	  INTO v_ids
	  FROM (SELECT c.id FROM carts c WHERE c.user_id = p_user_id ORDER BY c.id FOR UPDATE) locked;

	IF v_ids IS NULL THEN
		RAISE EXCEPTION 'cart is empty';
	END IF;

	PERFORM 1
	   FROM products p
	  WHERE p.id IN (SELECT c.product_id FROM carts c WHERE c.id = ANY(v_ids))
	  ORDER BY p.id
	    FOR SHARE;

	SELECT coalesce(sum(c.quantity * p.price), 0)
	  INTO v_subtotal
	  FROM carts c
	  JOIN products p ON p.id = c.product_id
	 WHERE c.id = ANY(v_ids);

	v_shipping := CASE WHEN v_subtotal >= %d THEN 0 ELSE %d END;

	INSERT INTO orders (user_id, address, payment_method, sizes, subtotal_amount,
	                    shipping_amount, total_amount, status, created_at, updated_at)
	VALUES (p_user_id, btrim(p_address), p_payment_method, p_sizes, v_subtotal,
	        v_shipping, v_subtotal + v_shipping, 'pending', now(), now())
	RETURNING id INTO v_order_id;

	INSERT INTO order_items (order_id, product_id, quantity, price, size, created_at)
	SELECT v_order_id, c.product_id, c.quantity, p.price, c.size, now()
	  FROM carts c
	  JOIN products p ON p.id = c.product_id
	 WHERE c.id = ANY(v_ids)
	 ORDER BY c.id;

	DELETE FROM carts WHERE id = ANY(v_ids);

	RETURN v_order_id;
END;
$$;`

// InstallCheckoutProcedure (re)creates the create_checkout function
func (m *Migration) InstallCheckoutProcedure() error {
	stmt := fmt.Sprintf(checkoutProcedure, cart.FreeShippingThreshold, cart.ShippingFee)
	if err := m.db.Exec(stmt).Error; err != nil {
		return fmt.Errorf("failed to install create_checkout: %w", err)
	}
	return nil
}

const notifyFunction = `
CREATE OR REPLACE FUNCTION notify_row_change()
RETURNS trigger
LANGUAGE plpgsql
AS $$
BEGIN
	PERFORM pg_notify(TG_ARGV[0], json_build_object(
		'table', TG_TABLE_NAME,
		'type',  lower(TG_OP),
		'old',   CASE WHEN TG_OP IN ('UPDATE', 'DELETE') THEN row_to_json(OLD) END,
		'new',   CASE WHEN TG_OP IN ('INSERT', 'UPDATE') THEN row_to_json(NEW) END,
		'at',    now()
	)::text);
	RETURN NULL;
END;
$$;`

// InstallChangeTriggers makes products and carts announce row changes
func (m *Migration) InstallChangeTriggers() error {
	if err := m.db.Exec(notifyFunction).Error; err != nil {
		return fmt.Errorf("failed to install notify function: %w", err)
	}

	channel := pq.QuoteLiteral(m.feedChannel)
	for _, table := range []string{"products", "carts"} {
		trigger := pq.QuoteIdentifier(table + "_notify")
		stmts := []string{
			fmt.Sprintf("DROP TRIGGER IF EXISTS %s ON %s", trigger, table),
			fmt.Sprintf("CREATE TRIGGER %s AFTER INSERT OR UPDATE OR DELETE ON %s FOR EACH ROW EXECUTE FUNCTION notify_row_change(%s)",
				trigger, table, channel),
		}
		for _, stmt := range stmts {
			if err := m.db.Exec(stmt).Error; err != nil {
				return fmt.Errorf("failed to install trigger on %s: %w", table, err)
			}
		}
	}

	m.log.WithField("channel", m.feedChannel).Info("✅ Change triggers installed")
	return nil
}

// SeedInitialData inserts a small catalog for development
func (m *Migration) SeedInitialData() error {
	var productCount int64
	if err := m.db.Model(&product.Product{}).Count(&productCount).Error; err != nil {
		return fmt.Errorf("failed to count products: %w", err)
	}
	if productCount > 0 {
		m.log.Info("⏭️ Products already exist, skipping seed")
		return nil
	}

	base := time.Now().UTC().Add(-time.Hour)
	names := []string{
		"Kemeja Linen Putih", "Kaos Oversize Hitam", "Celana Chino Krem", "Jaket Denim",
		"Kemeja Flanel Merah", "Hoodie Abu", "Celana Kargo Hijau", "Kaos Polos Navy",
		"Sweater Rajut", "Kemeja Batik Modern",
	}
	products := make([]product.Product, len(names))
	for i, name := range names {
		products[i] = product.Product{
			Name:        name,
			Description: name + " dengan bahan nyaman untuk dipakai sehari-hari.",
			Price:       int64(120000 + i*35000),
			Images:      pq.StringArray{fmt.Sprintf("/images/products/%d.jpg", i+1)},
			Sizes:       pq.StringArray{"S", "M", "L", "XL"},
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
		}
	}

	if err := m.db.Create(&products).Error; err != nil {
		return fmt.Errorf("failed to seed products: %w", err)
	}

	m.log.Infof("✅ Seeded %d products", len(products))
	return nil
}

// DropAllTables drops every table owned by the service
func (m *Migration) DropAllTables() error {
	tables := []string{"order_items", "orders", "carts", "profiles", "products"}
	for _, table := range tables {
		if err := m.db.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", table)).Error; err != nil {
			return fmt.Errorf("failed to drop %s: %w", table, err)
		}
	}
	return nil
}
