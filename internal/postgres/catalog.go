package postgres

import (
	"context"
	"errors"

	"github.com/dukerupert/cakery/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// CatalogStore implements domain.Catalog using PostgreSQL.
// It only reads; products are managed by the shop-facing catalog.
type CatalogStore struct {
	db DBTX
}

// Compile-time check that CatalogStore implements domain.Catalog.
var _ domain.Catalog = (*CatalogStore)(nil)

// NewCatalogStore creates a new PostgreSQL-backed catalog.
func NewCatalogStore(db DBTX) *CatalogStore {
	return &CatalogStore{db: db}
}

const getProductSQL = `
SELECT id, shop_id, name, base_price, discount_price
FROM products
WHERE id = $1 AND deleted_at IS NULL`

const getProductOptionsSQL = `
SELECT option_group, name, price
FROM product_options
WHERE product_id = $1
ORDER BY option_group, position`

// GetProduct returns a product with its customization tables.
func (s *CatalogStore) GetProduct(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	const op = "catalog.get_product"

	var p domain.Product
	err := s.db.QueryRow(ctx, getProductSQL, id).Scan(
		&p.ID,
		&p.ShopID,
		&p.Name,
		&p.BasePrice,
		&p.DiscountPrice,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NotFound(op, "product", id.String())
		}
		return nil, classify(err, op, "failed to get product")
	}

	rows, err := s.db.Query(ctx, getProductOptionsSQL, id)
	if err != nil {
		return nil, classify(err, op, "failed to get product options")
	}
	defer rows.Close()

	for rows.Next() {
		var group string
		var opt domain.Option
		if err := rows.Scan(&group, &opt.Name, &opt.Price); err != nil {
			return nil, classify(err, op, "failed to scan product option")
		}
		p.Customization.Add(group, opt)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, op, "failed to read product options")
	}

	return &p, nil
}
