package service

import (
	"context"
	"fmt"

	"github.com/dukerupert/cakery/internal/domain"
	"github.com/google/uuid"
)

// BucketLine is a cart line together with its position in the submitted cart.
type BucketLine struct {
	Index int
	Line  domain.CartLine
}

// ShopBucket holds the cart lines that belong to one shop. It lives only for
// the duration of a checkout call.
type ShopBucket struct {
	ShopID uuid.UUID
	Lines  []BucketLine
}

// PartitionByShop resolves every line's product and groups the lines by shop.
//
// Buckets come back in first-seen shop order and lines keep their cart order
// inside a bucket, so the result is deterministic for a given cart. Each product
// is read from the catalog once; the returned table is the only price source
// for the rest of the checkout. Any unknown product fails the whole checkout.
func PartitionByShop(ctx context.Context, catalog domain.Catalog, lines []domain.CartLine) ([]ShopBucket, map[uuid.UUID]*domain.Product, error) {
	const op = "checkout.partition"

	products := make(map[uuid.UUID]*domain.Product, len(lines))
	positions := make(map[uuid.UUID]int)
	var buckets []ShopBucket

	for i, line := range lines {
		product, ok := products[line.ProductID]
		if !ok {
			p, err := lookupProduct(ctx, catalog, line.ProductID)
			if err != nil {
				return nil, nil, lineError(op, i, line.ProductID, err)
			}
			products[line.ProductID] = p
			product = p
		}

		pos, seen := positions[product.ShopID]
		if !seen {
			pos = len(buckets)
			positions[product.ShopID] = pos
			buckets = append(buckets, ShopBucket{ShopID: product.ShopID})
		}
		buckets[pos].Lines = append(buckets[pos].Lines, BucketLine{Index: i, Line: line})
	}

	return buckets, products, nil
}

func lookupProduct(ctx context.Context, catalog domain.Catalog, id uuid.UUID) (*domain.Product, error) {
	if id == uuid.Nil {
		return nil, domain.NotFound("catalog.get_product", "product", id.String())
	}
	p, err := catalog.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, domain.NotFound("catalog.get_product", "product", id.String())
	}
	return p, nil
}

func lineError(op string, index int, productID uuid.UUID, err error) error {
	if domain.IsCode(err, domain.ENOTFOUND) {
		return &domain.CheckoutError{
			Kind:      domain.KindProductNotFound,
			Op:        op,
			Message:   fmt.Sprintf("Product with ID %s not found.", productID),
			ProductID: productID,
			Line:      index,
		}
	}
	return &domain.CheckoutError{
		Kind:      domain.KindPersistenceUnavailable,
		Op:        op,
		Message:   "The catalog is unavailable. No orders were created; please try again.",
		ProductID: productID,
		Line:      index,
		Err:       err,
	}
}
